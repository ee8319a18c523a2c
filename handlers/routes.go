package handlers

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/karthikraju391/rentchat/store"
	"go.uber.org/zap"
)

// NewApp wires the relay routes onto a fiber app.
func NewApp(h *Handler, requestLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "rentchat-relay",
		DisableStartupMessage: true,
		UnescapePath:          true,
		ErrorHandler:          h.errorHandler,
	})
	app.Use(recover.New())
	if requestLog {
		app.Use(logger.New())
	}

	chat := app.Group("/chat")
	chat.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	chat.Get("/ws/:email", websocket.New(h.HandleWebSocket))
	chat.Get("/messages/:sender_email/:receiver_username", h.GetMessages)
	chat.Post("/send", h.SendMessage)
	chat.Get("/search-users", h.SearchUsers)

	car := app.Group("/car")
	car.Get("/cars", h.ListCars)
	car.Post("/cars", h.CreateCar)
	car.Get("/cars/search", h.SearchCars)
	car.Get("/cars/:id<int>", h.GetCar)
	car.Get("/user-cars", h.UserCars)

	return app
}

// errorHandler renders every failure as {"detail": "..."}.
func (h *Handler) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	detail := "Internal server error"

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code, detail = fe.Code, fe.Message
	case errors.Is(err, store.ErrNotFound):
		code, detail = fiber.StatusNotFound, "Not found"
	default:
		h.Logger.Error("request failed",
			zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"detail": detail})
}
