package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karthikraju391/rentchat/models"
	"github.com/karthikraju391/rentchat/store"
)

// CarRequest is the body of a new listing.
type CarRequest struct {
	Name        string  `json:"name" validate:"required"`
	PricePerDay float64 `json:"price_per_day" validate:"gt=0"`
	Location    string  `json:"location" validate:"required"`
	CarType     string  `json:"car_type" validate:"required"`
	Description string  `json:"description"`
	ImageURL    *string `json:"image_url" validate:"omitempty,url"`
}

func (h *Handler) ListCars(c *fiber.Ctx) error {
	cars, err := h.Store.Cars(c.UserContext())
	if err != nil {
		return err
	}
	return sendCars(c, cars)
}

// SearchCars filters by ?location=, ?car_type= (case-insensitive substrings) and
// ?max_price=.
func (h *Handler) SearchCars(c *fiber.Ctx) error {
	f := models.CarFilter{
		Location: strings.TrimSpace(c.Query("location")),
		CarType:  strings.TrimSpace(c.Query("car_type")),
	}
	if raw := c.Query("max_price"); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || p < 0 {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "max_price must be a non-negative number")
		}
		f.MaxPrice = p
	}
	cars, err := h.Store.SearchCars(c.UserContext(), f)
	if err != nil {
		return err
	}
	return sendCars(c, cars)
}

func (h *Handler) GetCar(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "invalid car id")
	}
	car, err := h.Store.Car(c.UserContext(), int64(id))
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Car not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(car)
}

// UserCars lists the cars owned by ?email=.
func (h *Handler) UserCars(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "email is required")
	}
	cars, err := h.Store.CarsByOwner(c.UserContext(), email)
	if err != nil {
		return err
	}
	return sendCars(c, cars)
}

// CreateCar adds a listing owned by ?email=.
func (h *Handler) CreateCar(c *fiber.Ctx) error {
	email := c.Query("email")
	owner, err := h.Store.UserByEmail(c.UserContext(), email)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Owner not found")
	}
	if err != nil {
		return err
	}

	var req CarRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	car, err := h.Store.CreateCar(c.UserContext(), models.Car{
		Name:        req.Name,
		PricePerDay: req.PricePerDay,
		Location:    req.Location,
		Category:    req.CarType,
		Description: req.Description,
		OwnerEmail:  owner.Email,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(car)
}

func sendCars(c *fiber.Ctx, cars []models.Car) error {
	if cars == nil {
		cars = []models.Car{}
	}
	return c.JSON(cars)
}
