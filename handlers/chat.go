package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karthikraju391/rentchat/models"
	"github.com/karthikraju391/rentchat/store"
)

// GetMessages returns the conversation between :sender_email and the user named
// :receiver_username, oldest first.
func (h *Handler) GetMessages(c *fiber.Ctx) error {
	receiver, err := h.Store.UserByUsername(c.UserContext(), c.Params("receiver_username"))
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Receiver not found")
	}
	if err != nil {
		return err
	}
	msgs, err := h.Store.Conversation(c.UserContext(), c.Params("sender_email"), receiver.Email)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return c.JSON(msgs)
}

// SendMessage stores a message sent over plain HTTP and relays it like a live one.
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var req models.SendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Invalid request body")
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	receiver, err := h.Store.UserByUsername(c.UserContext(), req.ReceiverUsername)
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Receiver not found")
	}
	if err != nil {
		return err
	}

	msg, err := h.deliver(c.UserContext(), models.Message{
		SenderEmail:   req.SenderEmail,
		ReceiverEmail: receiver.Email,
		Text:          req.Text,
	})
	if err != nil {
		return err
	}
	return c.JSON(msg)
}

// SearchUsers matches ?query= against usernames and emails.
func (h *Handler) SearchUsers(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("query"))
	if q == "" {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "query must not be empty")
	}
	users, err := h.Store.SearchUsers(c.UserContext(), q)
	if err != nil {
		return err
	}
	peers := make([]models.Peer, len(users))
	for i, u := range users {
		peers[i] = u.Peer()
	}
	return c.JSON(peers)
}
