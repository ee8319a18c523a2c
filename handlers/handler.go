// Package handlers serves the relay's REST routes and live websocket channel.
package handlers

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/karthikraju391/rentchat/broker"
	"github.com/karthikraju391/rentchat/config"
	"github.com/karthikraju391/rentchat/models"
	"github.com/karthikraju391/rentchat/store"
	"go.uber.org/zap"
)

// Handler carries the dependencies shared by every route.
type Handler struct {
	Store     store.Store
	Broker    broker.Broker
	Transport config.Transport
	Logger    *zap.Logger

	validate *validator.Validate
}

func NewHandler(st store.Store, br broker.Broker, tr config.Transport, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:     st,
		Broker:    br,
		Transport: tr,
		Logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// deliver stores m and publishes it to the receiver's live connections. A publish
// failure is logged; the message is already persisted and reachable through history.
func (h *Handler) deliver(ctx context.Context, m models.Message) (models.Message, error) {
	saved, err := h.Store.SaveMessage(ctx, m)
	if err != nil {
		return saved, fmt.Errorf("save message: %w", err)
	}
	if err := h.Broker.Publish(ctx, saved.ReceiverEmail, &models.Envelope{Message: &saved}); err != nil {
		h.Logger.Warn("failed to publish message",
			zap.String("receiver", saved.ReceiverEmail), zap.String("id", string(saved.ID)), zap.Error(err))
	}
	return saved, nil
}
