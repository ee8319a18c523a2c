package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/karthikraju391/rentchat/broker"
	"github.com/karthikraju391/rentchat/models"
	"github.com/karthikraju391/rentchat/store"
	"go.uber.org/zap"
)

const invalidFrame = "Invalid message format"

// Client is one live websocket of a known user.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Handler     *Handler
	User        models.User
	MessageChan chan *models.Envelope // envelopes waiting for the write pump
	DoneChan    chan struct{}         // closed when the read pump exits
	log         *zap.Logger
}

func NewClient(conn *websocket.Conn, h *Handler, user models.User) *Client {
	id := uuid.NewString()
	return &Client{
		ID:          id,
		Conn:        conn,
		Handler:     h,
		User:        user,
		MessageChan: make(chan *models.Envelope, 256),
		DoneChan:    make(chan struct{}),
		log:         h.Logger.With(zap.String("conn", id), zap.String("user", user.Email)),
	}
}

// enqueue hands env to the write pump. It gives up after a second so a stalled
// socket cannot block broker delivery.
func (c *Client) enqueue(env *models.Envelope) {
	select {
	case c.MessageChan <- env:
	case <-c.DoneChan:
		c.log.Debug("client disconnected before envelope could be sent")
	case <-time.After(time.Second):
		c.log.Warn("timeout queueing envelope")
	}
}

// HandleRead reads frames from the socket, stores and relays them. It returns when
// the socket fails or closes.
func (c *Client) HandleRead(ctx context.Context) {
	defer func() {
		c.log.Debug("reader closed")
		close(c.DoneChan)
	}()
	tr := c.Handler.Transport
	c.Conn.SetReadLimit(tr.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(tr.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(tr.PongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			} else {
				c.log.Debug("websocket closed", zap.Error(err))
			}
			return
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(tr.PongWait))
		if env := c.relay(ctx, data); env != nil {
			c.enqueue(env)
		}
	}
}

// relay handles one inbound frame and returns the reply for the sender.
func (c *Client) relay(ctx context.Context, data []byte) *models.Envelope {
	var frame models.OutboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return &models.Envelope{Error: invalidFrame}
	}
	frame.Text = strings.TrimSpace(frame.Text)
	if err := c.Handler.validate.Struct(frame); err != nil {
		return &models.Envelope{Error: invalidFrame}
	}

	receiver, err := c.Handler.Store.UserByEmail(ctx, frame.ReceiverEmail)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Envelope{Error: "User with email " + frame.ReceiverEmail + " not found"}
	}
	if err != nil {
		c.log.Error("receiver lookup failed", zap.Error(err))
		return &models.Envelope{Error: "Internal error"}
	}

	msg, err := c.Handler.deliver(ctx, models.Message{
		SenderEmail:   c.User.Email,
		ReceiverEmail: receiver.Email,
		Text:          frame.Text,
		ClientID:      frame.ClientID,
	})
	if err != nil {
		c.log.Error("failed to store message", zap.Error(err))
		return &models.Envelope{Error: "Internal error"}
	}
	return &models.Envelope{Status: models.StatusDelivered, Message: &msg}
}

// HandleWrite writes queued envelopes to the socket and keeps it alive with pings.
func (c *Client) HandleWrite() {
	tr := c.Handler.Transport
	ticker := time.NewTicker(tr.PingPeriod)
	defer func() {
		ticker.Stop()
		c.log.Debug("writer closed")
	}()

	for {
		select {
		case env := <-c.MessageChan:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(tr.WriteWait))
			if err := c.Conn.WriteJSON(env); err != nil {
				c.log.Warn("websocket write error", zap.Error(err))
				_ = c.Conn.Close()
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(tr.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn("websocket ping error", zap.Error(err))
				_ = c.Conn.Close()
				return
			}

		case <-c.DoneChan:
			return
		}
	}
}

// HandleWebSocket serves the live channel of the user named in the :email parameter.
func (h *Handler) HandleWebSocket(c *websocket.Conn) {
	email := c.Params("email")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	user, err := h.Store.UserByEmail(ctx, email)
	if err != nil {
		h.Logger.Info("rejecting websocket", zap.String("email", email), zap.Error(err))
		deadline := time.Now().Add(h.Transport.WriteWait)
		_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unknown user"), deadline)
		_ = c.Close()
		return
	}

	client := NewClient(c, h, user)
	client.log.Info("client connected")

	sub, err := h.Broker.Subscribe(ctx, user.Email, broker.Handler(client.enqueue))
	if err != nil {
		client.log.Error("failed to subscribe", zap.Error(err))
		_ = c.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.HandleWrite()
	}()

	client.HandleRead(ctx)

	sub.Stop()
	<-writerDone
	_ = c.Close()
	client.log.Info("client disconnected")
}
