package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/karthikraju391/rentchat/config"
	"github.com/karthikraju391/rentchat/models"
)

// Conn is a live duplex channel. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a live channel scoped to a local identity.
type Dialer interface {
	Dial(ctx context.Context, identity string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, identity string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, identity string) (Conn, error) { return f(ctx, identity) }

// Backend is the request/response side used for history and fallback delivery.
// *api.Client satisfies it.
type Backend interface {
	SendMessage(ctx context.Context, req models.SendRequest) (models.Message, error)
	History(ctx context.Context, localEmail, peerUsername string) ([]models.Message, error)
}

// WSDialer dials <BaseURL>/<identity> over websocket.
type WSDialer struct {
	BaseURL        string
	Dialer         *websocket.Dialer
	Header         http.Header
	MaxMessageSize int64
}

// NewWSDialer returns a WSDialer for base, e.g. "ws://localhost:8000/chat/ws".
func NewWSDialer(base string) *WSDialer {
	return &WSDialer{
		BaseURL: base,
		Dialer: &websocket.Dialer{
			HandshakeTimeout: config.RequestTimeout,
		},
		MaxMessageSize: config.MaxMessageSize,
	}
}

func (d *WSDialer) Dial(ctx context.Context, identity string) (Conn, error) {
	target := strings.TrimRight(d.BaseURL, "/") + "/" + url.PathEscape(identity)
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, target, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	if d.MaxMessageSize > 0 {
		ws.SetReadLimit(d.MaxMessageSize)
	}
	return ws, nil
}

// liveConn serializes writes on a Conn and applies the write deadline when supported.
type liveConn struct {
	Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

func (c *liveConn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if wd, ok := c.Conn.(writeDeadliner); ok {
		if err := wd.SetWriteDeadline(time.Now().Add(config.WriteWait)); err != nil {
			return err
		}
	}
	return c.Conn.WriteJSON(v)
}

func (c *liveConn) close() {
	c.closeOnce.Do(func() { _ = c.Conn.Close() })
}
