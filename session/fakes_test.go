package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/karthikraju391/rentchat/models"
)

// fakeConn is an in-memory live channel. Frames pushed by the test are read by the
// session; frames the session writes are recorded.
type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	onClose   func()

	mu       sync.Mutex
	writes   []models.OutboundFrame
	writeErr error
}

func newFakeConn(onClose func()) *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 32),
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.writes = append(c.writes, v.(models.OutboundFrame))
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.inbound:
		return 1, b, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}

func (c *fakeConn) push(v any) {
	if b, ok := v.([]byte); ok {
		c.inbound <- b
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	c.inbound <- b
}

func (c *fakeConn) frames() []models.OutboundFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.OutboundFrame(nil), c.writes...)
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// fakeDialer hands out fakeConns and tracks how many are open at once.
type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	fail    func(n int) error // n is the 1-based dial number
	open    int
	maxOpen int
}

func (d *fakeDialer) Dial(ctx context.Context, identity string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.conns) + 1
	if d.fail != nil {
		if err := d.fail(n); err != nil {
			d.conns = append(d.conns, nil)
			return nil, err
		}
	}
	c := newFakeConn(func() {
		d.mu.Lock()
		d.open--
		d.mu.Unlock()
	})
	d.conns = append(d.conns, c)
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) peakOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

// fakeBackend records fallback sends and serves a fixed history.
type fakeBackend struct {
	mu           sync.Mutex
	sends        []models.SendRequest
	sendErr      error
	history      map[string][]models.Message // keyed by peer username
	historyErr   error
	historyCalls int
	gate         chan struct{} // when set, History waits for it
}

func (b *fakeBackend) SendMessage(ctx context.Context, req models.SendRequest) (models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends = append(b.sends, req)
	if b.sendErr != nil {
		return models.Message{}, b.sendErr
	}
	return models.Message{SenderEmail: req.SenderEmail, Text: req.Text}, nil
}

func (b *fakeBackend) History(ctx context.Context, localEmail, peerUsername string) ([]models.Message, error) {
	b.mu.Lock()
	gate := b.gate
	b.historyCalls++
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.historyErr != nil {
		return nil, b.historyErr
	}
	return append([]models.Message(nil), b.history[peerUsername]...), nil
}

func (b *fakeBackend) sent() []models.SendRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.SendRequest(nil), b.sends...)
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.historyCalls
}

func (b *fakeBackend) setHistory(username string, msgs ...models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.history == nil {
		b.history = make(map[string][]models.Message)
	}
	b.history[username] = msgs
}
