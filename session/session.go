// Package session implements the realtime messaging session of the chat client.
//
// A Session owns at most one live websocket, scoped to the local user's identity,
// and chats with one counterpart at a time. Outgoing messages go over the live
// channel; when that channel is unavailable or the write fails, the message is sent
// once through the request/response backend and the history is refreshed.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/karthikraju391/rentchat/models"
	"go.uber.org/zap"
)

var (
	ErrUnauthenticated      = errors.New("session: no local identity")
	ErrNoActiveConversation = errors.New("session: no counterpart selected")
	ErrDeliveryFailed       = errors.New("session: message delivery failed")
	ErrEmptyText            = errors.New("session: message text is empty")
	ErrSessionClosed        = errors.New("session: closed")
	ErrMalformedInbound     = errors.New("session: malformed inbound payload")

	errNotOpen = errors.New("live channel is not open")
)

// State is the live connection state.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	// StateReconnecting is only entered when a ReconnectPolicy is configured.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ReconnectPolicy redials a dropped live channel with exponential backoff.
// The zero value disables reconnection: a dropped channel stays closed until the
// next SelectCounterpart.
type ReconnectPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

const defaultBackoff = 500 * time.Millisecond

// backoff returns the wait before the given zero-based attempt, or false once
// attempts are exhausted.
func (p ReconnectPolicy) backoff(attempt int) (time.Duration, bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	d := p.InitialBackoff
	if d <= 0 {
		d = defaultBackoff
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			break
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d, true
}

// Options configures Open.
type Options struct {
	// Identity is the local user's email. Required.
	Identity string
	// Dialer opens the live channel. Required.
	Dialer Dialer
	// Backend serves history and fallback delivery. Optional; without it a failed
	// live send is reported as ErrDeliveryFailed and no history is loaded.
	Backend   Backend
	Logger    *zap.Logger
	Reconnect ReconnectPolicy
	// NewClientID generates idempotency keys for outgoing messages. Defaults to UUIDs.
	NewClientID func() string
}

// Session is a chat session for one local user. It is safe for concurrent use.
//
// Callbacks run on the connection's read goroutine, one at a time, and must not
// call Close.
type Session struct {
	identity  string
	dialer    Dialer
	backend   Backend
	log       *zap.Logger
	reconnect ReconnectPolicy
	newID     func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	state      State
	gen        uint64 // bumped whenever the connection or conversation is replaced
	conn       *liveConn
	connCancel context.CancelFunc
	runDone    chan struct{}
	peer       *models.Peer
	conv       conversation
	onMessage  []func(models.Message)
	onState    []func(State)
}

// Open creates a session for opts.Identity and starts connecting. It does not wait
// for the connection: watch State or OnStateChange.
func Open(opts Options) (*Session, error) {
	if strings.TrimSpace(opts.Identity) == "" {
		return nil, ErrUnauthenticated
	}
	if opts.Dialer == nil {
		return nil, errors.New("session: dialer is required")
	}
	s := &Session{
		identity:  opts.Identity,
		dialer:    opts.Dialer,
		backend:   opts.Backend,
		log:       opts.Logger,
		reconnect: opts.Reconnect,
		newID:     opts.NewClientID,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.With(zap.String("identity", s.identity))
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.mu.Lock()
	notify := s.connectLocked()
	s.mu.Unlock()
	fire(notify)
	return s, nil
}

// Identity returns the local user's identity.
func (s *Session) Identity() string { return s.identity }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Counterpart returns the selected counterpart, if any.
func (s *Session) Counterpart() (models.Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return models.Peer{}, false
	}
	return *s.peer, true
}

// Messages returns a snapshot of the open conversation, oldest first.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.conv.msgs)
}

// OnMessage registers fn to be called once per accepted inbound message,
// including the echo of the local user's own messages.
func (s *Session) OnMessage(fn func(models.Message)) {
	s.mu.Lock()
	s.onMessage = append(s.onMessage, fn)
	s.mu.Unlock()
}

// OnStateChange registers fn to be called on every connection state change.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onState = append(s.onState, fn)
	s.mu.Unlock()
}

// SelectCounterpart switches the conversation to peer: the current live channel
// is closed, the conversation is cleared, a new channel is opened, and the history
// is loaded in the background. Selecting the current counterpart again while the
// channel is open or connecting does nothing.
func (s *Session) SelectCounterpart(peer models.Peer) error {
	if strings.TrimSpace(peer.Email) == "" {
		return errors.New("session: counterpart email is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.peer != nil && s.peer.Email == peer.Email &&
		(s.state == StateOpen || s.state == StateConnecting) {
		s.mu.Unlock()
		return nil
	}

	s.peer = &peer
	s.conv.reset()
	notify := s.connectLocked()
	gen := s.gen
	loadHistory := s.backend != nil && peer.Username != ""
	if loadHistory {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	fire(notify)

	s.log.Info("conversation selected", zap.String("peer", peer.Email))
	if loadHistory {
		go func() {
			defer s.wg.Done()
			if err := s.refresh(s.ctx, gen, peer); err != nil && s.ctx.Err() == nil {
				s.log.Warn("history load failed", zap.String("peer", peer.Email), zap.Error(err))
			}
		}()
	}
	return nil
}

// Refresh reloads the history of the open conversation and merges it into the
// message list.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.peer == nil {
		s.mu.Unlock()
		return ErrNoActiveConversation
	}
	peer, gen := *s.peer, s.gen
	s.mu.Unlock()

	if s.backend == nil {
		return errors.New("session: no backend configured")
	}
	return s.refresh(ctx, gen, peer)
}

// Send delivers text to the selected counterpart. The live channel is tried first
// and not awaited beyond the write; if it is not open or the write fails, the
// message is sent once through the backend and the history is refreshed. When both
// paths fail the returned error wraps ErrDeliveryFailed.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.peer == nil {
		s.mu.Unlock()
		return ErrNoActiveConversation
	}
	peer, gen := *s.peer, s.gen
	var lc *liveConn
	if s.state == StateOpen {
		lc = s.conn
	}
	s.mu.Unlock()

	liveErr := errNotOpen
	if lc != nil {
		frame := models.OutboundFrame{Text: text, ReceiverEmail: peer.Email, ClientID: s.newID()}
		if liveErr = lc.write(frame); liveErr == nil {
			return nil
		}
		s.log.Warn("live send failed, using fallback", zap.String("peer", peer.Email), zap.Error(liveErr))
	}
	return s.sendFallback(ctx, gen, peer, text, liveErr)
}

func (s *Session) sendFallback(ctx context.Context, gen uint64, peer models.Peer, text string, liveErr error) error {
	if s.backend == nil {
		err := fmt.Errorf("%w: %w", ErrDeliveryFailed, liveErr)
		s.log.Error("message not delivered", zap.String("peer", peer.Email), zap.Error(err))
		return err
	}

	req := models.SendRequest{SenderEmail: s.identity, ReceiverUsername: peer.Username, Text: text}
	if _, err := s.backend.SendMessage(ctx, req); err != nil {
		err = fmt.Errorf("%w: %w", ErrDeliveryFailed, errors.Join(liveErr, err))
		s.log.Error("message not delivered", zap.String("peer", peer.Email), zap.Error(err))
		return err
	}
	if err := s.refresh(ctx, gen, peer); err != nil {
		s.log.Warn("history refresh after fallback send failed", zap.Error(err))
	}
	return nil
}

// Close releases the live channel and waits for the session's goroutines.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.dropLocked()
	s.peer = nil
	s.conv.reset()
	notify := s.setStateLocked(StateClosed)
	s.mu.Unlock()

	s.cancel()
	fire(notify)
	s.wg.Wait()
	s.log.Debug("session closed")
	return nil
}

func (s *Session) refresh(ctx context.Context, gen uint64, peer models.Peer) error {
	history, err := s.backend.History(ctx, s.identity, peer.Username)
	if err != nil {
		return fmt.Errorf("fetch history with %s: %w", peer.Username, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// The user moved to another conversation while the request was in flight.
		return nil
	}
	history = slices.DeleteFunc(history, func(m models.Message) bool {
		return !m.Involves(s.identity, peer.Email)
	})
	s.conv.merge(history)
	return nil
}

// connectLocked replaces the live channel with a fresh one. s.mu must be held.
func (s *Session) connectLocked() func() {
	s.dropLocked()

	ctx, cancel := context.WithCancel(s.ctx)
	s.connCancel = cancel
	prev := s.runDone
	done := make(chan struct{})
	s.runDone = done

	s.wg.Add(1)
	go s.run(ctx, s.gen, prev, done)
	return s.setStateLocked(StateConnecting)
}

// dropLocked invalidates the current generation and closes its channel. s.mu must be held.
func (s *Session) dropLocked() {
	s.gen++
	if s.connCancel != nil {
		s.connCancel()
		s.connCancel = nil
	}
	if s.conn != nil {
		s.conn.close()
		s.conn = nil
	}
}

func (s *Session) setStateLocked(st State) func() {
	if s.state == st {
		return nil
	}
	s.state = st
	handlers := slices.Clone(s.onState)
	return func() {
		for _, h := range handlers {
			h(st)
		}
	}
}

func fire(notify func()) {
	if notify != nil {
		notify()
	}
}

// run owns one connection generation: it dials, reads until the channel drops, and
// redials when a reconnect policy allows it.
func (s *Session) run(ctx context.Context, gen uint64, prev <-chan struct{}, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)

	// The previous generation must be fully gone before a new channel is dialed.
	if prev != nil {
		<-prev
	}

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := s.dialer.Dial(ctx, s.identity)
		if err == nil {
			lc := &liveConn{Conn: conn}
			if !s.attach(gen, lc) {
				lc.close()
				return
			}
			attempt = 0
			err = s.readLoop(gen, lc)
			lc.close()
		}
		if ctx.Err() != nil {
			return
		}

		delay, retry := s.reconnect.backoff(attempt)
		attempt++
		if !retry {
			s.log.Warn("live channel closed", zap.Error(err))
			s.transition(gen, StateClosed)
			return
		}
		s.log.Info("live channel lost, reconnecting",
			zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))
		if !s.transition(gen, StateReconnecting) {
			return
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if !s.transition(gen, StateConnecting) {
			return
		}
	}
}

func (s *Session) attach(gen uint64, lc *liveConn) bool {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return false
	}
	s.conn = lc
	notify := s.setStateLocked(StateOpen)
	s.mu.Unlock()

	s.log.Debug("live channel open")
	fire(notify)
	return true
}

// transition moves to st if gen is still current and reports whether it was.
func (s *Session) transition(gen uint64, st State) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	if st != StateOpen {
		s.conn = nil
	}
	notify := s.setStateLocked(st)
	s.mu.Unlock()
	fire(notify)
	return true
}

func (s *Session) readLoop(gen uint64, lc *liveConn) error {
	for {
		_, data, err := lc.ReadMessage()
		if err != nil {
			return err
		}
		s.handleFrame(gen, data)
	}
}

func (s *Session) handleFrame(gen uint64, data []byte) {
	msg, err := decodeFrame(data)
	var notice serverNotice
	switch {
	case errors.As(err, &notice):
		s.log.Warn("backend reported an error", zap.String("notice", string(notice)))
		return
	case err != nil:
		s.log.Warn("dropping inbound frame", zap.Error(err), zap.ByteString("frame", truncate(data, 256)))
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.peer == nil || !msg.Involves(s.identity, s.peer.Email) {
		s.mu.Unlock()
		s.log.Debug("inbound message for another conversation dropped",
			zap.String("from", msg.SenderEmail), zap.String("to", msg.ReceiverEmail))
		return
	}
	s.conv.add(*msg)
	handlers := slices.Clone(s.onMessage)
	s.mu.Unlock()

	for _, h := range handlers {
		h(*msg)
	}
}

// serverNotice is a frame carrying the backend's error report.
type serverNotice string

func (n serverNotice) Error() string { return "backend error notice: " + string(n) }

// decodeFrame parses an inbound frame into the message it carries.
func decodeFrame(data []byte) (*models.Message, error) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInbound, err)
	}
	if env.Error != "" {
		return nil, serverNotice(env.Error)
	}
	if env.Message == nil {
		return nil, fmt.Errorf("%w: no message or error field", ErrMalformedInbound)
	}
	if !env.Message.Valid() {
		return nil, fmt.Errorf("%w: message lacks sender, receiver or text", ErrMalformedInbound)
	}
	return env.Message, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
