// Package broker fans relay envelopes out to the live connections of a recipient.
package broker

import (
	"context"
	"sync"

	"github.com/karthikraju391/rentchat/models"
)

// Handler receives envelopes addressed to a subscribed recipient.
type Handler func(env *models.Envelope)

// Subscription is an active delivery registration. jetstream.ConsumeContext satisfies it.
type Subscription interface {
	Stop()
}

// Broker routes envelopes by recipient email.
type Broker interface {
	Publish(ctx context.Context, recipient string, env *models.Envelope) error
	Subscribe(ctx context.Context, recipient string, h Handler) (Subscription, error)
}

// Local is an in-process Broker. Envelopes published to a recipient are handed to
// every handler subscribed for that recipient at the time of the call.
type Local struct {
	mu   sync.RWMutex
	subs map[string]map[*localSub]struct{}
}

// NewLocal returns an empty in-process broker.
func NewLocal() *Local {
	return &Local{subs: make(map[string]map[*localSub]struct{})}
}

type localSub struct {
	b         *Local
	recipient string
	h         Handler
	once      sync.Once
}

func (s *localSub) Stop() {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		set := s.b.subs[s.recipient]
		delete(set, s)
		if len(set) == 0 {
			delete(s.b.subs, s.recipient)
		}
	})
}

func (b *Local) Publish(ctx context.Context, recipient string, env *models.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[recipient]))
	for s := range b.subs[recipient] {
		handlers = append(handlers, s.h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
	return nil
}

func (b *Local) Subscribe(_ context.Context, recipient string, h Handler) (Subscription, error) {
	s := &localSub{b: b, recipient: recipient, h: h}
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[recipient]
	if !ok {
		set = make(map[*localSub]struct{})
		b.subs[recipient] = set
	}
	set[s] = struct{}{}
	return s, nil
}

// Subscribers reports how many handlers are registered for recipient.
func (b *Local) Subscribers(recipient string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[recipient])
}
