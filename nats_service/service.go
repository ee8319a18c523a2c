package nats_service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/karthikraju391/rentchat/broker"
	"github.com/karthikraju391/rentchat/config"
	"github.com/karthikraju391/rentchat/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

var _ broker.Broker = (*NatsService)(nil)

type NatsService struct {
	js     jetstream.JetStream
	nc     *nats.Conn
	cfg    config.NATS
	logger *zap.Logger
}

// NewNatsService connects to NATS and makes sure the relay stream exists.
func NewNatsService(ctx context.Context, cfg config.NATS, logger *zap.Logger) (*NatsService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("rentchat-relay"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	s := &NatsService{js: js, nc: nc, cfg: cfg, logger: logger.With(zap.String("stream", cfg.StreamName))}
	if err := s.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return s, nil
}

func (s *NatsService) ensureStream(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stream, err := s.js.Stream(ctx, s.cfg.StreamName)
	if err == nil {
		s.logger.Info("found existing stream", zap.String("name", stream.CachedInfo().Config.Name))
		return nil
	}
	s.logger.Info("stream not found, creating")
	_, err = s.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        s.cfg.StreamName,
		Description: "Relays chat envelopes to recipients",
		Subjects:    []string{s.cfg.SubjectPrefix + ".*"},
		MaxAge:      s.cfg.MaxAge,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream '%s': %w", s.cfg.StreamName, err)
	}
	s.logger.Info("stream created")
	return nil
}

// Close drops the NATS connection.
func (s *NatsService) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

// Publish sends env to the recipient's subject.
func (s *NatsService) Publish(ctx context.Context, recipient string, env *models.Envelope) error {
	subject := Subject(s.cfg.SubjectPrefix, recipient)
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish to subject '%s': %w", subject, err)
	}
	s.logger.Debug("published envelope", zap.String("subject", subject))
	return nil
}

// Subscribe delivers envelopes published for recipient from now on. Consumers are
// ephemeral: a connection only sees traffic sent after it subscribed.
func (s *NatsService) Subscribe(ctx context.Context, recipient string, h broker.Handler) (broker.Subscription, error) {
	subject := Subject(s.cfg.SubjectPrefix, recipient)
	cons, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.StreamName, jetstream.ConsumerConfig{
		FilterSubject:     subject,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckNonePolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for subject '%s': %w", subject, err)
	}

	log := s.logger.With(zap.String("subject", subject))
	cc, err := cons.Consume(func(m jetstream.Msg) {
		var env models.Envelope
		if err := json.Unmarshal(m.Data(), &env); err != nil {
			log.Warn("discarding undecodable envelope", zap.Error(err))
			return
		}
		h(&env)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming from subject '%s': %w", subject, err)
	}
	log.Debug("subscribed")
	return cc, nil
}

// Subject returns the subject carrying envelopes for recipient. The email is hex
// encoded so that dots and wildcards never leak into the subject hierarchy.
func Subject(prefix, recipient string) string {
	return prefix + "." + hex.EncodeToString([]byte(strings.ToLower(recipient)))
}
