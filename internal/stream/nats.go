package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const defaultSubject = "telemetry.events"

// NATSTransport receives telemetry envelopes published on a NATS subject.
// Reconnection is intentionally disabled; a lost connection surfaces as a
// close so the controller can fall back to simulation.
type NATSTransport struct {
	logger  *zap.Logger
	url     string
	subject string

	mu   sync.Mutex
	conn *nats.Conn
	sub  *nats.Subscription
}

// NewNATSTransport creates a transport subscribing to the given subject on
// the server at url. An empty subject falls back to "telemetry.events".
func NewNATSTransport(url, subject string, logger *zap.Logger) *NATSTransport {
	if subject == "" {
		subject = defaultSubject
	}
	return &NATSTransport{
		logger:  logger.Named("nats"),
		url:     url,
		subject: subject,
	}
}

// Open implements Transport
func (t *NATSTransport) Open(ctx context.Context, h Handler) error {
	conn, err := nats.Connect(t.url,
		nats.Name("flowpulse-stream"),
		nats.NoReconnect(),
		nats.ClosedHandler(func(*nats.Conn) {
			h.HandleClose()
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			h.HandleError(err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", t.url, err)
	}

	sub, err := conn.Subscribe(t.subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			t.logger.Error("Malformed envelope", zap.Error(err))
			return
		}
		h.HandleMessage(env)
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", t.subject, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.sub = sub
	t.mu.Unlock()

	t.logger.Info("Connected",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("subject", t.subject))
	h.HandleOpen()
	return nil
}

// Close implements Transport. Closing while not open is a no-op.
func (t *NATSTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	sub := t.sub
	t.conn = nil
	t.sub = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	conn.Close()
	return nil
}
