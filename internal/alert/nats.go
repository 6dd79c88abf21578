package alert

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/model"
)

// NATSSink publishes alerts to a NATS subject so an external notification
// center can pick them up. Subject layout is <prefix>.<source>, e.g.
// "alert.workflow".
type NATSSink struct {
	logger *zap.Logger
	conn   *nats.Conn
	prefix string
}

// NewNATSSink creates a sink publishing on the given connection
func NewNATSSink(conn *nats.Conn, prefix string, logger *zap.Logger) *NATSSink {
	if prefix == "" {
		prefix = "alert"
	}
	return &NATSSink{
		logger: logger.Named("alerts"),
		conn:   conn,
		prefix: prefix,
	}
}

// Notify implements Sink. Publish failures are logged and dropped; alert
// delivery is best-effort by contract.
func (s *NATSSink) Notify(a model.Alert) {
	a = normalize(a)

	data, err := json.Marshal(a)
	if err != nil {
		s.logger.Error("Failed to marshal alert", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s", s.prefix, a.Source)
	if err := s.conn.Publish(subject, data); err != nil {
		s.logger.Error("Failed to publish alert",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}

	s.logger.Debug("Alert published",
		zap.String("id", a.ID),
		zap.String("subject", subject),
		zap.String("severity", string(a.Severity)))
}
