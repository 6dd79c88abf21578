package alert

import (
	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/model"
)

// LogSink writes alerts to the application log. It is the default sink when
// no notification backend is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink backed by the given logger
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("alerts")}
}

// Notify implements Sink
func (s *LogSink) Notify(a model.Alert) {
	a = normalize(a)

	fields := []zap.Field{
		zap.String("id", a.ID),
		zap.String("title", a.Title),
		zap.String("source", string(a.Source)),
	}

	switch a.Severity {
	case model.AlertSeverityError:
		s.logger.Error(a.Message, fields...)
	case model.AlertSeverityWarning:
		s.logger.Warn(a.Message, fields...)
	default:
		s.logger.Info(a.Message, fields...)
	}
}
