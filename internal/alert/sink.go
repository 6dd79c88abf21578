// Package alert defines the outbound notification surface of the telemetry
// core. Sinks are fire-and-forget: the core never consumes a return value.
package alert

import (
	"time"

	"github.com/google/uuid"

	"github.com/t77yq/flowpulse/internal/model"
)

// Sink receives structured alerts raised by the core
type Sink interface {
	Notify(alert model.Alert)
}

// normalize fills in the fields callers leave empty
func normalize(a model.Alert) model.Alert {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return a
}
