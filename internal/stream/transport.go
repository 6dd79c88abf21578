// Package stream owns the connect/disconnect lifecycle of the telemetry
// feed. A Controller attempts a live transport and transparently substitutes
// the synthetic schedulers when none is available, so exactly one source is
// active at any instant while connected.
package stream

import (
	"context"
	"encoding/json"
)

// EnvelopeType tags the payload kind of a live transport message
type EnvelopeType string

const (
	EnvelopeLog            EnvelopeType = "LOG"
	EnvelopeWorkflowUpdate EnvelopeType = "WORKFLOW_UPDATE"
)

// Envelope is the tagged-union wire shape shared by all transports
type Envelope struct {
	Type EnvelopeType    `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handler receives transport lifecycle callbacks. Implementations must
// tolerate callbacks arriving after Close has been requested.
type Handler interface {
	HandleOpen()
	HandleMessage(env Envelope)
	HandleError(err error)
	HandleClose()
}

// Transport is an abstract bidirectional message channel to a live telemetry
// backend. Open establishes the channel and reports inbound envelopes to the
// handler until the channel fails or Close is called.
type Transport interface {
	Open(ctx context.Context, h Handler) error
	Close() error
}
