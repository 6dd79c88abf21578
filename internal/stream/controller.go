package stream

import (
	"context"
	"encoding/json"

	"github.com/qmuntal/stateless"
	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/event"
	"github.com/t77yq/flowpulse/internal/model"
	"github.com/t77yq/flowpulse/internal/simulator"
)

// State is the connection state of the telemetry feed
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateLive         State = "LIVE"
	StateSimulated    State = "SIMULATED"
)

type trigger string

const (
	triggerConnect       trigger = "connect"
	triggerTransportOpen trigger = "transport_open"
	triggerTransportDown trigger = "transport_down"
	triggerDisconnect    trigger = "disconnect"
)

// Controller owns the feed lifecycle. On Connect it starts the synthetic
// schedulers immediately as a safety net and attempts the live transport in
// the background; a successful open silences the schedulers, a failure or a
// later close brings them back. Invariant: while connected, exactly one of
// {live transport, synthetic schedulers} is active.
type Controller struct {
	logger    *zap.Logger
	bus       *event.Bus
	lifecycle *simulator.Lifecycle
	drift     *simulator.Drift
	transport Transport

	machine *stateless.StateMachine
}

// NewController wires the controller. transport may be nil, in which case
// Connect settles on simulation without an attempt.
func NewController(bus *event.Bus, lifecycle *simulator.Lifecycle, drift *simulator.Drift, transport Transport, logger *zap.Logger) *Controller {
	c := &Controller{
		logger:    logger.Named("stream"),
		bus:       bus,
		lifecycle: lifecycle,
		drift:     drift,
		transport: transport,
	}

	m := stateless.NewStateMachine(StateDisconnected)

	m.Configure(StateDisconnected).
		OnEntry(c.onDisconnected).
		Permit(triggerConnect, StateConnecting).
		Ignore(triggerDisconnect).
		Ignore(triggerTransportOpen).
		Ignore(triggerTransportDown)

	m.Configure(StateConnecting).
		OnEntry(c.onConnecting).
		Permit(triggerTransportOpen, StateLive).
		Permit(triggerTransportDown, StateSimulated).
		Permit(triggerDisconnect, StateDisconnected).
		Ignore(triggerConnect)

	m.Configure(StateLive).
		OnEntry(c.onLive).
		Permit(triggerTransportDown, StateSimulated).
		Permit(triggerDisconnect, StateDisconnected).
		Ignore(triggerConnect).
		Ignore(triggerTransportOpen)

	m.Configure(StateSimulated).
		OnEntry(c.onSimulated).
		Permit(triggerTransportOpen, StateLive).
		Permit(triggerDisconnect, StateDisconnected).
		Ignore(triggerConnect).
		Ignore(triggerTransportDown)

	c.machine = m
	return c
}

// Connect brings the feed up. Calling Connect while already connected is a
// no-op.
func (c *Controller) Connect() {
	if err := c.machine.Fire(triggerConnect); err != nil {
		c.logger.Error("Connect failed", zap.Error(err))
	}
}

// Disconnect tears the feed down: both schedulers are cancelled, the live
// transport is closed if open, and no further events are published after
// Disconnect returns. Calling Disconnect while disconnected is a no-op.
func (c *Controller) Disconnect() {
	if err := c.machine.Fire(triggerDisconnect); err != nil {
		c.logger.Error("Disconnect failed", zap.Error(err))
	}
}

// State returns the current connection state
func (c *Controller) State() State {
	return c.machine.MustState().(State)
}

func (c *Controller) onConnecting(context.Context, ...any) error {
	// Safety net: the stream must never look dead while the transport
	// attempt is in flight.
	c.startSimulators()

	if c.transport == nil {
		return c.machine.Fire(triggerTransportDown)
	}

	go func() {
		if err := c.transport.Open(context.Background(), c); err != nil {
			c.logger.Warn("Live transport unavailable, staying on simulation", zap.Error(err))
			c.fire(triggerTransportDown)
		}
	}()
	return nil
}

func (c *Controller) onLive(context.Context, ...any) error {
	c.logger.Info("Live transport established, stopping simulation")
	c.stopSimulators()
	return nil
}

func (c *Controller) onSimulated(context.Context, ...any) error {
	c.startSimulators()
	return nil
}

func (c *Controller) onDisconnected(context.Context, ...any) error {
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			c.logger.Warn("Transport close failed", zap.Error(err))
		}
	}
	c.stopSimulators()
	c.logger.Info("Disconnected")
	return nil
}

func (c *Controller) startSimulators() {
	c.lifecycle.Start()
	c.drift.Start()
}

func (c *Controller) stopSimulators() {
	c.lifecycle.Stop()
	c.drift.Stop()
}

func (c *Controller) fire(t trigger) {
	if err := c.machine.Fire(t); err != nil {
		c.logger.Error("State transition failed",
			zap.String("trigger", string(t)),
			zap.Error(err))
	}
}

// HandleOpen implements Handler
func (c *Controller) HandleOpen() {
	c.fire(triggerTransportOpen)
}

// HandleError implements Handler. Transport failures are recovered locally
// by falling back to simulation; they are never surfaced as errors.
func (c *Controller) HandleError(err error) {
	c.logger.Warn("Live transport error, falling back to simulation", zap.Error(err))
	c.fire(triggerTransportDown)
}

// HandleClose implements Handler
func (c *Controller) HandleClose() {
	c.fire(triggerTransportDown)
}

// HandleMessage implements Handler, routing inbound envelopes into the bus.
// Envelopes are dropped unless the feed is LIVE.
func (c *Controller) HandleMessage(env Envelope) {
	if c.State() != StateLive {
		return
	}

	switch env.Type {
	case EnvelopeLog:
		var ev model.ExecutionEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			c.logger.Error("Malformed execution event", zap.Error(err))
			return
		}
		c.bus.PublishExecution(ev)
	case EnvelopeWorkflowUpdate:
		var wf model.Workflow
		if err := json.Unmarshal(env.Data, &wf); err != nil {
			c.logger.Error("Malformed workflow update", zap.Error(err))
			return
		}
		c.bus.PublishWorkflowUpdate(wf)
	default:
		c.logger.Warn("Unknown envelope type", zap.String("type", string(env.Type)))
	}
}
