package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/event"
	"github.com/t77yq/flowpulse/internal/model"
	"github.com/t77yq/flowpulse/internal/simulator"
)

// fakeTransport hands control of the open/close callbacks to the test
type fakeTransport struct {
	mu         sync.Mutex
	openCalls  int
	closeCalls int
	openErr    error
	handler    Handler
}

func (f *fakeTransport) Open(_ context.Context, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	if f.openErr != nil {
		return f.openErr
	}
	f.handler = h
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeTransport) opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openCalls
}

func (f *fakeTransport) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

type harness struct {
	bus        *event.Bus
	controller *Controller

	mu      sync.Mutex
	events  []model.ExecutionEvent
	updates []model.Workflow
}

func newHarness(t *testing.T, transport Transport) *harness {
	t.Helper()

	bus := event.NewBus(zap.NewNop())
	h := &harness{bus: bus}

	bus.SubscribeExecutions(func(ev model.ExecutionEvent) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, ev)
	})
	bus.SubscribeWorkflowUpdates(func(wf model.Workflow) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.updates = append(h.updates, wf)
	})

	roster := simulator.NewRoster()
	roster.Update([]model.Workflow{
		{ID: "1", Name: "A", Status: model.WorkflowStatusActive},
	})

	lifecycle := simulator.NewLifecycle(bus, roster, simulator.LifecycleConfig{
		MinDelay:     5 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		MinExecution: 5 * time.Millisecond,
		MaxExecution: 10 * time.Millisecond,
	}, zap.NewNop())
	drift := simulator.NewDrift(bus, roster, simulator.DriftConfig{
		MinDelay: 5 * time.Millisecond,
		MaxDelay: 10 * time.Millisecond,
	}, zap.NewNop())

	h.controller = NewController(bus, lifecycle, drift, transport, zap.NewNop())
	return h
}

func (h *harness) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *harness) updateCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.updates)
}

func TestController_NilTransportSettlesOnSimulation(t *testing.T) {
	h := newHarness(t, nil)

	require.Equal(t, StateDisconnected, h.controller.State())
	h.controller.Connect()
	require.Equal(t, StateSimulated, h.controller.State())

	require.Eventually(t, func() bool { return h.eventCount() >= 2 }, time.Second, 5*time.Millisecond)
	h.controller.Disconnect()
}

func TestController_OpenFailureFallsBack(t *testing.T) {
	ft := &fakeTransport{openErr: errors.New("connection refused")}
	h := newHarness(t, ft)

	h.controller.Connect()

	require.Eventually(t, func() bool {
		return h.controller.State() == StateSimulated
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, ft.opens())

	// Simulated events still flow after the failed attempt
	require.Eventually(t, func() bool { return h.eventCount() >= 1 }, time.Second, 5*time.Millisecond)
	h.controller.Disconnect()
}

func TestController_LiveSilencesSimulation(t *testing.T) {
	ft := &fakeTransport{}
	h := newHarness(t, ft)

	h.controller.Connect()
	require.Equal(t, StateConnecting, h.controller.State())

	// While connecting, the synthetic stream covers the gap
	require.Eventually(t, func() bool { return h.eventCount() >= 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return ft.opens() == 1 }, time.Second, 5*time.Millisecond)

	ft.handler.HandleOpen()
	require.Equal(t, StateLive, h.controller.State())

	// Settle in-flight terminals, then the synthetic stream must be quiet
	time.Sleep(50 * time.Millisecond)
	seen := h.eventCount()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, seen, h.eventCount())

	h.controller.Disconnect()
}

func TestController_ConnectIsIdempotent(t *testing.T) {
	ft := &fakeTransport{}
	h := newHarness(t, ft)

	h.controller.Connect()
	h.controller.Connect()
	require.Eventually(t, func() bool { return ft.opens() >= 1 }, time.Second, 5*time.Millisecond)

	ft.handler.HandleOpen()
	h.controller.Connect()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, ft.opens())
	assert.Equal(t, StateLive, h.controller.State())

	h.controller.Disconnect()
}

func TestController_MessageRouting(t *testing.T) {
	ft := &fakeTransport{}
	h := newHarness(t, ft)

	h.controller.Connect()
	require.Eventually(t, func() bool { return ft.opens() == 1 }, time.Second, 5*time.Millisecond)
	ft.handler.HandleOpen()

	time.Sleep(50 * time.Millisecond)
	execBase := h.eventCount()
	updateBase := h.updateCount()

	logData, err := json.Marshal(model.ExecutionEvent{ID: "remote-1", WorkflowID: "9", Status: model.ExecutionStatusSuccess})
	require.NoError(t, err)
	ft.handler.HandleMessage(Envelope{Type: EnvelopeLog, Data: logData})

	wfData, err := json.Marshal(model.Workflow{ID: "9", Name: "Remote", Status: model.WorkflowStatusActive})
	require.NoError(t, err)
	ft.handler.HandleMessage(Envelope{Type: EnvelopeWorkflowUpdate, Data: wfData})

	require.Equal(t, execBase+1, h.eventCount())
	require.Equal(t, updateBase+1, h.updateCount())

	h.mu.Lock()
	assert.Equal(t, "remote-1", h.events[len(h.events)-1].ID)
	assert.Equal(t, "Remote", h.updates[len(h.updates)-1].Name)
	h.mu.Unlock()

	// Malformed payloads and unknown types are dropped without effect
	ft.handler.HandleMessage(Envelope{Type: EnvelopeLog, Data: json.RawMessage(`{"id":`)})
	ft.handler.HandleMessage(Envelope{Type: "HEARTBEAT", Data: json.RawMessage(`{}`)})
	assert.Equal(t, execBase+1, h.eventCount())

	h.controller.Disconnect()
}

func TestController_MessagesDroppedUnlessLive(t *testing.T) {
	ft := &fakeTransport{}
	h := newHarness(t, ft)

	h.controller.Connect()
	require.Eventually(t, func() bool { return ft.opens() == 1 }, time.Second, 5*time.Millisecond)

	base := h.eventCount()
	logData, err := json.Marshal(model.ExecutionEvent{ID: "early", Status: model.ExecutionStatusRunning})
	require.NoError(t, err)

	// Still CONNECTING: the envelope must not reach the bus
	ft.handler.HandleMessage(Envelope{Type: EnvelopeLog, Data: logData})
	found := false
	h.mu.Lock()
	for _, ev := range h.events[base:] {
		if ev.ID == "early" {
			found = true
		}
	}
	h.mu.Unlock()
	assert.False(t, found)

	h.controller.Disconnect()
}

func TestController_CloseResumesSimulation(t *testing.T) {
	ft := &fakeTransport{}
	h := newHarness(t, ft)

	h.controller.Connect()
	require.Eventually(t, func() bool { return ft.opens() == 1 }, time.Second, 5*time.Millisecond)
	ft.handler.HandleOpen()
	require.Equal(t, StateLive, h.controller.State())

	time.Sleep(50 * time.Millisecond)
	seen := h.eventCount()

	ft.handler.HandleClose()
	require.Equal(t, StateSimulated, h.controller.State())
	require.Eventually(t, func() bool { return h.eventCount() > seen }, time.Second, 5*time.Millisecond)

	h.controller.Disconnect()
}

func TestController_DisconnectStopsEverything(t *testing.T) {
	ft := &fakeTransport{}
	h := newHarness(t, ft)

	h.controller.Connect()
	require.Eventually(t, func() bool { return h.eventCount() >= 1 }, time.Second, 5*time.Millisecond)

	h.controller.Disconnect()
	require.Equal(t, StateDisconnected, h.controller.State())
	require.Equal(t, 1, ft.closes())

	seen := h.eventCount()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, seen, h.eventCount())

	// Disconnect while disconnected is harmless
	h.controller.Disconnect()
	assert.Equal(t, StateDisconnected, h.controller.State())
}
