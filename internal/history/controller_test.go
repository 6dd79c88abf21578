package history

import (
	"fmt"
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

type captureSink struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (s *captureSink) Notify(a model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *captureSink) all() []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

func fixture(t *testing.T, limit int) (*event.Bus, *simulator.Roster, *captureSink, *Controller) {
	t.Helper()

	bus := event.NewBus(zap.NewNop())
	roster := simulator.NewRoster()
	roster.Update([]model.Workflow{
		{ID: "1", Name: "A", Status: model.WorkflowStatusActive},
	})
	sink := &captureSink{}
	c := NewController(bus, roster, sink, limit, zap.NewNop())
	c.Start()
	t.Cleanup(c.Stop)
	return bus, roster, sink, c
}

func TestController_TerminalReplacesInPlace(t *testing.T) {
	bus, _, _, c := fixture(t, 0)

	started := time.Now()
	bus.PublishExecution(model.ExecutionEvent{ID: "e1", WorkflowID: "1", StartedAt: started, Status: model.ExecutionStatusRunning})
	bus.PublishExecution(model.ExecutionEvent{ID: "e2", WorkflowID: "1", StartedAt: started, Status: model.ExecutionStatusRunning})
	bus.PublishExecution(model.ExecutionEvent{ID: "e3", WorkflowID: "1", StartedAt: started, Status: model.ExecutionStatusRunning})

	// Most recent first
	events := c.Events(0)
	require.Equal(t, []string{"e3", "e2", "e1"}, ids(events))

	// e2 finishing updates its row without moving it
	bus.PublishExecution(model.ExecutionEvent{ID: "e2", WorkflowID: "1", StartedAt: started, DurationMs: 120, Status: model.ExecutionStatusSuccess})

	events = c.Events(0)
	require.Equal(t, []string{"e3", "e2", "e1"}, ids(events))
	assert.Equal(t, model.ExecutionStatusSuccess, events[1].Status)
	assert.Equal(t, int64(120), events[1].DurationMs)
	assert.Equal(t, model.ExecutionStatusRunning, events[0].Status)
	assert.Equal(t, model.ExecutionStatusRunning, events[2].Status)
}

func TestController_CapEvictsOldest(t *testing.T) {
	bus, _, _, c := fixture(t, 3)

	for i := 1; i <= 5; i++ {
		bus.PublishExecution(model.ExecutionEvent{ID: fmt.Sprintf("e%d", i), WorkflowID: "1", Status: model.ExecutionStatusRunning})
	}

	require.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"e5", "e4", "e3"}, ids(c.Events(0)))
}

func TestController_TerminalForEvictedRowIsNewArrival(t *testing.T) {
	bus, _, _, c := fixture(t, 2)

	bus.PublishExecution(model.ExecutionEvent{ID: "e1", WorkflowID: "1", Status: model.ExecutionStatusRunning})
	bus.PublishExecution(model.ExecutionEvent{ID: "e2", WorkflowID: "1", Status: model.ExecutionStatusRunning})
	bus.PublishExecution(model.ExecutionEvent{ID: "e3", WorkflowID: "1", Status: model.ExecutionStatusRunning})

	// e1 was evicted; its terminal event re-enters at the head
	bus.PublishExecution(model.ExecutionEvent{ID: "e1", WorkflowID: "1", Status: model.ExecutionStatusSuccess})
	assert.Equal(t, []string{"e1", "e3"}, ids(c.Events(0)))
}

func TestController_EventsLimitsAndCopies(t *testing.T) {
	bus, _, _, c := fixture(t, 0)

	for i := 1; i <= 4; i++ {
		bus.PublishExecution(model.ExecutionEvent{ID: fmt.Sprintf("e%d", i), WorkflowID: "1", Status: model.ExecutionStatusRunning})
	}

	head := c.Events(2)
	require.Equal(t, []string{"e4", "e3"}, ids(head))

	// Mutating the returned slice must not leak into the buffer
	head[0].ID = "mutated"
	assert.Equal(t, "e4", c.Events(1)[0].ID)

	assert.Len(t, c.Events(100), 4)
}

func TestController_TerminalUpdatesLastRun(t *testing.T) {
	bus, roster, _, _ := fixture(t, 0)

	started := time.Now().Add(-time.Minute)
	bus.PublishExecution(model.ExecutionEvent{ID: "e1", WorkflowID: "1", StartedAt: started, Status: model.ExecutionStatusRunning})

	wf, ok := roster.Get("1")
	require.True(t, ok)
	require.Nil(t, wf.LastRun)

	bus.PublishExecution(model.ExecutionEvent{ID: "e1", WorkflowID: "1", StartedAt: started, Status: model.ExecutionStatusFailed})

	wf, _ = roster.Get("1")
	require.NotNil(t, wf.LastRun)
	assert.True(t, wf.LastRun.Equal(started))
}

func TestController_FailureRaisesAlert(t *testing.T) {
	bus, _, sink, _ := fixture(t, 0)

	bus.PublishExecution(model.ExecutionEvent{ID: "e1", WorkflowID: "1", WorkflowName: "A", Status: model.ExecutionStatusRunning})
	assert.Empty(t, sink.all())

	bus.PublishExecution(model.ExecutionEvent{
		ID: "e1", WorkflowID: "1", WorkflowName: "A",
		Status:  model.ExecutionStatusFailed,
		Message: "API rate limit exceeded.",
	})

	alerts := sink.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertSeverityError, alerts[0].Severity)
	assert.Equal(t, model.AlertSourceWorkflow, alerts[0].Source)
	assert.Contains(t, alerts[0].Message, "API rate limit exceeded.")

	// Successful terminals stay quiet
	bus.PublishExecution(model.ExecutionEvent{ID: "e2", WorkflowID: "1", WorkflowName: "A", Status: model.ExecutionStatusSuccess})
	assert.Len(t, sink.all(), 1)
}

func TestController_WorkflowUpdateSyncsRoster(t *testing.T) {
	bus, roster, sink, _ := fixture(t, 0)

	bus.PublishWorkflowUpdate(model.Workflow{ID: "1", Name: "A", Status: model.WorkflowStatusInactive})

	wf, ok := roster.Get("1")
	require.True(t, ok)
	assert.Equal(t, model.WorkflowStatusInactive, wf.Status)

	alerts := sink.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertSeverityInfo, alerts[0].Severity)
	assert.Equal(t, model.AlertSourceSystem, alerts[0].Source)
	assert.Contains(t, alerts[0].Message, "INACTIVE")
}

func TestController_SeedRespectsCap(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	c := NewController(bus, simulator.NewRoster(), &captureSink{}, 2, zap.NewNop())

	c.Seed([]model.ExecutionEvent{
		{ID: "e3", Status: model.ExecutionStatusSuccess},
		{ID: "e2", Status: model.ExecutionStatusSuccess},
		{ID: "e1", Status: model.ExecutionStatusSuccess},
	})

	assert.Equal(t, []string{"e3", "e2"}, ids(c.Events(0)))
}

func TestController_StopHaltsDelivery(t *testing.T) {
	bus, _, _, c := fixture(t, 0)

	bus.PublishExecution(model.ExecutionEvent{ID: "e1", WorkflowID: "1", Status: model.ExecutionStatusRunning})
	require.Equal(t, 1, c.Len())

	c.Stop()
	bus.PublishExecution(model.ExecutionEvent{ID: "e2", WorkflowID: "1", Status: model.ExecutionStatusRunning})
	assert.Equal(t, 1, c.Len())

	// Stopping twice is harmless, and Start resumes
	c.Stop()
	c.Start()
	bus.PublishExecution(model.ExecutionEvent{ID: "e3", WorkflowID: "1", Status: model.ExecutionStatusRunning})
	assert.Equal(t, 2, c.Len())
}

func ids(events []model.ExecutionEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}
