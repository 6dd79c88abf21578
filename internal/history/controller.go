// Package history maintains the bounded, de-duplicated execution history and
// the workflow bookkeeping derived from the event stream.
package history

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/alert"
	"github.com/t77yq/flowpulse/internal/event"
	"github.com/t77yq/flowpulse/internal/model"
	"github.com/t77yq/flowpulse/internal/simulator"
)

const defaultLimit = 500

// Controller consumes the event bus and keeps the execution history buffer
// and the roster's last-run/status fields consistent under the stream.
//
// The buffer is ordered most-recent-first and capped. An event whose id is
// already present replaces that entry in place, keeping its position: a
// terminal event is a state transition of an existing row, not a new
// arrival. Unknown ids are prepended and the overflow beyond the cap is
// discarded from the tail.
type Controller struct {
	logger *zap.Logger
	bus    *event.Bus
	roster *simulator.Roster
	alerts alert.Sink
	limit  int

	mu     sync.RWMutex
	events []model.ExecutionEvent

	execSub *event.Subscription
	wfSub   *event.Subscription
}

// NewController creates a merge controller. limit 0 falls back to 500.
func NewController(bus *event.Bus, roster *simulator.Roster, alerts alert.Sink, limit int, logger *zap.Logger) *Controller {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Controller{
		logger: logger.Named("history"),
		bus:    bus,
		roster: roster,
		alerts: alerts,
		limit:  limit,
	}
}

// Start subscribes to both event kinds. Calling Start while started is a
// no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.execSub != nil {
		return
	}
	c.execSub = c.bus.SubscribeExecutions(c.handleExecution)
	c.wfSub = c.bus.SubscribeWorkflowUpdates(c.handleWorkflowUpdate)
}

// Stop removes the subscriptions. The buffer is kept; only delivery stops.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.execSub == nil {
		return
	}
	c.execSub.Unsubscribe()
	c.wfSub.Unsubscribe()
	c.execSub = nil
	c.wfSub = nil
}

// Seed preloads the buffer with existing records, most recent first
func (c *Controller) Seed(events []model.ExecutionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make([]model.ExecutionEvent, len(events))
	copy(c.events, events)
	if len(c.events) > c.limit {
		c.events = c.events[:c.limit]
	}
}

// Events returns a copy of up to n entries, most recent first. n <= 0 means
// all.
func (c *Controller) Events(n int) []model.ExecutionEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 || n > len(c.events) {
		n = len(c.events)
	}
	out := make([]model.ExecutionEvent, n)
	copy(out, c.events[:n])
	return out
}

// Len returns the current buffer length
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

func (c *Controller) handleExecution(ev model.ExecutionEvent) {
	c.mu.Lock()
	replaced := false
	for i := range c.events {
		if c.events[i].ID == ev.ID {
			c.events[i] = ev
			replaced = true
			break
		}
	}
	if !replaced {
		c.events = append(c.events, model.ExecutionEvent{})
		copy(c.events[1:], c.events)
		c.events[0] = ev
		if len(c.events) > c.limit {
			c.events = c.events[:c.limit]
		}
	}
	c.mu.Unlock()

	if ev.Status.Terminal() {
		c.roster.SetLastRun(ev.WorkflowID, ev.StartedAt)
	}

	if ev.Status == model.ExecutionStatusFailed {
		c.alerts.Notify(model.Alert{
			Severity: model.AlertSeverityError,
			Title:    "Workflow Execution Failed",
			Message:  fmt.Sprintf("Workflow %q failed: %s", ev.WorkflowName, ev.Message),
			Source:   model.AlertSourceWorkflow,
		})
	}
}

func (c *Controller) handleWorkflowUpdate(wf model.Workflow) {
	c.roster.SetStatus(wf.ID, wf.Status)

	c.alerts.Notify(model.Alert{
		Severity: model.AlertSeverityInfo,
		Title:    "Workflow Status Updated",
		Message:  fmt.Sprintf("Workflow %q was set to %s by system.", wf.Name, wf.Status),
		Source:   model.AlertSourceSystem,
	})

	c.logger.Debug("Workflow status updated",
		zap.String("workflow_id", wf.ID),
		zap.String("status", string(wf.Status)))
}
