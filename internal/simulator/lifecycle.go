// Package simulator generates believable workflow telemetry when no live
// backend is available. Two independent schedulers drive it: Lifecycle emits
// two-phase execution events for active workflows, Drift flips workflow
// statuses to mimic externally-driven changes.
package simulator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/event"
	"github.com/t77yq/flowpulse/internal/model"
)

const (
	defaultMinDelay     = 1 * time.Second
	defaultMaxDelay     = 4 * time.Second
	defaultMinExecution = 500 * time.Millisecond
	defaultMaxExecution = 3 * time.Second
	defaultSuccessRate  = 0.85

	defaultManualMinExecution = 200 * time.Millisecond
	defaultManualMaxExecution = 1200 * time.Millisecond
	defaultManualSuccessRate  = 0.9
)

// LifecycleConfig tunes the execution lifecycle scheduler. Zero values fall
// back to the defaults above; tests shrink the delays to keep runs fast.
type LifecycleConfig struct {
	// MinDelay and MaxDelay bound the gap between synthetic emissions.
	// The delay is re-drawn uniformly from [MinDelay, MaxDelay) after
	// every emission.
	MinDelay time.Duration
	MaxDelay time.Duration

	// MinExecution and MaxExecution bound the gap between a RUNNING event
	// and its terminal counterpart.
	MinExecution time.Duration
	MaxExecution time.Duration

	// SuccessRate is the probability a synthetic execution succeeds.
	SuccessRate float64

	// Manual runs complete faster and more reliably than background
	// traffic, matching user expectations for a triggered run.
	ManualMinExecution time.Duration
	ManualMaxExecution time.Duration
	ManualSuccessRate  float64
}

func (c *LifecycleConfig) applyDefaults() {
	if c.MinDelay == 0 {
		c.MinDelay = defaultMinDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.MinExecution == 0 {
		c.MinExecution = defaultMinExecution
	}
	if c.MaxExecution == 0 {
		c.MaxExecution = defaultMaxExecution
	}
	if c.SuccessRate == 0 {
		c.SuccessRate = defaultSuccessRate
	}
	if c.ManualMinExecution == 0 {
		c.ManualMinExecution = defaultManualMinExecution
	}
	if c.ManualMaxExecution == 0 {
		c.ManualMaxExecution = defaultManualMaxExecution
	}
	if c.ManualSuccessRate == 0 {
		c.ManualSuccessRate = defaultManualSuccessRate
	}
}

// Lifecycle emits correlated two-phase execution events for randomly chosen
// active workflows. Stop cancels every outstanding terminal timer; no event
// is published after Stop returns.
type Lifecycle struct {
	logger *zap.Logger
	bus    *event.Bus
	roster *Roster
	cfg    LifecycleConfig

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLifecycle creates a lifecycle scheduler over the given roster
func NewLifecycle(bus *event.Bus, roster *Roster, cfg LifecycleConfig, logger *zap.Logger) *Lifecycle {
	cfg.applyDefaults()
	return &Lifecycle{
		logger: logger.Named("lifecycle"),
		bus:    bus,
		roster: roster,
		cfg:    cfg,
	}
}

// Start launches the scheduling loop. Calling Start while running is a no-op.
func (l *Lifecycle) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.wg.Add(1)
	go l.run(l.ctx)
	l.logger.Debug("Lifecycle scheduler started")
}

// Stop cancels the loop and every pending terminal event, then waits for all
// scheduler goroutines to exit. Calling Stop while stopped is a no-op.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	if l.cancel == nil {
		l.mu.Unlock()
		return
	}
	l.cancel()
	l.ctx = nil
	l.cancel = nil
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Debug("Lifecycle scheduler stopped")
}

// RunNow triggers a single execution of the given workflow immediately: the
// RUNNING event is published synchronously before RunNow returns, and the
// terminal event follows after a bounded delay. Each call uses a fresh
// execution id, so consecutive runs of the same workflow stay independent.
func (l *Lifecycle) RunNow(workflowID string) error {
	wf, ok := l.roster.Get(workflowID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}

	ev := model.ExecutionEvent{
		ID:           uuid.New().String(),
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		StartedAt:    time.Now(),
		Status:       model.ExecutionStatusRunning,
		Message:      "Workflow execution in progress...",
	}

	success := rand.Float64() < l.cfg.ManualSuccessRate
	message := "Workflow completed successfully."
	if !success {
		message = "Error: Connection timeout."
	}
	delay := randDelay(l.cfg.ManualMinExecution, l.cfg.ManualMaxExecution)

	// The publish is covered by the WaitGroup so a concurrent Stop waits
	// for the RUNNING event to land before returning.
	l.mu.Lock()
	if l.ctx == nil {
		l.mu.Unlock()
		return ErrNotRunning
	}
	ctx := l.ctx
	l.wg.Add(1)
	l.mu.Unlock()

	l.bus.PublishExecution(ev)
	l.completeLater(ctx, ev, delay, success, message)
	l.wg.Done()

	l.logger.Info("Manual run triggered",
		zap.String("workflow_id", wf.ID),
		zap.String("execution_id", ev.ID))
	return nil
}

func (l *Lifecycle) run(ctx context.Context) {
	defer l.wg.Done()

	for {
		timer := time.NewTimer(randDelay(l.cfg.MinDelay, l.cfg.MaxDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		l.emit(ctx)
	}
}

// emit publishes a RUNNING event for one random active workflow and schedules
// its terminal counterpart. A tick with no active workflows is silent; the
// loop keeps rescheduling regardless.
func (l *Lifecycle) emit(ctx context.Context) {
	active := l.roster.Active()
	if len(active) == 0 {
		return
	}
	wf := active[rand.IntN(len(active))]

	ev := model.ExecutionEvent{
		ID:           uuid.New().String(),
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		StartedAt:    time.Now(),
		Status:       model.ExecutionStatusRunning,
		Message:      "Processing workflow execution...",
	}
	l.bus.PublishExecution(ev)

	success := rand.Float64() < l.cfg.SuccessRate
	message := pick(successMessages)
	if !success {
		message = pick(failureMessages)
	}
	l.completeLater(ctx, ev, randDelay(l.cfg.MinExecution, l.cfg.MaxExecution), success, message)
}

// completeLater schedules the terminal event for a RUNNING event. The
// terminal event reuses the original id, workflow reference and start time;
// only status, duration and message change. It is suppressed if the
// scheduler is torn down before the timer fires.
func (l *Lifecycle) completeLater(ctx context.Context, running model.ExecutionEvent, delay time.Duration, success bool, message string) {
	l.mu.Lock()
	if l.ctx == nil || ctx.Err() != nil {
		l.mu.Unlock()
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		final := running
		final.DurationMs = delay.Milliseconds()
		final.Status = model.ExecutionStatusSuccess
		if !success {
			final.Status = model.ExecutionStatusFailed
		}
		final.Message = message
		l.bus.PublishExecution(final)
	}()
}

// randDelay draws uniformly from [min, max)
func randDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}
