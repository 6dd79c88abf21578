// Package trigger fires workflow runs on cron schedules for workflows that
// carry a schedule expression.
package trigger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/model"
	"github.com/t77yq/flowpulse/internal/simulator"
)

// Runner starts a workflow execution immediately. *simulator.Lifecycle
// satisfies it.
type Runner interface {
	RunNow(workflowID string) error
}

// Cron registers a job per scheduled workflow. Expressions use the six-field
// form with a seconds column.
type Cron struct {
	logger *zap.Logger
	runner Runner
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewCron creates a trigger over the given runner
func NewCron(runner Runner, logger *zap.Logger) *Cron {
	logger = logger.Named("cron")
	return &Cron{
		logger: logger,
		runner: runner,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(&cronLogger{logger: logger})),
		),
		entries: make(map[string]cron.EntryID),
	}
}

// Start starts the underlying cron runner
func (c *Cron) Start() {
	c.cron.Start()
}

// Stop stops the cron runner and waits for running jobs to finish
func (c *Cron) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// Sync reconciles registered jobs with the given workflow set: workflows
// with a schedule gain a job, workflows without one (or no longer present)
// lose theirs. Invalid expressions are reported and skipped.
func (c *Cron) Sync(workflows []model.Workflow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wanted := make(map[string]string)
	for _, wf := range workflows {
		if wf.Schedule != "" {
			wanted[wf.ID] = wf.Schedule
		}
	}

	for id, entryID := range c.entries {
		if _, ok := wanted[id]; !ok {
			c.cron.Remove(entryID)
			delete(c.entries, id)
			c.logger.Info("Removed schedule", zap.String("workflow_id", id))
		}
	}

	var errs []error
	for _, wf := range workflows {
		spec, ok := wanted[wf.ID]
		if !ok {
			continue
		}
		if _, exists := c.entries[wf.ID]; exists {
			continue
		}

		workflowID := wf.ID
		entryID, err := c.cron.AddFunc(spec, func() {
			if err := c.runner.RunNow(workflowID); err != nil {
				// While a live transport feeds the stream the local
				// generator is stopped and scheduled runs are owned by
				// the backend; skipping here is routine, not a failure.
				if errors.Is(err, simulator.ErrNotRunning) {
					c.logger.Debug("Scheduled run skipped, generator idle",
						zap.String("workflow_id", workflowID))
					return
				}
				c.logger.Error("Scheduled run failed",
					zap.String("workflow_id", workflowID),
					zap.Error(err))
			}
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("workflow %s: invalid cron expression %q: %w", wf.ID, spec, err))
			continue
		}

		c.entries[wf.ID] = entryID
		c.logger.Info("Added schedule",
			zap.String("workflow_id", wf.ID),
			zap.String("expression", spec))
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
