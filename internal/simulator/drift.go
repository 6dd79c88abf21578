package simulator

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/event"
)

const (
	defaultDriftMinDelay = 15 * time.Second
	defaultDriftMaxDelay = 45 * time.Second
)

// DriftConfig tunes the status drift scheduler
type DriftConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

func (c *DriftConfig) applyDefaults() {
	if c.MinDelay == 0 {
		c.MinDelay = defaultDriftMinDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = defaultDriftMaxDelay
	}
}

// Drift simulates externally-driven workflow status changes: on a random
// interval it picks one workflow from the full roster and publishes an update
// with its status toggled between the two operational states.
type Drift struct {
	logger *zap.Logger
	bus    *event.Bus
	roster *Roster
	cfg    DriftConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDrift creates a status drift scheduler over the given roster
func NewDrift(bus *event.Bus, roster *Roster, cfg DriftConfig, logger *zap.Logger) *Drift {
	cfg.applyDefaults()
	return &Drift{
		logger: logger.Named("drift"),
		bus:    bus,
		roster: roster,
		cfg:    cfg,
	}
}

// Start launches the scheduling loop. Calling Start while running is a no-op.
func (d *Drift) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	var ctx context.Context
	ctx, d.cancel = context.WithCancel(context.Background())
	d.wg.Add(1)
	go d.run(ctx)
	d.logger.Debug("Drift scheduler started")
}

// Stop cancels the loop and waits for it to exit. Calling Stop while stopped
// is a no-op.
func (d *Drift) Stop() {
	d.mu.Lock()
	if d.cancel == nil {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.cancel = nil
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Debug("Drift scheduler stopped")
}

func (d *Drift) run(ctx context.Context) {
	defer d.wg.Done()

	for {
		timer := time.NewTimer(randDelay(d.cfg.MinDelay, d.cfg.MaxDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		d.flip()
	}
}

// flip toggles one random workflow's status and publishes the update.
// An empty roster is skipped silently.
func (d *Drift) flip() {
	all := d.roster.All()
	if len(all) == 0 {
		return
	}

	wf := all[rand.IntN(len(all))]
	wf.Status = wf.Status.Toggled()
	d.bus.PublishWorkflowUpdate(wf)

	d.logger.Debug("Workflow status drifted",
		zap.String("workflow_id", wf.ID),
		zap.String("status", string(wf.Status)))
}
