// Package monitor evolves integration health over time and aggregates usage
// metrics, so dashboards and alerting stay exercised without a real backend.
package monitor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/alert"
	"github.com/t77yq/flowpulse/internal/model"
)

const (
	defaultHealthInterval = 4 * time.Second
	defaultLatencyStep    = 5
	defaultLatencyFloor   = 10
	defaultTrendMargin    = 2
	defaultDegradeAbove   = 400
	defaultRecoverBelow   = 300
	defaultFaultRate      = 0.01

	reconnectBaselineLatency = 60
)

// HealthConfig tunes the drift model. Zero values fall back to the defaults
// above. A negative FaultRate disables fault injection entirely.
type HealthConfig struct {
	Interval       time.Duration
	LatencyStepMs  int64
	LatencyFloorMs int64
	TrendMarginMs  int64
	DegradeAboveMs int64
	RecoverBelowMs int64
	FaultRate      float64
}

func (c *HealthConfig) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = defaultHealthInterval
	}
	if c.LatencyStepMs == 0 {
		c.LatencyStepMs = defaultLatencyStep
	}
	if c.LatencyFloorMs == 0 {
		c.LatencyFloorMs = defaultLatencyFloor
	}
	if c.TrendMarginMs == 0 {
		c.TrendMarginMs = defaultTrendMargin
	}
	if c.DegradeAboveMs == 0 {
		c.DegradeAboveMs = defaultDegradeAbove
	}
	if c.RecoverBelowMs == 0 {
		c.RecoverBelowMs = defaultRecoverBelow
	}
	if c.FaultRate == 0 {
		c.FaultRate = defaultFaultRate
	}
}

// HealthModel mutates a collection of integration health records on a fixed
// tick: latency random walk, trend classification, threshold transitions and
// rare fault injection. Disconnected records are never touched.
type HealthModel struct {
	logger *zap.Logger
	alerts alert.Sink
	cfg    HealthConfig

	mu      sync.RWMutex
	records []model.Integration

	loopMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthModel creates a drift model over a copy of the given records.
// The recovery threshold must sit strictly below the degrade threshold so
// status cannot oscillate at the boundary.
func NewHealthModel(records []model.Integration, alerts alert.Sink, cfg HealthConfig, logger *zap.Logger) (*HealthModel, error) {
	cfg.applyDefaults()
	if cfg.RecoverBelowMs >= cfg.DegradeAboveMs {
		return nil, fmt.Errorf("recovery threshold %dms must be below degrade threshold %dms",
			cfg.RecoverBelowMs, cfg.DegradeAboveMs)
	}

	m := &HealthModel{
		logger:  logger.Named("health"),
		alerts:  alerts,
		cfg:     cfg,
		records: make([]model.Integration, len(records)),
	}
	copy(m.records, records)
	return m, nil
}

// Start launches the drift loop. Calling Start while running is a no-op.
func (m *HealthModel) Start() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel != nil {
		return
	}

	var ctx context.Context
	ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Info("Health drift model started", zap.Duration("interval", m.cfg.Interval))
}

// Stop cancels the loop and waits for it to exit
func (m *HealthModel) Stop() {
	m.loopMu.Lock()
	if m.cancel == nil {
		m.loopMu.Unlock()
		return
	}
	m.cancel()
	m.cancel = nil
	m.loopMu.Unlock()

	m.wg.Wait()
}

func (m *HealthModel) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(time.Now())
		}
	}
}

// tick advances every connected record by one drift step
func (m *HealthModel) tick(now time.Time) {
	var raised []model.Alert

	m.mu.Lock()
	for i := range m.records {
		rec := &m.records[i]
		if !rec.Connected {
			continue
		}

		step := m.cfg.LatencyStepMs
		if rand.IntN(2) == 0 {
			step = -step
		}
		newLatency := rec.LatencyMs + step
		if newLatency < m.cfg.LatencyFloorMs {
			newLatency = m.cfg.LatencyFloorMs
		}

		trend := rec.LatencyTrend
		if trend == "" {
			trend = model.TrendStable
		}
		switch {
		case newLatency > rec.LatencyMs+m.cfg.TrendMarginMs:
			trend = model.TrendDegrading
		case newLatency < rec.LatencyMs-m.cfg.TrendMarginMs:
			trend = model.TrendImproving
		}

		status := rec.Status
		errMsg := rec.ErrorMessage
		if newLatency > m.cfg.DegradeAboveMs {
			status = model.IntegrationStatusDegraded
			errMsg = "High latency detected"
		} else if status == model.IntegrationStatusDegraded && newLatency < m.cfg.RecoverBelowMs {
			status = model.IntegrationStatusHealthy
			errMsg = ""
		}

		// Rare unexpected drop. Only HEALTHY records are eligible, and
		// this is the only path here that notifies the alert sink.
		if m.cfg.FaultRate > 0 && status == model.IntegrationStatusHealthy && rand.Float64() < m.cfg.FaultRate {
			status = model.IntegrationStatusError
			errMsg = "Unexpected connection drop"
			raised = append(raised, model.Alert{
				Severity: model.AlertSeverityError,
				Title:    "Integration Failed",
				Message:  fmt.Sprintf("Connection to %s dropped unexpectedly.", rec.Name),
				Source:   model.AlertSourceIntegration,
			})
		}

		rec.LatencyMs = newLatency
		rec.LatencyTrend = trend
		rec.Status = status
		rec.ErrorMessage = errMsg
		rec.LastChecked = now
	}
	m.mu.Unlock()

	for _, a := range raised {
		m.alerts.Notify(a)
	}
}

// Snapshot returns a copy of all records
func (m *HealthModel) Snapshot() []model.Integration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Integration, len(m.records))
	copy(out, m.records)
	return out
}

// Get returns the record with the given id
func (m *HealthModel) Get(id string) (model.Integration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.ID == id {
			return rec, true
		}
	}
	return model.Integration{}, false
}

// Reconnect restores a disconnected integration with a fresh healthy
// baseline and hands it back to the drift model.
func (m *HealthModel) Reconnect(id string) error {
	m.mu.Lock()
	var name string
	for i := range m.records {
		rec := &m.records[i]
		if rec.ID != id {
			continue
		}
		rec.Connected = true
		rec.Status = model.IntegrationStatusHealthy
		rec.LatencyMs = max64(m.cfg.LatencyFloorMs, reconnectBaselineLatency)
		rec.LatencyTrend = model.TrendStable
		rec.ErrorMessage = ""
		rec.LastChecked = time.Now()
		name = rec.Name
		break
	}
	m.mu.Unlock()

	if name == "" {
		return fmt.Errorf("integration %s not found", id)
	}

	m.alerts.Notify(model.Alert{
		Severity: model.AlertSeveritySuccess,
		Title:    "Integration Restored",
		Message:  fmt.Sprintf("%s is now connected and healthy.", name),
		Source:   model.AlertSourceIntegration,
	})
	return nil
}

// Disconnect takes an integration out of the drift set. Its status and
// latency stay frozen until an explicit reconnect.
func (m *HealthModel) Disconnect(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		rec := &m.records[i]
		if rec.ID != id {
			continue
		}
		rec.Connected = false
		rec.Status = model.IntegrationStatusDisconnected
		return nil
	}
	return fmt.Errorf("integration %s not found", id)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
