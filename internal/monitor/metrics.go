package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/flowpulse/internal/event"
	"github.com/t77yq/flowpulse/internal/model"
	"github.com/t77yq/flowpulse/internal/simulator"
)

const defaultMetricsInterval = 30 * time.Second

// Stats is an aggregate view of stream activity for the usage dashboards
type Stats struct {
	ActiveWorkflows   int     `json:"active_workflows"`
	TotalExecutions   int64   `json:"total_executions"`
	Succeeded         int64   `json:"succeeded"`
	Failed            int64   `json:"failed"`
	SuccessRate       float64 `json:"success_rate"`
	ConnectedServices int     `json:"connected_services"`
}

// Metrics counts executions flowing through the bus and periodically logs a
// usage snapshot together with host CPU and memory load.
type Metrics struct {
	logger   *zap.Logger
	bus      *event.Bus
	roster   *simulator.Roster
	health   *HealthModel
	interval time.Duration

	mu        sync.Mutex
	total     int64
	succeeded int64
	failed    int64

	sub    *event.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMetrics creates a metrics collector. interval 0 falls back to 30s.
func NewMetrics(bus *event.Bus, roster *simulator.Roster, health *HealthModel, interval time.Duration, logger *zap.Logger) *Metrics {
	if interval == 0 {
		interval = defaultMetricsInterval
	}
	return &Metrics{
		logger:   logger.Named("metrics"),
		bus:      bus,
		roster:   roster,
		health:   health,
		interval: interval,
	}
}

// Start subscribes to the bus and launches the collection loop
func (m *Metrics) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	m.sub = m.bus.SubscribeExecutions(m.handleExecution)

	var ctx context.Context
	ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop unsubscribes and waits for the loop to exit
func (m *Metrics) Stop() {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return
	}
	m.sub.Unsubscribe()
	m.sub = nil
	m.cancel()
	m.cancel = nil
	m.mu.Unlock()

	m.wg.Wait()
}

// handleExecution counts terminal events. RUNNING events are phase one of an
// execution already counted by its terminal phase.
func (m *Metrics) handleExecution(ev model.ExecutionEvent) {
	if !ev.Status.Terminal() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	if ev.Status == model.ExecutionStatusSuccess {
		m.succeeded++
	} else {
		m.failed++
	}
}

// Stats returns the current aggregate counters
func (m *Metrics) Stats() Stats {
	m.mu.Lock()
	total, succeeded, failed := m.total, m.succeeded, m.failed
	m.mu.Unlock()

	stats := Stats{
		ActiveWorkflows: len(m.roster.Active()),
		TotalExecutions: total,
		Succeeded:       succeeded,
		Failed:          failed,
	}
	if total > 0 {
		stats.SuccessRate = float64(succeeded) / float64(total) * 100
	}
	for _, rec := range m.health.Snapshot() {
		if rec.Connected {
			stats.ConnectedServices++
		}
	}
	return stats
}

func (m *Metrics) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

// collect logs a usage snapshot alongside host load
func (m *Metrics) collect() {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		m.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		m.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	stats := m.Stats()
	m.logger.Info("Usage snapshot",
		zap.Int("active_workflows", stats.ActiveWorkflows),
		zap.Int64("total_executions", stats.TotalExecutions),
		zap.Float64("success_rate", stats.SuccessRate),
		zap.Int("connected_services", stats.ConnectedServices),
		zap.Float64("cpu_usage", cpuPercent[0]),
		zap.Float64("memory_usage", memInfo.UsedPercent))
}
