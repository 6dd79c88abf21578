package model

import "time"

// IntegrationStatus represents the apparent health of an integration
type IntegrationStatus string

const (
	IntegrationStatusHealthy      IntegrationStatus = "HEALTHY"
	IntegrationStatusDegraded     IntegrationStatus = "DEGRADED"
	IntegrationStatusError        IntegrationStatus = "ERROR"
	IntegrationStatusExpired      IntegrationStatus = "EXPIRED"
	IntegrationStatusDisconnected IntegrationStatus = "DISCONNECTED"
	IntegrationStatusChecking     IntegrationStatus = "CHECKING"
)

// LatencyTrend classifies how an integration's latency is evolving
type LatencyTrend string

const (
	TrendImproving LatencyTrend = "improving"
	TrendDegrading LatencyTrend = "degrading"
	TrendStable    LatencyTrend = "stable"
)

// Integration represents one third-party connection whose health the drift
// model evolves over time. A record with Connected == false always carries
// status DISCONNECTED until an explicit reconnect changes it.
type Integration struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Category     string            `json:"category,omitempty"`
	Connected    bool              `json:"connected"`
	Status       IntegrationStatus `json:"status"`
	LatencyMs    int64             `json:"latency_ms"`
	LatencyTrend LatencyTrend      `json:"latency_trend,omitempty"`
	LastChecked  time.Time         `json:"last_checked"`
	Uptime       float64           `json:"uptime"`
	ErrorMessage string            `json:"error_message,omitempty"`
}
