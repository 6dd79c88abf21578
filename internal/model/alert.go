package model

import "time"

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeveritySuccess AlertSeverity = "success"
	AlertSeverityError   AlertSeverity = "error"
	AlertSeverityWarning AlertSeverity = "warning"
	AlertSeverityInfo    AlertSeverity = "info"
)

// AlertSource tags which subsystem raised an alert
type AlertSource string

const (
	AlertSourceWorkflow    AlertSource = "workflow"
	AlertSourceIntegration AlertSource = "integration"
	AlertSourceSystem      AlertSource = "system"
)

// Alert is a structured notification handed to an alert sink. Delivery is
// fire-and-forget; the core never reads anything back.
type Alert struct {
	ID        string        `json:"id"`
	Severity  AlertSeverity `json:"severity"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Source    AlertSource   `json:"source"`
	CreatedAt time.Time     `json:"created_at"`
}
