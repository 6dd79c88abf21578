package model

import "time"

// WorkflowStatus represents the operational state of a workflow
type WorkflowStatus string

const (
	WorkflowStatusActive   WorkflowStatus = "ACTIVE"
	WorkflowStatusInactive WorkflowStatus = "INACTIVE"
	WorkflowStatusDraft    WorkflowStatus = "DRAFT"
)

// Toggled returns the status flipped between the two operational states.
// DRAFT is not a toggle target; a draft flips to ACTIVE.
func (s WorkflowStatus) Toggled() WorkflowStatus {
	if s == WorkflowStatusActive {
		return WorkflowStatusInactive
	}
	return WorkflowStatusActive
}

// Workflow represents an automation workflow known to the telemetry core.
// The core reads id, name and status, and writes status and the last-run
// timestamp in response to delivered events.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      WorkflowStatus `json:"status"`
	LastRun     *time.Time     `json:"last_run,omitempty"`
	Nodes       []string       `json:"nodes,omitempty"`
	SuccessRate float64        `json:"success_rate,omitempty"`
	Schedule    string         `json:"schedule,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}
