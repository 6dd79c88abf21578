package model

import "time"

// ExecutionStatus represents the lifecycle state of a workflow execution
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed  ExecutionStatus = "FAILED"
)

// Terminal reports whether the status is a final lifecycle state
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionStatusRunning
}

// ExecutionEvent is one observation of a workflow execution. Each logical
// execution produces exactly one RUNNING event followed by exactly one
// terminal event carrying the same ID, workflow reference and start time.
type ExecutionEvent struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	WorkflowName string          `json:"workflow_name"`
	StartedAt    time.Time       `json:"started_at"`
	DurationMs   int64           `json:"duration_ms"`
	Status       ExecutionStatus `json:"status"`
	Message      string          `json:"message"`
}
