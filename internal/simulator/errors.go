package simulator

import "errors"

var (
	// ErrUnknownWorkflow is returned when a run is requested for a workflow
	// that is not in the roster
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrNotRunning is returned when a run is requested while the scheduler
	// is stopped
	ErrNotRunning = errors.New("scheduler is not running")
)
