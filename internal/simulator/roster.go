package simulator

import (
	"sync"
	"time"

	"github.com/t77yq/flowpulse/internal/model"
)

// Roster is the live working copy of the workflow set. The surrounding
// application replaces it wholesale via Update; the telemetry core reads it
// when generating traffic and writes back status flips and last-run
// timestamps as events are delivered.
type Roster struct {
	mu        sync.RWMutex
	workflows []model.Workflow
}

// NewRoster creates an empty roster
func NewRoster() *Roster {
	return &Roster{}
}

// Update replaces the working copy. Future lifecycle events are generated
// against the new set immediately.
func (r *Roster) Update(workflows []model.Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows = make([]model.Workflow, len(workflows))
	copy(r.workflows, workflows)
}

// All returns a copy of every known workflow
func (r *Roster) All() []model.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Workflow, len(r.workflows))
	copy(out, r.workflows)
	return out
}

// Active returns a copy of the workflows currently in the ACTIVE state
func (r *Roster) Active() []model.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Workflow
	for _, w := range r.workflows {
		if w.Status == model.WorkflowStatusActive {
			out = append(out, w)
		}
	}
	return out
}

// Get returns the workflow with the given id
func (r *Roster) Get(id string) (model.Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.workflows {
		if w.ID == id {
			return w, true
		}
	}
	return model.Workflow{}, false
}

// Len returns the number of known workflows
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workflows)
}

// SetStatus overwrites the status of the workflow with the given id.
// Unknown ids are ignored.
func (r *Roster) SetStatus(id string, status model.WorkflowStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.workflows {
		if r.workflows[i].ID == id {
			r.workflows[i].Status = status
			return
		}
	}
}

// SetLastRun overwrites the last-run timestamp of the workflow with the
// given id. Unknown ids are ignored.
func (r *Roster) SetLastRun(id string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.workflows {
		if r.workflows[i].ID == id {
			ts := t
			r.workflows[i].LastRun = &ts
			return
		}
	}
}
