package core

import "time"

// RunStatus describes the lifecycle state of one agent run.
type RunStatus string

const (
	RunStatusPlanning  RunStatus = "planning"
	RunStatusIterating RunStatus = "iterating"
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailure   RunStatus = "failure"
	RunStatusStopped   RunStatus = "stopped"
)

// IsTerminal reports whether the status ends a run. A run always finishes in
// exactly one of success, failure, or stopped.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailure, RunStatusStopped:
		return true
	}
	return false
}

// runTransitions holds the forward-only status lattice. Terminal states have
// no successors.
var runTransitions = map[RunStatus][]RunStatus{
	RunStatusPlanning:  {RunStatusIterating, RunStatusFailure},
	RunStatusIterating: {RunStatusSuccess, RunStatusFailure, RunStatusStopped},
}

// CanTransition reports whether moving from s to next is legal.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Run is the first-class record of one agent execution.
type Run struct {
	ID         string
	Goal       string
	SessionID  string
	Status     RunStatus
	Steps      int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewRun creates a run in the planning state with a generated id.
func NewRun(goal string) *Run {
	return &Run{
		ID:        NewRunID(),
		Goal:      goal,
		Status:    RunStatusPlanning,
		StartedAt: time.Now().UTC(),
	}
}

// Iterate moves the run from planning to iterating.
func (r *Run) Iterate() {
	if r.Status.CanTransition(RunStatusIterating) {
		r.Status = RunStatusIterating
	}
}

// Finish stamps the terminal status. Non-terminal statuses are ignored so a
// finished run cannot be reopened.
func (r *Run) Finish(status RunStatus, errMsg string) {
	if !status.IsTerminal() {
		return
	}
	r.Status = status
	r.Error = errMsg
	r.FinishedAt = time.Now().UTC()
}
