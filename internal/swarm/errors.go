package swarm

import (
	"errors"
	"fmt"
)

// ErrAllocationGap is wrapped by the log entry of every task left without an agent.
var ErrAllocationGap = errors.New("allocation gap")

// ErrNotRunning is returned by operations that need a live swarm.
var ErrNotRunning = errors.New("swarm is not running")

// ValidationError rejects a launch request before anything is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid launch request: %s: %s", e.Field, e.Reason)
}

// TaskExecutionError records a unit whose subagent failed or reported failure.
type TaskExecutionError struct {
	TaskID  string
	AgentID string
	Err     error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s (agent %s): %v", e.TaskID, e.AgentID, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// PhaseError is a coordination phase that returned an error or panicked.
type PhaseError struct {
	Phase    string
	Err      error
	Panicked bool
}

func (e *PhaseError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("coordination phase %s panicked: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("coordination phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
