package models

import "time"

// TaskKind classifies a decomposed task.
type TaskKind string

const (
	TaskKindArchitecture   TaskKind = "architecture"
	TaskKindImplementation TaskKind = "implementation"
	TaskKindTesting        TaskKind = "testing"
	TaskKindDocumentation  TaskKind = "documentation"
)

// Valid returns true if the kind is a known value.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskKindArchitecture, TaskKindImplementation, TaskKindTesting, TaskKindDocumentation:
		return true
	default:
		return false
	}
}

// Effort is the coarse size estimate of a task.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Valid returns true if the effort is a known value.
func (e Effort) Valid() bool {
	switch e {
	case EffortLow, EffortMedium, EffortHigh:
		return true
	default:
		return false
	}
}

// Duration is the informational completion estimate for the effort.
func (e Effort) Duration() time.Duration {
	switch e {
	case EffortLow:
		return 60 * time.Second
	case EffortHigh:
		return 900 * time.Second
	default:
		return 300 * time.Second
	}
}

// IterationBudget is the executor turn budget for the effort.
func (e Effort) IterationBudget() int {
	switch e {
	case EffortLow:
		return 5
	case EffortHigh:
		return 20
	default:
		return 10
	}
}

// SwarmTask is one node of the decomposed plan. It is not modified after decomposition.
type SwarmTask struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Kind is the task's category.
	Kind TaskKind `json:"kind"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description"`
	// Priority orders tasks; lower runs earlier.
	Priority int `json:"priority"`
	// Effort drives the completion estimate and the iteration budget.
	Effort Effort `json:"effort"`
	// RequiredRoles are role or capability tags; an agent needs one of them.
	RequiredRoles []string `json:"required_roles"`
	// DependsOn lists task IDs that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`
	// AcceptanceCriteria are checked in order.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	// Specialization is set on implementation tasks.
	Specialization string `json:"specialization,omitempty"`
}

// Assignment binds a task to the agent executing it.
type Assignment struct {
	AgentID             string    `json:"agent_id"`
	TaskID              string    `json:"task_id"`
	AssignedAt          time.Time `json:"assigned_at"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
	// Collaborators holds up to two other eligible agents.
	Collaborators []string `json:"collaborators,omitempty"`
	// Reviewers are reviewer-role agents other than the assignee.
	Reviewers []string `json:"reviewers,omitempty"`
}
