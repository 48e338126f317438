package models

import "time"

// Role is one of the fixed agent specialisations.
type Role string

const (
	RoleArchitect   Role = "architect"
	RolePlanner     Role = "planner"
	RoleDeveloper   Role = "developer"
	RoleReviewer    Role = "reviewer"
	RoleTester      Role = "tester"
	RoleOptimizer   Role = "optimizer"
	RoleDocumenter  Role = "documenter"
	RoleCoordinator Role = "coordinator"
)

// AllRoles returns every role in declaration order.
func AllRoles() []Role {
	return []Role{
		RoleArchitect, RolePlanner, RoleDeveloper, RoleReviewer,
		RoleTester, RoleOptimizer, RoleDocumenter, RoleCoordinator,
	}
}

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleArchitect, RolePlanner, RoleDeveloper, RoleReviewer,
		RoleTester, RoleOptimizer, RoleDocumenter, RoleCoordinator:
		return true
	default:
		return false
	}
}

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	// AgentStatusInitializing is set while the agent's workspace is prepared.
	AgentStatusInitializing AgentStatus = "initializing"
	// AgentStatusIdle means the agent has no unit in flight.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusActive means the agent is executing a task.
	AgentStatusActive AgentStatus = "active"
	// AgentStatusError means the agent's last task failed.
	AgentStatusError AgentStatus = "error"
	// AgentStatusStopped is terminal.
	AgentStatusStopped AgentStatus = "stopped"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusInitializing, AgentStatusIdle, AgentStatusActive,
		AgentStatusError, AgentStatusStopped:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether s -> next is a legal state change.
// An agent in error may pick up its next queued task; stopped is terminal.
func (s AgentStatus) CanTransitionTo(next AgentStatus) bool {
	if next == AgentStatusStopped {
		return s != AgentStatusStopped
	}
	switch s {
	case AgentStatusInitializing:
		return next == AgentStatusIdle
	case AgentStatusIdle:
		return next == AgentStatusActive
	case AgentStatusActive:
		return next == AgentStatusIdle || next == AgentStatusError
	case AgentStatusError:
		return next == AgentStatusActive || next == AgentStatusIdle
	default:
		return false
	}
}

// ConflictStrategy selects how outstanding conflicts are settled.
type ConflictStrategy string

const (
	ConflictDemocratic   ConflictStrategy = "democratic"
	ConflictHierarchical ConflictStrategy = "hierarchical"
	ConflictExpertise    ConflictStrategy = "expertise"
)

// Valid returns true if the strategy is a known value.
func (c ConflictStrategy) Valid() bool {
	switch c {
	case ConflictDemocratic, ConflictHierarchical, ConflictExpertise:
		return true
	default:
		return false
	}
}

// AgentPerformance tracks an agent's record across the swarm run.
type AgentPerformance struct {
	// TasksCompleted counts successful tasks.
	TasksCompleted int `json:"tasks_completed"`
	// SuccessRate is in [0,1].
	SuccessRate float64 `json:"success_rate"`
	// AverageTaskTime is the mean wall time of successful tasks.
	AverageTaskTime time.Duration `json:"average_task_time"`
	// DriftDetected is set after repeated failures.
	DriftDetected bool `json:"drift_detected"`
	// LastFreshStart is when the agent last had its drift state reset.
	LastFreshStart time.Time `json:"last_fresh_start"`
	// ConsecutiveFailures resets on success and on fresh start.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// CoordinationPreferences shapes how an agent collaborates.
type CoordinationPreferences struct {
	CommunicationStyle string           `json:"communication_style"`
	ConflictResolution ConflictStrategy `json:"conflict_resolution"`
	Collaboration      []string         `json:"collaboration,omitempty"`
}

// Agent is a role-specialised worker holding at most one task at a time.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Role is the agent's specialisation.
	Role Role `json:"role"`
	// Capabilities are derived from Role and never set by callers.
	Capabilities []string `json:"capabilities"`
	// Status is the current lifecycle state.
	Status AgentStatus `json:"status"`
	// WorkDir is the agent's scratch directory.
	WorkDir string `json:"work_dir"`
	// CurrentTaskID is empty when the agent holds no task.
	CurrentTaskID string `json:"current_task_id,omitempty"`
	// Performance is the running record.
	Performance AgentPerformance `json:"performance"`
	// Preferences are the coordination preferences.
	Preferences CoordinationPreferences `json:"preferences"`
	// CreatedAt is when the agent was initialised.
	CreatedAt time.Time `json:"created_at"`
}

// Matches reports whether any tag equals the agent's role or one of its capabilities.
func (a *Agent) Matches(tags []string) bool {
	for _, tag := range tags {
		if tag == string(a.Role) {
			return true
		}
		for _, c := range a.Capabilities {
			if c == tag {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to other goroutines.
func (a *Agent) Clone() *Agent {
	c := *a
	c.Capabilities = append([]string(nil), a.Capabilities...)
	c.Preferences.Collaboration = append([]string(nil), a.Preferences.Collaboration...)
	return &c
}
