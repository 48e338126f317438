package models

import "time"

// SwarmStatus is the lifecycle state of a swarm run.
type SwarmStatus string

const (
	SwarmStatusIdle      SwarmStatus = "idle"
	SwarmStatusActive    SwarmStatus = "active"
	SwarmStatusCompleted SwarmStatus = "completed"
	SwarmStatusFailed    SwarmStatus = "failed"
	SwarmStatusStopping  SwarmStatus = "stopping"
	SwarmStatusStopped   SwarmStatus = "stopped"
)

// Valid returns true if the status is a known value.
func (s SwarmStatus) Valid() bool {
	switch s {
	case SwarmStatusIdle, SwarmStatusActive, SwarmStatusCompleted,
		SwarmStatusFailed, SwarmStatusStopping, SwarmStatusStopped:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further work will happen.
func (s SwarmStatus) Terminal() bool {
	return s == SwarmStatusCompleted || s == SwarmStatusFailed || s == SwarmStatusStopped
}

// EventType names a coordination log entry.
type EventType string

const (
	EventSwarmStarted        EventType = "swarm_started"
	EventSwarmFinished       EventType = "swarm_finished"
	EventTaskAssigned        EventType = "task_assigned"
	EventTaskUnallocated     EventType = "task_unallocated"
	EventTaskStarted         EventType = "task_started"
	EventTaskCompleted       EventType = "task_completed"
	EventTaskFailed          EventType = "task_failed"
	EventFreshStart          EventType = "fresh_start"
	EventAlternativeApproach EventType = "alternative_approach"
	EventCheckpointRequest   EventType = "checkpoint_request"
	EventPlannerWakeup       EventType = "planner_wakeup"
	EventConflictResolved    EventType = "conflict_resolved"
	EventVCSDegraded         EventType = "vcs_degraded"
	EventIntegrated          EventType = "integrated"
	EventPhaseError          EventType = "phase_error"
)

// CoordinationEvent is one entry in the append-only coordination log.
type CoordinationEvent struct {
	// Seq is assigned on append and increases monotonically.
	Seq     int64             `json:"seq"`
	Time    time.Time         `json:"time"`
	Type    EventType         `json:"type"`
	AgentID string            `json:"agent_id,omitempty"`
	TaskID  string            `json:"task_id,omitempty"`
	Message string            `json:"message,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

// Conflict records a failed task or a contended resource awaiting resolution.
type Conflict struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	AgentID  string    `json:"agent_id"`
	TaskID   string    `json:"task_id"`
	Reason   string    `json:"reason"`
	Resolved bool      `json:"resolved"`
}

// Resolution records how a conflict was settled.
type Resolution struct {
	ConflictID string           `json:"conflict_id"`
	Time       time.Time        `json:"time"`
	Strategy   ConflictStrategy `json:"strategy"`
	Outcome    string           `json:"outcome"`
}

// SwarmPerformance is refreshed by the coordination loop.
type SwarmPerformance struct {
	// Throughput is completed tasks per second of wall time.
	Throughput float64 `json:"throughput"`
	// Efficiency is completed tasks per active agent.
	Efficiency float64 `json:"efficiency"`
	// CoordinationOverhead is time spent in coordination cycles over elapsed time.
	CoordinationOverhead float64 `json:"coordination_overhead"`
}

// SwarmState is a point-in-time view of one swarm run.
type SwarmState struct {
	ID             string              `json:"id"`
	Description    string              `json:"description"`
	Status         SwarmStatus         `json:"status"`
	StartedAt      time.Time           `json:"started_at"`
	EndedAt        *time.Time          `json:"ended_at,omitempty"`
	ActiveTasks    int                 `json:"active_tasks"`
	CompletedTasks int                 `json:"completed_tasks"`
	FailedTasks    int                 `json:"failed_tasks"`
	Performance    SwarmPerformance    `json:"performance"`
	Agents         []*Agent            `json:"agents"`
	Tasks          []SwarmTask         `json:"tasks"`
	Assignments    []Assignment        `json:"assignments"`
	Unallocated    []string            `json:"unallocated,omitempty"`
	Conflicts      []Conflict          `json:"conflicts,omitempty"`
	Resolutions    []Resolution        `json:"resolutions,omitempty"`
	Events         []CoordinationEvent `json:"events,omitempty"`
	// Trimmed counts events dropped from the front of Events by retention.
	Trimmed int `json:"trimmed,omitempty"`
}
