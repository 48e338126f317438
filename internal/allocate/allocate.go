// Package allocate assigns decomposed tasks to capable agents.
package allocate

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/swarmer/internal/graph"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// ErrNoEligibleAgent is wrapped by Gap for tasks no agent can take.
var ErrNoEligibleAgent = errors.New("no eligible agent")

// Gap describes one task left unallocated.
type Gap struct {
	TaskID        string
	RequiredRoles []string
}

func (g Gap) Error() string {
	return fmt.Sprintf("task %s: %v (requires one of %v)", g.TaskID, ErrNoEligibleAgent, g.RequiredRoles)
}

func (g Gap) Unwrap() error { return ErrNoEligibleAgent }

// Allocation is the result of one allocation pass.
type Allocation struct {
	// Assignments is keyed by task ID; a task appears at most once.
	Assignments map[string]models.Assignment
	// Order lists assigned task IDs in the order they were allocated.
	Order []string
	// Gaps lists tasks with no eligible agent, in sorted order.
	Gaps []Gap
	// Cyclic lists tasks that were ordered by encounter because of a cycle.
	Cyclic []string
}

// Unallocated returns the IDs of tasks no agent could take.
func (a *Allocation) Unallocated() []string {
	ids := make([]string, 0, len(a.Gaps))
	for _, g := range a.Gaps {
		ids = append(ids, g.TaskID)
	}
	return ids
}

// Allocator matches tasks to agents in dependency order.
type Allocator struct {
	now      func() time.Time
	debugLog func(format string, args ...interface{})
}

// New creates an Allocator using the wall clock.
func New() *Allocator {
	return &Allocator{
		now:      time.Now,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetClock replaces the time source.
func (a *Allocator) SetClock(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// SetDebugLog sets the debug logging function.
func (a *Allocator) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		a.debugLog = fn
	}
}

// Allocate assigns each task to one agent. An agent receives a task only if
// its role or capabilities intersect the task's required roles. The first
// eligible agent without a current task wins; when all are busy the first
// eligible agent is chosen and its tasks run one after another.
// Chosen agents get CurrentTaskID set if they had none.
func (a *Allocator) Allocate(tasks []models.SwarmTask, agents []*models.Agent) *Allocation {
	g := graph.New()
	g.SetDebugLog(a.debugLog)
	g.Build(tasks)

	order, stuck := g.TopologicalSort()
	if len(stuck) > 0 {
		log.Printf("[allocate] warning: dependency cycle, %d task(s) kept in encounter order: %v", len(stuck), stuck)
	}

	result := &Allocation{
		Assignments: make(map[string]models.Assignment, len(tasks)),
		Cyclic:      stuck,
	}

	for _, taskID := range order {
		if _, done := result.Assignments[taskID]; done {
			continue
		}
		task, _ := g.Task(taskID)

		candidates := eligible(task, agents)
		if len(candidates) == 0 {
			gap := Gap{TaskID: taskID, RequiredRoles: task.RequiredRoles}
			log.Printf("[allocate] %v", gap)
			result.Gaps = append(result.Gaps, gap)
			continue
		}

		chosen := candidates[0]
		for _, c := range candidates {
			if c.CurrentTaskID == "" {
				chosen = c
				break
			}
		}
		if chosen.CurrentTaskID != "" {
			a.debugLog("[allocate] all candidates for %s busy, queueing on %s", taskID, chosen.ID)
		} else {
			chosen.CurrentTaskID = taskID
		}

		now := a.now()
		result.Assignments[taskID] = models.Assignment{
			AgentID:             chosen.ID,
			TaskID:              taskID,
			AssignedAt:          now,
			EstimatedCompletion: now.Add(task.Effort.Duration()),
			Collaborators:       collaborators(chosen, candidates),
			Reviewers:           reviewers(chosen, agents),
		}
		result.Order = append(result.Order, taskID)
		a.debugLog("[allocate] task %s -> agent %s (%s)", taskID, chosen.ID, chosen.Role)
	}

	return result
}

func eligible(task models.SwarmTask, agents []*models.Agent) []*models.Agent {
	var out []*models.Agent
	for _, ag := range agents {
		if ag.Status == models.AgentStatusStopped {
			continue
		}
		if ag.Matches(task.RequiredRoles) {
			out = append(out, ag)
		}
	}
	return out
}

func collaborators(chosen *models.Agent, candidates []*models.Agent) []string {
	var ids []string
	for _, c := range candidates {
		if c.ID == chosen.ID {
			continue
		}
		ids = append(ids, c.ID)
		if len(ids) == 2 {
			break
		}
	}
	return ids
}

func reviewers(chosen *models.Agent, agents []*models.Agent) []string {
	var ids []string
	for _, ag := range agents {
		if ag.Role == models.RoleReviewer && ag.ID != chosen.ID {
			ids = append(ids, ag.ID)
		}
	}
	return ids
}
