// Package graph holds the task dependency graph used for ordering allocation.
package graph

import (
	"sync"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// DependencyGraph is a directed graph of task dependencies.
// Tasks are nodes; an edge t -> d means t waits for d.
// Node order is the order tasks were passed to Build and is used to break ties.
type DependencyGraph struct {
	mu    sync.RWMutex
	order []string
	nodes map[string]models.SwarmTask
	// edges maps task ID to the IDs it depends on.
	edges map[string][]string
	// missing records dependencies that reference unknown tasks.
	missing  map[string][]string
	debugLog func(format string, args ...interface{})
}

// New creates an empty graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]models.SwarmTask),
		edges:    make(map[string][]string),
		missing:  make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build adds tasks to the graph. Dependencies on unknown tasks are recorded
// and ignored for ordering; they never make Build fail.
func (g *DependencyGraph) Build(tasks []models.SwarmTask) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d tasks", len(tasks))

	for _, task := range tasks {
		if _, seen := g.nodes[task.ID]; !seen {
			g.order = append(g.order, task.ID)
		}
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, ok := g.nodes[depID]; !ok {
				g.debugLog("[graph.Build] task %s depends on unknown task %s", task.ID, depID)
				g.missing[task.ID] = append(g.missing[task.ID], depID)
				continue
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}
}

// HasCycle reports whether any dependency cycle exists.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cyclicLocked()) > 0
}

// CyclicTasks returns, in encounter order, every task that lies on a cycle.
func (g *DependencyGraph) CyclicTasks() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cyclicLocked()
}

// cyclicLocked colours nodes white/grey/black and marks every node on the
// grey stack when a back edge is found.
func (g *DependencyGraph) cyclicLocked() []string {
	const (
		white = iota
		grey
		black
	)
	colors := make(map[string]int, len(g.nodes))
	onCycle := make(map[string]bool)
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		colors[id] = grey
		stack = append(stack, id)
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					onCycle[stack[i]] = true
					if stack[i] == depID {
						break
					}
				}
			case white:
				visit(depID)
			}
		}
		stack = stack[:len(stack)-1]
		colors[id] = black
	}

	for _, id := range g.order {
		if colors[id] == white {
			visit(id)
		}
	}

	var cyclic []string
	for _, id := range g.order {
		if onCycle[id] {
			cyclic = append(cyclic, id)
		}
	}
	return cyclic
}

// TopologicalSort returns every task ID with dependencies before dependents.
// Ready tasks are emitted in encounter order. Tasks that can never become
// ready (on a cycle or downstream of one) are appended afterwards in
// encounter order; the second return value lists them. No task is dropped.
func (g *DependencyGraph) TopologicalSort() (sorted []string, stuck []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	remaining := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		remaining[id] = len(g.edges[id])
	}
	dependents := g.dependentsLocked()
	emitted := make(map[string]bool, len(g.nodes))

	for progress := true; progress; {
		progress = false
		for _, id := range g.order {
			if emitted[id] || remaining[id] > 0 {
				continue
			}
			emitted[id] = true
			sorted = append(sorted, id)
			for _, dep := range dependents[id] {
				remaining[dep]--
			}
			progress = true
		}
	}

	for _, id := range g.order {
		if !emitted[id] {
			stuck = append(stuck, id)
			sorted = append(sorted, id)
		}
	}
	if len(stuck) > 0 {
		g.debugLog("[graph.TopologicalSort] %d task(s) blocked by a cycle, kept in encounter order: %v", len(stuck), stuck)
	}
	return sorted, stuck
}

// Waves groups tasks into tiers that could run in parallel. Stuck tasks form a final tier.
func (g *DependencyGraph) Waves() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	level := make(map[string]int, len(g.nodes))
	var depth func(id string, seen map[string]bool) int
	depth = func(id string, seen map[string]bool) int {
		if l, ok := level[id]; ok {
			return l
		}
		if seen[id] {
			return -1
		}
		seen[id] = true
		l := 0
		for _, dep := range g.edges[id] {
			d := depth(dep, seen)
			if d < 0 {
				return -1
			}
			if d+1 > l {
				l = d + 1
			}
		}
		level[id] = l
		return l
	}

	var waves [][]string
	var stuck []string
	for _, id := range g.order {
		l := depth(id, map[string]bool{})
		if l < 0 {
			stuck = append(stuck, id)
			continue
		}
		for len(waves) <= l {
			waves = append(waves, nil)
		}
		waves[l] = append(waves[l], id)
	}
	if len(stuck) > 0 {
		waves = append(waves, stuck)
	}
	return waves
}

func (g *DependencyGraph) dependentsLocked() map[string][]string {
	dependents := make(map[string][]string, len(g.nodes))
	for _, id := range g.order {
		for _, dep := range g.edges[id] {
			dependents[dep] = append(dependents[dep], id)
		}
	}
	return dependents
}

// Task returns the task for id.
func (g *DependencyGraph) Task(id string) (models.SwarmTask, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.nodes[id]
	return t, ok
}

// Size returns the number of tasks.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the known dependencies of id.
func (g *DependencyGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[id]...)
}

// Dependents returns the tasks waiting on id, in encounter order.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked()[id]
}

// MissingDependencies returns the unknown dependency IDs recorded for id.
func (g *DependencyGraph) MissingDependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.missing[id]
}
