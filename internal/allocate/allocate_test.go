package allocate

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ShayCichocki/swarmer/internal/capability"
	"github.com/ShayCichocki/swarmer/internal/decompose"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

func newAgent(id string, role models.Role) *models.Agent {
	return &models.Agent{
		ID:           id,
		Role:         role,
		Capabilities: capability.Capabilities(role),
		Status:       models.AgentStatusIdle,
	}
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestAllocate_CachingProxyScenario(t *testing.T) {
	tasks, err := decompose.New().Decompose("Build a caching HTTP proxy system")
	if err != nil {
		t.Fatal(err)
	}
	agents := []*models.Agent{
		newAgent("arch", models.RoleArchitect),
		newAgent("dev", models.RoleDeveloper),
		newAgent("qa", models.RoleTester),
	}

	a := New()
	a.SetClock(fixedClock())
	result := a.Allocate(tasks, agents)

	if len(result.Assignments) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(result.Assignments))
	}
	want := map[models.TaskKind]string{
		models.TaskKindArchitecture:   "arch",
		models.TaskKindImplementation: "dev",
		models.TaskKindTesting:        "qa",
	}
	for _, tk := range tasks {
		as, ok := result.Assignments[tk.ID]
		if !ok {
			t.Fatalf("task %s not assigned", tk.ID)
		}
		if as.AgentID != want[tk.Kind] {
			t.Errorf("%s assigned to %s, want %s", tk.Kind, as.AgentID, want[tk.Kind])
		}
	}
	if !reflect.DeepEqual(result.Order, []string{tasks[0].ID, tasks[1].ID, tasks[2].ID}) {
		t.Errorf("order = %v", result.Order)
	}
	if agents[0].CurrentTaskID != tasks[0].ID {
		t.Errorf("architect current task = %q", agents[0].CurrentTaskID)
	}
	if len(result.Gaps) != 0 {
		t.Errorf("unexpected gaps: %v", result.Gaps)
	}
}

func TestAllocate_CapabilityInvariant(t *testing.T) {
	tasks, _ := decompose.New().Decompose("A React frontend with a REST API backend library on a platform")
	agents := []*models.Agent{
		newAgent("a1", models.RoleArchitect),
		newAgent("d1", models.RoleDeveloper),
		newAgent("d2", models.RoleDeveloper),
		newAgent("t1", models.RoleTester),
		newAgent("r1", models.RoleReviewer),
		newAgent("w1", models.RoleDocumenter),
	}
	byID := map[string]*models.Agent{}
	for _, ag := range agents {
		byID[ag.ID] = ag
	}

	result := New().Allocate(tasks, agents)

	for _, tk := range tasks {
		as, ok := result.Assignments[tk.ID]
		if !ok {
			t.Errorf("task %s (%s) unassigned", tk.ID, tk.Kind)
			continue
		}
		if as.TaskID != tk.ID {
			t.Errorf("assignment key %s holds task %s", tk.ID, as.TaskID)
		}
		if !byID[as.AgentID].Matches(tk.RequiredRoles) {
			t.Errorf("agent %s cannot serve %v", as.AgentID, tk.RequiredRoles)
		}
		if !reflect.DeepEqual(as.Reviewers, []string{"r1"}) {
			t.Errorf("reviewers = %v", as.Reviewers)
		}
		if len(as.Collaborators) > 2 {
			t.Errorf("too many collaborators: %v", as.Collaborators)
		}
	}
	if len(result.Order) != len(tasks) {
		t.Errorf("order has %d entries for %d tasks", len(result.Order), len(tasks))
	}
}

func TestAllocate_PrefersIdleThenFallsBack(t *testing.T) {
	tasks := []models.SwarmTask{
		{ID: "a", Kind: models.TaskKindImplementation, Effort: models.EffortLow, RequiredRoles: []string{"developer"}},
		{ID: "b", Kind: models.TaskKindImplementation, Effort: models.EffortHigh, RequiredRoles: []string{"developer"}},
		{ID: "c", Kind: models.TaskKindImplementation, Effort: models.EffortMedium, RequiredRoles: []string{"developer"}},
	}
	agents := []*models.Agent{newAgent("d1", models.RoleDeveloper), newAgent("d2", models.RoleDeveloper)}

	a := New()
	clock := fixedClock()
	a.SetClock(clock)
	result := a.Allocate(tasks, agents)

	got := []string{result.Assignments["a"].AgentID, result.Assignments["b"].AgentID, result.Assignments["c"].AgentID}
	if !reflect.DeepEqual(got, []string{"d1", "d2", "d1"}) {
		t.Errorf("agents = %v", got)
	}
	if agents[0].CurrentTaskID != "a" {
		t.Errorf("queued task overwrote current task: %q", agents[0].CurrentTaskID)
	}
	if est := result.Assignments["b"].EstimatedCompletion.Sub(clock()); est != 900*time.Second {
		t.Errorf("high effort estimate = %v", est)
	}
	if !reflect.DeepEqual(result.Assignments["a"].Collaborators, []string{"d2"}) {
		t.Errorf("collaborators = %v", result.Assignments["a"].Collaborators)
	}
}

func TestAllocate_GapIsReportedNotFatal(t *testing.T) {
	tasks := []models.SwarmTask{
		{ID: "docs", Kind: models.TaskKindDocumentation, Effort: models.EffortLow, RequiredRoles: []string{"technical_writer"}},
		{ID: "impl", Kind: models.TaskKindImplementation, Effort: models.EffortLow, RequiredRoles: []string{"developer"}},
	}
	result := New().Allocate(tasks, []*models.Agent{newAgent("d1", models.RoleDeveloper)})

	if _, ok := result.Assignments["impl"]; !ok {
		t.Error("impl should be assigned")
	}
	if !reflect.DeepEqual(result.Unallocated(), []string{"docs"}) {
		t.Fatalf("unallocated = %v", result.Unallocated())
	}
	if !errors.Is(result.Gaps[0], ErrNoEligibleAgent) {
		t.Error("gap should wrap ErrNoEligibleAgent")
	}
}

func TestAllocate_CycleStillAllocated(t *testing.T) {
	tasks := []models.SwarmTask{
		{ID: "x", Kind: models.TaskKindImplementation, Effort: models.EffortLow, RequiredRoles: []string{"developer"}, DependsOn: []string{"y"}},
		{ID: "y", Kind: models.TaskKindImplementation, Effort: models.EffortLow, RequiredRoles: []string{"developer"}, DependsOn: []string{"x"}},
	}
	result := New().Allocate(tasks, []*models.Agent{newAgent("d1", models.RoleDeveloper)})

	if !reflect.DeepEqual(result.Order, []string{"x", "y"}) {
		t.Errorf("order = %v", result.Order)
	}
	if !reflect.DeepEqual(result.Cyclic, []string{"x", "y"}) {
		t.Errorf("cyclic = %v", result.Cyclic)
	}
}
