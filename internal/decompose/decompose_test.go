package decompose

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("t%d", n)
	}
}

func TestDecompose_CachingProxyScenario(t *testing.T) {
	d := New(WithIDFunc(sequentialIDs()))

	tasks, err := d.Decompose("Build a caching HTTP proxy system")
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d: %+v", len(tasks), tasks)
	}

	arch, impl, test := tasks[0], tasks[1], tasks[2]
	if arch.Kind != models.TaskKindArchitecture || len(arch.DependsOn) != 0 {
		t.Errorf("unexpected architecture task: %+v", arch)
	}
	if !reflect.DeepEqual(arch.RequiredRoles, []string{"architect", "system_designer"}) {
		t.Errorf("architecture roles = %v", arch.RequiredRoles)
	}
	if impl.Kind != models.TaskKindImplementation || !reflect.DeepEqual(impl.DependsOn, []string{arch.ID}) {
		t.Errorf("unexpected implementation task: %+v", impl)
	}
	if impl.RequiredRoles[0] != "developer" {
		t.Errorf("implementation roles = %v", impl.RequiredRoles)
	}
	if test.Kind != models.TaskKindTesting || !reflect.DeepEqual(test.DependsOn, []string{impl.ID}) {
		t.Errorf("unexpected testing task: %+v", test)
	}
	if !reflect.DeepEqual(test.RequiredRoles, []string{"qa_engineer", "test_automation"}) {
		t.Errorf("testing roles = %v", test.RequiredRoles)
	}
}

func TestDecompose_DocumentationAndSpecializations(t *testing.T) {
	d := New(WithIDFunc(sequentialIDs()))

	tasks, err := d.Decompose("A React frontend and a REST API backend library")
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}

	var kinds []models.TaskKind
	for _, tk := range tasks {
		kinds = append(kinds, tk.Kind)
	}
	want := []models.TaskKind{
		models.TaskKindImplementation,
		models.TaskKindImplementation,
		models.TaskKindTesting,
		models.TaskKindDocumentation,
	}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	if tasks[0].Specialization != "frontend" || tasks[1].Specialization != "backend" {
		t.Errorf("specializations = %s, %s", tasks[0].Specialization, tasks[1].Specialization)
	}
	if len(tasks[0].DependsOn) != 0 {
		t.Error("implementation should have no dependency without an architecture task")
	}
	if !reflect.DeepEqual(tasks[2].DependsOn, []string{tasks[0].ID, tasks[1].ID}) {
		t.Errorf("testing depends on %v", tasks[2].DependsOn)
	}
	docs := tasks[3]
	if len(docs.DependsOn) != 0 || !reflect.DeepEqual(docs.RequiredRoles, []string{"technical_writer", "developer"}) {
		t.Errorf("unexpected documentation task: %+v", docs)
	}
	if err := Validate(tasks); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestDecompose_DefaultSpecialization(t *testing.T) {
	tasks, err := New().Decompose("Write a word counter")
	if err != nil {
		t.Fatal(err)
	}
	if tasks[0].Specialization != DefaultSpecialization {
		t.Errorf("specialization = %q, want %q", tasks[0].Specialization, DefaultSpecialization)
	}
	if !strings.HasPrefix(tasks[0].ID, "task-") {
		t.Errorf("unexpected id %q", tasks[0].ID)
	}
}

func TestDecompose_Empty(t *testing.T) {
	if _, err := New().Decompose("   "); err == nil {
		t.Error("expected error for empty description")
	}
}

func TestDecompose_CustomClassifier(t *testing.T) {
	d := New(
		WithIDFunc(sequentialIDs()),
		WithClassifier(ClassifierFunc(func(string) Features {
			return Features{Specializations: []string{"embedded"}, Complexity: models.EffortHigh}
		})),
	)
	tasks, err := d.Decompose("anything")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Specialization != "embedded" || tasks[0].Effort != models.EffortHigh {
		t.Errorf("unexpected tasks: %+v", tasks)
	}
}

func TestHeuristicClassifier(t *testing.T) {
	c := NewHeuristicClassifier()
	tests := []struct {
		desc   string
		arch   bool
		docs   bool
		effort models.Effort
	}{
		{"Build a caching HTTP proxy system", true, false, models.EffortLow},
		{"Internal platform for deployments", true, false, models.EffortLow},
		{"A small library", false, true, models.EffortLow},
		{"Systemd unit helper", false, false, models.EffortLow},
		{strings.Repeat("feature ", 20), false, false, models.EffortMedium},
		{strings.Repeat("feature ", 50), false, false, models.EffortHigh},
	}
	for _, tt := range tests {
		f := c.Classify(tt.desc)
		if f.NeedsArchitecture != tt.arch || f.NeedsDocumentation != tt.docs || !f.NeedsTesting {
			t.Errorf("Classify(%q) = %+v", tt.desc, f)
		}
		if f.Complexity != tt.effort {
			t.Errorf("Classify(%q).Complexity = %s, want %s", tt.desc, f.Complexity, tt.effort)
		}
	}
}

func TestValidate(t *testing.T) {
	ok := models.SwarmTask{ID: "a", Kind: models.TaskKindTesting, Effort: models.EffortLow, RequiredRoles: []string{"tester"}}

	tests := []struct {
		name    string
		tasks   []models.SwarmTask
		wantErr bool
	}{
		{"valid", []models.SwarmTask{ok}, false},
		{"duplicate", []models.SwarmTask{ok, ok}, true},
		{"bad kind", []models.SwarmTask{{ID: "b", Kind: "deploy", Effort: models.EffortLow, RequiredRoles: []string{"x"}}}, true},
		{"unknown dep", []models.SwarmTask{{ID: "c", Kind: models.TaskKindTesting, Effort: models.EffortLow, RequiredRoles: []string{"x"}, DependsOn: []string{"zz"}}}, true},
		{"no roles", []models.SwarmTask{{ID: "d", Kind: models.TaskKindTesting, Effort: models.EffortLow}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.tasks); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
