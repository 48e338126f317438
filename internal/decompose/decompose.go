// Package decompose turns a project description into a task graph.
package decompose

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ShayCichocki/swarmer/internal/capability"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// Task priorities; lower runs earlier.
const (
	PriorityArchitecture   = 1
	PriorityImplementation = 2
	PriorityTesting        = 3
	PriorityDocumentation  = 4
)

// Decomposer builds the task set additively from classifier features.
type Decomposer struct {
	classifier Classifier
	newID      func() string
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithClassifier replaces the feature extraction step.
func WithClassifier(c Classifier) Option {
	return func(d *Decomposer) {
		if c != nil {
			d.classifier = c
		}
	}
}

// WithIDFunc replaces task ID generation.
func WithIDFunc(fn func() string) Option {
	return func(d *Decomposer) {
		if fn != nil {
			d.newID = fn
		}
	}
}

// New creates a Decomposer using the heuristic classifier by default.
func New(opts ...Option) *Decomposer {
	d := &Decomposer{
		classifier: NewHeuristicClassifier(),
		newID: func() string {
			return "task-" + uuid.New().String()[:8]
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decompose returns the tasks for description in priority order.
func (d *Decomposer) Decompose(description string) ([]models.SwarmTask, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("decompose: empty project description")
	}
	f := d.classifier.Classify(description)
	if !f.Complexity.Valid() {
		f.Complexity = models.EffortMedium
	}

	var tasks []models.SwarmTask

	var archID string
	if f.NeedsArchitecture {
		arch := models.SwarmTask{
			ID:            d.newID(),
			Kind:          models.TaskKindArchitecture,
			Title:         "Design system architecture",
			Description:   fmt.Sprintf("Design the architecture for: %s", description),
			Priority:      PriorityArchitecture,
			Effort:        f.Complexity,
			RequiredRoles: []string{string(models.RoleArchitect), capability.SystemDesigner},
			AcceptanceCriteria: []string{
				"Components and their responsibilities are identified",
				"Interfaces between components are defined",
				"Key technology decisions are recorded",
			},
		}
		archID = arch.ID
		tasks = append(tasks, arch)
	}

	var implIDs []string
	for _, spec := range f.Specializations {
		impl := models.SwarmTask{
			ID:             d.newID(),
			Kind:           models.TaskKindImplementation,
			Title:          fmt.Sprintf("Implement %s components", spec),
			Description:    fmt.Sprintf("Implement the %s part of: %s", spec, description),
			Priority:       PriorityImplementation,
			Effort:         f.Complexity,
			RequiredRoles:  []string{string(models.RoleDeveloper), spec},
			Specialization: spec,
			AcceptanceCriteria: []string{
				fmt.Sprintf("The %s functionality described in the project is implemented", spec),
				"Code builds without errors",
				"Error paths are handled",
			},
		}
		if archID != "" {
			impl.DependsOn = []string{archID}
		}
		implIDs = append(implIDs, impl.ID)
		tasks = append(tasks, impl)
	}

	if f.NeedsTesting {
		tasks = append(tasks, models.SwarmTask{
			ID:            d.newID(),
			Kind:          models.TaskKindTesting,
			Title:         "Write and run tests",
			Description:   fmt.Sprintf("Create automated tests for: %s", description),
			Priority:      PriorityTesting,
			Effort:        models.EffortMedium,
			RequiredRoles: []string{capability.QAEngineer, capability.TestAutomation},
			DependsOn:     append([]string(nil), implIDs...),
			AcceptanceCriteria: []string{
				"Unit tests cover the implemented components",
				"Failure paths and edge cases are tested",
				"The full test suite passes",
			},
		})
	}

	if f.NeedsDocumentation {
		tasks = append(tasks, models.SwarmTask{
			ID:            d.newID(),
			Kind:          models.TaskKindDocumentation,
			Title:         "Write documentation",
			Description:   fmt.Sprintf("Document the public surface of: %s", description),
			Priority:      PriorityDocumentation,
			Effort:        models.EffortLow,
			RequiredRoles: []string{capability.TechnicalWriter, string(models.RoleDeveloper)},
			AcceptanceCriteria: []string{
				"Public API is documented",
				"Usage examples are included",
			},
		})
	}

	return tasks, nil
}

// Validate checks a task set supplied from outside the decomposer: unique
// IDs, known kinds and efforts, and dependencies on tasks in the set.
func Validate(tasks []models.SwarmTask) error {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return fmt.Errorf("task %q has no id", t.Title)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate task id %s", t.ID)
		}
		seen[t.ID] = true
		if !t.Kind.Valid() {
			return fmt.Errorf("task %s: unknown kind %q", t.ID, t.Kind)
		}
		if !t.Effort.Valid() {
			return fmt.Errorf("task %s: unknown effort %q", t.ID, t.Effort)
		}
		if len(t.RequiredRoles) == 0 {
			return fmt.Errorf("task %s: no required roles", t.ID)
		}
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
			}
		}
	}
	return nil
}
