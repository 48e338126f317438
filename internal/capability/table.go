// Package capability is the static role table: capabilities, communication
// style, default conflict strategy and instruction template per role.
package capability

import (
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// Capability tags referenced by the decomposer.
const (
	SystemDesigner  = "system_designer"
	QAEngineer      = "qa_engineer"
	TestAutomation  = "test_automation"
	TechnicalWriter = "technical_writer"
)

// Profile is everything the table knows about one role.
type Profile struct {
	Capabilities       []string
	CommunicationStyle string
	ConflictResolution models.ConflictStrategy
	Instructions       string
}

var profiles = map[models.Role]Profile{
	models.RoleArchitect: {
		Capabilities:       []string{SystemDesigner, "component_modeling", "architecture_validation", "technology_selection"},
		CommunicationStyle: "structured",
		ConflictResolution: models.ConflictExpertise,
		Instructions: `You are the system architect.
Define module boundaries, interfaces and data flow before anything is built.
Record decisions where the rest of the team will find them (docs/architecture.md).
Prefer designs that let implementation tasks proceed in parallel.`,
	},
	models.RolePlanner: {
		Capabilities:       []string{"task_decomposition", "dependency_analysis", "resource_planning", "replanning"},
		CommunicationStyle: "concise",
		ConflictResolution: models.ConflictHierarchical,
		Instructions: `You are the planner.
Break work into small independently verifiable steps and keep dependencies explicit.
When you are woken for replanning, adjust the remaining plan rather than redoing finished work.`,
	},
	models.RoleDeveloper: {
		Capabilities:       []string{"code_implementation", "debugging", "refactoring", "backend", "frontend", "core", "data"},
		CommunicationStyle: "technical",
		ConflictResolution: models.ConflictDemocratic,
		Instructions: `You are a software developer.
Implement the task completely, following the existing conventions of the repository.
Keep changes scoped to the task. Leave the tree building and its tests passing.`,
	},
	models.RoleReviewer: {
		Capabilities:       []string{"code_review", "quality_assessment", "best_practices", "security_review"},
		CommunicationStyle: "critical",
		ConflictResolution: models.ConflictExpertise,
		Instructions: `You are the code reviewer.
Check correctness, error handling and consistency with the codebase.
Fix small problems directly; describe larger ones precisely.`,
	},
	models.RoleTester: {
		Capabilities:       []string{QAEngineer, TestAutomation, "test_design", "quality_validation"},
		CommunicationStyle: "detailed",
		ConflictResolution: models.ConflictDemocratic,
		Instructions: `You are the QA engineer.
Write automated tests covering the acceptance criteria, including failure paths and edge cases.
Run the suite and report anything that does not pass.`,
	},
	models.RoleOptimizer: {
		Capabilities:       []string{"performance_analysis", "profiling", "resource_optimization", "benchmarking"},
		CommunicationStyle: "data-driven",
		ConflictResolution: models.ConflictExpertise,
		Instructions: `You are the performance engineer.
Measure before changing anything. Keep optimisations that show a measurable gain and leave behaviour unchanged.`,
	},
	models.RoleDocumenter: {
		Capabilities:       []string{TechnicalWriter, "documentation", "api_documentation", "examples"},
		CommunicationStyle: "explanatory",
		ConflictResolution: models.ConflictDemocratic,
		Instructions: `You are the technical writer.
Document what exists: public APIs, configuration and usage examples that actually run.`,
	},
	models.RoleCoordinator: {
		Capabilities:       []string{"task_coordination", "conflict_resolution", "progress_tracking", "integration"},
		CommunicationStyle: "directive",
		ConflictResolution: models.ConflictHierarchical,
		Instructions: `You are the swarm coordinator.
Integrate the work of the other agents, resolve overlaps between their changes and keep the baseline consistent.`,
	},
}

// Lookup returns the profile for role. The returned capability slice is a copy.
func Lookup(role models.Role) (Profile, bool) {
	p, ok := profiles[role]
	if !ok {
		return Profile{}, false
	}
	p.Capabilities = append([]string(nil), p.Capabilities...)
	return p, true
}

// Capabilities returns the fixed capability set for role, or nil for an unknown role.
func Capabilities(role models.Role) []string {
	p, _ := Lookup(role)
	return p.Capabilities
}

// Instructions returns the instruction template for role.
func Instructions(role models.Role) string {
	return profiles[role].Instructions
}

// CommunicationStyle returns the communication style for role.
func CommunicationStyle(role models.Role) string {
	return profiles[role].CommunicationStyle
}

// Roles returns every role holding tag, either as its name or as a capability.
func Roles(tag string) []models.Role {
	var roles []models.Role
	for _, r := range models.AllRoles() {
		if string(r) == tag {
			roles = append(roles, r)
			continue
		}
		for _, c := range profiles[r].Capabilities {
			if c == tag {
				roles = append(roles, r)
				break
			}
		}
	}
	return roles
}
