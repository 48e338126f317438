// Package swarm launches a fleet of role-specialised agents against a
// decomposed plan, runs one execution unit per assignment and keeps a
// periodic coordination loop going for the lifetime of the swarm.
package swarm

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/swarmer/internal/allocate"
	"github.com/ShayCichocki/swarmer/internal/capability"
	"github.com/ShayCichocki/swarmer/internal/decompose"
	"github.com/ShayCichocki/swarmer/internal/logging"
	"github.com/ShayCichocki/swarmer/internal/subagent"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// AgentSpec requests one agent.
type AgentSpec struct {
	Role models.Role `yaml:"role" json:"role"`
	// ConflictResolution overrides the role's default strategy.
	ConflictResolution models.ConflictStrategy `yaml:"conflict_resolution,omitempty" json:"conflict_resolution,omitempty"`
	Collaboration      []string                `yaml:"collaboration,omitempty" json:"collaboration,omitempty"`
}

// Coordinator holds the collaborators shared by every swarm it launches.
type Coordinator struct {
	exec subagent.Executor
	opts coordinatorOptions
}

// Plan is the result of decomposition and allocation without execution.
type Plan struct {
	Tasks      []models.SwarmTask
	Agents     []*models.Agent
	Allocation *allocate.Allocation
}

// New creates a Coordinator.
func New(req RequiredConfig, opts ...Option) (*Coordinator, error) {
	if req.Executor == nil {
		return nil, fmt.Errorf("swarm: executor is required")
	}
	o := coordinatorOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.config = o.config.withDefaults()
	if o.decomposer == nil {
		o.decomposer = decompose.New()
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	return &Coordinator{exec: req.Executor, opts: o}, nil
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.opts.config
}

// Validate checks agent specs against the configured maximum and the role table.
func (c *Coordinator) Validate(specs []AgentSpec) error {
	if len(specs) == 0 {
		return &ValidationError{Field: "agents", Reason: "at least one agent is required"}
	}
	if len(specs) > c.opts.config.MaxAgents {
		return &ValidationError{
			Field:  "agents",
			Reason: fmt.Sprintf("%d requested, maximum is %d", len(specs), c.opts.config.MaxAgents),
		}
	}
	for i, spec := range specs {
		if !spec.Role.Valid() {
			return &ValidationError{Field: fmt.Sprintf("agents[%d].role", i), Reason: fmt.Sprintf("unknown role %q", spec.Role)}
		}
		if spec.ConflictResolution != "" && !spec.ConflictResolution.Valid() {
			return &ValidationError{
				Field:  fmt.Sprintf("agents[%d].conflict_resolution", i),
				Reason: fmt.Sprintf("unknown strategy %q", spec.ConflictResolution),
			}
		}
	}
	return nil
}

// Plan decomposes description and allocates the tasks to agents built from
// specs. Nothing is created on disk.
func (c *Coordinator) Plan(description string, specs []AgentSpec) (*Plan, error) {
	if err := c.Validate(specs); err != nil {
		return nil, err
	}
	tasks, err := c.opts.decomposer.Decompose(description)
	if err != nil {
		return nil, err
	}
	agents := c.initAgents(specs, false)
	return &Plan{Tasks: tasks, Agents: agents, Allocation: c.allocator().Allocate(tasks, agents)}, nil
}

// Launch validates specs, decomposes description, initialises the agents,
// allocates the tasks and starts every execution unit together with the
// coordination loop. It returns once the swarm is running.
func (c *Coordinator) Launch(ctx context.Context, description string, specs []AgentSpec) (*Swarm, error) {
	if err := c.Validate(specs); err != nil {
		return nil, err
	}
	tasks, err := c.opts.decomposer.Decompose(description)
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	c.opts.logger.Log("[swarm] decomposed %q into %d task(s)", description, len(tasks))

	agents := c.initAgents(specs, true)
	alloc := c.allocator().Allocate(tasks, agents)

	s := newSwarm(c, description, tasks, agents, alloc)
	s.start(ctx)
	return s, nil
}

func (c *Coordinator) allocator() *allocate.Allocator {
	a := allocate.New()
	a.SetClock(c.opts.now)
	a.SetDebugLog(c.opts.logger.Func())
	return a
}

func (c *Coordinator) initAgents(specs []AgentSpec, createDirs bool) []*models.Agent {
	agents := make([]*models.Agent, 0, len(specs))
	for i, spec := range specs {
		agents = append(agents, c.newAgent(spec, i, createDirs))
	}
	return agents
}

func (c *Coordinator) newAgent(spec AgentSpec, n int, createDir bool) *models.Agent {
	profile, _ := capability.Lookup(spec.Role)
	now := c.opts.now()

	strategy := profile.ConflictResolution
	if spec.ConflictResolution != "" {
		strategy = spec.ConflictResolution
	}

	agent := &models.Agent{
		ID:           "agent-" + uuid.New().String()[:8],
		Role:         spec.Role,
		Capabilities: profile.Capabilities,
		Status:       models.AgentStatusInitializing,
		WorkDir:      filepath.Join(c.opts.config.WorkspaceRoot, fmt.Sprintf("%s-%d-%d", spec.Role, now.UnixMilli(), n)),
		Performance: models.AgentPerformance{
			SuccessRate:    1.0,
			LastFreshStart: now,
		},
		Preferences: models.CoordinationPreferences{
			CommunicationStyle: profile.CommunicationStyle,
			ConflictResolution: strategy,
			Collaboration:      append([]string(nil), spec.Collaboration...),
		},
		CreatedAt: now,
	}

	if createDir {
		if err := os.MkdirAll(agent.WorkDir, 0755); err != nil {
			log.Printf("[swarm] warning: create workdir for %s agent %s: %v", agent.Role, agent.ID, err)
		}
	}
	agent.Status = models.AgentStatusIdle
	c.opts.logger.Log("[swarm] initialised %s agent %s in %s", agent.Role, agent.ID, agent.WorkDir)
	return agent
}
