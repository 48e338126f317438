package swarm

import (
	"context"
	"time"

	"github.com/ShayCichocki/swarmer/internal/isolation"
	"github.com/ShayCichocki/swarmer/internal/natsbus"
	"github.com/ShayCichocki/swarmer/internal/signals"
	"github.com/ShayCichocki/swarmer/internal/state"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// Isolation is the branch-per-agent workflow.
type Isolation interface {
	InitializeAgentWorkflow(ctx context.Context, owner isolation.Owner, task models.SwarmTask) (string, error)
	CommitAgentWork(ctx context.Context, owner isolation.Owner, task models.SwarmTask, iteration int) (bool, error)
	MergeAgentWork(ctx context.Context, owner isolation.Owner, task models.SwarmTask) (*isolation.MergeResult, error)
	CoordinateMerges(ctx context.Context) (*isolation.IntegrationResult, error)
	Cleanup(ctx context.Context) error
}

// AuditSink persists one frame per swarm and journals its events.
type AuditSink interface {
	CreateFrame(f *state.Frame) error
	CloseFrame(id string, out state.FrameOutcome) error
	AppendEvent(swarmID string, ev models.CoordinationEvent) error
}

// EventPublisher fans coordination events out to other processes.
type EventPublisher interface {
	Publish(swarmID string, ev models.CoordinationEvent) error
}

// SignalSource delivers operator signals and queued agent messages.
type SignalSource interface {
	Signals() <-chan signals.Signal
	TakeAgentMessage(agentID string) string
}

// DirectiveKind names an advisory instruction from the coordination loop.
type DirectiveKind string

const (
	DirectiveFreshStart          DirectiveKind = "fresh_start"
	DirectiveAlternativeApproach DirectiveKind = "alternative_approach"
	DirectiveCheckpoint          DirectiveKind = "checkpoint"
	DirectivePlannerWakeup       DirectiveKind = "planner_wakeup"
)

// Directive is advisory. In-flight subagent calls are never interrupted.
type Directive struct {
	Kind    DirectiveKind
	SwarmID string
	AgentID string
	TaskID  string
	Message string
	Time    time.Time
}

// Hooks receives directives as the coordination loop issues them.
type Hooks interface {
	OnDirective(ctx context.Context, d Directive)
}

// HooksFunc adapts a function to Hooks.
type HooksFunc func(ctx context.Context, d Directive)

// OnDirective implements Hooks.
func (f HooksFunc) OnDirective(ctx context.Context, d Directive) { f(ctx, d) }

// Resolver settles one outstanding conflict using the agent's strategy.
// ok=false leaves the conflict outstanding.
type Resolver interface {
	Resolve(ctx context.Context, c models.Conflict, strategy models.ConflictStrategy) (outcome string, ok bool, err error)
}

// TunnelVisionFunc reports whether agent keeps repeating an approach that
// does not work. recent holds the agent's latest log entries, oldest first.
type TunnelVisionFunc func(agent models.Agent, recent []models.CoordinationEvent) bool

var (
	_ Isolation      = (*isolation.Manager)(nil)
	_ AuditSink      = (*state.DB)(nil)
	_ EventPublisher = (*natsbus.Publisher)(nil)
	_ SignalSource   = (*signals.Watcher)(nil)
)
