package swarm

import (
	"time"

	"github.com/ShayCichocki/swarmer/internal/decompose"
	"github.com/ShayCichocki/swarmer/internal/logging"
	"github.com/ShayCichocki/swarmer/internal/metrics"
	"github.com/ShayCichocki/swarmer/internal/registry"
	"github.com/ShayCichocki/swarmer/internal/subagent"
)

// Defaults applied to zero Config fields.
const (
	DefaultMaxAgents             = 8
	DefaultCoordinationInterval  = 30 * time.Second
	DefaultCheckpointAfter       = time.Hour
	DefaultDriftFailureThreshold = 2
	DefaultMaxLogEntries         = 1000
)

// Config holds the swarm tuning knobs.
type Config struct {
	// RepoPath is the shared working tree handed to the subagent. Empty
	// means each agent works in its own WorkDir.
	RepoPath string
	// WorkspaceRoot holds one scratch directory per agent.
	WorkspaceRoot string

	MaxAgents             int
	CoordinationInterval  time.Duration
	CheckpointAfter       time.Duration
	DriftFailureThreshold int
	MaxLogEntries         int

	// RespectDependencies makes a unit wait for the units of the tasks it depends on.
	RespectDependencies bool
	// IntegrateOnFinish folds branches still mapped after the last unit
	// through an integration branch.
	IntegrateOnFinish bool
}

func (c Config) withDefaults() Config {
	if c.MaxAgents <= 0 {
		c.MaxAgents = DefaultMaxAgents
	}
	if c.CoordinationInterval <= 0 {
		c.CoordinationInterval = DefaultCoordinationInterval
	}
	if c.CheckpointAfter <= 0 {
		c.CheckpointAfter = DefaultCheckpointAfter
	}
	if c.DriftFailureThreshold <= 0 {
		c.DriftFailureThreshold = DefaultDriftFailureThreshold
	}
	if c.MaxLogEntries <= 0 {
		c.MaxLogEntries = DefaultMaxLogEntries
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = ".swarmer/workspaces"
	}
	return c
}

// RequiredConfig contains what a Coordinator cannot run without.
type RequiredConfig struct {
	// Executor does the work of every task.
	Executor subagent.Executor
}

// Option configures a Coordinator. Use With* functions to create Options.
type Option func(*coordinatorOptions)

type coordinatorOptions struct {
	config       Config
	isolation    Isolation
	registry     *registry.Registry
	audit        AuditSink
	publisher    EventPublisher
	metrics      *metrics.Metrics
	signals      SignalSource
	hooks        Hooks
	resolver     Resolver
	tunnelVision TunnelVisionFunc
	decomposer   *decompose.Decomposer
	logger       *logging.DebugLogger
	now          func() time.Time
}

// WithConfig sets the tuning knobs.
func WithConfig(c Config) Option {
	return func(o *coordinatorOptions) { o.config = c }
}

// WithIsolation gives every agent its own branch. Without it agents share
// whatever is checked out.
func WithIsolation(iso Isolation) Option {
	return func(o *coordinatorOptions) { o.isolation = iso }
}

// WithRegistry registers each launched swarm for outside observation.
func WithRegistry(r *registry.Registry) Option {
	return func(o *coordinatorOptions) { o.registry = r }
}

// WithAudit sets the audit sink for frames and journalled events.
func WithAudit(a AuditSink) Option {
	return func(o *coordinatorOptions) { o.audit = a }
}

// WithPublisher publishes coordination events as they are logged.
func WithPublisher(p EventPublisher) Option {
	return func(o *coordinatorOptions) { o.publisher = p }
}

// WithMetrics records swarm activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *coordinatorOptions) { o.metrics = m }
}

// WithSignals consumes operator signals and pending agent messages.
func WithSignals(s SignalSource) Option {
	return func(o *coordinatorOptions) { o.signals = s }
}

// WithHooks receives coordination directives.
func WithHooks(h Hooks) Option {
	return func(o *coordinatorOptions) { o.hooks = h }
}

// WithResolver settles outstanding conflicts during coordination.
func WithResolver(r Resolver) Option {
	return func(o *coordinatorOptions) { o.resolver = r }
}

// WithTunnelVision sets the predicate that flags an agent stuck on one approach.
func WithTunnelVision(fn TunnelVisionFunc) Option {
	return func(o *coordinatorOptions) { o.tunnelVision = fn }
}

// WithDecomposer replaces the default heuristic decomposer.
func WithDecomposer(d *decompose.Decomposer) Option {
	return func(o *coordinatorOptions) { o.decomposer = d }
}

// WithLogger sets the debug trace.
func WithLogger(l *logging.DebugLogger) Option {
	return func(o *coordinatorOptions) { o.logger = l }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *coordinatorOptions) {
		if now != nil {
			o.now = now
		}
	}
}
