// Package metrics exposes Prometheus collectors for swarm activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "swarmer"

// Metrics holds the swarm collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	tasks        *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	tokens       *prometheus.CounterVec
	agentsActive prometheus.Gauge
	unallocated  prometheus.Counter
	directives   *prometheus.CounterVec
	phaseErrors  *prometheus.CounterVec
	cycles       prometheus.Counter
	throughput   *prometheus.GaugeVec
	efficiency   *prometheus.GaugeVec
	overhead     *prometheus.GaugeVec
}

// MustNewMetrics registers the collectors with reg and panics on conflict.
// Collectors already registered with an identical description are reused.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks finished by an agent, by role and outcome.",
		}, []string{"role", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time of one execution unit.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}, []string{"role"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by the subagent executor.",
		}, []string{"role"}),
		agentsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_active",
			Help:      "Agents currently executing a task.",
		}),
		unallocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_unallocated_total",
			Help:      "Tasks no agent was eligible for.",
		}),
		directives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "directives_total",
			Help:      "Advisory directives issued by the coordination loop.",
		}, []string{"kind"}),
		phaseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "phase_errors_total",
			Help:      "Coordination phases that returned an error or panicked.",
		}, []string{"phase"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordination",
			Name:      "cycles_total",
			Help:      "Completed coordination cycles.",
		}),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_tasks_per_second",
			Help:      "Completed tasks per second since the swarm started.",
		}, []string{"swarm"}),
		efficiency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "efficiency_tasks_per_agent",
			Help:      "Completed tasks per active agent.",
		}, []string{"swarm"}),
		overhead: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coordination_overhead_ratio",
			Help:      "Share of elapsed time spent in coordination cycles.",
		}, []string{"swarm"}),
	}

	m.tasks = register(reg, m.tasks)
	m.taskDuration = register(reg, m.taskDuration)
	m.tokens = register(reg, m.tokens)
	m.agentsActive = register(reg, m.agentsActive)
	m.unallocated = register(reg, m.unallocated)
	m.directives = register(reg, m.directives)
	m.phaseErrors = register(reg, m.phaseErrors)
	m.cycles = register(reg, m.cycles)
	m.throughput = register(reg, m.throughput)
	m.efficiency = register(reg, m.efficiency)
	m.overhead = register(reg, m.overhead)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// TaskFinished records one execution unit.
func (m *Metrics) TaskFinished(role string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.tasks.WithLabelValues(role, outcome).Inc()
	m.taskDuration.WithLabelValues(role).Observe(d.Seconds())
}

// AddTokens adds reported token usage.
func (m *Metrics) AddTokens(role string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.tokens.WithLabelValues(role).Add(float64(n))
}

// AgentStarted and AgentFinished track concurrently active agents.
func (m *Metrics) AgentStarted() {
	if m == nil {
		return
	}
	m.agentsActive.Inc()
}

// AgentFinished decrements the active agent gauge.
func (m *Metrics) AgentFinished() {
	if m == nil {
		return
	}
	m.agentsActive.Dec()
}

// Unallocated counts tasks with no eligible agent.
func (m *Metrics) Unallocated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unallocated.Add(float64(n))
}

// Directive counts an advisory directive of kind.
func (m *Metrics) Directive(kind string) {
	if m == nil {
		return
	}
	m.directives.WithLabelValues(kind).Inc()
}

// PhaseError counts a failed coordination phase.
func (m *Metrics) PhaseError(phase string) {
	if m == nil {
		return
	}
	m.phaseErrors.WithLabelValues(phase).Inc()
}

// Cycle counts a completed coordination cycle.
func (m *Metrics) Cycle() {
	if m == nil {
		return
	}
	m.cycles.Inc()
}

// SetPerformance publishes the swarm performance gauges.
func (m *Metrics) SetPerformance(swarm string, throughput, efficiency, overhead float64) {
	if m == nil {
		return
	}
	m.throughput.WithLabelValues(swarm).Set(throughput)
	m.efficiency.WithLabelValues(swarm).Set(efficiency)
	m.overhead.WithLabelValues(swarm).Set(overhead)
}

// Forget removes per-swarm series once a swarm is unregistered.
func (m *Metrics) Forget(swarm string) {
	if m == nil {
		return
	}
	m.throughput.DeleteLabelValues(swarm)
	m.efficiency.DeleteLabelValues(swarm)
	m.overhead.DeleteLabelValues(swarm)
}
