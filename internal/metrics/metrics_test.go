package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.AgentStarted()
	m.AgentStarted()
	m.TaskFinished("developer", true, 2*time.Second)
	m.TaskFinished("developer", false, time.Second)
	m.AgentFinished()
	m.AddTokens("developer", 150)
	m.AddTokens("developer", 0)
	m.Unallocated(2)
	m.Directive("fresh_start")
	m.PhaseError("pathology")
	m.Cycle()
	m.SetPerformance("swarm-1", 0.5, 1.5, 0.01)

	if got := testutil.ToFloat64(m.tasks.WithLabelValues("developer", "success")); got != 1 {
		t.Errorf("success tasks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tasks.WithLabelValues("developer", "failure")); got != 1 {
		t.Errorf("failed tasks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.agentsActive); got != 1 {
		t.Errorf("agents active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tokens.WithLabelValues("developer")); got != 150 {
		t.Errorf("tokens = %v, want 150", got)
	}
	if got := testutil.ToFloat64(m.unallocated); got != 2 {
		t.Errorf("unallocated = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.directives.WithLabelValues("fresh_start")); got != 1 {
		t.Errorf("directives = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.phaseErrors.WithLabelValues("pathology")); got != 1 {
		t.Errorf("phase errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.efficiency.WithLabelValues("swarm-1")); got != 1.5 {
		t.Errorf("efficiency = %v, want 1.5", got)
	}
	if got := testutil.CollectAndCount(m.taskDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}

	m.Forget("swarm-1")
	if got := testutil.CollectAndCount(m.throughput); got != 0 {
		t.Errorf("throughput series after Forget = %d, want 0", got)
	}
}

func TestMustNewMetrics_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.Cycle()
	if got := testutil.ToFloat64(second.cycles); got != 1 {
		t.Errorf("second instance should share collectors, cycles = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.AgentStarted()
	m.TaskFinished("tester", true, time.Second)
	m.SetPerformance("x", 1, 1, 1)
	m.Forget("x")
}
