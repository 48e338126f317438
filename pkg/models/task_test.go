package models

import (
	"testing"
	"time"
)

func TestEffort_DurationAndBudget(t *testing.T) {
	tests := []struct {
		effort   Effort
		duration time.Duration
		budget   int
	}{
		{EffortLow, 60 * time.Second, 5},
		{EffortMedium, 300 * time.Second, 10},
		{EffortHigh, 900 * time.Second, 20},
	}
	for _, tt := range tests {
		t.Run(string(tt.effort), func(t *testing.T) {
			if got := tt.effort.Duration(); got != tt.duration {
				t.Errorf("Duration() = %v, want %v", got, tt.duration)
			}
			if got := tt.effort.IterationBudget(); got != tt.budget {
				t.Errorf("IterationBudget() = %d, want %d", got, tt.budget)
			}
		})
	}
}

func TestTaskKind_Valid(t *testing.T) {
	valid := []TaskKind{TaskKindArchitecture, TaskKindImplementation, TaskKindTesting, TaskKindDocumentation}
	for _, k := range valid {
		if !k.Valid() {
			t.Errorf("%q should be valid", k)
		}
	}
	if TaskKind("deployment").Valid() {
		t.Error("deployment should be invalid")
	}
}

func TestSwarmStatus_Terminal(t *testing.T) {
	tests := []struct {
		status SwarmStatus
		want   bool
	}{
		{SwarmStatusIdle, false},
		{SwarmStatusActive, false},
		{SwarmStatusStopping, false},
		{SwarmStatusCompleted, true},
		{SwarmStatusFailed, true},
		{SwarmStatusStopped, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
		if !tt.status.Valid() {
			t.Errorf("%s should be valid", tt.status)
		}
	}
}
