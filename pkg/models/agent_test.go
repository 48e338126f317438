package models

import (
	"testing"
)

func TestRole_Valid(t *testing.T) {
	for _, r := range AllRoles() {
		if !r.Valid() {
			t.Errorf("role %q should be valid", r)
		}
	}
	for _, r := range []Role{"", "manager", "Architect"} {
		if r.Valid() {
			t.Errorf("role %q should be invalid", r)
		}
	}
	if len(AllRoles()) != 8 {
		t.Errorf("expected 8 roles, got %d", len(AllRoles()))
	}
}

func TestAgentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from AgentStatus
		to   AgentStatus
		want bool
	}{
		{AgentStatusInitializing, AgentStatusIdle, true},
		{AgentStatusInitializing, AgentStatusActive, false},
		{AgentStatusIdle, AgentStatusActive, true},
		{AgentStatusIdle, AgentStatusError, false},
		{AgentStatusActive, AgentStatusIdle, true},
		{AgentStatusActive, AgentStatusError, true},
		{AgentStatusError, AgentStatusActive, true},
		{AgentStatusError, AgentStatusStopped, true},
		{AgentStatusActive, AgentStatusStopped, true},
		{AgentStatusStopped, AgentStatusIdle, false},
		{AgentStatusStopped, AgentStatusStopped, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAgent_Matches(t *testing.T) {
	a := &Agent{Role: RoleTester, Capabilities: []string{"qa_engineer", "test_automation"}}

	tests := []struct {
		name string
		tags []string
		want bool
	}{
		{"role tag", []string{"tester"}, true},
		{"capability tag", []string{"developer", "qa_engineer"}, true},
		{"no overlap", []string{"architect", "system_designer"}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Matches(tt.tags); got != tt.want {
				t.Errorf("Matches(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestAgent_CloneIsDeep(t *testing.T) {
	a := &Agent{ID: "a1", Capabilities: []string{"x"}}
	c := a.Clone()
	c.Capabilities[0] = "y"
	if a.Capabilities[0] != "x" {
		t.Error("Clone shared the capability slice")
	}
}

func TestConflictStrategy_Valid(t *testing.T) {
	for _, s := range []ConflictStrategy{ConflictDemocratic, ConflictHierarchical, ConflictExpertise} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if ConflictStrategy("majority").Valid() {
		t.Error("unknown strategy should be invalid")
	}
}
