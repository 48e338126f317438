package main

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/swarmer/internal/swarm"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// defaultAgents is the team used when neither --agents nor --agents-file is given.
var defaultAgents = []models.Role{models.RoleArchitect, models.RoleDeveloper, models.RoleTester}

// agentsFile is the YAML layout of --agents-file:
//
//	agents:
//	  - role: architect
//	  - role: developer
//	    conflict_resolution: expertise
//	    collaboration: [tester]
type agentsFile struct {
	Agents []swarm.AgentSpec `yaml:"agents"`
}

// parseAgentList turns "architect,developer,developer" into specs. Repeating
// a role asks for several agents of it.
func parseAgentList(list string) ([]swarm.AgentSpec, error) {
	var specs []swarm.AgentSpec
	for _, part := range strings.Split(list, ",") {
		role := models.Role(strings.ToLower(strings.TrimSpace(part)))
		if role == "" {
			continue
		}
		if !role.Valid() {
			return nil, fmt.Errorf("unknown role %q (want one of %s)", role, roleNames())
		}
		specs = append(specs, swarm.AgentSpec{Role: role})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no agents requested")
	}
	return specs, nil
}

// loadAgentsFile reads agent specs from YAML. Both a top-level "agents" key
// and a bare list are accepted.
func loadAgentsFile(path string) ([]swarm.AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}

	var wrapped agentsFile
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Agents) > 0 {
		return wrapped.Agents, nil
	}
	var bare []swarm.AgentSpec
	if err := yaml.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("parse agents file %s: %w", path, err)
	}
	if len(bare) == 0 {
		return nil, fmt.Errorf("agents file %s lists no agents", path)
	}
	return bare, nil
}

// resolveAgents applies --agents-file, then --agents, then the default team.
func resolveAgents(list, file string) ([]swarm.AgentSpec, error) {
	switch {
	case file != "":
		return loadAgentsFile(file)
	case list != "":
		return parseAgentList(list)
	default:
		specs := make([]swarm.AgentSpec, 0, len(defaultAgents))
		for _, r := range defaultAgents {
			specs = append(specs, swarm.AgentSpec{Role: r})
		}
		return specs, nil
	}
}

func roleNames() string {
	var names []string
	for _, r := range models.AllRoles() {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}
