package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/swarmer/internal/config"
	"github.com/ShayCichocki/swarmer/internal/decompose"
	"github.com/ShayCichocki/swarmer/internal/subagent"
	"github.com/ShayCichocki/swarmer/internal/swarm"
)

var (
	planAgents     string
	planAgentsFile string
	planYAML       bool
)

var planCmd = &cobra.Command{
	Use:   "plan <description>",
	Short: "Show the task breakdown and allocation without running anything",
	Long: `Decompose the description and allocate the tasks to the requested agents,
then print the result. Nothing is executed and no directories are created.

Examples:
  swarmer plan "Build a caching HTTP proxy system"
  swarmer plan "Add a REST API" --agents architect,developer --yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planAgents, "agents", "", "Comma-separated agent roles (default architect,developer,tester)")
	planCmd.Flags().StringVar(&planAgentsFile, "agents-file", "", "YAML file listing agent specs")
	planCmd.Flags().BoolVar(&planYAML, "yaml", false, "Print the plan as YAML")
}

// noExecutor satisfies the coordinator for planning only.
var noExecutor = subagent.ExecutorFunc(func(context.Context, subagent.Request) (*subagent.Response, error) {
	return nil, errors.New("plan does not execute tasks")
})

func runPlan(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := config.LoadDir(cwd)
	if err != nil {
		return err
	}
	specs, err := resolveAgents(planAgents, planAgentsFile)
	if err != nil {
		return err
	}

	root, _ := projectRoot(cwd)
	c, err := swarm.New(swarm.RequiredConfig{Executor: noExecutor}, swarm.WithConfig(cfg.SwarmOptions(root)))
	if err != nil {
		return err
	}
	plan, err := c.Plan(args[0], specs)
	if err != nil {
		return err
	}

	if planYAML {
		return writePlanYAML(cmd.OutOrStdout(), args[0], plan)
	}
	printPlan(cmd.OutOrStdout(), plan)
	return nil
}

// planDoc is the YAML form of a plan.
type planDoc struct {
	Description string         `yaml:"description"`
	Agents      []planAgent    `yaml:"agents"`
	Tasks       []planTask     `yaml:"tasks"`
	Unallocated []planGap      `yaml:"unallocated,omitempty"`
	Cyclic      []string       `yaml:"cyclic,omitempty"`
	Order       []planAssigned `yaml:"order"`
	Quality     planQuality    `yaml:"quality"`
}

type planQuality struct {
	Confidence  float64  `yaml:"confidence"`
	Parallelism int      `yaml:"parallelism"`
	MaxDepth    int      `yaml:"max_depth"`
	Warnings    []string `yaml:"warnings,omitempty"`
}

type planAgent struct {
	ID                 string   `yaml:"id"`
	Role               string   `yaml:"role"`
	Capabilities       []string `yaml:"capabilities"`
	ConflictResolution string   `yaml:"conflict_resolution"`
}

type planTask struct {
	ID        string   `yaml:"id"`
	Kind      string   `yaml:"kind"`
	Title     string   `yaml:"title"`
	Priority  int      `yaml:"priority"`
	Effort    string   `yaml:"effort"`
	Requires  []string `yaml:"requires"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

type planAssigned struct {
	Task          string   `yaml:"task"`
	Agent         string   `yaml:"agent"`
	Collaborators []string `yaml:"collaborators,omitempty"`
	Reviewers     []string `yaml:"reviewers,omitempty"`
}

type planGap struct {
	Task     string   `yaml:"task"`
	Requires []string `yaml:"requires"`
}

func writePlanYAML(w io.Writer, description string, plan *swarm.Plan) error {
	doc := planDoc{Description: description, Cyclic: plan.Allocation.Cyclic}
	for _, a := range plan.Agents {
		doc.Agents = append(doc.Agents, planAgent{
			ID:                 a.ID,
			Role:               string(a.Role),
			Capabilities:       a.Capabilities,
			ConflictResolution: string(a.Preferences.ConflictResolution),
		})
	}
	for _, t := range plan.Tasks {
		doc.Tasks = append(doc.Tasks, planTask{
			ID:        t.ID,
			Kind:      string(t.Kind),
			Title:     t.Title,
			Priority:  t.Priority,
			Effort:    string(t.Effort),
			Requires:  t.RequiredRoles,
			DependsOn: t.DependsOn,
		})
	}
	for _, id := range plan.Allocation.Order {
		as := plan.Allocation.Assignments[id]
		doc.Order = append(doc.Order, planAssigned{
			Task:          id,
			Agent:         as.AgentID,
			Collaborators: as.Collaborators,
			Reviewers:     as.Reviewers,
		})
	}
	for _, g := range plan.Allocation.Gaps {
		doc.Unallocated = append(doc.Unallocated, planGap{Task: g.TaskID, Requires: g.RequiredRoles})
	}

	q := decompose.ScoreDecomposition(plan.Tasks)
	doc.Quality = planQuality{
		Confidence:  q.OverallConfidence,
		Parallelism: q.EstimatedParallelism,
		MaxDepth:    q.MaxDepth,
		Warnings:    q.Warnings,
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(doc)
}

func printPlan(w io.Writer, plan *swarm.Plan) {
	bold := color.New(color.Bold)
	titles := make(map[string]string, len(plan.Tasks))
	for _, t := range plan.Tasks {
		titles[t.ID] = t.Title
	}
	roles := make(map[string]string, len(plan.Agents))
	for _, a := range plan.Agents {
		roles[a.ID] = string(a.Role)
	}

	bold.Fprintf(w, "Tasks (%d)\n", len(plan.Tasks))
	for _, t := range plan.Tasks {
		fmt.Fprintf(w, "  %-14s %-15s p%d %-6s %s\n", t.ID, t.Kind, t.Priority, t.Effort, t.Title)
		if len(t.DependsOn) > 0 {
			fmt.Fprintf(w, "  %14s depends on %s\n", "", strings.Join(t.DependsOn, ", "))
		}
	}

	fmt.Fprintln(w)
	bold.Fprintf(w, "Assignments (%d)\n", len(plan.Allocation.Order))
	for i, id := range plan.Allocation.Order {
		as := plan.Allocation.Assignments[id]
		fmt.Fprintf(w, "  %d. %s -> %s (%s)\n", i+1, titles[id], roles[as.AgentID], as.AgentID)
	}

	if len(plan.Allocation.Gaps) > 0 {
		fmt.Fprintln(w)
		warn := color.New(color.FgYellow)
		for _, g := range plan.Allocation.Gaps {
			warn.Fprintf(w, "⚠ %s: no agent with %s\n", titles[g.TaskID], strings.Join(g.RequiredRoles, " or "))
		}
	}
	if len(plan.Allocation.Cyclic) > 0 {
		color.New(color.FgRed).Fprintf(w, "✗ dependency cycle among %s\n", strings.Join(plan.Allocation.Cyclic, ", "))
	}

	printQuality(w, decompose.ScoreDecomposition(plan.Tasks), titles)
}

func printQuality(w io.Writer, q decompose.DecompositionQuality, titles map[string]string) {
	fmt.Fprintln(w)
	color.New(color.Bold).Fprintf(w, "Quality ")
	fmt.Fprintf(w, "confidence %.0f%%, up to %d task(s) in parallel, chain depth %d\n",
		q.OverallConfidence*100, q.EstimatedParallelism, q.MaxDepth)
	for _, ts := range q.TaskScores {
		for _, issue := range ts.Issues {
			if issue.Severity == decompose.SeverityInfo {
				continue
			}
			c := color.New(color.FgYellow)
			if issue.Severity == decompose.SeverityCritical {
				c = color.New(color.FgRed)
			}
			c.Fprintf(w, "  %s: %s", issue.Severity, issue.Message)
			fmt.Fprintf(w, " (%s)\n", titles[ts.TaskID])
		}
	}
	for _, warning := range q.Warnings {
		color.New(color.FgYellow).Fprintf(w, "⚠ %s\n", warning)
	}
}
