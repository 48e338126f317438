package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/swarmer/internal/config"
	"github.com/ShayCichocki/swarmer/internal/swarm"
	"github.com/ShayCichocki/swarmer/internal/tui"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

var (
	runAgents       string
	runAgentsFile   string
	runMetricsAddr  string
	runBackend      string
	runModel        string
	runNoGit        bool
	runRespectDeps  bool
	runIntegrate    bool
	runInterval     time.Duration
	runStopTimeout  time.Duration
	runNatsURL      string
	runEmbeddedNATS bool
	runTUI          bool
)

var runCmd = &cobra.Command{
	Use:   "run <description>",
	Short: "Launch a swarm on a project description",
	Long: `Decompose the description into tasks, allocate them to the requested
agents and run every assignment in parallel until all have finished.

Agents are requested by role. Repeat a role for several agents of it, or use
an agents file for per-agent conflict strategies and collaboration lists.

Each agent works on its own git branch when the project is a git repository.
Finished work is merged back to the baseline branch. Press Ctrl+C to stop
gracefully; in-flight tasks get --stop-timeout to finish.

Examples:
  swarmer run "Build a caching HTTP proxy system"
  swarmer run "Add a REST API" --agents architect,developer,developer,tester
  swarmer run "Refactor storage" --agents-file team.yaml --metrics-addr :9090
  swarmer run "Write docs" --backend api --model claude-sonnet-4-20250514
  swarmer run "Add search" --tui`,
	Args: cobra.ExactArgs(1),
	RunE: runSwarm,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runAgents, "agents", "", "Comma-separated agent roles (default architect,developer,tester)")
	f.StringVar(&runAgentsFile, "agents-file", "", "YAML file listing agent specs")
	f.StringVar(&runMetricsAddr, "metrics-addr", "", "Serve /metrics and /swarms on this address")
	f.StringVar(&runBackend, "backend", "", "Subagent backend: cli, api or bedrock")
	f.StringVar(&runModel, "model", "", "Model passed to the subagent backend")
	f.BoolVar(&runNoGit, "no-git", false, "Disable per-agent branch isolation")
	f.BoolVar(&runRespectDeps, "respect-deps", false, "Start a task only after the tasks it depends on finished")
	f.BoolVar(&runIntegrate, "integrate", false, "Fold remaining branches through an integration branch at the end")
	f.DurationVar(&runInterval, "interval", 0, "Coordination cycle interval")
	f.DurationVar(&runStopTimeout, "stop-timeout", 0, "How long a graceful stop waits for in-flight tasks")
	f.StringVar(&runNatsURL, "nats-url", "", "Publish coordination events to this NATS server")
	f.BoolVar(&runEmbeddedNATS, "embedded-nats", false, "Publish events through an in-process NATS server")
	f.BoolVar(&runTUI, "tui", false, "Show a live dashboard while the swarm runs")
}

// applyRunFlags overrides configuration with the flags that were set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = runMetricsAddr
	}
	if f.Changed("backend") {
		cfg.Subagent.Backend = runBackend
	}
	if f.Changed("model") {
		cfg.Subagent.Model = runModel
	}
	if runNoGit {
		cfg.Git.Enabled = false
	}
	if runRespectDeps {
		cfg.Swarm.RespectDependencies = true
	}
	if runIntegrate {
		cfg.Swarm.IntegrateOnFinish = true
	}
	if runInterval > 0 {
		cfg.Swarm.CoordinationInterval = runInterval
	}
	if runStopTimeout > 0 {
		cfg.Swarm.StopTimeout = runStopTimeout
	}
	if f.Changed("nats-url") {
		cfg.Events.NatsURL = runNatsURL
	}
	if runEmbeddedNATS {
		cfg.Events.Embedded = true
	}
}

func runSwarm(cmd *cobra.Command, args []string) error {
	description := args[0]

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	root, isGit := projectRoot(cwd)

	cfg, err := config.LoadDir(cwd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	specs, err := resolveAgents(runAgents, runAgentsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, root, isGit)
	if err != nil {
		return err
	}
	defer rt.close()

	coordinator, err := swarm.New(swarm.RequiredConfig{Executor: rt.executor},
		rt.coordinatorOptions(cfg.SwarmOptions(root))...)
	if err != nil {
		return err
	}

	// The swarm outlives the interrupt context so that a graceful stop can
	// still merge finished work.
	sw, err := coordinator.Launch(context.Background(), description, specs)
	if err != nil {
		return err
	}

	printStatus("▸", fmt.Sprintf("Swarm %s launched with %d agent(s) in %s", sw.ID(), len(specs), root), color.FgCyan)
	printStatus(" ", rt.describe(), color.FgHiBlack)
	for _, gap := range sw.Report().Unallocated {
		printStatus("⚠", fmt.Sprintf("Task %s has no eligible agent", gap), color.FgYellow)
	}

	if runTUI {
		stopped, err := tui.Run(sw)
		if err != nil {
			printStatus("⚠", err.Error(), color.FgYellow)
		} else if stopped {
			printStatus("■", "Dashboard closed, stopping gracefully (Ctrl+C to force)", color.FgYellow)
		}
	} else {
		select {
		case <-sw.Done():
		case <-sw.StopRequested():
			printStatus("■", "Stop requested by signal file", color.FgYellow)
		case <-ctx.Done():
			printStatus("■", "Interrupted, stopping gracefully (Ctrl+C again to force)", color.FgYellow)
		}
	}
	stop()

	report, stopErr := stopSwarm(sw, cfg.Swarm.StopTimeout)
	fmt.Println(renderReport(report, sw.Snapshot()))

	if stopErr != nil {
		printStatus("⚠", fmt.Sprintf("Shutdown reported errors: %v", stopErr), color.FgYellow)
	}
	if report.Status == models.SwarmStatusFailed {
		return fmt.Errorf("swarm %s failed", report.SwarmID)
	}
	return nil
}

// stopSwarm stops sw gracefully. A second interrupt cancels in-flight tasks
// instead of waiting out the timeout.
func stopSwarm(sw *swarm.Swarm, timeout time.Duration) (*swarm.Report, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	type result struct {
		report *swarm.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := sw.Stop(ctx)
		done <- result{r, err}
	}()

	select {
	case res := <-done:
		return res.report, res.err
	case <-force:
		printStatus("✗", "Cancelling in-flight tasks", color.FgRed)
		cancel()
		res := <-done
		return res.report, res.err
	}
}

// printStatus prints a status line with a coloured symbol.
func printStatus(symbol, message string, attr color.Attribute) {
	c := color.New(attr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
