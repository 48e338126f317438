package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/swarmer/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the user config file,
the project .swarmer.yaml and SWARMER_* environment variables.`,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "user:    %s\n", config.UserConfigPath())
		if p := config.ProjectConfigPath(cwd); p != "" {
			fmt.Fprintf(out, "project: %s\n", p)
		} else {
			fmt.Fprintf(out, "project: (none, create one with 'swarmer config init')\n")
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a project .swarmer.yaml with the defaults",
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing project config")
	configCmd.AddCommand(configShowCmd, configPathCmd, configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := config.LoadDir(cwd)
	if err != nil {
		return err
	}
	printConfig(cmd.OutOrStdout(), cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(cmd.OutOrStdout())
		color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "✗ %v\n", err)
	}
	return nil
}

func printConfig(w io.Writer, cfg *config.Config) {
	section := color.New(color.Bold)
	kv := func(k string, v any) { fmt.Fprintf(w, "  %-24s %v\n", k, v) }

	key, src := config.ResolveAPIKey(cfg)
	section.Fprintln(w, "anthropic")
	kv("api_key", fmt.Sprintf("%s (%s)", config.MaskAPIKey(key), src))

	section.Fprintln(w, "subagent")
	kv("backend", cfg.Subagent.Backend)
	kv("model", orDash(cfg.Subagent.Model))
	kv("command", cfg.Subagent.Command)
	if cfg.Subagent.Backend == "bedrock" {
		kv("aws_region", orDash(cfg.Subagent.AWSRegion))
		kv("aws_profile", orDash(cfg.Subagent.AWSProfile))
	}

	section.Fprintln(w, "swarm")
	kv("max_agents", cfg.Swarm.MaxAgents)
	kv("coordination_interval", cfg.Swarm.CoordinationInterval)
	kv("checkpoint_after", cfg.Swarm.CheckpointAfter)
	kv("drift_failure_threshold", cfg.Swarm.DriftFailureThreshold)
	kv("max_log_entries", cfg.Swarm.MaxLogEntries)
	kv("respect_dependencies", cfg.Swarm.RespectDependencies)
	kv("integrate_on_finish", cfg.Swarm.IntegrateOnFinish)
	kv("workspace_root", cfg.Swarm.WorkspaceRoot)
	kv("stop_timeout", cfg.Swarm.StopTimeout)

	section.Fprintln(w, "git")
	kv("enabled", cfg.Git.Enabled)
	kv("baseline_branch", orDash(cfg.Git.BaselineBranch))
	kv("branch_strategy", cfg.Git.BranchStrategy)
	kv("merge_strategy", cfg.Git.MergeStrategy)
	kv("remote", orDash(cfg.Git.Remote))
	kv("pull_requests", cfg.Git.PullRequests)
	kv("integration_test_command", orDash(cfg.Git.IntegrationTestCommand))

	section.Fprintln(w, "state")
	kv("driver", cfg.State.Driver)
	kv("retention", cfg.State.Retention)

	section.Fprintln(w, "events")
	kv("nats_url", orDash(cfg.Events.NatsURL))
	kv("prefix", cfg.Events.Prefix)
	kv("embedded", cfg.Events.Embedded)

	section.Fprintln(w, "metrics")
	kv("addr", orDash(cfg.Metrics.Addr))

	section.Fprintln(w, "debug")
	kv("enabled", cfg.Debug.Enabled)
	kv("log_path", cfg.Debug.LogPath)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	root, _ := projectRoot(cwd)
	path := filepath.Join(root, config.ProjectFile)
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.SaveTo(path, config.Default()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	printStatus("✓", "Wrote "+path, color.FgGreen)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
