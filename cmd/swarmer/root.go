package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

var debugFlag bool

// CheckClaudeCLI verifies that the CLI used by the cli backend is on PATH.
func CheckClaudeCLI(command string) error {
	if command == "" {
		command = "claude"
	}
	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"The cli subagent backend runs every task through the Claude Code CLI.\n\n"+
			"Install it with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n\n"+
			"or select another backend:\n"+
			"  swarmer run --backend api ...", command)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "swarmer",
	Short: "Multi-agent swarm coordinator",
	Long: `Swarmer turns a project description into tasks, hands them to a team of
role-specialised agents and runs them in parallel, each on its own git branch.

A coordination loop watches the agents while they work: it restarts agents
that keep failing, asks long-running agents to checkpoint, drains replanning
requests and merges finished work back to the baseline branch.

Core commands:
  swarmer plan "<description>"   decompose and allocate without running
  swarmer run "<description>"    launch a swarm
  swarmer status                 past runs from the audit database
  swarmer signal                 steer a running swarm`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Write a verbose trace to .swarmer/logs/swarm-debug.log")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(signalCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

// projectRoot returns the enclosing git repository, or dir itself when
// dir is not inside one.
func projectRoot(dir string) (root string, isGit bool) {
	if r, err := findGitRoot(dir); err == nil {
		return r, true
	}
	return dir, false
}

func findGitRoot(startDir string) (string, error) {
	dir := startDir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a git repository")
		}
		dir = parent
	}
}

func stateDir(root string) string {
	return filepath.Join(root, ".swarmer")
}
