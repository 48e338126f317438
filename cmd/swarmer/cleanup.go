package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/swarmer/internal/config"
	"github.com/ShayCichocki/swarmer/internal/git"
	"github.com/ShayCichocki/swarmer/internal/isolation"
	"github.com/ShayCichocki/swarmer/internal/signals"
	"github.com/ShayCichocki/swarmer/internal/state"
)

var (
	cleanupFrames     time.Duration
	cleanupWorkspaces bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove leftovers from earlier runs",
	Long: `Delete swarm branches left behind by interrupted runs and clear stale
signal files.

Optionally purge old audit records and the per-agent workspace directories.

Examples:
  swarmer cleanup
  swarmer cleanup --frames 720h --workspaces`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupFrames, "frames", 0, "Purge audit records older than this")
	cleanupCmd.Flags().BoolVar(&cleanupWorkspaces, "workspaces", false, "Remove per-agent workspace directories")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	root, isGit := projectRoot(cwd)
	cfg, err := config.LoadDir(cwd)
	if err != nil {
		return err
	}

	if isGit {
		mgr, err := isolation.New(git.NewRunner(root), cfg.IsolationOptions())
		if err != nil {
			printStatus("⚠", fmt.Sprintf("Skipping branches: %v", err), color.FgYellow)
		} else {
			deleted, err := mgr.PruneStale(context.Background())
			mgr.Stop()
			if err != nil {
				return fmt.Errorf("prune branches: %w", err)
			}
			for _, b := range deleted {
				printStatus("-", "Deleted branch "+b, color.FgHiBlack)
			}
			printStatus("✓", fmt.Sprintf("Pruned %d stale branch(es)", len(deleted)), color.FgGreen)
		}
	}

	if w, err := signals.New(stateDir(root)); err == nil {
		w.ClearSignals()
		w.Close()
		printStatus("✓", "Cleared signal files", color.FgGreen)
	}

	if cleanupFrames > 0 {
		db, err := state.OpenProject(cfg.State.Driver, root)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		n, err := db.PurgeFrames(cleanupFrames)
		db.Close()
		if err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("Purged %d audit record(s)", n), color.FgGreen)
	}

	if cleanupWorkspaces {
		dir := cfg.Swarm.WorkspaceRoot
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove workspaces: %w", err)
		}
		printStatus("✓", "Removed "+dir, color.FgGreen)
	}
	return nil
}
