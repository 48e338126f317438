package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/swarmer/internal/signals"
)

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Steer a running swarm",
	Long: `Send a signal to the swarm running in this project. Signals are files
under .swarmer/signals that the running swarm picks up on its next cycle.`,
}

var signalStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Request a graceful stop",
	Args:  cobra.NoArgs,
	RunE: withWatcher(func(w *signals.Watcher, args []string) (string, error) {
		return "Stop requested", w.SendStop()
	}),
}

var signalDriftCmd = &cobra.Command{
	Use:   "drift <agent-id>",
	Short: "Mark an agent as drifting so it gets a fresh start",
	Args:  cobra.ExactArgs(1),
	RunE: withWatcher(func(w *signals.Watcher, args []string) (string, error) {
		return "Drift flagged for " + args[0], w.SendDrift(args[0])
	}),
}

var signalWakeupCmd = &cobra.Command{
	Use:   "wakeup <agent-id>",
	Short: "Wake an agent up with a planning prompt",
	Args:  cobra.ExactArgs(1),
	RunE: withWatcher(func(w *signals.Watcher, args []string) (string, error) {
		return "Wake-up queued for " + args[0], w.SendWakeup(args[0])
	}),
}

var signalMessageCmd = &cobra.Command{
	Use:   "message <agent-id> <text>",
	Short: "Leave a message for an agent's next task",
	Args:  cobra.MinimumNArgs(2),
	RunE: withWatcher(func(w *signals.Watcher, args []string) (string, error) {
		return "Message left for " + args[0], w.WriteAgentMessage(args[0], strings.Join(args[1:], " "))
	}),
}

func init() {
	signalCmd.AddCommand(signalStopCmd, signalDriftCmd, signalWakeupCmd, signalMessageCmd)
}

// withWatcher opens the project's signal directory for the duration of fn.
func withWatcher(fn func(w *signals.Watcher, args []string) (string, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		root, _ := projectRoot(cwd)
		w, err := signals.New(stateDir(root))
		if err != nil {
			return err
		}
		defer w.Close()

		msg, err := fn(w, args)
		if err != nil {
			return err
		}
		printStatus("✓", msg, color.FgGreen)
		return nil
	}
}
