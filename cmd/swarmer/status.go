package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/swarmer/internal/config"
	"github.com/ShayCichocki/swarmer/internal/state"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

var (
	statusLimit  int
	statusEvents int
)

var statusCmd = &cobra.Command{
	Use:   "status [swarm-id]",
	Short: "Show recent swarm runs",
	Long: `List recent swarm runs recorded in the project's audit database.

With a swarm id (or frame id), show that run and the tail of its
coordination log.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Number of runs to list")
	statusCmd.Flags().IntVar(&statusEvents, "events", 20, "Coordination log entries to show for one run")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	root, _ := projectRoot(cwd)

	if _, err := os.Stat(state.ProjectDBPath(root)); os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "No swarm has run here yet. Run 'swarmer run <description>' to start.")
		return nil
	}

	cfg, err := config.LoadDir(cwd)
	if err != nil {
		return err
	}
	db, err := state.OpenProject(cfg.State.Driver, root)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		return showFrame(out, db, args[0])
	}

	frames, err := db.ListFrames(statusLimit)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		fmt.Fprintln(out, "No recorded runs.")
		return nil
	}
	for _, f := range frames {
		printFrameLine(out, f)
	}
	return nil
}

func showFrame(out io.Writer, db *state.DB, id string) error {
	frame, err := findFrame(db, id)
	if err != nil {
		return err
	}
	printFrameLine(out, *frame)
	if frame.Summary != "" {
		fmt.Fprintf(out, "  %s\n", frame.Summary)
	}

	events, err := db.ListEvents(frame.SwarmID)
	if err != nil {
		return err
	}
	if len(events) > statusEvents && statusEvents > 0 {
		fmt.Fprintf(out, "  ... %d earlier event(s)\n", len(events)-statusEvents)
		events = events[len(events)-statusEvents:]
	}
	for _, ev := range events {
		printEvent(out, ev)
	}
	return nil
}

// findFrame accepts a frame id or a swarm id.
func findFrame(db *state.DB, id string) (*state.Frame, error) {
	f, err := db.GetFrame(id)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	frames, err := db.ListFrames(0)
	if err != nil {
		return nil, err
	}
	for i := range frames {
		if frames[i].SwarmID == id {
			return &frames[i], nil
		}
	}
	return nil, fmt.Errorf("no run with id %s", id)
}

func printFrameLine(out io.Writer, f state.Frame) {
	elapsed := "running"
	if f.EndedAt != nil {
		elapsed = formatDuration(f.EndedAt.Sub(f.StartedAt))
	}
	fmt.Fprintf(out, "%s  %-12s %s  %d/%d done, %d failed, %d unallocated  %s  %s\n",
		f.StartedAt.Local().Format("2006-01-02 15:04"),
		f.SwarmID,
		statusColor(f.Status).Sprintf("%-9s", f.Status),
		f.Completed, f.Tasks, f.Failed, f.Unallocated,
		elapsed,
		truncateText(f.Description, 50))
}

func printEvent(out io.Writer, ev models.CoordinationEvent) {
	c := color.New(color.FgHiBlack)
	switch ev.Type {
	case models.EventTaskCompleted, models.EventConflictResolved, models.EventIntegrated:
		c = color.New(color.FgGreen)
	case models.EventTaskFailed, models.EventPhaseError:
		c = color.New(color.FgRed)
	case models.EventFreshStart, models.EventAlternativeApproach, models.EventCheckpointRequest,
		models.EventPlannerWakeup, models.EventVCSDegraded, models.EventTaskUnallocated:
		c = color.New(color.FgYellow)
	}
	who := ev.AgentID
	if who == "" {
		who = "-"
	}
	fmt.Fprintf(out, "  #%-4d %s %s %-14s %s\n",
		ev.Seq, ev.Time.Local().Format(time.TimeOnly), c.Sprintf("%-20s", ev.Type), who, truncateText(ev.Message, 80))
}

func statusColor(s models.SwarmStatus) *color.Color {
	switch s {
	case models.SwarmStatusCompleted:
		return color.New(color.FgGreen)
	case models.SwarmStatusFailed:
		return color.New(color.FgRed)
	case models.SwarmStatusActive:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgYellow)
	}
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
