package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/swarmer/internal/config"
	"github.com/ShayCichocki/swarmer/internal/natsbus"
)

var (
	watchNatsURL string
	watchPrefix  string
)

var watchCmd = &cobra.Command{
	Use:   "watch [swarm-id]",
	Short: "Follow coordination events over NATS",
	Long: `Subscribe to the events a swarm publishes to NATS and print them as they
arrive. Without a swarm id every swarm on the server is followed.

The swarm must be started with events.nats_url (or --nats-url) pointing at
the same server.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchNatsURL, "nats-url", "", "NATS server URL (default from config)")
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "", "Subject prefix (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := config.LoadDir(cwd)
	if err != nil {
		return err
	}
	url := cfg.Events.NatsURL
	if watchNatsURL != "" {
		url = watchNatsURL
	}
	if url == "" {
		return fmt.Errorf("no NATS server configured (set events.nats_url or pass --nats-url)")
	}
	prefix := cfg.Events.Prefix
	if watchPrefix != "" {
		prefix = watchPrefix
	}

	p, err := natsbus.Connect(url, prefix)
	if err != nil {
		return err
	}
	defer p.Close()

	target := "*"
	if len(args) == 1 {
		target = args[0]
	}
	out := cmd.OutOrStdout()
	unsubscribe, err := p.Subscribe(target, func(m natsbus.Message) {
		fmt.Fprintf(out, "%s ", color.New(color.FgCyan).Sprint(m.SwarmID))
		printEvent(out, m.Event)
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	printStatus("▸", fmt.Sprintf("Watching %s on %s (Ctrl+C to quit)", target, url), color.FgCyan)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
