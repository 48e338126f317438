package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ShayCichocki/swarmer/internal/config"
	"github.com/ShayCichocki/swarmer/internal/exec"
	"github.com/ShayCichocki/swarmer/internal/git"
	"github.com/ShayCichocki/swarmer/internal/isolation"
	"github.com/ShayCichocki/swarmer/internal/logging"
	"github.com/ShayCichocki/swarmer/internal/metrics"
	"github.com/ShayCichocki/swarmer/internal/natsbus"
	"github.com/ShayCichocki/swarmer/internal/registry"
	"github.com/ShayCichocki/swarmer/internal/server"
	"github.com/ShayCichocki/swarmer/internal/signals"
	"github.com/ShayCichocki/swarmer/internal/state"
	"github.com/ShayCichocki/swarmer/internal/subagent"
	"github.com/ShayCichocki/swarmer/internal/swarm"
)

// runtime holds everything a swarm run needs besides the coordinator.
// Optional parts are nil when disabled or unavailable.
type runtime struct {
	root  string
	debug *logging.DebugLogger

	executor  subagent.Executor
	db        *state.DB
	signals   *signals.Watcher
	iso       *isolation.Manager
	publisher *natsbus.Publisher
	embedded  *natsbus.Embedded
	promReg   *prometheus.Registry
	metrics   *metrics.Metrics
	registry  *registry.Registry
	server    *server.Server

	closers []func()
}

// buildRuntime wires the configured collaborators. Only the executor is
// required; every other part degrades to a warning.
func buildRuntime(ctx context.Context, cfg *config.Config, root string, isGit bool) (*runtime, error) {
	rt := &runtime{root: root, debug: logging.Nop(), registry: registry.New()}

	if cfg.Debug.Enabled || debugFlag {
		path := cfg.Debug.LogPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if l, err := logging.NewDebugLogger(path); err != nil {
			log.Printf("[swarmer] warning: debug log disabled: %v", err)
		} else {
			rt.debug = l
			rt.closers = append(rt.closers, func() { _ = l.Close() })
		}
	}

	runner := exec.NewRunner()
	opts, err := cfg.SubagentOptions()
	if err != nil {
		return nil, err
	}
	if opts.Backend == subagent.BackendCLI {
		if err := CheckClaudeCLI(opts.Command); err != nil {
			return nil, err
		}
	}
	rt.executor, err = subagent.New(ctx, opts, runner, rt.debug)
	if err != nil {
		return nil, err
	}

	if db, err := state.OpenProject(cfg.State.Driver, root); err != nil {
		log.Printf("[swarmer] warning: audit database unavailable: %v", err)
	} else {
		rt.db = db
		rt.closers = append(rt.closers, func() { _ = db.Close() })
		if cfg.State.Retention > 0 {
			if n, err := db.PurgeFrames(cfg.State.Retention); err != nil {
				log.Printf("[swarmer] warning: purge frames: %v", err)
			} else if n > 0 {
				rt.debug.Log("purged %d frame(s) older than %s", n, cfg.State.Retention)
			}
		}
	}

	if w, err := signals.New(stateDir(root)); err != nil {
		log.Printf("[swarmer] warning: operator signals unavailable: %v", err)
	} else {
		w.ClearSignals()
		rt.signals = w
		rt.closers = append(rt.closers, w.Close)
	}

	if cfg.Git.Enabled && isGit {
		var isoOpts []isolation.Option
		isoOpts = append(isoOpts,
			isolation.WithDebugLogger(rt.debug),
			isolation.WithIntegrationTester(isolation.NewShellTester(runner, cfg.Git.IntegrationTestCommand)),
		)
		if cfg.Git.PullRequests {
			isoOpts = append(isoOpts, isolation.WithPullRequests(isolation.NewGHPullRequests(runner, root)))
		}
		mgr, err := isolation.New(git.NewRunner(root), cfg.IsolationOptions(), isoOpts...)
		if err != nil {
			log.Printf("[swarmer] warning: branch isolation disabled: %v", err)
		} else {
			rt.iso = mgr
			rt.closers = append(rt.closers, mgr.Stop)
		}
	}

	if err := rt.connectEvents(cfg.Events); err != nil {
		log.Printf("[swarmer] warning: event publishing disabled: %v", err)
	}

	rt.promReg = prometheus.NewRegistry()
	rt.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.MustNewMetrics(rt.promReg)

	if cfg.Metrics.Addr != "" {
		rt.server = server.New(rt.registry, rt.promReg)
		if _, err := rt.server.Start(cfg.Metrics.Addr); err != nil {
			log.Printf("[swarmer] warning: observation server not started: %v", err)
			rt.server = nil
		} else {
			srv := rt.server
			rt.closers = append(rt.closers, func() {
				_ = srv.Shutdown(context.Background())
			})
		}
	}

	return rt, nil
}

func (rt *runtime) connectEvents(cfg config.EventsConfig) error {
	url := cfg.NatsURL
	if url == "" && cfg.Embedded {
		e, err := natsbus.StartEmbedded(cfg.EmbeddedPort)
		if err != nil {
			return err
		}
		rt.embedded = e
		rt.closers = append(rt.closers, e.Close)
		url = e.ClientURL()
		log.Printf("[swarmer] embedded NATS server at %s", url)
	}
	if url == "" {
		return nil
	}
	p, err := natsbus.Connect(url, cfg.Prefix)
	if err != nil {
		return err
	}
	rt.publisher = p
	rt.closers = append(rt.closers, p.Close)
	return nil
}

// coordinatorOptions turns the runtime into coordinator options.
func (rt *runtime) coordinatorOptions(cfg swarm.Config) []swarm.Option {
	opts := []swarm.Option{
		swarm.WithConfig(cfg),
		swarm.WithRegistry(rt.registry),
		swarm.WithMetrics(rt.metrics),
		swarm.WithLogger(rt.debug),
	}
	if rt.iso != nil {
		opts = append(opts, swarm.WithIsolation(rt.iso))
	}
	if rt.db != nil {
		opts = append(opts, swarm.WithAudit(rt.db))
	}
	if rt.publisher != nil {
		opts = append(opts, swarm.WithPublisher(rt.publisher))
	}
	if rt.signals != nil {
		opts = append(opts,
			swarm.WithSignals(rt.signals),
			swarm.WithHooks(swarm.NewMessageHooks(rt.signals)),
		)
	}
	return opts
}

// close releases everything in reverse order of creation.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (rt *runtime) describe() string {
	on := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	return fmt.Sprintf("isolation %s, audit %s, events %s, signals %s",
		on(rt.iso != nil), on(rt.db != nil), on(rt.publisher != nil), on(rt.signals != nil))
}
