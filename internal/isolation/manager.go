// Package isolation gives each agent its own branch of one shared working tree.
//
// A checkout is process-wide state, so every git operation runs on a single
// goroutine owned by the Manager. Callers may invoke methods concurrently;
// requests are executed one at a time in arrival order.
package isolation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/swarmer/internal/git"
	"github.com/ShayCichocki/swarmer/internal/logging"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// MergeStrategy selects how agent work lands on the baseline.
type MergeStrategy string

const (
	// MergeSquash folds the branch into one new baseline commit.
	MergeSquash MergeStrategy = "squash"
	// MergeRebase replays the branch onto the baseline and fast-forwards.
	MergeRebase MergeStrategy = "rebase"
	// MergeCommit keeps a merge commit.
	MergeCommit MergeStrategy = "merge"
)

// Valid returns true if the strategy is a known value.
func (s MergeStrategy) Valid() bool {
	switch s {
	case MergeSquash, MergeRebase, MergeCommit:
		return true
	default:
		return false
	}
}

// Config controls branch naming and merging.
type Config struct {
	// BaselineBranch receives all agent work. Empty means the branch checked
	// out when the manager starts.
	BaselineBranch string
	BranchStrategy BranchStrategy
	MergeStrategy  MergeStrategy
	// Remote is pushed to after each commit when set and configured in the repo.
	Remote string
	// PullRequests opens a pull request per agent branch instead of merging locally.
	PullRequests bool
}

// Owner identifies the agent an operation acts for.
type Owner struct {
	AgentID string
	Role    models.Role
}

// OwnerOf returns the Owner for agent.
func OwnerOf(agent *models.Agent) Owner {
	return Owner{AgentID: agent.ID, Role: agent.Role}
}

// PullRequestCreator opens pull requests on the source host.
type PullRequestCreator interface {
	CreatePullRequest(ctx context.Context, title, body, base, head string) (string, error)
}

// IntegrationTester gates the final merge of an integration branch.
type IntegrationTester interface {
	Run(ctx context.Context, workDir string) (passed bool, output string, err error)
}

type command struct {
	fn   func()
	done chan struct{}
}

// Manager owns the agent -> branch mapping and serialises all git access.
type Manager struct {
	git    git.Runner
	cfg    Config
	prs    PullRequestCreator
	tester IntegrationTester
	now    func() time.Time
	debug  *logging.DebugLogger

	cmds     chan command
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// Owned by the actor goroutine.
	baseline string
	branches map[string]string
	owners   map[string]Owner
	created  map[string]bool
	// retained branches hold work that did not land: a failed merge or a
	// failed integration run. Cleanup leaves them for manual recovery.
	retained map[string]bool
	seq      int
}

// Option configures a Manager.
type Option func(*Manager)

// WithPullRequests sets the pull request backend.
func WithPullRequests(p PullRequestCreator) Option {
	return func(m *Manager) { m.prs = p }
}

// WithIntegrationTester sets the integration test gate.
func WithIntegrationTester(t IntegrationTester) Option {
	return func(m *Manager) { m.tester = t }
}

// WithClock replaces the time source used for branch names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithDebugLogger sets the debug trace.
func WithDebugLogger(l *logging.DebugLogger) Option {
	return func(m *Manager) { m.debug = l.With("[isolation]") }
}

// New starts a Manager for the repository behind runner.
func New(runner git.Runner, cfg Config, opts ...Option) (*Manager, error) {
	if cfg.BranchStrategy == "" {
		cfg.BranchStrategy = BranchPerAgent
	}
	if cfg.MergeStrategy == "" {
		cfg.MergeStrategy = MergeSquash
	}
	if !cfg.BranchStrategy.Valid() {
		return nil, fmt.Errorf("unknown branch strategy %q", cfg.BranchStrategy)
	}
	if !cfg.MergeStrategy.Valid() {
		return nil, fmt.Errorf("unknown merge strategy %q", cfg.MergeStrategy)
	}

	m := &Manager{
		git:      runner,
		cfg:      cfg,
		now:      time.Now,
		debug:    logging.Nop(),
		cmds:     make(chan command),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		branches: make(map[string]string),
		owners:   make(map[string]Owner),
		created:  make(map[string]bool),
		retained: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.baseline = cfg.BaselineBranch
	if m.baseline == "" {
		current, err := runner.CurrentBranch()
		if err != nil {
			return nil, vcsErr("resolve baseline", "", err)
		}
		m.baseline = current
	}
	if ok, err := runner.BranchExists(m.baseline); err != nil || !ok {
		return nil, vcsErr("resolve baseline", m.baseline, fmt.Errorf("branch not found"))
	}
	if err := m.excludeStateDir(); err != nil {
		log.Printf("[isolation] warning: could not exclude .swarmer from git: %v", err)
	}

	go m.loop()
	return m, nil
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case c := <-m.cmds:
			c.fn()
			close(c.done)
		case <-m.quit:
			return
		}
	}
}

// do runs fn on the actor goroutine and waits for it.
func (m *Manager) do(ctx context.Context, fn func() error) error {
	var err error
	c := command{fn: func() { err = fn() }, done: make(chan struct{})}
	select {
	case m.cmds <- c:
	case <-m.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-c.done
	return err
}

// Stop terminates the actor. Pending and later calls return ErrStopped.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })
	<-m.done
}

// Baseline returns the branch agent work is merged into.
func (m *Manager) Baseline() string {
	return m.baseline
}

// BranchName returns the branch owner would get for task now.
func (m *Manager) BranchName(owner Owner, task models.SwarmTask) string {
	return BranchName(m.cfg.BranchStrategy, owner.Role, task.Title, m.now())
}

// Branches returns a copy of the agent -> branch mapping.
func (m *Manager) Branches(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := m.do(ctx, func() error {
		for k, v := range m.branches {
			out[k] = v
		}
		return nil
	})
	return out, err
}

// BranchOf returns the branch currently held by agentID.
func (m *Manager) BranchOf(ctx context.Context, agentID string) (string, bool, error) {
	var (
		branch string
		ok     bool
	)
	err := m.do(ctx, func() error {
		branch, ok = m.branches[agentID]
		return nil
	})
	return branch, ok, err
}

// Cleanup aborts any half-finished merge, returns to the baseline, deletes
// branches created by this manager and stops the actor. Nothing is deleted in
// pull request mode, and retained branches always survive.
func (m *Manager) Cleanup(ctx context.Context) error {
	var failures []string
	err := m.do(ctx, func() error {
		if m.git.MergeInProgress() {
			if err := m.git.MergeAbort(); err != nil {
				failures = append(failures, err.Error())
			}
		}
		if err := m.git.CheckoutBranch(m.baseline); err != nil {
			failures = append(failures, err.Error())
		}
		if !m.cfg.PullRequests {
			for _, branch := range m.createdSorted() {
				if ok, _ := m.git.BranchExists(branch); !ok {
					continue
				}
				if m.retained[branch] {
					log.Printf("[isolation] keeping %s, its work was not merged", branch)
					continue
				}
				if err := m.git.DeleteBranch(branch); err != nil {
					failures = append(failures, err.Error())
				}
			}
		}
		m.branches = make(map[string]string)
		m.owners = make(map[string]Owner)
		return nil
	})
	m.Stop()
	if err != nil && !errors.Is(err, ErrStopped) {
		return err
	}
	if len(failures) > 0 {
		return vcsErr("cleanup", "", errors.New(strings.Join(failures, "; ")))
	}
	return nil
}

// PruneStale deletes swarm branches left behind by earlier runs. Only names
// accepted by IsSwarmBranch are considered; branches mapped to a live agent
// are kept. Returns the deleted names.
func (m *Manager) PruneStale(ctx context.Context) ([]string, error) {
	var deleted []string
	err := m.do(ctx, func() error {
		names, err := m.git.ListBranches(branchPatterns()...)
		if err != nil {
			return vcsErr("list branches", "", err)
		}
		held := make(map[string]bool)
		for _, b := range m.branches {
			held[b] = true
		}
		current, _ := m.git.CurrentBranch()
		for _, name := range names {
			if !IsSwarmBranch(name) || held[name] || name == current || name == m.baseline {
				continue
			}
			if err := m.git.DeleteBranch(name); err != nil {
				log.Printf("[isolation] warning: delete stale branch %s: %v", name, err)
				continue
			}
			deleted = append(deleted, name)
		}
		return nil
	})
	return deleted, err
}

func (m *Manager) createdSorted() []string {
	names := make([]string, 0, len(m.created))
	for b := range m.created {
		names = append(names, b)
	}
	sort.Strings(names)
	return names
}

// excludeStateDir keeps the tool's own state out of "git add -A".
func (m *Manager) excludeStateDir() error {
	rel, err := m.git.Run("rev-parse", "--git-path", "info/exclude")
	if err != nil {
		return err
	}
	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.git.RepoPath(), rel)
	}
	const entry = ".swarmer/"
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	prefix := ""
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		prefix = "\n"
	}
	_, err = f.WriteString(prefix + entry + "\n")
	return err
}
