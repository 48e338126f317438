package isolation

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/ShayCichocki/swarmer/internal/exec"
)

// IntegrationResult describes one CoordinateMerges pass.
type IntegrationResult struct {
	// Branch is the integration branch; empty when there was nothing to fold.
	Branch string
	// Folded lists agent branches merged into the integration branch.
	Folded []string
	// Skipped lists agent branches that could not be folded cleanly.
	Skipped []string
	Passed  bool
	Output  string
	// Merged is true when the baseline received the integration branch.
	Merged bool
}

// CoordinateMerges folds every mapped agent branch into a fresh integration
// branch, runs the integration test, and fast-forwards the baseline only if
// it passes. A failing integration branch is kept for manual recovery.
func (m *Manager) CoordinateMerges(ctx context.Context) (*IntegrationResult, error) {
	res := &IntegrationResult{}
	err := m.do(ctx, func() error {
		if len(m.branches) == 0 {
			res.Passed = true
			return nil
		}

		m.seq++
		name := fmt.Sprintf("integration/%s-%d", Stamp(m.now()), m.seq)
		if exists, _ := m.git.BranchExists(name); exists {
			if err := m.forceRemoveBranch(name); err != nil {
				return err
			}
		}
		if err := m.git.CreateBranchFrom(name, m.baseline); err != nil {
			return vcsErr("create branch", name, err)
		}
		m.created[name] = true
		res.Branch = name
		if err := m.git.CheckoutBranch(name); err != nil {
			return vcsErr("checkout", name, err)
		}

		agentIDs := make([]string, 0, len(m.branches))
		for id := range m.branches {
			agentIDs = append(agentIDs, id)
		}
		sort.Strings(agentIDs)

		foldedBy := make(map[string]string)
		for _, id := range agentIDs {
			branch := m.branches[id]
			if err := m.git.MergeNoFF(branch, "Integrate "+branch); err != nil {
				report := m.resolveLocked(m.owners[id])
				if len(report.Unresolved) > 0 || len(report.Resolved()) == 0 {
					_ = m.git.MergeAbort()
					log.Printf("[isolation] skipping %s in integration: %v", branch, err)
					res.Skipped = append(res.Skipped, branch)
					continue
				}
				if err := m.git.CommitNoEdit(); err != nil {
					_ = m.git.MergeAbort()
					res.Skipped = append(res.Skipped, branch)
					continue
				}
			}
			res.Folded = append(res.Folded, branch)
			foldedBy[id] = branch
		}

		res.Passed = true
		if m.tester != nil {
			passed, output, err := m.tester.Run(ctx, m.git.RepoPath())
			res.Output = output
			if err != nil {
				log.Printf("[isolation] integration test could not run: %v", err)
				passed = false
			}
			res.Passed = passed
		}

		if err := m.git.CheckoutBranch(m.baseline); err != nil {
			return vcsErr("checkout", m.baseline, err)
		}
		if !res.Passed {
			log.Printf("[isolation] integration tests failed, keeping %s for recovery", name)
			m.retained[name] = true
			for _, branch := range m.branches {
				m.retained[branch] = true
			}
			return nil
		}
		if err := m.git.MergeFFOnly(name); err != nil {
			if err := m.git.MergeNoFF(name, "Integrate "+name); err != nil {
				_ = m.git.MergeAbort()
				m.retained[name] = true
				return vcsErr("merge integration", name, err)
			}
		}
		res.Merged = true

		_ = m.git.DeleteBranch(name)
		delete(m.created, name)
		delete(m.retained, name)
		for id, branch := range foldedBy {
			if err := m.git.DeleteBranch(branch); err != nil {
				m.debug.Log("delete integrated branch %s: %v", branch, err)
			}
			delete(m.branches, id)
			delete(m.owners, id)
			delete(m.retained, branch)
		}
		for _, branch := range m.branches {
			m.retained[branch] = true
		}
		return nil
	})
	return res, err
}

// ShellTester runs an integration test command through the shell. An empty
// command always passes.
type ShellTester struct {
	runner  exec.CommandRunner
	command string
}

// NewShellTester creates a tester for command.
func NewShellTester(runner exec.CommandRunner, command string) *ShellTester {
	return &ShellTester{runner: runner, command: command}
}

// Run implements IntegrationTester. A non-zero exit is a failed test, not an error.
func (t *ShellTester) Run(ctx context.Context, workDir string) (bool, string, error) {
	if strings.TrimSpace(t.command) == "" {
		return true, "", nil
	}
	out, err := t.runner.RunShell(ctx, workDir, t.command)
	if err != nil {
		if ctx.Err() != nil {
			return false, string(out), ctx.Err()
		}
		return false, string(out), nil
	}
	return true, string(out), nil
}

// GHPullRequests opens pull requests with the gh CLI.
type GHPullRequests struct {
	runner   exec.CommandRunner
	repoPath string
}

// NewGHPullRequests creates a gh-backed PullRequestCreator.
func NewGHPullRequests(runner exec.CommandRunner, repoPath string) *GHPullRequests {
	return &GHPullRequests{runner: runner, repoPath: repoPath}
}

// CreatePullRequest runs gh pr create and returns the PR URL it prints.
func (g *GHPullRequests) CreatePullRequest(ctx context.Context, title, body, base, head string) (string, error) {
	if !g.runner.LookPath("gh") {
		return "", fmt.Errorf("gh CLI not found on PATH")
	}
	out, err := g.runner.Run(ctx, g.repoPath, "gh", "pr", "create",
		"--title", title, "--body", body, "--base", base, "--head", head)
	if err != nil {
		return "", fmt.Errorf("gh pr create: %w: %s", err, strings.TrimSpace(string(out)))
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

var (
	_ IntegrationTester  = (*ShellTester)(nil)
	_ PullRequestCreator = (*GHPullRequests)(nil)
)
