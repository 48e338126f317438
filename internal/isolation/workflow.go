package isolation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// InitializeAgentWorkflow creates owner's branch for task from the baseline
// and checks it out. An existing branch of the same name is force-deleted
// first, together with any worktree holding it; if another agent held it,
// that agent loses its mapping.
func (m *Manager) InitializeAgentWorkflow(ctx context.Context, owner Owner, task models.SwarmTask) (string, error) {
	name := m.BranchName(owner, task)
	err := m.do(ctx, func() error {
		exists, err := m.git.BranchExists(name)
		if err != nil {
			return vcsErr("check branch", name, err)
		}
		if exists {
			if err := m.forceRemoveBranch(name); err != nil {
				return err
			}
		}
		delete(m.retained, name)
		for agentID, held := range m.branches {
			if held == name {
				log.Printf("[isolation] branch %s taken over from agent %s by %s", name, agentID, owner.AgentID)
				delete(m.branches, agentID)
				delete(m.owners, agentID)
			}
		}

		if err := m.git.CreateBranchFrom(name, m.baseline); err != nil {
			return vcsErr("create branch", name, err)
		}
		m.created[name] = true
		if err := m.git.CheckoutBranch(name); err != nil {
			return vcsErr("checkout", name, err)
		}
		if prev, ok := m.branches[owner.AgentID]; ok && prev != name {
			m.debug.Log("agent %s moves from %s to %s", owner.AgentID, prev, name)
		}
		m.branches[owner.AgentID] = name
		m.owners[owner.AgentID] = owner
		m.debug.Log("initialized %s for agent %s", name, owner.AgentID)
		return nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// forceRemoveBranch deletes name even when it is checked out somewhere.
func (m *Manager) forceRemoveBranch(name string) error {
	if path, err := m.git.WorktreeForBranch(name); err == nil && path != "" {
		m.debug.Log("removing worktree %s holding %s", path, name)
		if err := m.git.WorktreeRemove(path); err != nil {
			return vcsErr("remove worktree", name, err)
		}
		_ = m.git.WorktreePrune()
	}
	if current, err := m.git.CurrentBranch(); err == nil && current == name {
		if m.git.MergeInProgress() {
			_ = m.git.MergeAbort()
		}
		if err := m.git.CheckoutBranch(m.baseline); err != nil {
			return vcsErr("checkout", m.baseline, err)
		}
	}
	if err := m.git.DeleteBranch(name); err != nil {
		return vcsErr("delete branch", name, err)
	}
	m.debug.Log("force-deleted existing branch %s", name)
	return nil
}

// CommitMessage formats the commit subject for an agent iteration.
func CommitMessage(role models.Role, title string, iteration int) string {
	return fmt.Sprintf("[%s] %s - iteration %d", role, title, iteration)
}

// CommitAgentWork commits everything pending on owner's branch. It returns
// false without error when there is nothing to commit. A failed push is
// logged and ignored.
func (m *Manager) CommitAgentWork(ctx context.Context, owner Owner, task models.SwarmTask, iteration int) (bool, error) {
	committed := false
	err := m.do(ctx, func() error {
		branch, ok := m.branches[owner.AgentID]
		if !ok {
			return vcsErr("commit", "", fmt.Errorf("%w: %s", ErrNoBranch, owner.AgentID))
		}
		if err := m.git.CheckoutBranch(branch); err != nil {
			return vcsErr("checkout", branch, err)
		}
		dirty, err := m.git.HasChanges()
		if err != nil {
			return vcsErr("status", branch, err)
		}
		if !dirty {
			m.debug.Log("nothing to commit on %s", branch)
			return nil
		}
		if err := m.git.AddAll(); err != nil {
			return vcsErr("stage", branch, err)
		}
		if err := m.git.Commit(CommitMessage(owner.Role, task.Title, iteration)); err != nil {
			return vcsErr("commit", branch, err)
		}
		committed = true
		m.pushLocked(branch)
		return nil
	})
	return committed, err
}

func (m *Manager) pushLocked(branch string) bool {
	if m.cfg.Remote == "" {
		return false
	}
	if ok, err := m.git.HasRemote(m.cfg.Remote); err != nil || !ok {
		m.debug.Log("remote %s not configured, skipping push of %s", m.cfg.Remote, branch)
		return false
	}
	if err := m.git.Push(m.cfg.Remote, branch); err != nil {
		log.Printf("[isolation] warning: push %s to %s failed: %v", branch, m.cfg.Remote, err)
		return false
	}
	return true
}

// MergeResult describes one MergeAgentWork call.
type MergeResult struct {
	Branch   string
	Strategy MergeStrategy
	// NewCommits is the number of commits the baseline gained.
	NewCommits int
	// Resolved lists conflicted paths settled automatically.
	Resolved []string
	// PullRequestURL is set in pull request mode when creation succeeded.
	PullRequestURL string
	// Deleted reports whether the agent branch was removed.
	Deleted bool
}

// MergeAgentWork lands owner's branch on the baseline with the configured
// strategy, deletes the branch and drops the mapping. In pull request mode a
// PR is opened instead and the branch is kept. A failed merge is rolled back
// and leaves the branch mapped.
func (m *Manager) MergeAgentWork(ctx context.Context, owner Owner, task models.SwarmTask) (*MergeResult, error) {
	var res *MergeResult
	err := m.do(ctx, func() error {
		branch, ok := m.branches[owner.AgentID]
		if !ok {
			return vcsErr("merge", "", fmt.Errorf("%w: %s", ErrNoBranch, owner.AgentID))
		}
		res = &MergeResult{Branch: branch, Strategy: m.cfg.MergeStrategy}

		if m.cfg.PullRequests {
			m.openPullRequestLocked(ctx, owner, task, res)
			delete(m.branches, owner.AgentID)
			delete(m.owners, owner.AgentID)
			if err := m.git.CheckoutBranch(m.baseline); err != nil {
				return vcsErr("checkout", m.baseline, err)
			}
			return nil
		}

		oldTip, tipErr := m.git.Run("rev-parse", m.baseline)
		if err := m.mergeLocked(owner, task, branch, res); err != nil {
			m.retained[branch] = true
			return err
		}
		delete(m.retained, branch)
		if tipErr == nil {
			if n, err := m.git.CountCommits(oldTip, m.baseline); err == nil {
				res.NewCommits = n
			}
		}

		if err := m.git.DeleteBranch(branch); err != nil {
			log.Printf("[isolation] warning: delete merged branch %s: %v", branch, err)
		} else {
			res.Deleted = true
		}
		delete(m.branches, owner.AgentID)
		delete(m.owners, owner.AgentID)
		m.debug.Log("merged %s into %s (%s, +%d commits)", branch, m.baseline, res.Strategy, res.NewCommits)
		return nil
	})
	return res, err
}

func (m *Manager) mergeLocked(owner Owner, task models.SwarmTask, branch string, res *MergeResult) error {
	switch m.cfg.MergeStrategy {
	case MergeRebase:
		if err := m.git.CheckoutBranch(branch); err != nil {
			return vcsErr("checkout", branch, err)
		}
		if err := m.git.Rebase(m.baseline); err != nil {
			_ = m.git.RebaseAbort()
			_ = m.git.CheckoutBranch(m.baseline)
			return vcsErr("rebase", branch, err)
		}
		if err := m.git.CheckoutBranch(m.baseline); err != nil {
			return vcsErr("checkout", m.baseline, err)
		}
		if err := m.git.MergeFFOnly(branch); err != nil {
			return vcsErr("fast-forward", branch, err)
		}
		return nil

	case MergeCommit:
		if err := m.git.CheckoutBranch(m.baseline); err != nil {
			return vcsErr("checkout", m.baseline, err)
		}
		msg := fmt.Sprintf("Merge %s: [%s] %s", branch, owner.Role, task.Title)
		if err := m.git.MergeNoFF(branch, msg); err != nil {
			report := m.resolveLocked(owner)
			res.Resolved = report.Resolved()
			if len(report.Unresolved) > 0 || len(res.Resolved) == 0 {
				_ = m.git.MergeAbort()
				return vcsErr("merge", branch, fmt.Errorf("%w: %v: %v", ErrUnresolvedConflicts, report.Unresolved, err))
			}
			if err := m.git.CommitNoEdit(); err != nil {
				_ = m.git.MergeAbort()
				return vcsErr("conclude merge", branch, err)
			}
		}
		return nil

	default:
		if err := m.git.CheckoutBranch(m.baseline); err != nil {
			return vcsErr("checkout", m.baseline, err)
		}
		if err := m.git.MergeSquash(branch); err != nil {
			report := m.resolveLocked(owner)
			res.Resolved = report.Resolved()
			if len(report.Unresolved) > 0 || len(res.Resolved) == 0 {
				_ = m.git.ResetHard("HEAD")
				return vcsErr("squash", branch, fmt.Errorf("%w: %v: %v", ErrUnresolvedConflicts, report.Unresolved, err))
			}
		}
		dirty, err := m.git.HasChanges()
		if err != nil {
			return vcsErr("status", m.baseline, err)
		}
		if !dirty {
			return nil
		}
		if err := m.git.Commit(fmt.Sprintf("[%s] %s", owner.Role, task.Title)); err != nil {
			_ = m.git.ResetHard("HEAD")
			return vcsErr("commit squash", branch, err)
		}
		return nil
	}
}

func (m *Manager) openPullRequestLocked(ctx context.Context, owner Owner, task models.SwarmTask, res *MergeResult) {
	if m.prs == nil {
		log.Printf("[isolation] warning: pull request mode without a pull request backend, %s left for manual review", res.Branch)
		return
	}
	if !m.pushLocked(res.Branch) {
		log.Printf("[isolation] warning: %s not pushed, pull request may fail", res.Branch)
	}
	title := fmt.Sprintf("[%s] %s", owner.Role, task.Title)
	body := task.Description
	if len(task.AcceptanceCriteria) > 0 {
		body += "\n\nAcceptance criteria:\n- " + strings.Join(task.AcceptanceCriteria, "\n- ")
	}
	url, err := m.prs.CreatePullRequest(ctx, title, body, m.baseline, res.Branch)
	if err != nil {
		log.Printf("[isolation] warning: create pull request for %s: %v", res.Branch, err)
		return
	}
	res.PullRequestURL = url
	m.debug.Log("opened %s for %s", url, res.Branch)
}

// ConflictReport partitions conflicted paths by the side taken.
type ConflictReport struct {
	Ours       []string
	Theirs     []string
	Unresolved []string
	// Finalized is true when the merge was concluded with a commit.
	Finalized bool
}

// Resolved returns every path that was settled.
func (r ConflictReport) Resolved() []string {
	return append(append([]string(nil), r.Ours...), r.Theirs...)
}

// ResolveConflicts settles the in-progress merge on the shared tree: paths
// mentioning the agent's id or role take "ours", everything else "theirs".
// The merge is concluded only if nothing remains conflicted; leftovers are
// reported and left in place.
func (m *Manager) ResolveConflicts(ctx context.Context, owner Owner) (ConflictReport, error) {
	var report ConflictReport
	err := m.do(ctx, func() error {
		report = m.resolveLocked(owner)
		if len(report.Unresolved) > 0 || !m.git.MergeInProgress() {
			return nil
		}
		if err := m.git.CommitNoEdit(); err != nil {
			return vcsErr("conclude merge", "", err)
		}
		report.Finalized = true
		return nil
	})
	return report, err
}

func (m *Manager) resolveLocked(owner Owner) ConflictReport {
	var report ConflictReport
	files, err := m.git.ConflictedFiles()
	if err != nil {
		m.debug.Log("list conflicts: %v", err)
		return report
	}
	id := strings.ToLower(owner.AgentID)
	role := strings.ToLower(string(owner.Role))
	for _, path := range files {
		lower := strings.ToLower(path)
		ours := (id != "" && strings.Contains(lower, id)) || (role != "" && strings.Contains(lower, role))
		if ours {
			if err := m.git.CheckoutOurs(path); err != nil {
				m.debug.Log("take ours %s: %v", path, err)
				continue
			}
			report.Ours = append(report.Ours, path)
			continue
		}
		if err := m.git.CheckoutTheirs(path); err != nil {
			m.debug.Log("take theirs %s: %v", path, err)
			continue
		}
		report.Theirs = append(report.Theirs, path)
	}
	remaining, err := m.git.ConflictedFiles()
	if err == nil {
		report.Unresolved = remaining
	}
	if len(report.Unresolved) > 0 {
		log.Printf("[isolation] %d conflicted file(s) need manual resolution: %v", len(report.Unresolved), report.Unresolved)
	}
	return report
}
