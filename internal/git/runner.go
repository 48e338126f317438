package git

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ExecRunner implements Runner by shelling out to git.
type ExecRunner struct {
	repoPath string
}

// NewRunner creates a runner for the repository at repoPath.
func NewRunner(repoPath string) *ExecRunner {
	return &ExecRunner{repoPath: repoPath}
}

// RepoPath returns the working tree root.
func (r *ExecRunner) RepoPath() string {
	return r.repoPath
}

func (r *ExecRunner) command(args ...string) *exec.Cmd {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.repoPath
	// Never block on an editor or a credential prompt.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_EDITOR=true")
	return cmd
}

func (r *ExecRunner) run(args ...string) (string, error) {
	out, err := r.command(args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *ExecRunner) runSilent(args ...string) error {
	_, err := r.run(args...)
	return err
}

// Run executes an arbitrary git command.
func (r *ExecRunner) Run(args ...string) (string, error) {
	return r.run(args...)
}

// CurrentBranch returns the checked-out branch.
func (r *ExecRunner) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// CreateBranchFrom creates name at base.
func (r *ExecRunner) CreateBranchFrom(name, base string) error {
	return r.runSilent("branch", name, base)
}

// CheckoutBranch switches to name.
func (r *ExecRunner) CheckoutBranch(name string) error {
	return r.runSilent("checkout", name)
}

// BranchExists reports whether the local branch exists.
func (r *ExecRunner) BranchExists(name string) (bool, error) {
	err := r.command("show-ref", "--verify", "--quiet", "refs/heads/"+name).Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("check branch %s: %w", name, err)
	}
	return true, nil
}

// DeleteBranch force-deletes name.
func (r *ExecRunner) DeleteBranch(name string) error {
	return r.runSilent("branch", "-D", name)
}

// ListBranches lists local branches matching patterns.
func (r *ExecRunner) ListBranches(patterns ...string) ([]string, error) {
	args := []string{"for-each-ref", "--format=%(refname:short)"}
	for _, p := range patterns {
		args = append(args, "refs/heads/"+p)
	}
	if len(patterns) == 0 {
		args = append(args, "refs/heads/")
	}
	out, err := r.run(args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Status returns git status --porcelain.
func (r *ExecRunner) Status() (string, error) {
	return r.run("status", "--porcelain")
}

// HasChanges reports whether the working tree is dirty.
func (r *ExecRunner) HasChanges() (bool, error) {
	status, err := r.Status()
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// ConflictedFiles lists paths with unmerged entries.
func (r *ExecRunner) ConflictedFiles() ([]string, error) {
	out, err := r.run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// CountCommits counts base..head.
func (r *ExecRunner) CountCommits(base, head string) (int, error) {
	out, err := r.run("rev-list", "--count", base+".."+head)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(out)
}

// HeadParents returns the parent count of HEAD.
func (r *ExecRunner) HeadParents() (int, error) {
	out, err := r.run("rev-list", "--parents", "-n", "1", "HEAD")
	if err != nil {
		return 0, err
	}
	return len(strings.Fields(out)) - 1, nil
}

// AddAll stages everything.
func (r *ExecRunner) AddAll() error {
	return r.runSilent("add", "-A")
}

// Commit records staged changes.
func (r *ExecRunner) Commit(message string) error {
	return r.runSilent("commit", "-m", message)
}

// CommitNoEdit concludes a merge.
func (r *ExecRunner) CommitNoEdit() error {
	return r.runSilent("commit", "--no-edit")
}

// MergeNoFF merges branch with a merge commit.
func (r *ExecRunner) MergeNoFF(branch, message string) error {
	if message == "" {
		return r.runSilent("merge", "--no-ff", "--no-edit", branch)
	}
	return r.runSilent("merge", "--no-ff", "-m", message, branch)
}

// MergeSquash stages branch as a single pending change.
func (r *ExecRunner) MergeSquash(branch string) error {
	return r.runSilent("merge", "--squash", branch)
}

// MergeFFOnly fast-forwards to branch.
func (r *ExecRunner) MergeFFOnly(branch string) error {
	return r.runSilent("merge", "--ff-only", branch)
}

// MergeAbort aborts an in-progress merge.
func (r *ExecRunner) MergeAbort() error {
	return r.runSilent("merge", "--abort")
}

// MergeInProgress reports whether MERGE_HEAD exists.
func (r *ExecRunner) MergeInProgress() bool {
	gitDir, err := r.run("rev-parse", "--git-dir")
	if err != nil {
		return false
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(r.repoPath, gitDir)
	}
	_, err = os.Stat(filepath.Join(gitDir, "MERGE_HEAD"))
	return err == nil
}

// Rebase rebases the current branch onto base.
func (r *ExecRunner) Rebase(base string) error {
	return r.runSilent("rebase", base)
}

// RebaseAbort aborts an in-progress rebase.
func (r *ExecRunner) RebaseAbort() error {
	return r.runSilent("rebase", "--abort")
}

// ResetHard resets the working tree to ref.
func (r *ExecRunner) ResetHard(ref string) error {
	return r.runSilent("reset", "--hard", ref)
}

// WorktreeForBranch scans worktree list --porcelain for a linked worktree on branch.
// The main working tree is never returned.
func (r *ExecRunner) WorktreeForBranch(branch string) (string, error) {
	out, err := r.run("worktree", "list", "--porcelain")
	if err != nil {
		return "", err
	}
	var path string
	first := true
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			if !first && strings.TrimPrefix(line, "branch refs/heads/") == branch {
				return path, nil
			}
		case line == "":
			first = false
		}
	}
	return "", nil
}

// WorktreeRemove force-removes the worktree at path.
func (r *ExecRunner) WorktreeRemove(path string) error {
	return r.runSilent("worktree", "remove", "--force", path)
}

// WorktreePrune drops stale worktree entries.
func (r *ExecRunner) WorktreePrune() error {
	return r.runSilent("worktree", "prune")
}

// HasRemote reports whether name is a configured remote.
func (r *ExecRunner) HasRemote(name string) (bool, error) {
	out, err := r.run("remote")
	if err != nil {
		return false, err
	}
	for _, remote := range splitLines(out) {
		if remote == name {
			return true, nil
		}
	}
	return false, nil
}

// Push pushes branch to remote with upstream tracking.
func (r *ExecRunner) Push(remote, branch string) error {
	return r.runSilent("push", "-u", remote, branch)
}

// CheckoutOurs resolves path with the current side and stages it.
func (r *ExecRunner) CheckoutOurs(path string) error {
	if err := r.runSilent("checkout", "--ours", "--", path); err != nil {
		return err
	}
	return r.runSilent("add", "--", path)
}

// CheckoutTheirs resolves path with the incoming side and stages it.
func (r *ExecRunner) CheckoutTheirs(path string) error {
	if err := r.runSilent("checkout", "--theirs", "--", path); err != nil {
		return err
	}
	return r.runSilent("add", "--", path)
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

var _ Runner = (*ExecRunner)(nil)
