package isolation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/swarmer/internal/git"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

var testDay = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return testDay }

// initRepo creates a repository on branch main with one commit.
func initRepo(t *testing.T) (string, *git.ExecRunner) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"checkout", "-b", "main"},
		{"config", "user.email", "swarm@example.com"},
		{"config", "user.name", "Swarm Test"},
		{"config", "commit.gpgsign", "false"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	writeFile(t, dir, "README.md", "# project\n")
	r := git.NewRunner(dir)
	if err := r.AddAll(); err != nil {
		t.Fatal(err)
	}
	if err := r.Commit("initial"); err != nil {
		t.Fatal(err)
	}
	return dir, r
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func newManager(t *testing.T, r git.Runner, cfg Config, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithClock(fixedNow)}, opts...)
	m, err := New(r, cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(m.Stop)
	return m
}

func devTask(title string) models.SwarmTask {
	return models.SwarmTask{ID: "t-" + Slug(title), Title: title, Description: "do " + title}
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		strategy BranchStrategy
		want     string
	}{
		{BranchPerFeature, "feature/implement-backend-components-20260314"},
		{BranchPerAgent, "agent/developer/implement-backend-components-20260314"},
		{BranchPerTask, "task/developer-implement-backend-components-20260314"},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			got := BranchName(tt.strategy, models.RoleDeveloper, "Implement backend components", testDay)
			if got != tt.want {
				t.Errorf("BranchName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Design system architecture", "design-system-architecture"},
		{"  Fix: HTTP/2 -- proxy!! ", "fix-http-2-proxy"},
		{"A very long task title that keeps on going", "a-very-long-task-title-that-ke"},
		{"Thirty chars exactly here now -x", "thirty-chars-exactly-here-now"},
		{"!!!", "work"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if len(Slug(tt.in)) > 30 {
			t.Errorf("Slug(%q) longer than 30", tt.in)
		}
	}
}

func TestInitializeAgentWorkflow(t *testing.T) {
	_, r := initRepo(t)
	m := newManager(t, r, Config{})
	ctx := context.Background()

	owner := Owner{AgentID: "dev-1", Role: models.RoleDeveloper}
	branch, err := m.InitializeAgentWorkflow(ctx, owner, devTask("Implement core"))
	if err != nil {
		t.Fatalf("InitializeAgentWorkflow() error = %v", err)
	}
	if branch != "agent/developer/implement-core-20260314" {
		t.Errorf("branch = %q", branch)
	}
	current, _ := r.CurrentBranch()
	if current != branch {
		t.Errorf("checked out %q, want %q", current, branch)
	}
	got, ok, _ := m.BranchOf(ctx, "dev-1")
	if !ok || got != branch {
		t.Errorf("BranchOf() = %q, %v", got, ok)
	}
	if m.Baseline() != "main" {
		t.Errorf("baseline = %q", m.Baseline())
	}
}

func TestInitializeAgentWorkflow_CollidingNamesDeletesFirstBranch(t *testing.T) {
	dir, r := initRepo(t)
	m := newManager(t, r, Config{})
	ctx := context.Background()
	task := devTask("Implement core")

	first := Owner{AgentID: "dev-1", Role: models.RoleDeveloper}
	second := Owner{AgentID: "dev-2", Role: models.RoleDeveloper}

	branch, err := m.InitializeAgentWorkflow(ctx, first, task)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "first.txt", "from dev-1\n")
	if ok, err := m.CommitAgentWork(ctx, first, task, 1); err != nil || !ok {
		t.Fatalf("CommitAgentWork() = %v, %v", ok, err)
	}
	before, _ := r.ListBranches("agent/*/*")
	if len(before) != 1 || before[0] != branch {
		t.Fatalf("branches before = %v", before)
	}
	if n, _ := r.CountCommits("main", branch); n != 1 {
		t.Fatalf("first agent branch should carry 1 commit, has %d", n)
	}

	again, err := m.InitializeAgentWorkflow(ctx, second, task)
	if err != nil {
		t.Fatalf("second InitializeAgentWorkflow() error = %v", err)
	}
	if again != branch {
		t.Fatalf("expected colliding name, got %q vs %q", again, branch)
	}

	after, _ := r.ListBranches("agent/*/*")
	if len(after) != 1 {
		t.Errorf("branches after = %v", after)
	}
	if n, _ := r.CountCommits("main", branch); n != 0 {
		t.Errorf("recreated branch still carries %d commit(s) of the first agent", n)
	}
	branches, _ := m.Branches(ctx)
	if _, held := branches["dev-1"]; held {
		t.Error("first agent should have lost its mapping")
	}
	if branches["dev-2"] != branch {
		t.Errorf("mapping = %v", branches)
	}
}

func TestInitializeAgentWorkflow_RemovesWorktreeHoldingBranch(t *testing.T) {
	_, r := initRepo(t)
	m := newManager(t, r, Config{BranchStrategy: BranchPerFeature})
	ctx := context.Background()
	task := devTask("Add cache")
	name := m.BranchName(Owner{Role: models.RoleDeveloper}, task)

	if err := r.CreateBranchFrom(name, "main"); err != nil {
		t.Fatal(err)
	}
	wt := filepath.Join(t.TempDir(), "wt")
	if _, err := r.Run("worktree", "add", wt, name); err != nil {
		t.Fatal(err)
	}

	if _, err := m.InitializeAgentWorkflow(ctx, Owner{AgentID: "d", Role: models.RoleDeveloper}, task); err != nil {
		t.Fatalf("InitializeAgentWorkflow() error = %v", err)
	}
	if _, err := os.Stat(wt); !os.IsNotExist(err) {
		t.Errorf("worktree %s should have been removed", wt)
	}
}

func TestCommitAgentWork(t *testing.T) {
	dir, r := initRepo(t)
	m := newManager(t, r, Config{})
	ctx := context.Background()
	owner := Owner{AgentID: "qa-1", Role: models.RoleTester}
	task := devTask("Write and run tests")

	if _, err := m.CommitAgentWork(ctx, owner, task, 1); !errors.Is(err, ErrNoBranch) {
		t.Errorf("expected ErrNoBranch, got %v", err)
	}

	if _, err := m.InitializeAgentWorkflow(ctx, owner, task); err != nil {
		t.Fatal(err)
	}
	ok, err := m.CommitAgentWork(ctx, owner, task, 1)
	if err != nil || ok {
		t.Fatalf("clean tree: CommitAgentWork() = %v, %v", ok, err)
	}

	writeFile(t, dir, "proxy_test.go", "package proxy\n")
	ok, err = m.CommitAgentWork(ctx, owner, task, 3)
	if err != nil || !ok {
		t.Fatalf("CommitAgentWork() = %v, %v", ok, err)
	}
	subject, _ := r.Run("log", "-1", "--format=%s")
	if subject != "[tester] Write and run tests - iteration 3" {
		t.Errorf("subject = %q", subject)
	}
}

func TestCommitAgentWork_PushFailureIsNonFatal(t *testing.T) {
	dir, r := initRepo(t)
	if _, err := r.Run("remote", "add", "origin", filepath.Join(t.TempDir(), "missing.git")); err != nil {
		t.Fatal(err)
	}
	m := newManager(t, r, Config{Remote: "origin"})
	ctx := context.Background()
	owner := Owner{AgentID: "dev", Role: models.RoleDeveloper}
	task := devTask("Push me")

	if _, err := m.InitializeAgentWorkflow(ctx, owner, task); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "a.txt", "a\n")
	if ok, err := m.CommitAgentWork(ctx, owner, task, 1); err != nil || !ok {
		t.Errorf("CommitAgentWork() = %v, %v", ok, err)
	}
}

// prepareBranch creates owner's branch with n commits and returns its name.
func prepareBranch(t *testing.T, m *Manager, dir string, owner Owner, task models.SwarmTask, n int) string {
	t.Helper()
	ctx := context.Background()
	branch, err := m.InitializeAgentWorkflow(ctx, owner, task)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= n; i++ {
		writeFile(t, dir, fmt.Sprintf("%s-%d.txt", owner.AgentID, i), fmt.Sprintf("change %d\n", i))
		if _, err := m.CommitAgentWork(ctx, owner, task, i); err != nil {
			t.Fatal(err)
		}
	}
	return branch
}

func TestMergeAgentWork_Strategies(t *testing.T) {
	tests := []struct {
		strategy    MergeStrategy
		wantCommits int
		wantParents int
	}{
		{MergeSquash, 1, 1},
		{MergeCommit, 3, 2},
		{MergeRebase, 2, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			dir, r := initRepo(t)
			m := newManager(t, r, Config{MergeStrategy: tt.strategy})
			ctx := context.Background()
			owner := Owner{AgentID: "dev-1", Role: models.RoleDeveloper}
			task := devTask("Implement backend")

			branch := prepareBranch(t, m, dir, owner, task, 2)

			// Move the baseline on so rebase has something to linearise onto.
			if err := r.CheckoutBranch("main"); err != nil {
				t.Fatal(err)
			}
			writeFile(t, dir, "main.txt", "baseline moved\n")
			if err := r.AddAll(); err != nil {
				t.Fatal(err)
			}
			if err := r.Commit("baseline change"); err != nil {
				t.Fatal(err)
			}

			res, err := m.MergeAgentWork(ctx, owner, task)
			if err != nil {
				t.Fatalf("MergeAgentWork() error = %v", err)
			}
			if res.NewCommits != tt.wantCommits {
				t.Errorf("NewCommits = %d, want %d", res.NewCommits, tt.wantCommits)
			}
			if parents, _ := r.HeadParents(); parents != tt.wantParents {
				t.Errorf("HEAD parents = %d, want %d", parents, tt.wantParents)
			}
			if exists, _ := r.BranchExists(branch); exists || !res.Deleted {
				t.Error("agent branch should be deleted")
			}
			if _, ok, _ := m.BranchOf(ctx, owner.AgentID); ok {
				t.Error("mapping should be dropped")
			}
			if current, _ := r.CurrentBranch(); current != "main" {
				t.Errorf("current branch = %q", current)
			}
			if got := readFile(t, dir, "dev-1-2.txt"); got != "change 2\n" {
				t.Errorf("merged content = %q", got)
			}
		})
	}
}

func TestMergeAgentWork_ResolvesConflictsByPath(t *testing.T) {
	dir, r := initRepo(t)
	seedShared(t, dir, r)
	m := newManager(t, r, Config{MergeStrategy: MergeCommit})
	ctx := context.Background()
	owner := Owner{AgentID: "dev-1", Role: models.RoleDeveloper}
	task := devTask("Conflicting work")
	conflictingBranch(t, m, dir, r, owner, task, false)

	res, err := m.MergeAgentWork(ctx, owner, task)
	if err != nil {
		t.Fatalf("MergeAgentWork() error = %v", err)
	}
	if len(res.Resolved) != 2 {
		t.Errorf("resolved = %v", res.Resolved)
	}
	// Role appears in the path: ours (baseline) wins.
	if got := readFile(t, dir, "developer/notes.txt"); got != "main\n" {
		t.Errorf("developer/notes.txt = %q, want ours", got)
	}
	if got := readFile(t, dir, "shared.txt"); got != "agent\n" {
		t.Errorf("shared.txt = %q, want theirs", got)
	}
	if files, _ := r.ConflictedFiles(); len(files) != 0 {
		t.Errorf("conflicts left: %v", files)
	}
}

type fakeTester struct {
	pass  bool
	calls int
}

func (f *fakeTester) Run(ctx context.Context, workDir string) (bool, string, error) {
	f.calls++
	if f.pass {
		return true, "ok", nil
	}
	return false, "FAIL", nil
}

func TestCoordinateMerges(t *testing.T) {
	for _, pass := range []bool{true, false} {
		t.Run(fmt.Sprintf("pass=%v", pass), func(t *testing.T) {
			dir, r := initRepo(t)
			tester := &fakeTester{pass: pass}
			m := newManager(t, r, Config{}, WithIntegrationTester(tester))
			ctx := context.Background()

			a := Owner{AgentID: "dev-1", Role: models.RoleDeveloper}
			b := Owner{AgentID: "qa-1", Role: models.RoleTester}
			ba := prepareBranch(t, m, dir, a, devTask("Implement core"), 1)
			bb := prepareBranch(t, m, dir, b, devTask("Write tests"), 1)

			res, err := m.CoordinateMerges(ctx)
			if err != nil {
				t.Fatalf("CoordinateMerges() error = %v", err)
			}
			if tester.calls != 1 {
				t.Errorf("tester called %d times", tester.calls)
			}
			if len(res.Folded) != 2 {
				t.Errorf("folded = %v", res.Folded)
			}
			if res.Passed != pass || res.Merged != pass {
				t.Errorf("Passed = %v Merged = %v", res.Passed, res.Merged)
			}

			_, errA := os.Stat(filepath.Join(dir, "dev-1-1.txt"))
			kept, _ := r.BranchExists(res.Branch)
			if pass {
				if errA != nil {
					t.Error("baseline should contain integrated work")
				}
				if kept {
					t.Error("integration branch should be deleted after a pass")
				}
				for _, br := range []string{ba, bb} {
					if exists, _ := r.BranchExists(br); exists {
						t.Errorf("%s should be deleted", br)
					}
				}
			} else {
				if errA == nil {
					t.Error("baseline must not change when integration fails")
				}
				if !kept {
					t.Error("integration branch should be kept for recovery")
				}
			}
		})
	}
}

type fakePRs struct {
	mu    sync.Mutex
	heads []string
	err   error
}

func (f *fakePRs) CreatePullRequest(ctx context.Context, title, body, base, head string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads = append(f.heads, head)
	if f.err != nil {
		return "", f.err
	}
	return "https://example.com/pr/1", nil
}

func TestMergeAgentWork_PullRequestMode(t *testing.T) {
	for _, prErr := range []error{nil, errors.New("gh: not authenticated")} {
		dir, r := initRepo(t)
		prs := &fakePRs{err: prErr}
		m := newManager(t, r, Config{PullRequests: true}, WithPullRequests(prs))
		ctx := context.Background()
		owner := Owner{AgentID: "doc", Role: models.RoleDocumenter}
		task := devTask("Write documentation")
		branch := prepareBranch(t, m, dir, owner, task, 1)

		res, err := m.MergeAgentWork(ctx, owner, task)
		if err != nil {
			t.Fatalf("MergeAgentWork() error = %v (pr error %v)", err, prErr)
		}
		if exists, _ := r.BranchExists(branch); !exists {
			t.Error("branch must be kept until the pull request is approved")
		}
		if len(prs.heads) != 1 || prs.heads[0] != branch {
			t.Errorf("pull requests = %v", prs.heads)
		}
		if (res.PullRequestURL != "") != (prErr == nil) {
			t.Errorf("PullRequestURL = %q with error %v", res.PullRequestURL, prErr)
		}
		if _, ok, _ := m.BranchOf(ctx, owner.AgentID); ok {
			t.Error("mapping should be dropped")
		}
	}
}

func TestCleanupAndStop(t *testing.T) {
	dir, r := initRepo(t)
	m, err := New(r, Config{}, WithClock(fixedNow))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	branch := prepareBranch(t, m, dir, Owner{AgentID: "a", Role: models.RoleArchitect}, devTask("Design"), 1)

	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if exists, _ := r.BranchExists(branch); exists {
		t.Error("cleanup should delete agent branches")
	}
	if current, _ := r.CurrentBranch(); current != "main" {
		t.Errorf("current = %q", current)
	}
	if _, err := m.Branches(ctx); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after cleanup, got %v", err)
	}
	m.Stop()
}

func TestConcurrentCallsAreSerialised(t *testing.T) {
	_, r := initRepo(t)
	m := newManager(t, r, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := Owner{AgentID: fmt.Sprintf("dev-%d", i), Role: models.RoleDeveloper}
			if _, err := m.InitializeAgentWorkflow(ctx, owner, devTask(fmt.Sprintf("Task %d", i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("InitializeAgentWorkflow() error = %v", err)
	}

	branches, _ := m.Branches(ctx)
	seen := map[string]string{}
	for agent, b := range branches {
		if other, dup := seen[b]; dup {
			t.Errorf("%s held by %s and %s", b, agent, other)
		}
		seen[b] = agent
	}
	if len(branches) != 8 {
		t.Errorf("expected 8 branches, got %d", len(branches))
	}
}

func TestPruneStale(t *testing.T) {
	_, r := initRepo(t)
	for _, b := range []string{
		"agent/developer/old-20250101",
		"feature/x-20250101",
		"integration/20250101-3",
		"feature/login",
		"task/fix-ci",
		"agent/intern/old-20250101",
		"keep-me",
	} {
		if err := r.CreateBranchFrom(b, "main"); err != nil {
			t.Fatal(err)
		}
	}
	m := newManager(t, r, Config{})
	deleted, err := m.PruneStale(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := "agent/developer/old-20250101,feature/x-20250101,integration/20250101-3"
	if got := strings.Join(deleted, ","); got != want {
		t.Errorf("deleted = %v, want %s", deleted, want)
	}
	for _, b := range []string{"feature/login", "task/fix-ci", "agent/intern/old-20250101", "keep-me"} {
		if ok, _ := r.BranchExists(b); !ok {
			t.Errorf("branch %s not created by a swarm was deleted", b)
		}
	}
}

func TestIsSwarmBranch(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"feature/implement-backend-components-20260314", true},
		{"agent/developer/implement-backend-components-20260314", true},
		{"task/developer-implement-backend-components-20260314", true},
		{"integration/20260314-2", true},
		{"feature/login", false},
		{"feature/Login-20260314", false},
		{"feature/login-20261399", false},
		{"task/fix-ci", false},
		{"task/fix-ci-20260314", false},
		{"agent/intern/work-20260314", false},
		{"agent/developer/a-very-long-task-title-that-keeps-going-20260314", false},
		{"integration/latest", false},
		{"main", false},
	}
	for _, tt := range tests {
		if got := IsSwarmBranch(tt.name); got != tt.want {
			t.Errorf("IsSwarmBranch(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
	for _, strategy := range []BranchStrategy{BranchPerFeature, BranchPerAgent, BranchPerTask} {
		name := BranchName(strategy, models.RoleOptimizer, "Tune the cache: hit ratio!", testDay)
		if !IsSwarmBranch(name) {
			t.Errorf("generated name %q not recognised", name)
		}
	}
}

func TestCleanup_KeepsFailedIntegration(t *testing.T) {
	dir, r := initRepo(t)
	m, err := New(r, Config{}, WithClock(fixedNow), WithIntegrationTester(&fakeTester{pass: false}))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	branch := prepareBranch(t, m, dir, Owner{AgentID: "dev-1", Role: models.RoleDeveloper}, devTask("Implement core"), 1)

	res, err := m.CoordinateMerges(ctx)
	if err != nil {
		t.Fatalf("CoordinateMerges() error = %v", err)
	}
	if res.Passed {
		t.Fatal("integration should fail")
	}
	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	for _, b := range []string{res.Branch, branch} {
		if ok, _ := r.BranchExists(b); !ok {
			t.Errorf("%s should survive cleanup after a failed integration", b)
		}
	}
	if current, _ := r.CurrentBranch(); current != "main" {
		t.Errorf("current = %q", current)
	}
}

// seedShared commits shared.txt and developer/notes.txt on main.
func seedShared(t *testing.T, dir string, r *git.ExecRunner) {
	t.Helper()
	writeFile(t, dir, "shared.txt", "base\n")
	writeFile(t, dir, "developer/notes.txt", "base\n")
	if err := r.AddAll(); err != nil {
		t.Fatal(err)
	}
	if err := r.Commit("seed"); err != nil {
		t.Fatal(err)
	}
}

// conflictingBranch gives owner a branch that conflicts with main. When
// deleteShared is set the branch deletes shared.txt while main edits it,
// which cannot be settled by taking either side.
func conflictingBranch(t *testing.T, m *Manager, dir string, r *git.ExecRunner, owner Owner, task models.SwarmTask, deleteShared bool) string {
	t.Helper()
	ctx := context.Background()
	branch, err := m.InitializeAgentWorkflow(ctx, owner, task)
	if err != nil {
		t.Fatal(err)
	}
	if deleteShared {
		if err := os.Remove(filepath.Join(dir, "shared.txt")); err != nil {
			t.Fatal(err)
		}
	} else {
		writeFile(t, dir, "shared.txt", "agent\n")
	}
	writeFile(t, dir, "developer/notes.txt", "agent\n")
	if _, err := m.CommitAgentWork(ctx, owner, task, 1); err != nil {
		t.Fatal(err)
	}

	if err := r.CheckoutBranch("main"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "shared.txt", "main\n")
	writeFile(t, dir, "developer/notes.txt", "main\n")
	if err := r.AddAll(); err != nil {
		t.Fatal(err)
	}
	if err := r.Commit("main edits"); err != nil {
		t.Fatal(err)
	}
	return branch
}

func TestCleanup_KeepsFailedMerge(t *testing.T) {
	dir, r := initRepo(t)
	seedShared(t, dir, r)
	m, err := New(r, Config{MergeStrategy: MergeCommit}, WithClock(fixedNow))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	owner := Owner{AgentID: "dev-1", Role: models.RoleDeveloper}
	task := devTask("Rewrite shared")
	branch := conflictingBranch(t, m, dir, r, owner, task, true)
	done := prepareBranch(t, m, dir, Owner{AgentID: "qa-1", Role: models.RoleTester}, devTask("Write tests"), 1)

	if _, err := m.MergeAgentWork(ctx, owner, task); !errors.Is(err, ErrUnresolvedConflicts) {
		t.Fatalf("MergeAgentWork() error = %v, want unresolved conflicts", err)
	}
	if _, ok, _ := m.BranchOf(ctx, owner.AgentID); !ok {
		t.Error("a failed merge should keep the mapping")
	}
	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if ok, _ := r.BranchExists(branch); !ok {
		t.Errorf("%s holds unmerged work and should survive cleanup", branch)
	}
	if ok, _ := r.BranchExists(done); ok {
		t.Errorf("%s should be deleted by cleanup", done)
	}
}

func TestResolveConflicts(t *testing.T) {
	dir, r := initRepo(t)
	seedShared(t, dir, r)
	m := newManager(t, r, Config{})
	owner := Owner{AgentID: "dev-1", Role: models.RoleDeveloper}
	branch := conflictingBranch(t, m, dir, r, owner, devTask("Conflicting work"), false)

	if err := r.MergeNoFF(branch, ""); err == nil {
		t.Fatal("expected a conflicting merge")
	}
	report, err := m.ResolveConflicts(context.Background(), owner)
	if err != nil {
		t.Fatalf("ResolveConflicts() error = %v", err)
	}
	if !report.Finalized {
		t.Error("merge should be concluded when nothing is left")
	}
	if len(report.Ours) != 1 || report.Ours[0] != "developer/notes.txt" {
		t.Errorf("ours = %v", report.Ours)
	}
	if len(report.Theirs) != 1 || report.Theirs[0] != "shared.txt" {
		t.Errorf("theirs = %v", report.Theirs)
	}
	if len(report.Unresolved) != 0 || r.MergeInProgress() {
		t.Errorf("unresolved = %v, merge in progress = %v", report.Unresolved, r.MergeInProgress())
	}
	if parents, _ := r.HeadParents(); parents != 2 {
		t.Errorf("HEAD parents = %d, want a merge commit", parents)
	}
	if got := readFile(t, dir, "shared.txt"); got != "agent\n" {
		t.Errorf("shared.txt = %q, want theirs", got)
	}
}

func TestResolveConflicts_LeavesUnresolved(t *testing.T) {
	dir, r := initRepo(t)
	seedShared(t, dir, r)
	m := newManager(t, r, Config{})
	owner := Owner{AgentID: "dev-1", Role: models.RoleDeveloper}
	branch := conflictingBranch(t, m, dir, r, owner, devTask("Delete shared"), true)

	if err := r.MergeNoFF(branch, ""); err == nil {
		t.Fatal("expected a conflicting merge")
	}
	report, err := m.ResolveConflicts(context.Background(), owner)
	if err != nil {
		t.Fatalf("ResolveConflicts() error = %v", err)
	}
	if report.Finalized {
		t.Error("merge must not be concluded while files remain conflicted")
	}
	if len(report.Unresolved) != 1 || report.Unresolved[0] != "shared.txt" {
		t.Errorf("unresolved = %v", report.Unresolved)
	}
	if len(report.Ours) != 1 || report.Ours[0] != "developer/notes.txt" {
		t.Errorf("ours = %v", report.Ours)
	}
	if !r.MergeInProgress() {
		t.Error("the merge should be left in place")
	}
	if files, _ := r.ConflictedFiles(); len(files) != 1 {
		t.Errorf("conflicted files = %v", files)
	}
	if err := r.MergeAbort(); err != nil {
		t.Fatal(err)
	}
}
