// Package git wraps the git CLI for a single shared working tree.
package git

// BranchOperations covers branch lifecycle on the shared working tree.
type BranchOperations interface {
	// CurrentBranch returns the name of the checked-out branch.
	CurrentBranch() (string, error)
	// CreateBranchFrom creates name at the tip of base without checking it out.
	CreateBranchFrom(name, base string) error
	// CheckoutBranch switches the working tree to name.
	CheckoutBranch(name string) error
	// BranchExists reports whether refs/heads/<name> exists.
	BranchExists(name string) (bool, error)
	// DeleteBranch force-deletes name (branch -D).
	DeleteBranch(name string) error
	// ListBranches returns local branch names matching the glob patterns.
	ListBranches(patterns ...string) ([]string, error)
}

// StatusOperations reports working tree and conflict state.
type StatusOperations interface {
	// Status returns git status --porcelain.
	Status() (string, error)
	// HasChanges reports whether there is anything to commit.
	HasChanges() (bool, error)
	// ConflictedFiles lists paths with unmerged entries.
	ConflictedFiles() ([]string, error)
	// CountCommits counts commits reachable from head but not from base.
	CountCommits(base, head string) (int, error)
	// HeadParents returns the number of parents of HEAD.
	HeadParents() (int, error)
}

// CommitOperations stages and records work.
type CommitOperations interface {
	// AddAll stages every change, including deletions and untracked files.
	AddAll() error
	// Commit records staged changes with message.
	Commit(message string) error
	// CommitNoEdit concludes a merge using the prepared message.
	CommitNoEdit() error
}

// MergeOperations folds one branch into the current one.
type MergeOperations interface {
	// MergeNoFF merges branch creating a merge commit.
	MergeNoFF(branch, message string) error
	// MergeSquash stages branch's changes as one pending commit.
	MergeSquash(branch string) error
	// MergeFFOnly fast-forwards the current branch to branch.
	MergeFFOnly(branch string) error
	// MergeAbort aborts an in-progress merge.
	MergeAbort() error
	// MergeInProgress reports whether MERGE_HEAD is present.
	MergeInProgress() bool
	// Rebase rebases the current branch onto base.
	Rebase(base string) error
	// RebaseAbort aborts an in-progress rebase.
	RebaseAbort() error
	// ResetHard discards working tree changes back to ref.
	ResetHard(ref string) error
}

// WorktreeOperations lets the isolation layer find and drop extra checkouts.
type WorktreeOperations interface {
	// WorktreeForBranch returns the path of a linked worktree holding branch, or "".
	WorktreeForBranch(branch string) (string, error)
	// WorktreeRemove force-removes the worktree at path.
	WorktreeRemove(path string) error
	// WorktreePrune drops stale worktree administrative files.
	WorktreePrune() error
}

// RemoteOperations covers the optional push path.
type RemoteOperations interface {
	// HasRemote reports whether the named remote is configured.
	HasRemote(name string) (bool, error)
	// Push pushes branch to remote and sets upstream.
	Push(remote, branch string) error
}

// FileOperations picks sides of conflicted files.
type FileOperations interface {
	// CheckoutOurs takes the current branch's version of path and stages it.
	CheckoutOurs(path string) error
	// CheckoutTheirs takes the incoming version of path and stages it.
	CheckoutTheirs(path string) error
}

// Runner is the complete git surface used by the isolation manager.
// Callers should depend on the narrower interfaces where they can.
type Runner interface {
	BranchOperations
	StatusOperations
	CommitOperations
	MergeOperations
	WorktreeOperations
	RemoteOperations
	FileOperations
	// Run executes an arbitrary git command and returns trimmed output.
	Run(args ...string) (string, error)
	// RepoPath returns the working tree root.
	RepoPath() string
}
