// Package git provides an interface for git operations.
package git

// BranchOperations defines the interface for branch maintenance.
type BranchOperations interface {
	// DeleteBranch deletes the specified branch (force delete).
	DeleteBranch(name string) error
}

// DiffOperations defines the interface for diff queries.
type DiffOperations interface {
	// ChangedFilesRelative returns files changed on a branch relative
	// to another, using the triple-dot diff (relativeTo...branch).
	ChangedFilesRelative(branch, relativeTo string) ([]string, error)
	// DiffPatch returns the unified diff between two refs.
	DiffPatch(ref1, ref2 string) (string, error)
}

// CommitOperations defines the interface for inspecting and recording
// commits in the working tree.
type CommitOperations interface {
	// Head returns the commit hash HEAD points at.
	Head() (string, error)
	// CommitAll stages all changes and commits them.
	CommitAll(message string) error
}

// MergeOperations defines the interface for rebase and merge plumbing.
type MergeOperations interface {
	// Fetch fetches the given ref from the remote.
	Fetch(remote, ref string) error
	// Rebase rebases the current branch onto the specified base.
	Rebase(base string) error
	// RebaseAbort aborts an in-progress rebase.
	RebaseAbort() error
	// Push pushes a local ref to a remote ref (refspec src:dst).
	Push(remote, src, dst string) error
	// PullFFOnly pulls from remote with fast-forward only.
	// Non-fatal: returns nil when no remote is configured.
	PullFFOnly() error
}

// WorktreeOperations defines the interface for git worktree plumbing.
type WorktreeOperations interface {
	// WorktreeAddNewBranch creates a worktree with a new branch.
	WorktreeAddNewBranch(path, branch string) error
	// WorktreeRemove force-removes the worktree at the given path.
	WorktreeRemove(path string) error
	// WorktreeUnlock unlocks a locked worktree.
	WorktreeUnlock(path string) error
	// WorktreeListPorcelain returns raw porcelain output for parsing.
	WorktreeListPorcelain() (string, error)
	// WorktreePruneExpireNow prunes worktrees with --expire now.
	WorktreePruneExpireNow() error
}

// PatchOperations defines the interface for applying stored patches.
type PatchOperations interface {
	// ApplyCheck dry-runs a patch (git apply --check).
	ApplyCheck(patchFile string) error
	// Apply applies a patch to the working tree.
	Apply(patchFile string) error
	// ApplyNumstatFiles returns the files a patch would touch.
	ApplyNumstatFiles(patchFile string) ([]string, error)
}

// HistoryOperations defines the interface for git log queries used by
// the complexity metrics collector.
type HistoryOperations interface {
	// CommitCountSince returns the number of commits touching path
	// since the given relative date (e.g. "90.days").
	CommitCountSince(since, path string) (int, error)
	// FixCommitCountSince returns the number of commits touching path
	// whose subject matches "fix" since the given relative date.
	FixCommitCountSince(since, path string) (int, error)
}

// Runner defines the complete interface for git operations consumed by
// Flotilla. Consumers should prefer the focused interfaces above.
type Runner interface {
	BranchOperations
	CommitOperations
	DiffOperations
	MergeOperations
	WorktreeOperations
	PatchOperations
	HistoryOperations
	// Run executes an arbitrary git command with the given arguments.
	Run(args ...string) (string, error)
}
