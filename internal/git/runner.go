package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// ExecRunner implements Runner using exec.Command.
type ExecRunner struct {
	repoPath string
}

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return &ExecRunner{repoPath: repoPath}
}

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// runSilent executes a git command and ignores output.
func (r *ExecRunner) runSilent(args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return nil
}

// Run executes an arbitrary git command with the given arguments.
func (r *ExecRunner) Run(args ...string) (string, error) {
	return r.run(args...)
}

// DeleteBranch deletes the specified branch.
func (r *ExecRunner) DeleteBranch(name string) error {
	return r.runSilent("branch", "-D", name)
}

// Head returns the commit hash HEAD points at.
func (r *ExecRunner) Head() (string, error) {
	return r.run("rev-parse", "HEAD")
}

// CommitAll stages all changes and commits them.
func (r *ExecRunner) CommitAll(message string) error {
	if err := r.runSilent("add", "-A"); err != nil {
		return err
	}
	return r.runSilent("commit", "-m", message)
}

// ChangedFilesRelative returns files changed on a branch relative to another.
func (r *ExecRunner) ChangedFilesRelative(branch, relativeTo string) ([]string, error) {
	out, err := r.run("diff", "--name-only", relativeTo+"..."+branch)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// DiffPatch returns the unified diff between two refs.
func (r *ExecRunner) DiffPatch(ref1, ref2 string) (string, error) {
	return r.run("diff", ref1, ref2)
}

// Fetch fetches the given ref from the remote.
func (r *ExecRunner) Fetch(remote, ref string) error {
	return r.runSilent("fetch", remote, ref)
}

// Rebase rebases the current branch onto the specified base.
func (r *ExecRunner) Rebase(base string) error {
	return r.runSilent("rebase", base)
}

// RebaseAbort aborts an in-progress rebase.
func (r *ExecRunner) RebaseAbort() error {
	return r.runSilent("rebase", "--abort")
}

// Push pushes a local ref to a remote ref (refspec src:dst).
func (r *ExecRunner) Push(remote, src, dst string) error {
	return r.runSilent("push", remote, src+":"+dst)
}

// PullFFOnly pulls from remote with fast-forward only.
// Returns nil even on failure; a missing remote is fine for local repos.
func (r *ExecRunner) PullFFOnly() error {
	_ = r.runSilent("pull", "--ff-only")
	return nil
}

// WorktreeAddNewBranch creates a new worktree with a new branch (git worktree add -b).
func (r *ExecRunner) WorktreeAddNewBranch(path, branch string) error {
	return r.runSilent("worktree", "add", path, "-b", branch)
}

// WorktreeRemove removes the worktree at the given path.
func (r *ExecRunner) WorktreeRemove(path string) error {
	return r.runSilent("worktree", "remove", "--force", path)
}

// WorktreeUnlock unlocks a locked worktree.
func (r *ExecRunner) WorktreeUnlock(path string) error {
	return r.runSilent("worktree", "unlock", path)
}

// WorktreeListPorcelain returns the raw porcelain output for detailed parsing.
func (r *ExecRunner) WorktreeListPorcelain() (string, error) {
	return r.run("worktree", "list", "--porcelain")
}

// WorktreePruneExpireNow prunes worktrees with --expire now.
func (r *ExecRunner) WorktreePruneExpireNow() error {
	return r.runSilent("worktree", "prune", "--expire", "now")
}

// ApplyCheck dry-runs a patch (git apply --check).
func (r *ExecRunner) ApplyCheck(patchFile string) error {
	return r.runSilent("apply", "--check", patchFile)
}

// Apply applies a patch to the working tree.
func (r *ExecRunner) Apply(patchFile string) error {
	return r.runSilent("apply", patchFile)
}

// ApplyNumstatFiles returns the files a patch would touch.
func (r *ExecRunner) ApplyNumstatFiles(patchFile string) ([]string, error) {
	out, err := r.run("apply", "--numstat", patchFile)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		// Format: added<TAB>deleted<TAB>path
		parts := strings.Split(line, "\t")
		if len(parts) == 3 && parts[2] != "" {
			files = append(files, parts[2])
		}
	}
	return files, nil
}

// CommitCountSince returns the number of commits touching path since
// the given relative date (e.g. "90.days").
func (r *ExecRunner) CommitCountSince(since, path string) (int, error) {
	return r.countLog("--since="+since, path)
}

// FixCommitCountSince returns the number of "fix" commits touching
// path since the given relative date.
func (r *ExecRunner) FixCommitCountSince(since, path string) (int, error) {
	return r.countLog("--since="+since, path, "--grep=fix", "--regexp-ignore-case")
}

// countLog counts git log --oneline entries for the given filters.
func (r *ExecRunner) countLog(since, path string, extra ...string) (int, error) {
	args := append([]string{"log", "--oneline", since}, extra...)
	args = append(args, "--", path)
	out, err := r.run(args...)
	if err != nil {
		return 0, err
	}
	if out == "" {
		return 0, nil
	}
	return len(strings.Split(out, "\n")), nil
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
