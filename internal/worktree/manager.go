// Package worktree manages isolated git working copies for parallel
// task execution. Each task gets its own worktree on its own branch,
// sharing the repository object store with the main checkout.
package worktree

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davenport-labs/flotilla/internal/git"
)

// BranchPrefix is the prefix for all Flotilla-managed branches. The
// orphan scan only ever touches branches under this prefix.
const BranchPrefix = "flotilla/task-"

// Worktree represents a git worktree managed by Flotilla.
type Worktree struct {
	Path      string    // Absolute path to the worktree directory
	Branch    string    // Name of the branch checked out in this worktree
	TaskID    string    // ID of the task that owns this worktree
	CreatedAt time.Time // When the worktree was created
}

// Provider defines the interface for worktree management. It allows
// mocking worktree operations in tests.
type Provider interface {
	// Create creates a new worktree for the given task ID.
	Create(taskID string) (*Worktree, error)
	// Remove removes a worktree at the given path.
	Remove(path string, force bool) error
	// List returns all worktrees known to the repository.
	List() ([]*Worktree, error)
	// Prune removes references to worktrees that no longer exist on disk.
	Prune() error
	// ListOrphans returns Flotilla worktrees not owned by an active task.
	ListOrphans(activeTaskIDs []string) ([]*Worktree, error)
	// CleanupOrphans removes orphaned worktrees, returning the count removed.
	CleanupOrphans(activeTaskIDs []string, verbose func(path string)) (int, error)
	// BaseDir returns the base directory where worktrees are created.
	BaseDir() string
	// RepoPath returns the path to the main git repository.
	RepoPath() string
}

// Verify Manager implements Provider at compile time.
var _ Provider = (*Manager)(nil)

// Manager handles git worktree operations for task isolation.
type Manager struct {
	baseDir  string // Base directory for worktrees
	repoPath string // Path to the main git repository
	git      git.Runner
	mu       sync.Mutex
}

// NewManager creates a new Manager. baseDir is where worktrees will be
// created; when empty it defaults to <repo>/.flotilla/worktrees.
func NewManager(baseDir, repoPath string) (*Manager, error) {
	return NewManagerWithRunner(baseDir, repoPath, git.NewRunner(repoPath))
}

// NewManagerWithRunner creates a Manager with a custom git runner (for testing).
func NewManagerWithRunner(baseDir, repoPath string, runner git.Runner) (*Manager, error) {
	if baseDir == "" {
		baseDir = filepath.Join(repoPath, ".flotilla", "worktrees")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create worktree base directory: %w", err)
	}

	return &Manager{
		baseDir:  baseDir,
		repoPath: repoPath,
		git:      runner,
	}, nil
}

// Create creates a new worktree on a fresh branch named from the task ID.
func (m *Manager) Create(taskID string) (*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if taskID == "" {
		taskID = uuid.New().String()[:8]
	}

	branch := BranchPrefix + taskID
	path := filepath.Join(m.baseDir, "task-"+taskID)

	if err := m.git.WorktreeAddNewBranch(path, branch); err != nil {
		return nil, fmt.Errorf("create worktree: %w", err)
	}

	return &Worktree{
		Path:      path,
		Branch:    branch,
		TaskID:    taskID,
		CreatedAt: time.Now(),
	}, nil
}

// Remove removes a worktree at the given path. When force is true the
// worktree is removed even with uncommitted changes; the task branch
// is left behind for the merge phase to consume.
func (m *Manager) Remove(path string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = m.git.WorktreeUnlock(path) // Ignore errors, it may not be locked

	if err := m.git.WorktreeRemove(path); err != nil {
		if !force {
			return fmt.Errorf("remove worktree: %w", err)
		}
		// Git lost track of it; fall back to direct removal.
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove worktree directory: %w", err)
		}
	}

	return nil
}

// List returns all worktrees known to the repository.
func (m *Manager) List() ([]*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, err := m.git.WorktreeListPorcelain()
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}

	return parseWorktreeList(output)
}

// parseWorktreeList parses the output of 'git worktree list --porcelain'.
func parseWorktreeList(output string) ([]*Worktree, error) {
	var worktrees []*Worktree
	var current *Worktree

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if current != nil {
				worktrees = append(worktrees, current)
				current = nil
			}
			continue
		}

		if strings.HasPrefix(line, "worktree ") {
			current = &Worktree{
				Path: strings.TrimPrefix(line, "worktree "),
			}
		} else if strings.HasPrefix(line, "branch ") && current != nil {
			// Format: branch refs/heads/<name>
			branchRef := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(branchRef, "refs/heads/")

			if strings.HasPrefix(current.Branch, BranchPrefix) {
				current.TaskID = strings.TrimPrefix(current.Branch, BranchPrefix)
			}
		}
	}

	// The last entry may not be followed by a blank line.
	if current != nil {
		worktrees = append(worktrees, current)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse worktree list: %w", err)
	}

	return worktrees, nil
}

// Prune removes references to worktrees that no longer exist on disk.
func (m *Manager) Prune() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.WorktreePruneExpireNow(); err != nil {
		return fmt.Errorf("prune worktrees: %w", err)
	}

	return nil
}

// ListOrphans returns Flotilla worktrees whose task is not in
// activeTaskIDs. The main repo checkout is never considered an orphan.
func (m *Manager) ListOrphans(activeTaskIDs []string) ([]*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, err := m.git.WorktreeListPorcelain()
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}

	worktrees, err := parseWorktreeList(output)
	if err != nil {
		return nil, err
	}

	activeSet := make(map[string]bool)
	for _, id := range activeTaskIDs {
		activeSet[id] = true
	}

	var orphans []*Worktree
	for _, wt := range worktrees {
		if !strings.HasPrefix(wt.Branch, BranchPrefix) {
			continue
		}
		if wt.Path == m.repoPath {
			continue
		}
		if wt.TaskID != "" && activeSet[wt.TaskID] {
			continue
		}
		orphans = append(orphans, wt)
	}

	return orphans, nil
}

// CleanupOrphans removes orphaned worktrees and returns the count
// removed. If verbose is provided it is called per removed worktree.
func (m *Manager) CleanupOrphans(activeTaskIDs []string, verbose func(path string)) (int, error) {
	orphans, err := m.ListOrphans(activeTaskIDs)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, wt := range orphans {
		_ = m.git.WorktreeUnlock(wt.Path) // Ignore errors, it may not be locked

		if err := m.git.WorktreeRemove(wt.Path); err != nil {
			if err := os.RemoveAll(wt.Path); err != nil {
				continue // Skip if we can't remove it
			}
		}

		if verbose != nil {
			verbose(wt.Path)
		}
		removed++
	}

	// Final prune to clean up any dangling references.
	_ = m.git.WorktreePruneExpireNow()

	return removed, nil
}

// BaseDir returns the base directory where worktrees are created.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// RepoPath returns the path to the main git repository.
func (m *Manager) RepoPath() string {
	return m.repoPath
}
