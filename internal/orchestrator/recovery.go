package orchestrator

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/davenport-labs/flotilla/pkg/models"
)

// RecoveryStore persists the in-flight batch state so a crashed batch
// can be reconstructed.
type RecoveryStore struct {
	path string
	mu   sync.Mutex
}

// NewRecoveryStore creates a store persisting at path.
func NewRecoveryStore(path string) *RecoveryStore {
	return &RecoveryStore{path: path}
}

// Save writes the batch state atomically.
func (s *RecoveryStore) Save(st *models.ParallelRecoveryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.LastUpdated = time.Now()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create recovery directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal recovery state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".recovery-*")
	if err != nil {
		return fmt.Errorf("create temp recovery file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write recovery state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close recovery state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename recovery state: %w", err)
	}
	return nil
}

// Load returns the persisted batch state, or nil when none exists.
// A corrupt file is treated as absent.
func (s *RecoveryStore) Load() (*models.ParallelRecoveryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read recovery state: %w", err)
	}

	var st models.ParallelRecoveryState
	if err := json.Unmarshal(data, &st); err != nil {
		log.Printf("[orchestrator] ignoring corrupt recovery state %s: %v", s.path, err)
		return nil, nil
	}
	return &st, nil
}

// Clear removes the persisted batch state.
func (s *RecoveryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear recovery state: %w", err)
	}
	return nil
}

// RecoveryInfo summarizes a persisted batch for the CLI.
type RecoveryInfo struct {
	BatchID   string
	StartedAt time.Time
	Total     int
	Complete  int
	Failed    int
	Pending   int
	Running   int
	Merged    int
}

// HasActiveRecovery reports whether an incomplete batch is persisted.
func (r *Runner) HasActiveRecovery() (bool, error) {
	st, err := r.recovery.Load()
	if err != nil {
		return false, err
	}
	return st != nil && !st.IsComplete, nil
}

// GetRecoveryInfo returns summary counts for the persisted batch, or
// nil when there is none.
func (r *Runner) GetRecoveryInfo() (*RecoveryInfo, error) {
	st, err := r.recovery.Load()
	if err != nil {
		return nil, err
	}
	if st == nil || st.IsComplete {
		return nil, nil
	}

	info := &RecoveryInfo{
		BatchID:   st.BatchID,
		StartedAt: st.StartedAt,
		Total:     len(st.Tasks),
	}
	for _, t := range st.Tasks {
		switch t.Status {
		case models.TaskComplete:
			info.Complete++
		case models.TaskFailed:
			info.Failed++
		case models.TaskPending:
			info.Pending++
		case models.TaskRunning:
			info.Running++
		case models.TaskMerged:
			info.Merged++
		}
	}
	return info, nil
}

// ResumeRecovery cleans up worktrees left in running state by a crash
// and returns the task texts still pending or running, for the caller
// to resubmit as a fresh batch. The old batch record is cleared.
func (r *Runner) ResumeRecovery() ([]string, error) {
	st, err := r.recovery.Load()
	if err != nil {
		return nil, err
	}
	if st == nil || st.IsComplete {
		return nil, nil
	}

	var resubmit []string
	for _, t := range st.Tasks {
		switch t.Status {
		case models.TaskRunning:
			// Stale from the crash; the worktree's contents are not
			// trustworthy, so drop it and rerun the task.
			if t.WorktreePath != "" {
				if err := r.worktrees.Remove(t.WorktreePath, true); err != nil {
					log.Printf("[orchestrator] cleanup of stale worktree %s: %v", t.WorktreePath, err)
				}
			}
			resubmit = append(resubmit, t.Task)
		case models.TaskPending:
			if t.WorktreePath != "" {
				if err := r.worktrees.Remove(t.WorktreePath, true); err != nil {
					log.Printf("[orchestrator] cleanup of pending worktree %s: %v", t.WorktreePath, err)
				}
			}
			resubmit = append(resubmit, t.Task)
		}
	}

	if err := r.recovery.Clear(); err != nil {
		return resubmit, err
	}
	return resubmit, nil
}

// AbandonRecovery removes every worktree referenced by the persisted
// batch and discards the batch record without resuming anything.
func (r *Runner) AbandonRecovery() error {
	st, err := r.recovery.Load()
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}

	for _, t := range st.Tasks {
		if t.WorktreePath == "" {
			continue
		}
		if err := r.worktrees.Remove(t.WorktreePath, true); err != nil {
			log.Printf("[orchestrator] abandon cleanup of %s: %v", t.WorktreePath, err)
		}
	}

	return r.recovery.Clear()
}
