package models

import "time"

// TaskStatus represents the lifecycle state of a task within a
// parallel batch: pending -> running -> complete|failed, and merged
// once a complete task's branch lands on main.
type TaskStatus string

const (
	// TaskPending indicates the task has a worktree but has not started.
	TaskPending TaskStatus = "pending"
	// TaskRunning indicates the executor is working on the task.
	TaskRunning TaskStatus = "running"
	// TaskComplete indicates the executor finished successfully.
	TaskComplete TaskStatus = "complete"
	// TaskFailed indicates worktree creation or execution failed.
	TaskFailed TaskStatus = "failed"
	// TaskMerged indicates the task's branch was merged to main.
	// Only reachable from TaskComplete.
	TaskMerged TaskStatus = "merged"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskRunning, TaskComplete, TaskFailed, TaskMerged:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further execution happens for the task.
// Merged is terminal; complete tasks may still be merged.
func (s TaskStatus) Terminal() bool {
	return s == TaskComplete || s == TaskFailed || s == TaskMerged
}

// ParallelTaskState is the persisted per-task record inside a batch.
// It is owned exclusively by the batch runner and re-persisted on
// every status transition so a crash can be recovered.
type ParallelTaskState struct {
	// TaskID uniquely identifies the task within the batch.
	TaskID string `json:"task_id"`
	// Task is the original task text.
	Task string `json:"task"`
	// WorktreePath is the isolated working copy for this task.
	WorktreePath string `json:"worktree_path,omitempty"`
	// Branch is the task's branch name.
	Branch string `json:"branch,omitempty"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// StartedAt is when execution began, if it did.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Error holds the failure message for failed tasks.
	Error string `json:"error,omitempty"`
	// ModifiedFiles lists files the task changed relative to main.
	ModifiedFiles []string `json:"modified_files,omitempty"`
}

// ParallelRecoveryState is the durable batch-level record. It is the
// single source of truth for crash recovery: persisted before any task
// executes and after every state transition.
type ParallelRecoveryState struct {
	// BatchID uniquely identifies the batch.
	BatchID string `json:"batch_id"`
	// StartedAt is when the batch began.
	StartedAt time.Time `json:"started_at"`
	// Tasks holds one entry per task in submission order.
	Tasks []ParallelTaskState `json:"tasks"`
	// Model is the worker model the batch was started with.
	Model Model `json:"model,omitempty"`
	// MaxConcurrent is the concurrency cap the batch was started with.
	MaxConcurrent int `json:"max_concurrent,omitempty"`
	// IsComplete is set once the batch has fully closed out.
	IsComplete bool `json:"is_complete"`
	// LastUpdated is bumped on every persist.
	LastUpdated time.Time `json:"last_updated"`
}
