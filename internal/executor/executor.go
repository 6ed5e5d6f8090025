// Package executor runs a task's agent session inside a working
// directory and reports the outcome with per-attempt token usage.
package executor

import (
	"context"
	"time"

	"github.com/davenport-labs/flotilla/pkg/models"
)

// InvokeStatus is the terminal state of one executor invocation.
type InvokeStatus string

const (
	StatusSuccess   InvokeStatus = "success"
	StatusFailed    InvokeStatus = "failed"
	StatusRateLimit InvokeStatus = "rate_limited"
)

// AttemptUsage is the token consumption of one model attempt within
// an invocation.
type AttemptUsage struct {
	Model        models.Model `json:"model"`
	InputTokens  int64        `json:"input_tokens"`
	OutputTokens int64        `json:"output_tokens"`
}

// InvokeRequest describes one task execution.
type InvokeRequest struct {
	// TaskID identifies the task for usage accounting.
	TaskID string
	// Prompt is the task text, already enriched with fix suggestions
	// and failure warnings by the caller.
	Prompt string
	// Model is the tier to run the session with.
	Model models.Model
	// WorkingDir is the checkout the session operates in, usually an
	// isolated worktree.
	WorkingDir string
	// DisallowedOps are shell operations the session must not run.
	// The orchestrator always includes "git push": it owns all pushes.
	DisallowedOps []string
}

// InvokeResult is the outcome of one invocation.
type InvokeResult struct {
	Status   InvokeStatus
	Output   string
	Attempts []AttemptUsage
	Duration time.Duration
	// Error describes the failure when Status is not success.
	Error string
}

// Executor runs agent sessions. Implementations may commit locally in
// the working directory but must never push to the remote.
type Executor interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error)
}
