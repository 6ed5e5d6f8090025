// Package orchestrator fans tasks out across isolated git worktrees,
// bounded by a concurrency cap, then serially rebases, verifies, and
// merges the successful branches back onto main. Batch state is
// persisted on every transition so a crash can be recovered.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davenport-labs/flotilla/internal/executor"
	"github.com/davenport-labs/flotilla/internal/fixstore"
	"github.com/davenport-labs/flotilla/internal/git"
	"github.com/davenport-labs/flotilla/internal/worktree"
	"github.com/davenport-labs/flotilla/pkg/models"
)

// PauseGate is the rate-limit gate checked before a batch starts.
type PauseGate interface {
	IsPaused() bool
	CheckAutoResume() bool
}

// UsageRecorder receives one record per executor attempt, one throttle
// event per rate-limited invocation, and answers totals for the budget
// gate.
type UsageRecorder interface {
	RecordUsage(taskID string, model models.Model, inputTokens, outputTokens int64, meta map[string]string) error
	RecordRateLimitHit(model models.Model, message string) error
	TotalUsage(taskID string) (inputTokens, outputTokens int64)
}

// RateTracker combines the gate and the usage sink; the rate-limit
// tracker implements both.
type RateTracker interface {
	PauseGate
	UsageRecorder
}

// MergeGit is the per-directory git surface the merge and repair
// phases need.
type MergeGit interface {
	git.BranchOperations
	git.CommitOperations
	git.DiffOperations
	git.MergeOperations
	git.PatchOperations
}

// GitFactory builds a git runner scoped to a directory. The merge
// phase runs fetch/rebase/push inside each task's worktree.
type GitFactory func(dir string) MergeGit

// Config wires a Runner.
type Config struct {
	// RepoPath is the main repository checkout.
	RepoPath string
	// MainBranch is the branch merges land on. Default "main".
	MainBranch string
	// Remote is the remote merges push to. Default "origin".
	Remote string
	// MaxConcurrent caps the fan-out width. Default 3.
	MaxConcurrent int
	// Model is the worker model for executor invocations.
	Model models.Model
	// TokenBudget caps total recorded tokens across batches; zero
	// disables the gate.
	TokenBudget int64

	Worktrees worktree.Provider
	Executor  executor.Executor
	Tracker   RateTracker
	Recovery  *RecoveryStore
	Conflicts *ConflictTracker
	Verifier  Verifier
	// Fixes enables the error-fix learning loop on verification
	// failures. Nil disables learning; failed merges just fail.
	Fixes *fixstore.Store
	// GitFor defaults to git.NewRunner per directory.
	GitFor GitFactory
}

// Runner executes task batches.
type Runner struct {
	repoPath      string
	mainBranch    string
	remote        string
	maxConcurrent int
	model         models.Model
	tokenBudget   int64

	worktrees worktree.Provider
	exec      executor.Executor
	tracker   RateTracker
	recovery  *RecoveryStore
	conflicts *ConflictTracker
	verifier  Verifier
	fixes     *fixstore.Store
	gitFor    GitFactory

	// batchMu serializes batch-state mutation and persistence during
	// the fan-out phase.
	batchMu sync.Mutex
}

// NewRunner validates the config and builds a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.RepoPath == "" {
		return nil, fmt.Errorf("repo path is required")
	}
	if cfg.Worktrees == nil {
		return nil, fmt.Errorf("worktree provider is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("rate tracker is required")
	}
	if cfg.Recovery == nil {
		return nil, fmt.Errorf("recovery store is required")
	}

	if cfg.MainBranch == "" {
		cfg.MainBranch = "main"
	}
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.Model == "" {
		cfg.Model = models.ModelSonnet
	}
	if cfg.Conflicts == nil {
		cfg.Conflicts = NewConflictTracker("")
	}
	if cfg.GitFor == nil {
		cfg.GitFor = func(dir string) MergeGit { return git.NewRunner(dir) }
	}

	return &Runner{
		repoPath:      cfg.RepoPath,
		mainBranch:    cfg.MainBranch,
		remote:        cfg.Remote,
		maxConcurrent: cfg.MaxConcurrent,
		model:         cfg.Model,
		tokenBudget:   cfg.TokenBudget,
		worktrees:     cfg.Worktrees,
		exec:          cfg.Executor,
		tracker:       cfg.Tracker,
		recovery:      cfg.Recovery,
		conflicts:     cfg.Conflicts,
		verifier:      cfg.Verifier,
		fixes:         cfg.Fixes,
		gitFor:        cfg.GitFor,
	}, nil
}

// TaskResult is one task's outcome within a batch.
type TaskResult struct {
	TaskID        string
	Task          string
	Branch        string
	WorktreePath  string
	Status        models.TaskStatus
	Error         string
	ModifiedFiles []string
	Attempts      []executor.AttemptUsage
	Merged        bool
	MergeError    string
	Duration      time.Duration
}

// BatchResult summarizes a batch.
type BatchResult struct {
	BatchID     string
	Results     []TaskResult
	Successful  int
	Failed      int
	Merged      int
	MergeFailed int
	Duration    time.Duration
}

// RunBatch executes tasks concurrently in isolated worktrees and
// serially merges the successful branches onto main, in submission
// order. Tasks beyond the concurrency cap are dropped from this batch
// and must be resubmitted by the caller.
func (r *Runner) RunBatch(ctx context.Context, tasks []string) (*BatchResult, error) {
	start := time.Now()

	// Rate-limit gate: no worktrees, no tokens while paused.
	if !r.tracker.CheckAutoResume() {
		log.Printf("[orchestrator] rate-limit pause active, batch not started")
		return &BatchResult{Duration: time.Since(start)}, nil
	}

	// Budget gate: an exhausted token budget holds back the batch the
	// same way a pause does.
	if r.tokenBudget > 0 {
		in, out := r.tracker.TotalUsage("")
		if in+out >= r.tokenBudget {
			log.Printf("[orchestrator] token budget exhausted (%d of %d used), batch not started",
				in+out, r.tokenBudget)
			return &BatchResult{Duration: time.Since(start)}, nil
		}
	}

	if len(tasks) == 0 {
		return &BatchResult{Duration: time.Since(start)}, nil
	}

	// Single-task fast path: no worktree, run in the primary checkout.
	if len(tasks) == 1 && r.maxConcurrent == 1 {
		return r.runSingle(ctx, tasks[0], start)
	}

	if len(tasks) > r.maxConcurrent {
		log.Printf("[orchestrator] dropping %d task(s) beyond concurrency cap %d",
			len(tasks)-r.maxConcurrent, r.maxConcurrent)
		tasks = tasks[:r.maxConcurrent]
	}

	// Preparation: one worktree per task. Creation failure is
	// task-scoped; siblings proceed.
	batch := &models.ParallelRecoveryState{
		BatchID:       uuid.New().String()[:8],
		StartedAt:     start,
		Model:         r.model,
		MaxConcurrent: r.maxConcurrent,
	}
	results := make([]TaskResult, len(tasks))

	for i, task := range tasks {
		taskID := uuid.New().String()[:8]
		results[i] = TaskResult{TaskID: taskID, Task: task}
		state := models.ParallelTaskState{TaskID: taskID, Task: task, Status: models.TaskPending}

		wt, err := r.worktrees.Create(taskID)
		if err != nil {
			results[i].Status = models.TaskFailed
			results[i].Error = fmt.Sprintf("create worktree: %v", err)
			state.Status = models.TaskFailed
			state.Error = results[i].Error
		} else {
			results[i].Branch = wt.Branch
			results[i].WorktreePath = wt.Path
			state.Branch = wt.Branch
			state.WorktreePath = wt.Path
		}
		batch.Tasks = append(batch.Tasks, state)
	}

	// Durable checkpoint before anything executes.
	if err := r.recovery.Save(batch); err != nil {
		return nil, fmt.Errorf("persist recovery snapshot: %w", err)
	}

	// Fan-out. Each goroutine owns its result slot; batch state
	// mutation goes through updateTask.
	var wg sync.WaitGroup
	for i := range results {
		if results[i].Status == models.TaskFailed {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.runTask(ctx, batch, i, &results[i])
		}(i)
	}
	wg.Wait()

	// Conflict accounting over successful tasks, informational only.
	for _, res := range results {
		if res.Status == models.TaskComplete {
			r.conflicts.Record(res.TaskID, res.ModifiedFiles)
		}
	}
	for file, ids := range r.conflicts.Conflicts() {
		log.Printf("[orchestrator] %s modified by tasks %s; rebase will reconcile", file, strings.Join(ids, ", "))
	}

	// Serial merge in submission order. Merge failures are task-scoped
	// and never roll back an earlier merge.
	for i := range results {
		if results[i].Status != models.TaskComplete {
			continue
		}
		if err := r.mergeTask(ctx, &results[i]); err != nil {
			results[i].MergeError = err.Error()
			log.Printf("[orchestrator] merge of %s failed: %v", results[i].TaskID, err)
			continue
		}
		results[i].Merged = true
		results[i].Status = models.TaskMerged
		r.updateTask(batch, i, func(t *models.ParallelTaskState) {
			t.Status = models.TaskMerged
		})
	}

	// Usage accounting: one record per attempt, not per task. Runs
	// after the merge phase so repair attempts are counted too.
	for _, res := range results {
		for _, a := range res.Attempts {
			if err := r.tracker.RecordUsage(res.TaskID, a.Model, a.InputTokens, a.OutputTokens, nil); err != nil {
				log.Printf("[orchestrator] record usage for %s: %v", res.TaskID, err)
			}
		}
	}

	// Cleanup is best-effort for every worktree created above. Merged
	// branches are deleted; failed ones stay for inspection.
	for i := range results {
		if results[i].WorktreePath == "" {
			continue
		}
		if err := r.worktrees.Remove(results[i].WorktreePath, true); err != nil {
			log.Printf("[orchestrator] cleanup of %s: %v", results[i].WorktreePath, err)
		}
		if results[i].Merged && results[i].Branch != "" {
			if err := r.gitFor(r.repoPath).DeleteBranch(results[i].Branch); err != nil {
				log.Printf("[orchestrator] delete merged branch %s: %v", results[i].Branch, err)
			}
		}
	}

	if err := r.conflicts.Save(); err != nil {
		log.Printf("[orchestrator] persist conflict state: %v", err)
	}

	batch.IsComplete = true
	if err := r.recovery.Save(batch); err != nil {
		log.Printf("[orchestrator] persist batch close: %v", err)
	}

	return r.summarize(batch.BatchID, results, start), nil
}

// runTask executes one prepared task inside its worktree.
func (r *Runner) runTask(ctx context.Context, batch *models.ParallelRecoveryState, i int, res *TaskResult) {
	taskStart := time.Now()
	r.updateTask(batch, i, func(t *models.ParallelTaskState) {
		t.Status = models.TaskRunning
		t.StartedAt = &taskStart
	})

	invokeRes, err := r.exec.Invoke(ctx, executor.InvokeRequest{
		TaskID:        res.TaskID,
		Prompt:        res.Task,
		Model:         r.model,
		WorkingDir:    res.WorktreePath,
		DisallowedOps: []string{"git push"},
	})
	if invokeRes != nil {
		res.Attempts = invokeRes.Attempts
	}
	res.Duration = time.Since(taskStart)

	if err != nil || invokeRes == nil || invokeRes.Status != executor.StatusSuccess {
		res.Status = models.TaskFailed
		switch {
		case err != nil:
			res.Error = err.Error()
		case invokeRes != nil:
			res.Error = invokeRes.Error
		}
		r.noteRateLimit(invokeRes)
	} else {
		res.Status = models.TaskComplete
		files, derr := r.gitFor(res.WorktreePath).ChangedFilesRelative("HEAD", r.mainBranch)
		if derr != nil {
			log.Printf("[orchestrator] diff for %s: %v", res.TaskID, derr)
		}
		res.ModifiedFiles = files
	}

	done := time.Now()
	r.updateTask(batch, i, func(t *models.ParallelTaskState) {
		t.Status = res.Status
		t.CompletedAt = &done
		t.Error = res.Error
		t.ModifiedFiles = res.ModifiedFiles
	})
}

// mergeTask rebases one completed branch onto main, verifies it, and
// pushes it. Called strictly serially.
func (r *Runner) mergeTask(ctx context.Context, res *TaskResult) error {
	// The worktree may have vanished under us.
	if _, err := os.Stat(res.WorktreePath); err != nil {
		return fmt.Errorf("worktree missing: %w", err)
	}

	g := r.gitFor(res.WorktreePath)

	base := r.remote + "/" + r.mainBranch
	if err := g.Fetch(r.remote, r.mainBranch); err != nil {
		// No remote configured; rebase onto the local main branch.
		log.Printf("[orchestrator] fetch %s/%s: %v, using local branch", r.remote, r.mainBranch, err)
		base = r.mainBranch
	}

	if err := g.Rebase(base); err != nil {
		if abortErr := g.RebaseAbort(); abortErr != nil {
			log.Printf("[orchestrator] rebase abort for %s: %v", res.TaskID, abortErr)
		}
		return fmt.Errorf("rebase onto %s: %w", base, err)
	}

	if r.verifier != nil {
		if verr := r.verifier.Verify(ctx, res.WorktreePath); verr != nil {
			if err := r.repairVerifyFailure(ctx, g, res, verr); err != nil {
				return err
			}
		}
	}

	if err := g.Push(r.remote, "HEAD", r.mainBranch); err != nil {
		return fmt.Errorf("push to %s: %w", r.mainBranch, err)
	}

	// Best-effort sync of the primary checkout onto the new main.
	if err := r.gitFor(r.repoPath).PullFFOnly(); err != nil {
		log.Printf("[orchestrator] primary checkout sync: %v", err)
	}
	return nil
}

// runSingle is the single-task fast path: no worktree, no merge.
func (r *Runner) runSingle(ctx context.Context, task string, start time.Time) (*BatchResult, error) {
	taskID := uuid.New().String()[:8]
	res := TaskResult{TaskID: taskID, Task: task}

	invokeRes, err := r.exec.Invoke(ctx, executor.InvokeRequest{
		TaskID:        taskID,
		Prompt:        task,
		Model:         r.model,
		WorkingDir:    r.repoPath,
		DisallowedOps: []string{"git push"},
	})
	if invokeRes != nil {
		res.Attempts = invokeRes.Attempts
		for _, a := range invokeRes.Attempts {
			if uerr := r.tracker.RecordUsage(taskID, a.Model, a.InputTokens, a.OutputTokens, nil); uerr != nil {
				log.Printf("[orchestrator] record usage for %s: %v", taskID, uerr)
			}
		}
	}
	res.Duration = time.Since(start)

	if err != nil || invokeRes == nil || invokeRes.Status != executor.StatusSuccess {
		res.Status = models.TaskFailed
		switch {
		case err != nil:
			res.Error = err.Error()
		case invokeRes != nil:
			res.Error = invokeRes.Error
		}
		r.noteRateLimit(invokeRes)
	} else {
		res.Status = models.TaskComplete
	}

	return r.summarize("", []TaskResult{res}, start), nil
}

// noteRateLimit forwards a throttled invocation to the tracker so the
// pause gate engages before the next batch.
func (r *Runner) noteRateLimit(invokeRes *executor.InvokeResult) {
	if invokeRes == nil || invokeRes.Status != executor.StatusRateLimit {
		return
	}
	if err := r.tracker.RecordRateLimitHit(r.model, invokeRes.Error); err != nil {
		log.Printf("[orchestrator] record rate-limit hit: %v", err)
	}
}

// updateTask mutates one task's persisted state and re-persists the
// batch synchronously.
func (r *Runner) updateTask(batch *models.ParallelRecoveryState, i int, fn func(*models.ParallelTaskState)) {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	fn(&batch.Tasks[i])
	if err := r.recovery.Save(batch); err != nil {
		log.Printf("[orchestrator] persist batch state: %v", err)
	}
}

// summarize folds per-task results into batch counters.
func (r *Runner) summarize(batchID string, results []TaskResult, start time.Time) *BatchResult {
	br := &BatchResult{
		BatchID:  batchID,
		Results:  results,
		Duration: time.Since(start),
	}
	for _, res := range results {
		switch {
		case res.Merged:
			br.Successful++
			br.Merged++
		case res.Status == models.TaskComplete:
			br.Successful++
			if res.MergeError != "" {
				br.MergeFailed++
			}
		default:
			br.Failed++
		}
	}
	return br
}
