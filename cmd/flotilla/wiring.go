package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/davenport-labs/flotilla/internal/complexity"
	"github.com/davenport-labs/flotilla/internal/config"
	flotexec "github.com/davenport-labs/flotilla/internal/exec"
	"github.com/davenport-labs/flotilla/internal/executor"
	"github.com/davenport-labs/flotilla/internal/fixstore"
	"github.com/davenport-labs/flotilla/internal/git"
	"github.com/davenport-labs/flotilla/internal/learning"
	"github.com/davenport-labs/flotilla/internal/lockfile"
	"github.com/davenport-labs/flotilla/internal/orchestrator"
	"github.com/davenport-labs/flotilla/internal/ratelimit"
	"github.com/davenport-labs/flotilla/internal/worktree"
	"github.com/davenport-labs/flotilla/pkg/models"
)

// runtime bundles the engine components wired from config for one
// command invocation.
type runtime struct {
	cfg      *config.Config
	repoPath string
	stateDir string

	// lock is held for commands that mutate state; nil for read-only
	// wiring.
	lock *lockfile.Lock

	tracker   *ratelimit.Tracker
	fixes     *fixstore.Store
	risk      *learning.RiskStore
	worktrees *worktree.Manager
	recovery  *orchestrator.RecoveryStore
	scorer    *complexity.Scorer
}

// newRuntime loads config, locates the repository, and opens the
// state stores. When lockState is true the pidfile lock is taken so
// concurrent Flotilla processes cannot corrupt the stores.
func newRuntime(lockState bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	top, err := git.NewRunner(cwd).Run("rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not inside a git repository: %w", err)
	}
	repoPath := strings.TrimSpace(top)
	stateDir := config.StateDir(repoPath)

	rt := &runtime{cfg: cfg, repoPath: repoPath, stateDir: stateDir}

	if lockState {
		lock, err := lockfile.Acquire(filepath.Join(stateDir, "flotilla.lock"))
		if err != nil {
			return nil, err
		}
		rt.lock = lock
	}

	rt.tracker = ratelimit.NewTracker(filepath.Join(stateDir, "rate-limits.json"))

	rt.fixes, err = fixstore.Open(filepath.Join(stateDir, "error-fix-patterns.json"))
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.risk, err = learning.NewRiskStore(learning.DefaultDBPath(stateDir))
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.worktrees, err = worktree.NewManager("", repoPath)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.recovery = orchestrator.NewRecoveryStore(filepath.Join(stateDir, "parallel-recovery.json"))

	rt.scorer = complexity.NewScorer(
		complexity.WithCollector(complexity.NewCollector(repoPath, git.NewRunner(repoPath), nil)),
		complexity.WithRiskSource(rt.risk),
		complexity.WithModelCeiling(cfg.ModelCeiling()),
	)

	return rt, nil
}

// Close releases the lock and the sqlite handle.
func (rt *runtime) Close() {
	if rt.risk != nil {
		if err := rt.risk.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close risk store: %v\n", err)
		}
	}
	if rt.lock != nil {
		if err := rt.lock.Release(); err != nil {
			fmt.Fprintf(os.Stderr, "release lock: %v\n", err)
		}
	}
}

// batchRunner builds the orchestrator with a live Claude executor for
// the given worker model.
func (rt *runtime) batchRunner(ctx context.Context, model models.Model, maxConcurrent int) (*orchestrator.Runner, error) {
	exec, err := executor.NewClaudeExecutor(ctx, executor.ClientConfig{
		APIKey:        rt.cfg.Anthropic.APIKey,
		UseAWSBedrock: rt.cfg.Anthropic.UseBedrock,
		AWSRegion:     rt.cfg.Anthropic.AWSRegion,
		AWSProfile:    rt.cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, err
	}

	var verifier orchestrator.Verifier
	if len(rt.cfg.Verify.Commands) > 0 {
		verifier = orchestrator.NewCommandVerifier(flotexec.NewRunner(), rt.cfg.Verify.Commands)
	}

	return orchestrator.NewRunner(orchestrator.Config{
		RepoPath:      rt.repoPath,
		MainBranch:    rt.cfg.Git.MainBranch,
		Remote:        rt.cfg.Git.Remote,
		MaxConcurrent: maxConcurrent,
		Model:         model,
		TokenBudget:   rt.cfg.Batch.TokenBudget,
		Worktrees:     rt.worktrees,
		Executor:      exec,
		Tracker:       rt.tracker,
		Recovery:      rt.recovery,
		Conflicts:     orchestrator.NewConflictTracker(filepath.Join(rt.stateDir, "conflicts.json")),
		Verifier:      verifier,
		Fixes:         rt.fixes,
	})
}
