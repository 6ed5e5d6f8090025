package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/davenport-labs/flotilla/internal/complexity"
	flotexec "github.com/davenport-labs/flotilla/internal/exec"
	"github.com/davenport-labs/flotilla/internal/fixstore"
	"github.com/davenport-labs/flotilla/internal/orchestrator"
	"github.com/davenport-labs/flotilla/pkg/models"
)

var (
	runModel         string
	runMaxConcurrent int
)

var runCmd = &cobra.Command{
	Use:   "run <task> [task...]",
	Short: "Run tasks through the batch orchestrator",
	Long: `Run one or more tasks as a parallel batch.

Each task is scored by the complexity engine first. Tasks that match a
deterministic local tool (format, lint, build, test) run directly with
no model invocation. The rest fan out across isolated git worktrees,
bounded by the concurrency cap, and completed branches are rebased,
verified, and merged back onto main in submission order.

The worker model is the highest tier any task in the batch was routed
to, clamped by the configured ceiling. Override it with --model.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTasks,
}

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "Worker model tier: haiku, sonnet, or opus (default: routed)")
	runCmd.Flags().IntVar(&runMaxConcurrent, "max-concurrent", 0, "Concurrency cap (default: from config)")
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	active, err := rt.recovery.Load()
	if err == nil && active != nil && !active.IsComplete {
		return fmt.Errorf("an interrupted batch from a previous run needs attention; run 'flotilla recover' first")
	}

	// Routing pass. Local-tool tasks execute immediately; the rest are
	// queued for the batch.
	var queued []string
	batchModel := models.Model("")
	for _, task := range args {
		a := rt.scorer.Assess(ctx, task, nil)

		if a.LocalTool != nil {
			if err := runLocalTool(ctx, rt, task, a.LocalTool); err != nil {
				return err
			}
			continue
		}

		color.Cyan("→ %s [%s, %s]", task, a.Level, a.Model)
		if batchModel == "" || a.Model.Rank() > batchModel.Rank() {
			batchModel = a.Model
		}
		queued = append(queued, task)
	}
	if len(queued) == 0 {
		return nil
	}

	if runModel != "" {
		m := models.Model(runModel)
		if !m.Valid() {
			return fmt.Errorf("unknown model tier %q", runModel)
		}
		batchModel = models.ClampModel(m, rt.cfg.ModelCeiling())
	}

	maxConcurrent := rt.cfg.Batch.MaxConcurrent
	if runMaxConcurrent > 0 {
		maxConcurrent = runMaxConcurrent
	}

	return executeBatches(ctx, rt, queued, batchModel, maxConcurrent)
}

// executeBatches runs tasks in chunks of maxConcurrent, resubmitting
// what one batch cannot hold into the next.
func executeBatches(ctx context.Context, rt *runtime, tasks []string, model models.Model, maxConcurrent int) error {
	runner, err := rt.batchRunner(ctx, model, maxConcurrent)
	if err != nil {
		return err
	}

	var failed int
	for len(tasks) > 0 {
		chunk := tasks
		if len(chunk) > maxConcurrent {
			chunk = chunk[:maxConcurrent]
		}
		tasks = tasks[len(chunk):]

		prompts := make([]string, len(chunk))
		for i, task := range chunk {
			prompts[i] = promptFor(rt.fixes, task)
		}

		result, err := runner.RunBatch(ctx, prompts)
		if err != nil {
			return err
		}
		if len(result.Results) == 0 {
			if rt.tracker.IsPaused() {
				color.Yellow("rate-limit pause active; %d task(s) not started", len(chunk)+len(tasks))
			} else {
				color.Yellow("token budget exhausted; %d task(s) not started", len(chunk)+len(tasks))
			}
			return nil
		}

		recordOutcomes(rt, chunk, result)
		printBatchSummary(rt, chunk, result)
		failed += result.Failed
	}

	if failed > 0 {
		return fmt.Errorf("%d task(s) failed", failed)
	}
	return nil
}

// runLocalTool executes a trivial task's deterministic command in the
// repository root.
func runLocalTool(ctx context.Context, rt *runtime, task string, tool *complexity.LocalTool) error {
	color.Cyan("→ %s [local: %s]", task, tool.Command)
	out, err := flotexec.NewRunner().RunShell(ctx, rt.repoPath, tool.Command)
	if len(out) > 0 {
		fmt.Print(string(out))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", tool.Command, err)
	}
	color.Green("✓ %s", tool.Description)
	return nil
}

// promptFor augments a task with warnings about historically doomed
// approaches, when the fix store has any that look relevant.
func promptFor(fixes *fixstore.Store, task string) string {
	warnings := fixes.FailureWarningsForTask(task, fixstore.DefaultMinOccurrences)
	if warnings == "" {
		return task
	}
	return task + "\n\n" + warnings
}

// recordOutcomes attributes each task's outcome to the keywords that
// routed it, feeding the scorer's risk bonus.
func recordOutcomes(rt *runtime, tasks []string, result *orchestrator.BatchResult) {
	for i, res := range result.Results {
		if i >= len(tasks) {
			break
		}
		keywords := complexity.TaskKeywords(tasks[i])
		if len(keywords) == 0 {
			continue
		}
		success := res.Status == models.TaskComplete || res.Status == models.TaskMerged
		if err := rt.risk.RecordOutcome(keywords, success); err != nil {
			fmt.Printf("record task outcome: %v\n", err)
		}
	}
}

// printBatchSummary renders one batch's outcome.
func printBatchSummary(rt *runtime, tasks []string, result *orchestrator.BatchResult) {
	for i, res := range result.Results {
		task := res.Task
		if i < len(tasks) {
			task = tasks[i]
		}
		switch {
		case res.Merged:
			color.Green("✓ merged: %s", task)
		case res.Status == models.TaskComplete && res.MergeError != "":
			color.Yellow("⚠ completed but not merged: %s (%s)", task, res.MergeError)
		case res.Status == models.TaskComplete:
			color.Green("✓ completed: %s", task)
		default:
			color.Red("✗ failed: %s (%s)", task, res.Error)
		}
	}

	var in, out int64
	for _, res := range result.Results {
		for _, a := range res.Attempts {
			in += a.InputTokens
			out += a.OutputTokens
		}
	}
	fmt.Printf("\n%d merged, %d failed in %s; %s tokens in, %s out; session cost $%.2f\n",
		result.Merged, result.Failed, result.Duration.Round(100*time.Millisecond),
		formatTokens(in), formatTokens(out), rt.tracker.TotalCost())
}

// formatTokens renders a token count compactly.
func formatTokens(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}
