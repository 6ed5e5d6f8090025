package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flotilla",
	Short: "Parallel coding-agent batch orchestrator",
	Long: `Flotilla routes coding tasks to the cheapest capable model tier,
fans them out across isolated git worktrees, and serially merges the
results back onto main.

Core capabilities:
- Scores task complexity from keywords, code metrics, and git history
- Short-circuits trivial tasks to deterministic local commands
- Runs each task's agent in its own worktree on its own branch
- Rebases, verifies, and merges completed branches in submission order
- Persists batch state so an interrupted run can be recovered
- Learns error-fix patterns and replays stored patches on recurrence`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(assessCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}
