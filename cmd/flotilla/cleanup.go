package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/davenport-labs/flotilla/pkg/models"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned task worktrees",
	Long: `Remove worktrees left behind by crashed or killed runs.

Only worktrees on flotilla-prefixed branches are touched, and tasks
referenced by an interrupted batch are kept so 'flotilla recover' can
still inspect them.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Tasks of an unfinished batch are still active.
	var activeIDs []string
	if batch, err := rt.recovery.Load(); err == nil && batch != nil && !batch.IsComplete {
		for _, t := range batch.Tasks {
			if t.Status == models.TaskPending || t.Status == models.TaskRunning {
				activeIDs = append(activeIDs, t.TaskID)
			}
		}
	}

	removed, err := rt.worktrees.CleanupOrphans(activeIDs, func(path string) {
		fmt.Printf("removed %s\n", path)
	})
	if err != nil {
		return err
	}

	if removed == 0 {
		fmt.Println("No orphaned worktrees found.")
		return nil
	}
	color.Green("✓ removed %d orphaned worktree(s)", removed)
	return nil
}
