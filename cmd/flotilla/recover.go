package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	recoverResume  bool
	recoverAbandon bool
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Inspect or resolve an interrupted batch",
	Long: `Inspect the persisted state of a batch that did not finish.

With no flags, prints what the interrupted batch was doing. Use
--resume to clean up its stale worktrees and rerun the unfinished
tasks, or --abandon to discard the batch entirely. Work that already
merged is kept either way.`,
	RunE: runRecover,
}

func init() {
	recoverCmd.Flags().BoolVar(&recoverResume, "resume", false, "Rerun the unfinished tasks")
	recoverCmd.Flags().BoolVar(&recoverAbandon, "abandon", false, "Discard the interrupted batch")
	recoverCmd.MarkFlagsMutuallyExclusive("resume", "abandon")
}

func runRecover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	runner, err := rt.batchRunner(ctx, rt.cfg.Model(), rt.cfg.Batch.MaxConcurrent)
	if err != nil {
		return err
	}

	active, err := runner.HasActiveRecovery()
	if err != nil {
		return err
	}
	if !active {
		fmt.Println("No interrupted batch found.")
		return nil
	}

	info, err := runner.GetRecoveryInfo()
	if err != nil {
		return err
	}
	fmt.Printf("Interrupted batch %s (started %s):\n", info.BatchID, info.StartedAt.Format("2006-01-02 15:04"))
	fmt.Printf("  %d task(s): %d merged, %d complete, %d failed, %d running, %d pending\n",
		info.Total, info.Merged, info.Complete, info.Failed, info.Running, info.Pending)

	switch {
	case recoverAbandon:
		if err := runner.AbandonRecovery(); err != nil {
			return err
		}
		color.Yellow("Batch abandoned; stale worktrees removed.")
		return nil

	case recoverResume:
		tasks, err := runner.ResumeRecovery()
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("Nothing to rerun.")
			return nil
		}
		color.Cyan("Rerunning %d unfinished task(s).", len(tasks))
		return executeBatches(ctx, rt, tasks, rt.cfg.Model(), rt.cfg.Batch.MaxConcurrent)

	default:
		fmt.Println("\nRun 'flotilla recover --resume' to rerun the unfinished tasks,")
		fmt.Println("or 'flotilla recover --abandon' to discard the batch.")
		return nil
	}
}
