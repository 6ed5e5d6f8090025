package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/davenport-labs/flotilla/internal/fixstore"
	"github.com/davenport-labs/flotilla/internal/git"
)

var (
	patternsPrune     time.Duration
	patternsRemediate bool
	patternsCategory  string
	patternsMessage   string
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect the error-fix pattern store",
	Long: `Inspect what Flotilla has learned about recurring errors.

With no flags, lists known error patterns with their recorded fixes,
occurrence counts, and fix success rates, plus pending errors and
permanent failures.

Use --prune to delete stale patterns that never produced a fix, or
--remediate with --category and --message to replay the best stored
patch for an error against the current working tree.`,
	RunE: runPatterns,
}

func init() {
	patternsCmd.Flags().DurationVar(&patternsPrune, "prune", 0, "Delete fixless patterns older than this (e.g. 720h)")
	patternsCmd.Flags().BoolVar(&patternsRemediate, "remediate", false, "Replay the best stored patch for an error")
	patternsCmd.Flags().StringVar(&patternsCategory, "category", "", "Error category for --remediate")
	patternsCmd.Flags().StringVar(&patternsMessage, "message", "", "Error message for --remediate")
	patternsCmd.MarkFlagsRequiredTogether("remediate", "category", "message")
}

func runPatterns(cmd *cobra.Command, args []string) error {
	mutating := patternsPrune > 0 || patternsRemediate

	rt, err := newRuntime(mutating)
	if err != nil {
		return err
	}
	defer rt.Close()

	if patternsPrune > 0 {
		deleted, err := rt.fixes.PruneOldPatterns(patternsPrune)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d stale pattern(s).\n", deleted)
		return nil
	}

	if patternsRemediate {
		return remediatePattern(cmd, rt)
	}

	return listPatterns(rt.fixes)
}

// remediatePattern replays the best stored patch for the given error
// in the repository working tree.
func remediatePattern(cmd *cobra.Command, rt *runtime) error {
	applier := fixstore.NewGitApplier(git.NewRunner(rt.repoPath))
	res := rt.fixes.TryAutoRemediate(cmd.Context(), patternsCategory, patternsMessage, applier)

	switch {
	case res.Applied:
		color.Green("✓ patch applied (files: %v)", res.PatchedFiles)
		return nil
	case res.Attempted:
		return fmt.Errorf("stored patch did not apply: %w", res.Error)
	default:
		fmt.Printf("No replayable patch for signature %s.\n", res.Signature)
		return nil
	}
}

// listPatterns renders the store's contents.
func listPatterns(store *fixstore.Store) error {
	patterns := store.Patterns()
	if len(patterns) == 0 {
		fmt.Println("No error patterns recorded yet.")
	}

	for _, p := range patterns {
		rate := ""
		if p.Occurrences > 0 {
			rate = fmt.Sprintf(", %.0f%% fixed", float64(p.FixSuccesses)/float64(p.Occurrences)*100)
		}
		fmt.Printf("%s [%s] seen %d time(s)%s\n", p.Signature, p.Category, p.Occurrences, rate)
		fmt.Printf("  %s\n", p.SampleMessage)
		for i := len(p.Fixes) - 1; i >= 0; i-- {
			f := p.Fixes[i]
			patchNote := ""
			if f.PatchData != "" {
				patchNote = fmt.Sprintf(" [patch, %d replays, %.0f%% ok]", f.AutoApplyCount, f.AutoApplySuccessRate*100)
			}
			fmt.Printf("  fix: %s (%v)%s\n", f.EditSummary, f.FilesChanged, patchNote)
		}
	}

	if pending := store.Pending(); len(pending) > 0 {
		fmt.Printf("\n%d pending error(s):\n", len(pending))
		for _, pe := range pending {
			fmt.Printf("  %s [%s] task %s\n", pe.Signature, pe.Category, pe.TaskID)
		}
	}

	if failures := store.Failures(); len(failures) > 0 {
		color.Red("\n%d permanent failure(s):", len(failures))
		for _, f := range failures {
			fmt.Printf("  %s [%s] %s\n", f.Signature, f.Category, f.Objective)
		}
	}

	return nil
}
