package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/davenport-labs/flotilla/pkg/models"
)

var assessFiles []string

var assessCmd = &cobra.Command{
	Use:   "assess <task>",
	Short: "Score a task's complexity without running it",
	Long: `Score a task through the complexity engine and print the routing
decision: level, model tier, team composition, and the signals that
drove the score.

Pass --files to include quantitative metrics (file sizes, function
counts, git churn) for the files the task is expected to touch.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssess,
}

func init() {
	assessCmd.Flags().StringSliceVar(&assessFiles, "files", nil, "Files the task will touch, for quantitative scoring")
}

func runAssess(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	task := strings.Join(args, " ")
	a := rt.scorer.Assess(cmd.Context(), task, assessFiles)

	levelColor := color.New(levelAttr(a.Level))
	fmt.Printf("Level:      %s\n", levelColor.Sprint(a.Level))
	fmt.Printf("Model:      %s\n", a.Model)
	fmt.Printf("Confidence: %.0f%%\n", a.Confidence*100)
	fmt.Printf("Scope:      %s\n", a.EstimatedScope)
	fmt.Printf("Score:      %d\n", a.Score)
	fmt.Printf("Full chain: %v\n", a.UseFullChain)
	fmt.Printf("Review:     %v\n", a.NeedsReview)

	if a.LocalTool != nil {
		fmt.Printf("Local tool: %s (%s)\n", a.LocalTool.Command, a.LocalTool.Description)
	}

	fmt.Printf("Team:       worker=%s", a.Team.WorkerModel)
	if a.Team.NeedsPlanning {
		fmt.Printf(" planner=%s", a.Team.PlannerModel)
	}
	if a.Team.ValidatorCount > 0 {
		fmt.Printf(" validators=%dx%s", a.Team.ValidatorCount, a.Team.ValidatorModel)
	}
	fmt.Println()

	if len(a.Signals) > 0 {
		fmt.Println("Signals:")
		for _, s := range a.Signals {
			fmt.Printf("  %s\n", s)
		}
	}
	return nil
}

// levelAttr maps a complexity level to a display color.
func levelAttr(level models.ComplexityLevel) color.Attribute {
	switch level {
	case models.LevelTrivial, models.LevelSimple:
		return color.FgGreen
	case models.LevelStandard:
		return color.FgYellow
	default:
		return color.FgRed
	}
}
