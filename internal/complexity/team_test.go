package complexity

import (
	"testing"

	"github.com/davenport-labs/flotilla/pkg/models"
)

func TestTeamCompositionTable(t *testing.T) {
	tests := []struct {
		level          models.ComplexityLevel
		wantValidators int
		wantPlanning   bool
		wantWorker     models.Model
	}{
		{models.LevelTrivial, 0, false, models.ModelHaiku},
		{models.LevelSimple, 1, false, models.ModelSonnet},
		{models.LevelStandard, 2, true, models.ModelSonnet},
		{models.LevelComplex, 3, true, models.ModelSonnet},
		{models.LevelCritical, 5, true, models.ModelOpus},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			team := GetTeamComposition(tt.level, "")
			if team.ValidatorCount != tt.wantValidators {
				t.Errorf("ValidatorCount = %d, want %d", team.ValidatorCount, tt.wantValidators)
			}
			if team.NeedsPlanning != tt.wantPlanning {
				t.Errorf("NeedsPlanning = %v, want %v", team.NeedsPlanning, tt.wantPlanning)
			}
			if team.WorkerModel != tt.wantWorker {
				t.Errorf("WorkerModel = %s, want %s", team.WorkerModel, tt.wantWorker)
			}
		})
	}
}

func TestTeamValidatorCountMonotonic(t *testing.T) {
	prev := -1
	for _, level := range models.Levels() {
		team := GetTeamComposition(level, "")
		if team.ValidatorCount < prev {
			t.Errorf("ValidatorCount(%s) = %d, below previous level's %d", level, team.ValidatorCount, prev)
		}
		prev = team.ValidatorCount
	}
}

func TestTeamCeilingClamp(t *testing.T) {
	ceilings := []models.Model{models.ModelHaiku, models.ModelSonnet, models.ModelOpus}

	for _, level := range models.Levels() {
		for _, ceiling := range ceilings {
			team := GetTeamComposition(level, ceiling)

			if team.WorkerModel.Rank() > ceiling.Rank() {
				t.Errorf("level %s ceiling %s: WorkerModel %s exceeds ceiling", level, ceiling, team.WorkerModel)
			}
			if team.PlannerModel != "" && team.PlannerModel.Rank() > ceiling.Rank() {
				t.Errorf("level %s ceiling %s: PlannerModel %s exceeds ceiling", level, ceiling, team.PlannerModel)
			}
			if team.ValidatorModel != "" && team.ValidatorModel.Rank() > ceiling.Rank() {
				t.Errorf("level %s ceiling %s: ValidatorModel %s exceeds ceiling", level, ceiling, team.ValidatorModel)
			}
			if team.ModelCeiling != ceiling {
				t.Errorf("level %s ceiling %s: ModelCeiling = %s", level, ceiling, team.ModelCeiling)
			}
		}
	}
}

func TestTeamNoCeilingLeavesModels(t *testing.T) {
	team := GetTeamComposition(models.LevelCritical, "")
	if team.WorkerModel != models.ModelOpus {
		t.Errorf("WorkerModel = %s, want opus", team.WorkerModel)
	}
	if team.ModelCeiling != "" {
		t.Errorf("ModelCeiling = %s, want empty", team.ModelCeiling)
	}
}
