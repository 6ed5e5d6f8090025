package complexity

import "github.com/davenport-labs/flotilla/pkg/models"

// teamTable is the fixed level-to-team mapping. Validator counts are
// monotonically non-decreasing in level, and every model field is
// clamped by the optional ceiling afterwards.
var teamTable = map[models.ComplexityLevel]models.TeamComposition{
	models.LevelTrivial: {
		NeedsPlanning:  false,
		WorkerModel:    models.ModelHaiku,
		ValidatorCount: 0,
	},
	models.LevelSimple: {
		NeedsPlanning:  false,
		WorkerModel:    models.ModelSonnet,
		ValidatorCount: 1,
		ValidatorModel: models.ModelHaiku,
	},
	models.LevelStandard: {
		NeedsPlanning:         true,
		PlannerModel:          models.ModelSonnet,
		WorkerModel:           models.ModelSonnet,
		ValidatorCount:        2,
		ValidatorModel:        models.ModelSonnet,
		IndependentValidators: true,
	},
	models.LevelComplex: {
		NeedsPlanning:         true,
		PlannerModel:          models.ModelOpus,
		WorkerModel:           models.ModelSonnet,
		ValidatorCount:        3,
		ValidatorModel:        models.ModelSonnet,
		IndependentValidators: true,
	},
	models.LevelCritical: {
		NeedsPlanning:         true,
		PlannerModel:          models.ModelOpus,
		WorkerModel:           models.ModelOpus,
		ValidatorCount:        5,
		ValidatorModel:        models.ModelOpus,
		IndependentValidators: true,
	},
}

// GetTeamComposition maps a complexity level (plus an optional model
// ceiling) to a concrete team. The ceiling clamps every model field in
// the haiku < sonnet < opus order.
func GetTeamComposition(level models.ComplexityLevel, ceiling models.Model) models.TeamComposition {
	team, ok := teamTable[level]
	if !ok {
		team = teamTable[models.LevelStandard]
	}

	if ceiling.Valid() {
		team.ModelCeiling = ceiling
		team.WorkerModel = models.ClampModel(team.WorkerModel, ceiling)
		if team.PlannerModel != "" {
			team.PlannerModel = models.ClampModel(team.PlannerModel, ceiling)
		}
		if team.ValidatorModel != "" {
			team.ValidatorModel = models.ClampModel(team.ValidatorModel, ceiling)
		}
	}

	return team
}
