package complexity

import (
	"github.com/davenport-labs/flotilla/pkg/models"
)

// Assessment is the immutable result of scoring one task. Signals is
// an ordered audit trail of every heuristic and metric that
// contributed to Score.
type Assessment struct {
	// Level is the derived complexity level.
	Level models.ComplexityLevel `json:"level"`
	// Confidence is how sure the scorer is, in [0,1].
	Confidence float64 `json:"confidence"`
	// Model is the execution model tier from the level policy.
	Model models.Model `json:"model"`
	// UseFullChain indicates the planner/worker/validator chain runs
	// instead of a solo worker.
	UseFullChain bool `json:"use_full_chain"`
	// NeedsReview indicates a review pass is required after the work.
	NeedsReview bool `json:"needs_review"`
	// EstimatedScope is the breadth estimate (single-file .. cross-package).
	EstimatedScope string `json:"estimated_scope"`
	// Signals is the ordered audit trail of contributing heuristics.
	Signals []string `json:"signals"`
	// Score is the cumulative heuristic score that produced Level.
	Score int `json:"score"`
	// Metrics holds the quantitative snapshot, when one was computed.
	Metrics *QuantitativeMetrics `json:"metrics,omitempty"`
	// Team is the composition derived from Level.
	Team models.TeamComposition `json:"team"`
	// LocalTool is set when the task short-circuits to a deterministic
	// command and needs no model at all.
	LocalTool *LocalTool `json:"local_tool,omitempty"`
}

// LevelConfig is the fixed level-to-policy mapping, independent of how
// the level was reached.
type LevelConfig struct {
	// Model is the execution model tier for the level.
	Model models.Model
	// UseFullChain enables the planner/worker/validator chain.
	UseFullChain bool
	// NeedsReview requires a review pass after implementation.
	NeedsReview bool
}

// levelConfigs is the fixed policy table. Critical always uses the top
// model tier.
var levelConfigs = map[models.ComplexityLevel]LevelConfig{
	models.LevelTrivial:  {Model: models.ModelHaiku, UseFullChain: false, NeedsReview: false},
	models.LevelSimple:   {Model: models.ModelSonnet, UseFullChain: false, NeedsReview: false},
	models.LevelStandard: {Model: models.ModelSonnet, UseFullChain: false, NeedsReview: true},
	models.LevelComplex:  {Model: models.ModelOpus, UseFullChain: true, NeedsReview: true},
	models.LevelCritical: {Model: models.ModelOpus, UseFullChain: true, NeedsReview: true},
}

// GetLevelConfig returns the policy for a complexity level.
func GetLevelConfig(level models.ComplexityLevel) LevelConfig {
	if cfg, ok := levelConfigs[level]; ok {
		return cfg
	}
	return levelConfigs[models.LevelStandard]
}

// fastThresholds maps a cumulative fast-path score to a level.
// Boundaries are inclusive: score<=2 is trivial, 3..5 simple,
// 6..8 standard, 9..11 complex, 12+ critical.
func fastScoreToLevel(score int) models.ComplexityLevel {
	switch {
	case score <= 2:
		return models.LevelTrivial
	case score <= 5:
		return models.LevelSimple
	case score <= 8:
		return models.LevelStandard
	case score <= 11:
		return models.LevelComplex
	default:
		return models.LevelCritical
	}
}

// quantScoreToLevel maps a combined quantitative score to a level.
// The bands are tighter than the fast path's because metric points
// accumulate faster than keyword points.
func quantScoreToLevel(score int) models.ComplexityLevel {
	switch {
	case score <= 1:
		return models.LevelTrivial
	case score <= 3:
		return models.LevelSimple
	case score <= 6:
		return models.LevelStandard
	case score <= 10:
		return models.LevelComplex
	default:
		return models.LevelCritical
	}
}
