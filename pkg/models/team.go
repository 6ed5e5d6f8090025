package models

// TeamComposition describes the agents assigned to execute a task at a
// given complexity level: whether a planner runs first, which models
// the worker and validators use, and how many validators vote.
type TeamComposition struct {
	// NeedsPlanning indicates a planner pass runs before the worker.
	NeedsPlanning bool `json:"needs_planning"`
	// PlannerModel is the model used for planning, when NeedsPlanning.
	PlannerModel Model `json:"planner_model,omitempty"`
	// WorkerModel is the model used for the implementation pass.
	WorkerModel Model `json:"worker_model"`
	// ValidatorCount is the number of validator passes.
	ValidatorCount int `json:"validator_count"`
	// ValidatorModel is the model used by each validator.
	ValidatorModel Model `json:"validator_model,omitempty"`
	// IndependentValidators indicates validators run without seeing
	// each other's verdicts.
	IndependentValidators bool `json:"independent_validators"`
	// ModelCeiling records the ceiling the composition was clamped to,
	// if any.
	ModelCeiling Model `json:"model_ceiling,omitempty"`
}
