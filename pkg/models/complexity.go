// Package models contains shared value types used across Flotilla.
package models

// ComplexityLevel classifies how risky and broad a task is.
// Levels are totally ordered; higher levels get bigger teams and
// stronger models.
type ComplexityLevel string

const (
	// LevelTrivial is for mechanical edits with no real risk.
	LevelTrivial ComplexityLevel = "trivial"
	// LevelSimple is for small, well-bounded changes.
	LevelSimple ComplexityLevel = "simple"
	// LevelStandard is for typical feature or bugfix work.
	LevelStandard ComplexityLevel = "standard"
	// LevelComplex is for multi-file, design-sensitive changes.
	LevelComplex ComplexityLevel = "complex"
	// LevelCritical is for security, auth, payment, or data-loss work.
	LevelCritical ComplexityLevel = "critical"
)

// levelRanks defines the total order over complexity levels.
var levelRanks = map[ComplexityLevel]int{
	LevelTrivial:  0,
	LevelSimple:   1,
	LevelStandard: 2,
	LevelComplex:  3,
	LevelCritical: 4,
}

// Valid returns true if the level is a known value.
func (l ComplexityLevel) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}

// Rank returns the position of the level in the total order
// (trivial=0 .. critical=4). Unknown levels rank as trivial.
func (l ComplexityLevel) Rank() int {
	return levelRanks[l]
}

// AtLeast returns true if l is at or above other in the total order.
func (l ComplexityLevel) AtLeast(other ComplexityLevel) bool {
	return l.Rank() >= other.Rank()
}

// Levels returns all complexity levels in ascending order.
func Levels() []ComplexityLevel {
	return []ComplexityLevel{LevelTrivial, LevelSimple, LevelStandard, LevelComplex, LevelCritical}
}

// Model is a cost tier for LLM selection. Tiers are totally ordered
// haiku < sonnet < opus; a model ceiling clamps selection downward.
type Model string

const (
	// ModelHaiku is the cheapest tier.
	ModelHaiku Model = "haiku"
	// ModelSonnet is the mid tier and the baseline for most work.
	ModelSonnet Model = "sonnet"
	// ModelOpus is the top tier.
	ModelOpus Model = "opus"
)

var modelRanks = map[Model]int{
	ModelHaiku:  0,
	ModelSonnet: 1,
	ModelOpus:   2,
}

// Valid returns true if the model is a known tier.
func (m Model) Valid() bool {
	_, ok := modelRanks[m]
	return ok
}

// Rank returns the position of the model in the tier order
// (haiku=0, sonnet=1, opus=2).
func (m Model) Rank() int {
	return modelRanks[m]
}

// ClampModel returns the lesser of m and ceiling in the tier order.
// An empty or unknown ceiling leaves m unchanged.
func ClampModel(m, ceiling Model) Model {
	if !ceiling.Valid() || !m.Valid() {
		return m
	}
	if m.Rank() > ceiling.Rank() {
		return ceiling
	}
	return m
}
