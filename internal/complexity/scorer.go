package complexity

import (
	"context"
	"fmt"
	"strings"

	"github.com/davenport-labs/flotilla/pkg/models"
)

// KeywordRiskSource provides historical success rates for keywords,
// backed by prior task outcomes. Absence is a valid, silently-degraded
// state: the scorer simply skips the risk bonus.
type KeywordRiskSource interface {
	// SuccessRate returns the historical success rate for tasks that
	// matched the keyword, and the number of samples behind it.
	SuccessRate(keyword string) (rate float64, samples int, err error)
}

// riskMinSamples is the sample floor below which historical rates are
// not trusted.
const riskMinSamples = 3

// DeepAssessment is the result of the optional model-backed
// classifier, consulted only when the fast path is unsure.
type DeepAssessment struct {
	Level      models.ComplexityLevel `json:"level"`
	Scope      string                 `json:"scope"`
	Confidence float64                `json:"confidence"`
	Reasoning  string                 `json:"reasoning"`
}

// Classifier defers a low-confidence assessment to an external model.
type Classifier interface {
	Classify(ctx context.Context, task string) (*DeepAssessment, error)
}

// deepConfidenceFloor is the fast-path confidence below which the deep
// classifier is consulted.
const deepConfidenceFloor = 0.7

// Scorer assesses task complexity. All collaborators are optional;
// a zero Scorer still produces keyword-based assessments.
type Scorer struct {
	collector  *Collector        // enables the quantitative path
	risk       KeywordRiskSource // enables the historical risk bonus
	classifier Classifier        // enables the deep path
	ceiling    models.Model      // optional model ceiling
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithCollector enables quantitative scoring over target files.
func WithCollector(c *Collector) Option {
	return func(s *Scorer) { s.collector = c }
}

// WithRiskSource enables the keyword-history risk bonus.
func WithRiskSource(r KeywordRiskSource) Option {
	return func(s *Scorer) { s.risk = r }
}

// WithClassifier enables the deep model-backed path for
// low-confidence fast assessments.
func WithClassifier(c Classifier) Option {
	return func(s *Scorer) { s.classifier = c }
}

// WithModelCeiling caps every model the scorer selects.
func WithModelCeiling(ceiling models.Model) Option {
	return func(s *Scorer) { s.ceiling = ceiling }
}

// NewScorer creates a Scorer with the given options.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assess runs the full pipeline: local-tool short-circuit, fast
// keyword scoring, quantitative scoring when target files are known,
// and the deep classifier when confidence stays low.
func (s *Scorer) Assess(ctx context.Context, task string, targetFiles []string) *Assessment {
	if tool := DetectLocalTool(task); tool != nil {
		a := &Assessment{
			Level:          models.LevelTrivial,
			Confidence:     1.0,
			Score:          0,
			EstimatedScope: ScopeSingleFile,
			Signals:        []string{"local-tool: " + tool.Command},
			LocalTool:      tool,
		}
		s.finalize(a)
		return a
	}

	fast := s.AssessFast(task)

	a := fast
	if len(targetFiles) > 0 && s.collector != nil {
		a = s.AssessQuantitative(task, targetFiles, fast)
	}

	if a.Confidence < deepConfidenceFloor && s.classifier != nil {
		if deep, err := s.classifier.Classify(ctx, task); err == nil && deep != nil {
			a.Level = deep.Level
			if deep.Scope != "" {
				a.EstimatedScope = deep.Scope
			}
			a.Confidence = deep.Confidence
			a.Signals = append(a.Signals, "deep: "+deep.Reasoning)
			s.finalize(a)
		}
	}

	return a
}

// AssessFast scores a task from keywords, scope indicators, task
// length, and historical keyword risk. It never touches the filesystem.
func (s *Scorer) AssessFast(task string) *Assessment {
	lower := strings.ToLower(task)

	score := 0
	var signals []string
	var allMatched []string

	for _, table := range signalTables {
		matched := matchKeywords(lower, table.keywords)
		for _, kw := range matched {
			score += table.weight
			signals = append(signals, fmt.Sprintf("keyword(%s): %q +%d", table.category, kw, table.weight))
		}
		allMatched = append(allMatched, matched...)
	}

	scope := detectScope(task)
	if bonus := scopeBonuses[scope]; bonus > 0 {
		score += bonus
		signals = append(signals, fmt.Sprintf("scope(%s): +%d", scope, bonus))
	}

	words := len(strings.Fields(task))
	if words > 50 {
		score++
		signals = append(signals, "length: >50 words +1")
	}
	if words > 100 {
		score++
		signals = append(signals, "length: >100 words +1")
	}

	if bonus, signal := s.riskBonus(allMatched); bonus > 0 {
		score += bonus
		signals = append(signals, signal)
	}

	confidence := 0.3
	if len(signals) > 0 {
		confidence = 0.5 + 0.1*float64(len(signals))
		if confidence > 0.9 {
			confidence = 0.9
		}
	}

	a := &Assessment{
		Level:          fastScoreToLevel(score),
		Confidence:     confidence,
		Score:          score,
		EstimatedScope: scope,
		Signals:        signals,
	}
	s.finalize(a)
	return a
}

// riskBonus consults the keyword-history store for the matched
// keywords and returns the bonus for the riskiest one. Requires at
// least riskMinSamples historical samples to trust a rate.
func (s *Scorer) riskBonus(matched []string) (int, string) {
	if s.risk == nil {
		return 0, ""
	}

	worstBonus := 0
	worstSignal := ""
	for _, kw := range matched {
		rate, samples, err := s.risk.SuccessRate(kw)
		if err != nil || samples < riskMinSamples {
			continue
		}
		bonus := 0
		switch {
		case rate < 0.5:
			bonus = 2
		case rate < 0.7:
			bonus = 1
		}
		if bonus > worstBonus {
			worstBonus = bonus
			worstSignal = fmt.Sprintf("risk: %q success %.0f%% over %d tasks +%d", kw, rate*100, samples, bonus)
		}
	}
	return worstBonus, worstSignal
}

// AssessQuantitative combines a metrics snapshot of the target files
// with the fast pass's critical-keyword signals. The fast result caps
// the final level so big-file metrics can't escalate an objectively
// tiny edit.
func (s *Scorer) AssessQuantitative(task string, targetFiles []string, fast *Assessment) *Assessment {
	metrics, err := s.collector.Collect(targetFiles)
	if err != nil || metrics == nil {
		return fast
	}

	score := 0
	var signals []string
	add := func(points int, format string, args ...interface{}) {
		score += points
		signals = append(signals, fmt.Sprintf(format+" +%d", append(args, points)...))
	}

	switch {
	case metrics.FileCount > 10:
		add(3, "files: %d", metrics.FileCount)
	case metrics.FileCount > 4:
		add(2, "files: %d", metrics.FileCount)
	case metrics.FileCount > 1:
		add(1, "files: %d", metrics.FileCount)
	}

	switch {
	case metrics.TotalLines > 1000:
		add(2, "lines: %d", metrics.TotalLines)
	case metrics.TotalLines > 500:
		add(1, "lines: %d", metrics.TotalLines)
	}

	switch {
	case metrics.FunctionCount > 20:
		add(2, "functions: %d", metrics.FunctionCount)
	case metrics.FunctionCount > 10:
		add(1, "functions: %d", metrics.FunctionCount)
	}

	if metrics.CrossPackage {
		add(3, "cross-package: %d packages", len(metrics.Packages))
	}

	if metrics.AvgCodeHealth > 0 {
		switch {
		case metrics.AvgCodeHealth < 5:
			add(3, "health: poor avg %.1f", metrics.AvgCodeHealth)
		case metrics.AvgCodeHealth < 7:
			add(2, "health: fair avg %.1f", metrics.AvgCodeHealth)
		}
	}
	for _, f := range metrics.UnhealthyFiles {
		add(1, "unhealthy: %s", f)
	}
	for _, f := range metrics.Git.Hotspots {
		add(1, "hotspot: %s", f)
	}
	for _, f := range metrics.Git.BugProneFiles {
		add(2, "bug-prone: %s", f)
	}
	if metrics.Git.AvgChangeFrequency > 5 {
		add(1, "churn: %.1f commits/file", metrics.Git.AvgChangeFrequency)
	}

	metricSignalCount := len(signals)

	lower := strings.ToLower(task)
	if matched := matchKeywords(lower, criticalKeywords); len(matched) > 0 {
		add(2*len(matched), "critical keywords: %v", matched)
	}

	level := quantScoreToLevel(score)
	level = capByFastLevel(level, fast)

	confidence := 0.5
	if metrics.FileCount > 0 {
		confidence = 0.7 + 0.05*float64(metricSignalCount)
		if confidence > 0.95 {
			confidence = 0.95
		}
	}

	scope := fast.EstimatedScope
	if metrics.CrossPackage {
		scope = ScopeCrossPackage
	}

	a := &Assessment{
		Level:          level,
		Confidence:     confidence,
		Score:          score,
		EstimatedScope: scope,
		Signals:        append(append([]string{}, fast.Signals...), signals...),
		Metrics:        metrics,
	}
	s.finalize(a)
	return a
}

// capByFastLevel applies the fixed cap table: if the keyword pass
// alone concluded trivial, the metrics can raise the level no higher
// than simple; a confident simple conclusion caps at standard. This
// stops a one-line edit in a 5000-line file from being scored complex.
func capByFastLevel(level models.ComplexityLevel, fast *Assessment) models.ComplexityLevel {
	switch {
	case fast.Level == models.LevelTrivial && level.AtLeast(models.LevelStandard):
		return models.LevelSimple
	case fast.Level == models.LevelSimple && fast.Confidence >= 0.6 && level.AtLeast(models.LevelComplex):
		return models.LevelStandard
	default:
		return level
	}
}

// finalize fills the policy-derived fields (model, chain, review,
// team) from the assessment's level.
func (s *Scorer) finalize(a *Assessment) {
	cfg := GetLevelConfig(a.Level)
	a.Model = models.ClampModel(cfg.Model, s.ceiling)
	a.UseFullChain = cfg.UseFullChain
	a.NeedsReview = cfg.NeedsReview
	a.Team = GetTeamComposition(a.Level, s.ceiling)
}
