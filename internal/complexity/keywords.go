// Package complexity scores a task's risk and scope from keyword
// heuristics, quantitative code metrics, and git history, then derives
// a model tier, team composition, and review policy.
package complexity

import (
	"regexp"
	"strings"
)

// signalTable maps keywords to the score weight of one complexity
// category. Weights escalate per category: trivial contributes
// nothing, critical contributes heavily.
type signalTable struct {
	category string
	weight   int
	keywords []string
}

// signalTables is the fixed set of keyword tables consulted by the
// fast scorer. These are the single source of truth for keyword
// routing; the quantitative scorer reuses the critical table.
var signalTables = []signalTable{
	{
		category: "trivial",
		weight:   0,
		keywords: []string{
			"typo", "rename", "comment", "whitespace", "formatting",
			"log line", "log message", "revert", "version bump",
		},
	},
	{
		category: "simple",
		weight:   1,
		keywords: []string{
			"update", "tweak", "adjust", "small", "minor", "bump",
			"docstring", "readme", "add test", "error message",
		},
	},
	{
		category: "standard",
		weight:   2,
		keywords: []string{
			"implement", "feature", "endpoint", "handler", "add support",
			"integrate", "parser", "validation", "cli flag", "config option",
		},
	},
	{
		category: "complex",
		weight:   5,
		keywords: []string{
			"refactor", "migrate", "migration", "redesign", "restructure",
			"architecture", "concurrency", "race", "performance", "optimize",
			"protocol", "cache invalidation",
		},
	},
	{
		category: "critical",
		weight:   10,
		keywords: []string{
			"security", "auth", "authentication", "authorization",
			"payment", "billing", "encryption", "credential", "secrets",
			"vulnerability", "data loss", "production incident",
		},
	},
}

// criticalKeywords are the critical-table keywords, reused by the
// quantitative scorer for its 2x-per-match bonus.
var criticalKeywords = signalTables[len(signalTables)-1].keywords

// Scope estimates, ordered by breadth. The scope bonus added to the
// fast score is the scope's index in this order.
const (
	ScopeSingleFile   = "single-file"
	ScopeFewFiles     = "few-files"
	ScopeManyFiles    = "many-files"
	ScopeCrossPackage = "cross-package"
)

// scopeBonuses maps an estimated scope to its score contribution.
var scopeBonuses = map[string]int{
	ScopeSingleFile:   0,
	ScopeFewFiles:     1,
	ScopeManyFiles:    2,
	ScopeCrossPackage: 3,
}

// scopeIndicators maps phrases in the task text to a scope estimate.
// Broader scopes are checked first so "all packages" doesn't fall
// through to a narrower match.
var scopeIndicators = []struct {
	scope   string
	phrases []string
}{
	{ScopeCrossPackage, []string{
		"cross-package", "across packages", "all packages",
		"entire codebase", "whole codebase", "every package",
	}},
	{ScopeManyFiles, []string{
		"many files", "all files", "throughout", "everywhere",
		"across the codebase",
	}},
	{ScopeFewFiles, []string{
		"several files", "multiple files", "a few files", "both files",
		"a couple of files",
	}},
}

// detectScope returns the estimated scope for a task description.
func detectScope(task string) string {
	lower := strings.ToLower(task)
	for _, ind := range scopeIndicators {
		for _, phrase := range ind.phrases {
			if strings.Contains(lower, phrase) {
				return ind.scope
			}
		}
	}
	return ScopeSingleFile
}

// keywordMatches matches a keyword as a whole phrase within the task
// text, so "auth" doesn't fire on "author".
func keywordMatches(lowerTask, keyword string) bool {
	re := regexp.MustCompile(`(^|\W)` + regexp.QuoteMeta(keyword) + `($|\W)`)
	return re.MatchString(lowerTask)
}

// TaskKeywords returns every routing keyword matched by the task text
// across all signal tables. Outcome recording uses it to attribute a
// task's success or failure to the keywords that routed it.
func TaskKeywords(task string) []string {
	lower := strings.ToLower(task)
	var all []string
	for _, table := range signalTables {
		all = append(all, matchKeywords(lower, table.keywords)...)
	}
	return all
}

// matchKeywords returns every keyword from the table that appears in
// the task text.
func matchKeywords(lowerTask string, keywords []string) []string {
	var matched []string
	for _, kw := range keywords {
		if keywordMatches(lowerTask, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}
