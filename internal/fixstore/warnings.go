package fixstore

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMinOccurrences is the repeat threshold below which a failure
// signature is not worth warning about.
const DefaultMinOccurrences = 2

// alwaysWarnOccurrences is the repeat count at which a failure is
// surfaced even without keyword overlap with the current objective.
const alwaysWarnOccurrences = 3

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// trivialWords are too common to indicate topical overlap.
var trivialWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"to": true, "of": true, "in": true, "on": true, "for": true,
	"with": true, "is": true, "it": true, "at": true, "by": true,
	"be": true, "this": true, "that": true, "from": true, "as": true,
	"error": true, "fix": true, "add": true, "file": true,
}

// significantWords extracts the lowercased non-trivial words of s.
func significantWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		if len(w) > 2 && !trivialWords[w] {
			words[w] = true
		}
	}
	return words
}

// overlapCount counts the words present in both sets.
func overlapCount(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}

// FailureWarningsForTask surfaces historical permanent failures
// relevant to a new task. Failures are grouped by signature; a group
// is surfaced when it has at least minOccurrences entries and its
// objective+message shares at least two non-trivial words with the
// task objective, or unconditionally once it has three entries.
// Returns prompt text, or "" when nothing is relevant.
func (s *Store) FailureWarningsForTask(objective string, minOccurrences int) string {
	if minOccurrences <= 0 {
		minOccurrences = DefaultMinOccurrences
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type group struct {
		count  int
		sample PermanentFailure
	}
	groups := make(map[string]*group)
	var order []string
	for _, f := range s.data.Failures {
		g, ok := groups[f.Signature]
		if !ok {
			g = &group{sample: f}
			groups[f.Signature] = g
			order = append(order, f.Signature)
		}
		g.count++
	}

	objWords := significantWords(objective)

	var warnings []string
	for _, sig := range order {
		g := groups[sig]
		if g.count < minOccurrences {
			continue
		}

		failureText := g.sample.Objective
		if p, ok := s.data.Patterns[sig]; ok {
			failureText += " " + p.SampleMessage
		}
		relevant := overlapCount(objWords, significantWords(failureText)) >= 2

		if !relevant && g.count < alwaysWarnOccurrences {
			continue
		}

		detail := ""
		if len(g.sample.DetailedErrors) > 0 {
			detail = " Last error: " + g.sample.DetailedErrors[len(g.sample.DetailedErrors)-1]
		}
		warnings = append(warnings, fmt.Sprintf(
			"- %s tasks like %q have failed permanently %d time(s).%s",
			g.sample.Category, g.sample.Objective, g.count, detail))
	}

	if len(warnings) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Previous similar tasks have hit unrecoverable failures:\n")
	b.WriteString(strings.Join(warnings, "\n"))
	b.WriteString("\nAvoid repeating the approaches that led to these failures.")
	return b.String()
}

// FormatFixSuggestionsForPrompt renders the pattern's most recent
// fixes (at most three) with the pattern's historical fix success
// rate as prompt text for the executor. The rate is fixSuccesses over
// occurrences and is reported unclamped, so it may exceed 100% when
// one recorded fix resolves the error repeatedly.
func (s *Store) FormatFixSuggestionsForPrompt(category, message string) string {
	fixes := s.FindFixSuggestions(category, message)
	if len(fixes) == 0 {
		return ""
	}

	s.mu.Lock()
	p := s.data.Patterns[Signature(category, message)]
	occurrences, successes := p.Occurrences, p.FixSuccesses
	s.mu.Unlock()

	if len(fixes) > 3 {
		fixes = fixes[:3]
	}

	var b strings.Builder
	b.WriteString("This error has been seen before. Previous fixes that worked:\n")
	for i, f := range fixes {
		fmt.Fprintf(&b, "%d. %s (files: %s)\n", i+1, f.EditSummary, strings.Join(f.FilesChanged, ", "))
	}
	if occurrences > 0 {
		fmt.Fprintf(&b, "Historical fix success rate: %.0f%% (%d fixes over %d occurrences)\n",
			float64(successes)/float64(occurrences)*100, successes, occurrences)
	}
	return b.String()
}
