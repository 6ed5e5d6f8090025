package complexity

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/davenport-labs/flotilla/internal/git"
)

// churnWindow is the git history window for change-frequency metrics.
const churnWindow = "90.days"

const (
	// hotspotThreshold is the commit count over the churn window above
	// which a file is considered a hotspot.
	hotspotThreshold = 10
	// bugProneThreshold is the "fix" commit count over the churn
	// window above which a file is considered bug-prone.
	bugProneThreshold = 2
	// unhealthyThreshold is the health score below which a file counts
	// as unhealthy (scores run 1-10, lower is worse).
	unhealthyThreshold = 7.0
)

// GitMetrics summarizes recent churn for the target files.
type GitMetrics struct {
	// AvgChangeFrequency is commits per file over the churn window.
	AvgChangeFrequency float64 `json:"avg_change_frequency"`
	// Hotspots are files with more than hotspotThreshold commits.
	Hotspots []string `json:"hotspots,omitempty"`
	// BugProneFiles are files with more than bugProneThreshold fix commits.
	BugProneFiles []string `json:"bug_prone_files,omitempty"`
}

// QuantitativeMetrics is a per-task snapshot of code metrics for the
// target files. Created fresh per assessment, never persisted.
type QuantitativeMetrics struct {
	FileCount     int      `json:"file_count"`
	TotalLines    int      `json:"total_lines"`
	FunctionCount int      `json:"function_count"`
	// AvgCodeHealth is an optional external signal (1-10, lower is
	// worse); zero means no health source was available.
	AvgCodeHealth  float64  `json:"avg_code_health,omitempty"`
	UnhealthyFiles []string `json:"unhealthy_files,omitempty"`
	CrossPackage   bool     `json:"cross_package"`
	Packages       []string `json:"packages,omitempty"`
	Git            GitMetrics `json:"git"`
}

// HealthSource provides per-file code-health scores from an external
// analyzer. Absence is a valid, silently-degraded state.
type HealthSource interface {
	// FileHealth returns a 1-10 health score for the file.
	FileHealth(path string) (float64, error)
}

// Collector gathers quantitative metrics for a set of target files.
type Collector struct {
	repoRoot string
	git      git.HistoryOperations
	health   HealthSource // optional
}

// NewCollector creates a Collector rooted at the repository. health
// may be nil.
func NewCollector(repoRoot string, history git.HistoryOperations, health HealthSource) *Collector {
	return &Collector{repoRoot: repoRoot, git: history, health: health}
}

// funcPatterns matches function declarations across the languages the
// collector is likely to encounter.
var funcPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^func\s`),                    // Go
	regexp.MustCompile(`(?m)^\s*(export\s+)?(async\s+)?function\s`), // JS/TS
	regexp.MustCompile(`(?m)^\s*def\s`),                  // Python
	regexp.MustCompile(`(?m)^\s*(pub\s+)?fn\s`),          // Rust
}

// Collect builds a QuantitativeMetrics snapshot for the given files.
// Missing files are skipped rather than failing the assessment; git
// history errors degrade to zero churn.
func (c *Collector) Collect(files []string) (*QuantitativeMetrics, error) {
	m := &QuantitativeMetrics{}
	packages := make(map[string]bool)

	var healthTotal float64
	var healthCount int
	var commitTotal int

	for _, rel := range files {
		path := rel
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.repoRoot, rel)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			continue // File may not exist yet; skip it.
		}

		m.FileCount++
		content := string(data)
		m.TotalLines += strings.Count(content, "\n") + 1
		for _, re := range funcPatterns {
			m.FunctionCount += len(re.FindAllStringIndex(content, -1))
		}

		packages[packageOf(rel)] = true

		if c.health != nil {
			if score, err := c.health.FileHealth(rel); err == nil && score > 0 {
				healthTotal += score
				healthCount++
				if score < unhealthyThreshold {
					m.UnhealthyFiles = append(m.UnhealthyFiles, rel)
				}
			}
		}

		if c.git != nil {
			commits, err := c.git.CommitCountSince(churnWindow, rel)
			if err == nil {
				commitTotal += commits
				if commits > hotspotThreshold {
					m.Git.Hotspots = append(m.Git.Hotspots, rel)
				}
			}
			fixes, err := c.git.FixCommitCountSince(churnWindow, rel)
			if err == nil && fixes > bugProneThreshold {
				m.Git.BugProneFiles = append(m.Git.BugProneFiles, rel)
			}
		}
	}

	if healthCount > 0 {
		m.AvgCodeHealth = healthTotal / float64(healthCount)
	}
	if m.FileCount > 0 {
		m.Git.AvgChangeFrequency = float64(commitTotal) / float64(m.FileCount)
	}

	for pkg := range packages {
		m.Packages = append(m.Packages, pkg)
	}
	sort.Strings(m.Packages)
	m.CrossPackage = len(m.Packages) > 1

	return m, nil
}

// packageOf returns the package-ish grouping for a file path: its
// top-level directory, or "." for root-level files.
func packageOf(rel string) string {
	dir := filepath.Dir(rel)
	if dir == "." || dir == "/" {
		return "."
	}
	parts := strings.Split(filepath.ToSlash(dir), "/")
	return parts[0]
}

// String renders a short human-readable summary of the metrics.
func (m *QuantitativeMetrics) String() string {
	return fmt.Sprintf("%d files, %d lines, %d functions, %d packages",
		m.FileCount, m.TotalLines, m.FunctionCount, len(m.Packages))
}
