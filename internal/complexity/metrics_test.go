package complexity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeHistory returns canned commit counts per file.
type fakeHistory struct {
	commits map[string]int
	fixes   map[string]int
}

func (f *fakeHistory) CommitCountSince(since, path string) (int, error) {
	return f.commits[path], nil
}

func (f *fakeHistory) FixCommitCountSince(since, path string) (int, error) {
	return f.fixes[path], nil
}

// fakeHealth returns canned health scores per file.
type fakeHealth struct {
	scores map[string]float64
}

func (f *fakeHealth) FileHealth(path string) (float64, error) {
	return f.scores[path], nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCollectBasicMetrics(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "server/main.go", "package main\n\nfunc main() {\n}\n\nfunc helper() {\n}\n")
	writeFile(t, root, "server/util.go", "package main\n\nfunc util() {\n}\n")

	c := NewCollector(root, &fakeHistory{}, nil)
	m, err := c.Collect([]string{"server/main.go", "server/util.go", "server/missing.go"})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if m.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2 (missing file skipped)", m.FileCount)
	}
	if m.FunctionCount != 3 {
		t.Errorf("FunctionCount = %d, want 3", m.FunctionCount)
	}
	if m.CrossPackage {
		t.Error("CrossPackage = true for a single package")
	}
	if len(m.Packages) != 1 || m.Packages[0] != "server" {
		t.Errorf("Packages = %v, want [server]", m.Packages)
	}
}

func TestCollectCrossPackage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "server/main.go", "package main\n")
	writeFile(t, root, "client/main.go", "package main\n")

	c := NewCollector(root, nil, nil)
	m, err := c.Collect([]string{"server/main.go", "client/main.go"})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if !m.CrossPackage {
		t.Error("CrossPackage = false, want true")
	}
	if len(m.Packages) != 2 {
		t.Errorf("Packages = %v, want 2 entries", m.Packages)
	}
}

func TestCollectGitChurn(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "hot.go", "package main\n")
	writeFile(t, root, "buggy.go", "package main\n")

	history := &fakeHistory{
		commits: map[string]int{"hot.go": 15, "buggy.go": 1},
		fixes:   map[string]int{"buggy.go": 3},
	}
	c := NewCollector(root, history, nil)
	m, err := c.Collect([]string{"hot.go", "buggy.go"})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(m.Git.Hotspots) != 1 || m.Git.Hotspots[0] != "hot.go" {
		t.Errorf("Hotspots = %v, want [hot.go]", m.Git.Hotspots)
	}
	if len(m.Git.BugProneFiles) != 1 || m.Git.BugProneFiles[0] != "buggy.go" {
		t.Errorf("BugProneFiles = %v, want [buggy.go]", m.Git.BugProneFiles)
	}
	if m.Git.AvgChangeFrequency != 8 {
		t.Errorf("AvgChangeFrequency = %v, want 8", m.Git.AvgChangeFrequency)
	}
}

func TestCollectHealth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.go", "package main\n")
	writeFile(t, root, "bad.go", "package main\n")

	health := &fakeHealth{scores: map[string]float64{"good.go": 9, "bad.go": 3}}
	c := NewCollector(root, nil, health)
	m, err := c.Collect([]string{"good.go", "bad.go"})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if m.AvgCodeHealth != 6 {
		t.Errorf("AvgCodeHealth = %v, want 6", m.AvgCodeHealth)
	}
	if len(m.UnhealthyFiles) != 1 || m.UnhealthyFiles[0] != "bad.go" {
		t.Errorf("UnhealthyFiles = %v, want [bad.go]", m.UnhealthyFiles)
	}
}

func TestQuantitativeCapPreventsEscalation(t *testing.T) {
	// A tiny edit to a huge file: the metrics alone would escalate,
	// but the trivial keyword conclusion caps the level at simple.
	root := t.TempDir()
	var b strings.Builder
	b.WriteString("package main\n")
	for i := 0; i < 30; i++ {
		b.WriteString("func fn() {\n}\n")
	}
	for i := 0; i < 1200; i++ {
		b.WriteString("// padding line\n")
	}
	writeFile(t, root, "big.go", b.String())

	collector := NewCollector(root, &fakeHistory{}, nil)
	s := NewScorer(WithCollector(collector))

	a := s.Assess(t.Context(), "fix typo in log line", []string{"big.go"})
	if a.Metrics == nil {
		t.Fatal("expected quantitative metrics")
	}
	if a.Level.AtLeast("standard") {
		t.Errorf("Level = %s, want at most simple (cap rule)", a.Level)
	}
}
