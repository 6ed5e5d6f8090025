package fixstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "error-fix-patterns.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestSignatureStableAcrossVariableParts(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{
			name: "line numbers",
			a:    "Type error at line 10",
			b:    "Type error at line 99",
			same: true,
		},
		{
			name: "file paths",
			a:    "Error in /a/file.ts at line 10",
			b:    "Error in /b/file.ts at line 99",
			same: true,
		},
		{
			name: "quoted identifiers",
			a:    `cannot find name "foo"`,
			b:    `cannot find name "barbaz"`,
			same: true,
		},
		{
			name: "line:col pairs",
			a:    "main.go:10:5: undefined variable",
			b:    "main.go:99:12: undefined variable",
			same: true,
		},
		{
			name: "hex addresses",
			a:    "panic at 0xdeadbeef",
			b:    "panic at 0xcafe1234",
			same: true,
		},
		{
			name: "different errors differ",
			a:    "undefined variable",
			b:    "missing return statement",
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sa := Signature("typecheck", tt.a)
			sb := Signature("typecheck", tt.b)
			if (sa == sb) != tt.same {
				t.Errorf("Signature(%q)=%s vs Signature(%q)=%s, same=%v want %v",
					tt.a, sa, tt.b, sb, sa == sb, tt.same)
			}
		})
	}
}

func TestSignatureIncludesCategory(t *testing.T) {
	msg := "something broke"
	if Signature("typecheck", msg) == Signature("build", msg) {
		t.Error("same message under different categories should not collide")
	}
	if !strings.HasPrefix(Signature("typecheck", msg), "typecheck-") {
		t.Errorf("Signature = %s, want typecheck- prefix", Signature("typecheck", msg))
	}
}

func TestPendingToFixRoundTrip(t *testing.T) {
	s := newTestStore(t)

	sig, err := s.RecordPendingError("t1", "typecheck", "Type error at line 10", []string{"old.ts"})
	if err != nil {
		t.Fatalf("RecordPendingError() error = %v", err)
	}
	if len(s.Pending()) != 1 {
		t.Fatalf("Pending() = %d entries, want 1", len(s.Pending()))
	}

	if err := s.RecordSuccessfulFix("t1", []string{"old.ts", "new.ts"}, "Added type annotation"); err != nil {
		t.Fatalf("RecordSuccessfulFix() error = %v", err)
	}
	if len(s.Pending()) != 0 {
		t.Error("pending entry should be removed after fix")
	}

	fixes := s.FindFixSuggestions("typecheck", "Type error at line 99")
	if len(fixes) != 1 {
		t.Fatalf("FindFixSuggestions() = %d fixes, want 1", len(fixes))
	}
	if len(fixes[0].FilesChanged) != 1 || fixes[0].FilesChanged[0] != "new.ts" {
		t.Errorf("FilesChanged = %v, want [new.ts] (set difference)", fixes[0].FilesChanged)
	}
	if fixes[0].EditSummary != "Added type annotation" {
		t.Errorf("EditSummary = %q", fixes[0].EditSummary)
	}
	if Signature("typecheck", "Type error at line 99") != sig {
		t.Error("signatures for line 10 and line 99 should match")
	}
}

func TestFixWithoutPendingIsNoOp(t *testing.T) {
	s := newTestStore(t)
	if err := s.RecordSuccessfulFix("ghost", []string{"a.go"}, "nothing"); err != nil {
		t.Fatalf("RecordSuccessfulFix() error = %v", err)
	}
	if s.PatternCount() != 0 {
		t.Errorf("PatternCount = %d, want 0", s.PatternCount())
	}
}

func TestFixFileSetFallback(t *testing.T) {
	s := newTestStore(t)

	// All changed files were already changed before the failure: the
	// set difference is empty, so the first files stand in.
	before := []string{"a.go", "b.go", "c.go", "d.go", "e.go", "f.go", "g.go"}
	if _, err := s.RecordPendingError("t1", "build", "link failure", before); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSuccessfulFix("t1", before, "rebuilt"); err != nil {
		t.Fatal(err)
	}

	fixes := s.FindFixSuggestions("build", "link failure")
	if len(fixes) != 1 {
		t.Fatalf("want 1 fix, got %d", len(fixes))
	}
	if len(fixes[0].FilesChanged) != 5 {
		t.Errorf("fallback FilesChanged = %d files, want 5", len(fixes[0].FilesChanged))
	}
}

func TestPendingQueueGlobalCap(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 15; i++ {
		if _, err := s.RecordPendingError(fmt.Sprintf("t%d", i), "build", fmt.Sprintf("unique failure kind %c", 'a'+i), nil); err != nil {
			t.Fatal(err)
		}
	}

	pending := s.Pending()
	if len(pending) != 10 {
		t.Fatalf("Pending() = %d entries, want 10", len(pending))
	}
	if pending[0].TaskID != "t5" {
		t.Errorf("oldest surviving entry = %s, want t5 (oldest dropped first)", pending[0].TaskID)
	}
}

func TestOnePendingPerTask(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.RecordPendingError("t1", "build", "first failure", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordPendingError("t1", "typecheck", "second failure", nil); err != nil {
		t.Fatal(err)
	}

	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("Pending() = %d entries, want 1", len(pending))
	}
	if pending[0].Category != "typecheck" {
		t.Errorf("surviving pending category = %s, want typecheck (latest wins)", pending[0].Category)
	}
}

func TestFixesPerPatternCap(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 8; i++ {
		if _, err := s.RecordPendingError("t1", "test", "flaky assertion", nil); err != nil {
			t.Fatal(err)
		}
		if err := s.RecordSuccessfulFix("t1", []string{fmt.Sprintf("f%d.go", i)}, fmt.Sprintf("fix %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	fixes := s.FindFixSuggestions("test", "flaky assertion")
	if len(fixes) != 5 {
		t.Fatalf("fixes = %d, want 5 (capped)", len(fixes))
	}
	if fixes[0].EditSummary != "fix 7" {
		t.Errorf("most recent fix = %q, want fix 7 (reverse chronological)", fixes[0].EditSummary)
	}
	if fixes[4].EditSummary != "fix 3" {
		t.Errorf("oldest surviving fix = %q, want fix 3", fixes[4].EditSummary)
	}
}

func TestMessageTruncation(t *testing.T) {
	s := newTestStore(t)
	long := strings.Repeat("x", 2000)
	if _, err := s.RecordPendingError("t1", "build", long, nil); err != nil {
		t.Fatal(err)
	}

	pending := s.Pending()
	if len(pending[0].Message) != 500 {
		t.Errorf("Message length = %d, want 500", len(pending[0].Message))
	}

	if err := s.RecordSuccessfulFix("t1", []string{"a.go"}, strings.Repeat("y", 400)); err != nil {
		t.Fatal(err)
	}
	fixes := s.FindFixSuggestions("build", long)
	if len(fixes[0].EditSummary) != 200 {
		t.Errorf("EditSummary length = %d, want 200", len(fixes[0].EditSummary))
	}
}

func TestPermanentFailureClearsPending(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.RecordPendingError("t1", "build", "broken import cycle", nil); err != nil {
		t.Fatal(err)
	}

	detailed := make([]string, 15)
	for i := range detailed {
		detailed[i] = strings.Repeat("e", 400)
	}
	if err := s.RecordPermanentFailure("t1", "build", "broken import cycle", "refactor imports", detailed); err != nil {
		t.Fatalf("RecordPermanentFailure() error = %v", err)
	}

	if len(s.Pending()) != 0 {
		t.Error("pending entry should be cleared by permanent failure")
	}
	failures := s.Failures()
	if len(failures) != 1 {
		t.Fatalf("Failures() = %d, want 1", len(failures))
	}
	if len(failures[0].DetailedErrors) != 10 {
		t.Errorf("DetailedErrors = %d entries, want 10", len(failures[0].DetailedErrors))
	}
	for _, e := range failures[0].DetailedErrors {
		if len(e) > 300 {
			t.Errorf("detailed error length = %d, want <= 300", len(e))
		}
	}

	p := s.Pattern("build", "broken import cycle")
	if p == nil || p.Occurrences != 2 {
		t.Errorf("pattern occurrences after pending+failure = %v, want 2", p)
	}
}

func TestFailureQueueGlobalCap(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 14; i++ {
		if err := s.RecordPermanentFailure(fmt.Sprintf("t%d", i), "build", "persistent breakage", "obj", nil); err != nil {
			t.Fatal(err)
		}
	}
	if len(s.Failures()) != 10 {
		t.Errorf("Failures() = %d, want 10", len(s.Failures()))
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordPendingError("t1", "typecheck", "bad cast", []string{"x.go"}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSuccessfulFix("t1", []string{"x.go", "y.go"}, "casted properly"); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	fixes := reopened.FindFixSuggestions("typecheck", "bad cast")
	if len(fixes) != 1 || fixes[0].EditSummary != "casted properly" {
		t.Errorf("reloaded fixes = %+v, want the recorded fix", fixes)
	}
}

func TestLoadCorruptStoreResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() on corrupt file error = %v", err)
	}
	if s.PatternCount() != 0 {
		t.Errorf("PatternCount = %d, want 0 after reset", s.PatternCount())
	}
}

func TestLoadLegacyStoreWithoutFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	legacy := `{"patterns": {}, "pending": [], "version": 1}`
	if err := os.WriteFile(path, []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Failures() == nil {
		t.Error("Failures() should default to empty, not nil, for legacy stores")
	}
}

func TestPruneOldPatterns(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.RecordPendingError("t1", "build", "stale error nobody fixed", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordPendingError("t2", "build", "error with a fix", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSuccessfulFix("t2", []string{"a.go"}, "fixed"); err != nil {
		t.Fatal(err)
	}

	// Age the unfixed pattern past the cutoff.
	s.mu.Lock()
	for _, p := range s.data.Patterns {
		if len(p.Fixes) == 0 {
			p.LastSeen = time.Now().Add(-48 * time.Hour)
		}
	}
	s.mu.Unlock()

	deleted, err := s.PruneOldPatterns(24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if s.Pattern("build", "error with a fix") == nil {
		t.Error("pattern with a fix should survive pruning")
	}
	if s.Pattern("build", "stale error nobody fixed") != nil {
		t.Error("stale fixless pattern should be pruned")
	}
}

func TestPruneKeepsHighOccurrencePatterns(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 6; i++ {
		if _, err := s.RecordPendingError("t1", "build", "recurring error", nil); err != nil {
			t.Fatal(err)
		}
	}

	s.mu.Lock()
	for _, p := range s.data.Patterns {
		p.LastSeen = time.Now().Add(-48 * time.Hour)
	}
	s.mu.Unlock()

	deleted, err := s.PruneOldPatterns(24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 (occurrences >= 5 retained)", deleted)
	}
}

func TestMarkFixSuccessfulAndPromptRate(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.RecordPendingError("t1", "test", "assertion mismatch", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSuccessfulFix("t1", []string{"a_test.go"}, "updated expectation"); err != nil {
		t.Fatal(err)
	}

	// Success count is independent of occurrences, so the rate can
	// run past 100%.
	for i := 0; i < 3; i++ {
		if err := s.MarkFixSuccessful("test", "assertion mismatch"); err != nil {
			t.Fatal(err)
		}
	}

	prompt := s.FormatFixSuggestionsForPrompt("test", "assertion mismatch")
	if !strings.Contains(prompt, "updated expectation") {
		t.Errorf("prompt missing fix summary: %q", prompt)
	}
	if !strings.Contains(prompt, "300%") {
		t.Errorf("prompt rate should be 300%% (3 successes over 1 occurrence): %q", prompt)
	}
}

func TestFormatPromptEmptyWithoutFixes(t *testing.T) {
	s := newTestStore(t)
	if got := s.FormatFixSuggestionsForPrompt("build", "never seen"); got != "" {
		t.Errorf("prompt for unknown pattern = %q, want empty", got)
	}
}
