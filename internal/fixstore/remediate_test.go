package fixstore

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

// fakeApplier scripts git apply behavior.
type fakeApplier struct {
	checkErr error
	applyErr error
	files    []string

	checked []string
	applied []string
}

func (f *fakeApplier) ApplyCheck(_ context.Context, patch string) error {
	f.checked = append(f.checked, patch)
	return f.checkErr
}

func (f *fakeApplier) Apply(_ context.Context, patch string) error {
	f.applied = append(f.applied, patch)
	return f.applyErr
}

func (f *fakeApplier) ApplyNumstatFiles(_ context.Context, _ string) ([]string, error) {
	return f.files, nil
}

func recordFixWithPatch(t *testing.T, s *Store, taskID, patch string) {
	t.Helper()
	if _, err := s.RecordPendingError(taskID, "typecheck", "missing return statement", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSuccessfulFixWithPatch(taskID, []string{"a.go"}, "added return", patch); err != nil {
		t.Fatal(err)
	}
}

func TestAutoRemediateNoPattern(t *testing.T) {
	s := newTestStore(t)
	res := s.TryAutoRemediate(t.Context(), "typecheck", "never seen", &fakeApplier{})
	if res.Attempted || res.Applied {
		t.Errorf("result = %+v, want attempted=false applied=false", res)
	}
}

func TestAutoRemediateNoPatchData(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.RecordPendingError("t1", "typecheck", "missing return statement", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSuccessfulFix("t1", []string{"a.go"}, "added return"); err != nil {
		t.Fatal(err)
	}

	res := s.TryAutoRemediate(t.Context(), "typecheck", "missing return statement", &fakeApplier{})
	if res.Attempted {
		t.Error("fix without a stored patch should not be attempted")
	}
}

func TestAutoRemediateSuccess(t *testing.T) {
	s := newTestStore(t)
	recordFixWithPatch(t, s, "t1", "diff --git a/a.go b/a.go\n")

	applier := &fakeApplier{files: []string{"a.go"}}
	res := s.TryAutoRemediate(t.Context(), "typecheck", "missing return statement", applier)

	if !res.Attempted || !res.Applied {
		t.Fatalf("result = %+v, want attempted and applied", res)
	}
	if len(res.PatchedFiles) != 1 || res.PatchedFiles[0] != "a.go" {
		t.Errorf("PatchedFiles = %v, want [a.go]", res.PatchedFiles)
	}
	if len(applier.checked) != 1 || len(applier.applied) != 1 {
		t.Errorf("applier calls: checked=%d applied=%d, want 1/1", len(applier.checked), len(applier.applied))
	}

	// First success folds into the moving average from the 0.5 default.
	fixes := s.FindFixSuggestions("typecheck", "missing return statement")
	if got := fixes[0].AutoApplySuccessRate; math.Abs(got-0.65) > 1e-9 {
		t.Errorf("AutoApplySuccessRate = %v, want 0.65 (0.5*0.7+0.3)", got)
	}
	if fixes[0].AutoApplyCount != 1 {
		t.Errorf("AutoApplyCount = %d, want 1", fixes[0].AutoApplyCount)
	}
}

func TestAutoRemediateDryRunRejection(t *testing.T) {
	s := newTestStore(t)
	recordFixWithPatch(t, s, "t1", "diff --git a/a.go b/a.go\n")

	applier := &fakeApplier{checkErr: errors.New("patch does not apply")}
	res := s.TryAutoRemediate(t.Context(), "typecheck", "missing return statement", applier)

	if !res.Attempted {
		t.Error("dry-run rejection should still count as attempted")
	}
	if res.Applied {
		t.Error("Applied = true after dry-run rejection")
	}
	if res.Error == nil || !strings.Contains(res.Error.Error(), "dry run") {
		t.Errorf("Error = %v, want dry run failure", res.Error)
	}
	if len(applier.applied) != 0 {
		t.Error("Apply should not be called when the dry run fails")
	}

	fixes := s.FindFixSuggestions("typecheck", "missing return statement")
	if got := fixes[0].AutoApplySuccessRate; math.Abs(got-0.35) > 1e-9 {
		t.Errorf("AutoApplySuccessRate = %v, want 0.35 (0.5*0.7)", got)
	}
}

func TestAutoRemediateCircuitBreaker(t *testing.T) {
	s := newTestStore(t)
	recordFixWithPatch(t, s, "t1", "diff --git a/a.go b/a.go\n")

	// Three consecutive failures push the rate to 0.5*0.7^3 = 0.17.
	failing := &fakeApplier{checkErr: errors.New("patch does not apply")}
	for i := 0; i < 3; i++ {
		res := s.TryAutoRemediate(t.Context(), "typecheck", "missing return statement", failing)
		if !res.Attempted {
			t.Fatalf("attempt %d: breaker tripped early", i+1)
		}
	}

	res := s.TryAutoRemediate(t.Context(), "typecheck", "missing return statement", &fakeApplier{})
	if res.Attempted {
		t.Error("breaker should skip a patch tried >2 times with rate < 0.3")
	}
}

func TestAutoRemediatePrefersHigherRate(t *testing.T) {
	s := newTestStore(t)
	recordFixWithPatch(t, s, "t1", "patch-one")
	recordFixWithPatch(t, s, "t2", "patch-two")

	// Fail patch-two (the most recent, tried first at the 0.5 default)
	// once so its rate drops below patch-one's untried 0.5.
	failing := &fakeApplier{checkErr: errors.New("patch does not apply")}
	res := s.TryAutoRemediate(t.Context(), "typecheck", "missing return statement", failing)
	if !res.Attempted || len(failing.checked) != 1 || failing.checked[0] != "patch-two" {
		t.Fatalf("first attempt should try the most recent patch, checked=%v", failing.checked)
	}

	applier := &fakeApplier{files: []string{"a.go"}}
	res = s.TryAutoRemediate(t.Context(), "typecheck", "missing return statement", applier)
	if !res.Applied {
		t.Fatalf("second attempt should apply, result = %+v", res)
	}
	if len(applier.checked) != 1 || applier.checked[0] != "patch-one" {
		t.Errorf("second attempt checked %v, want the untried patch-one", applier.checked)
	}
}

func TestOversizePatchNotStored(t *testing.T) {
	s := newTestStore(t)
	big := strings.Repeat("x", 11*1024)
	recordFixWithPatch(t, s, "t1", big)

	fixes := s.FindFixSuggestions("typecheck", "missing return statement")
	if fixes[0].PatchData != "" {
		t.Error("patches over 10KB should be dropped, not stored")
	}

	res := s.TryAutoRemediate(t.Context(), "typecheck", "missing return statement", &fakeApplier{})
	if res.Attempted {
		t.Error("nothing to attempt when the only patch was oversize")
	}
}
