package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davenport-labs/flotilla/pkg/models"
)

func TestRecoveryStoreRoundTrip(t *testing.T) {
	store := NewRecoveryStore(filepath.Join(t.TempDir(), "parallel-recovery.json"))

	st, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if st != nil {
		t.Fatal("fresh store should load nil")
	}

	saved := &models.ParallelRecoveryState{
		BatchID:   "abc123",
		StartedAt: time.Now(),
		Tasks: []models.ParallelTaskState{
			{TaskID: "t1", Task: "fix the build", Status: models.TaskRunning},
			{TaskID: "t2", Task: "add a test", Status: models.TaskPending},
		},
	}
	if err := store.Save(saved); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil || loaded.BatchID != "abc123" || len(loaded.Tasks) != 2 {
		t.Errorf("loaded = %+v, want the saved batch", loaded)
	}

	if err := store.Clear(); err != nil {
		t.Fatal(err)
	}
	loaded, err = store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded != nil {
		t.Error("cleared store should load nil")
	}
}

func TestRecoveryStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parallel-recovery.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := NewRecoveryStore(path).Load()
	if err != nil {
		t.Fatalf("corrupt file should be treated as absent, got %v", err)
	}
	if st != nil {
		t.Error("corrupt file should load nil")
	}
}

// seedCrashedBatch persists a batch that looks like a crash: one task
// merged, one running, one pending, with real worktree directories.
func seedCrashedBatch(t *testing.T, rig *testRig) (runningPath, pendingPath string) {
	t.Helper()
	runningPath = filepath.Join(rig.worktrees.baseDir, "task-run")
	pendingPath = filepath.Join(rig.worktrees.baseDir, "task-pend")
	for _, p := range []string{runningPath, pendingPath} {
		if err := os.MkdirAll(p, 0755); err != nil {
			t.Fatal(err)
		}
	}

	batch := &models.ParallelRecoveryState{
		BatchID:   "crashed",
		StartedAt: time.Now(),
		Tasks: []models.ParallelTaskState{
			{TaskID: "done", Task: "finished task", Status: models.TaskMerged},
			{TaskID: "run", Task: "interrupted task", Status: models.TaskRunning, WorktreePath: runningPath},
			{TaskID: "pend", Task: "queued task", Status: models.TaskPending, WorktreePath: pendingPath},
		},
	}
	if err := rig.recovery.Save(batch); err != nil {
		t.Fatal(err)
	}
	return runningPath, pendingPath
}

func TestHasActiveRecoveryAndInfo(t *testing.T) {
	rig := newTestRig(t, nil)
	seedCrashedBatch(t, rig)

	active, err := rig.runner.HasActiveRecovery()
	if err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Error("incomplete batch should count as active recovery")
	}

	info, err := rig.runner.GetRecoveryInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info == nil {
		t.Fatal("expected recovery info")
	}
	if info.Total != 3 || info.Running != 1 || info.Pending != 1 || info.Merged != 1 {
		t.Errorf("info = %+v, want total=3 running=1 pending=1 merged=1", info)
	}
}

func TestResumeRecovery(t *testing.T) {
	rig := newTestRig(t, nil)
	runningPath, pendingPath := seedCrashedBatch(t, rig)

	resubmit, err := rig.runner.ResumeRecovery()
	if err != nil {
		t.Fatal(err)
	}
	if len(resubmit) != 2 {
		t.Fatalf("resubmit = %v, want the running and pending task texts", resubmit)
	}

	// Stale worktrees are gone and the batch record is cleared.
	for _, p := range []string{runningPath, pendingPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("worktree %s should be removed", p)
		}
	}
	active, err := rig.runner.HasActiveRecovery()
	if err != nil {
		t.Fatal(err)
	}
	if active {
		t.Error("resume should clear the old batch record")
	}

	// Idempotent: a second resume finds nothing.
	resubmit, err = rig.runner.ResumeRecovery()
	if err != nil {
		t.Fatal(err)
	}
	if resubmit != nil {
		t.Errorf("second resume = %v, want nil", resubmit)
	}
}

func TestAbandonRecovery(t *testing.T) {
	rig := newTestRig(t, nil)
	runningPath, pendingPath := seedCrashedBatch(t, rig)

	if err := rig.runner.AbandonRecovery(); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{runningPath, pendingPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("worktree %s should be removed", p)
		}
	}
	active, err := rig.runner.HasActiveRecovery()
	if err != nil {
		t.Fatal(err)
	}
	if active {
		t.Error("abandon should discard the batch record")
	}
}
