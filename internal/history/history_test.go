package history

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore()
	if err := store.Open(filepath.Join(t.TempDir(), "history.db")); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreOpenClose(t *testing.T) {
	store := NewStore()
	path := filepath.Join(t.TempDir(), "history.db")

	if err := store.Open(path); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreMigrate(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("failed to get migration version: %v", err)
	}
	if version < 1 {
		t.Errorf("migration version = %d, want >= 1", version)
	}

	for _, table := range []string{"runs", "run_steps"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		if err != nil {
			t.Errorf("table %s does not exist: %v", table, err)
			continue
		}
		rows.Close()
	}

	// Migrate is idempotent.
	if err := store.Migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestStoreRequiresOpen(t *testing.T) {
	store := NewStore()

	if _, err := store.BeginRun("/ws", "sst"); err == nil || !strings.Contains(err.Error(), "not opened") {
		t.Errorf("BeginRun on unopened store: got %v", err)
	}
	if err := store.Migrate(); err == nil || !strings.Contains(err.Error(), "not opened") {
		t.Errorf("Migrate on unopened store: got %v", err)
	}
	if _, err := store.ListRuns(5); err == nil || !strings.Contains(err.Error(), "not opened") {
		t.Errorf("ListRuns on unopened store: got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	id, err := store.BeginRun("/data/pacific", "sst_corr")
	if err != nil {
		t.Fatalf("failed to begin run: %v", err)
	}
	if id == "" {
		t.Fatal("BeginRun returned an empty run ID")
	}

	running, err := store.GetRun(id)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if running.Status != StatusRunning {
		t.Errorf("status = %q, want %q", running.Status, StatusRunning)
	}
	if running.CompletedAt != nil {
		t.Error("running run should not have a completion time")
	}

	if err := store.RecordStep(id, "sst", "success", 1500*time.Millisecond, ""); err != nil {
		t.Fatalf("failed to record step: %v", err)
	}
	if err := store.RecordStep(id, "sst_corr", "failed", 20*time.Millisecond, "operator exploded"); err != nil {
		t.Fatalf("failed to record step: %v", err)
	}
	if err := store.FinishRun(id, "failed", "evaluating sst_corr: operator exploded"); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	run, err := store.GetRun(id)
	if err != nil {
		t.Fatalf("failed to get finished run: %v", err)
	}
	if run.Workspace != "/data/pacific" || run.Target != "sst_corr" {
		t.Errorf("run = %+v, want workspace /data/pacific target sst_corr", run)
	}
	if run.Status != "failed" {
		t.Errorf("status = %q, want failed", run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("finished run should have a completion time")
	}
	if !strings.Contains(run.Error, "operator exploded") {
		t.Errorf("run error = %q, want the operator failure", run.Error)
	}
	if run.StartedAt.IsZero() {
		t.Error("run should have a start time")
	}

	steps, err := store.Steps(id)
	if err != nil {
		t.Fatalf("failed to list steps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].Resource != "sst" || steps[0].Status != "success" || steps[0].ElapsedMS != 1500 {
		t.Errorf("first step = %+v", steps[0])
	}
	if steps[0].Error != "" {
		t.Errorf("successful step carries error %q", steps[0].Error)
	}
	if steps[1].Resource != "sst_corr" || steps[1].Status != "failed" {
		t.Errorf("second step = %+v", steps[1])
	}
	if steps[1].Error != "operator exploded" {
		t.Errorf("failed step error = %q", steps[1].Error)
	}
	if steps[1].RecordedAt.IsZero() {
		t.Error("step should carry a recording time")
	}
}

func TestFinishRunUnknownID(t *testing.T) {
	store := setupTestStore(t)

	err := store.FinishRun("no-such-run", "completed", "")
	if err == nil || !strings.Contains(err.Error(), "run not found") {
		t.Errorf("FinishRun on unknown id: got %v", err)
	}
}

func TestGetRunUnknownID(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun("no-such-run")
	if err == nil || !strings.Contains(err.Error(), "run not found") {
		t.Errorf("GetRun on unknown id: got %v", err)
	}
}

func TestRecordStepEnforcesRunReference(t *testing.T) {
	store := setupTestStore(t)

	err := store.RecordStep("no-such-run", "sst", "success", time.Millisecond, "")
	if err == nil {
		t.Error("RecordStep against a missing run should fail the foreign key check")
	}
}

func TestListRunsOrderAndLimit(t *testing.T) {
	store := setupTestStore(t)

	var ids []string
	for _, target := range []string{"first", "second", "third"} {
		id, err := store.BeginRun("/ws", target)
		if err != nil {
			t.Fatalf("failed to begin run: %v", err)
		}
		if err := store.FinishRun(id, "completed", ""); err != nil {
			t.Fatalf("failed to finish run: %v", err)
		}
		ids = append(ids, id)
	}

	runs, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("runs ordered %s, %s; want newest first %s, %s", runs[0].ID, runs[1].ID, ids[2], ids[1])
	}

	all, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("failed to list runs with default limit: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d runs, want 3", len(all))
	}
}

func TestRecorderRoutesPerWorkspace(t *testing.T) {
	recorder := NewRecorder(nil)
	defer recorder.Close()

	baseA := t.TempDir()
	baseB := t.TempDir()

	idA, err := recorder.BeginRun(baseA, "sst_mean")
	if err != nil {
		t.Fatalf("failed to begin run for %s: %v", baseA, err)
	}
	idB, err := recorder.BeginRun(baseB, "precip")
	if err != nil {
		t.Fatalf("failed to begin run for %s: %v", baseB, err)
	}

	if err := recorder.RecordStep(idA, "sst_mean", "success", time.Second, ""); err != nil {
		t.Fatalf("failed to record step: %v", err)
	}
	if err := recorder.FinishRun(idA, "completed", ""); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}
	if err := recorder.FinishRun(idB, "failed", "cancelled"); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	if err := recorder.Close(); err != nil {
		t.Fatalf("failed to close recorder: %v", err)
	}

	storeA := NewStore()
	if err := storeA.Open(filepath.Join(baseA, ".tephra", "history.db")); err != nil {
		t.Fatalf("failed to reopen workspace A history: %v", err)
	}
	defer storeA.Close()

	runsA, err := storeA.ListRuns(10)
	if err != nil {
		t.Fatalf("failed to list workspace A runs: %v", err)
	}
	if len(runsA) != 1 {
		t.Fatalf("workspace A has %d runs, want 1", len(runsA))
	}
	if runsA[0].Workspace != baseA || runsA[0].Target != "sst_mean" {
		t.Errorf("workspace A run = %+v", runsA[0])
	}
	stepsA, err := storeA.Steps(runsA[0].ID)
	if err != nil {
		t.Fatalf("failed to list workspace A steps: %v", err)
	}
	if len(stepsA) != 1 || stepsA[0].Resource != "sst_mean" {
		t.Errorf("workspace A steps = %+v", stepsA)
	}

	storeB := NewStore()
	if err := storeB.Open(filepath.Join(baseB, ".tephra", "history.db")); err != nil {
		t.Fatalf("failed to reopen workspace B history: %v", err)
	}
	defer storeB.Close()

	runsB, err := storeB.ListRuns(10)
	if err != nil {
		t.Fatalf("failed to list workspace B runs: %v", err)
	}
	if len(runsB) != 1 || runsB[0].Target != "precip" || runsB[0].Status != "failed" {
		t.Errorf("workspace B runs = %+v", runsB)
	}
}

func TestRecorderRejectsUnknownRun(t *testing.T) {
	recorder := NewRecorder(nil)
	defer recorder.Close()

	if err := recorder.RecordStep("missing", "sst", "success", time.Second, ""); err == nil {
		t.Error("RecordStep with unknown run id should fail")
	}
	if err := recorder.FinishRun("missing", "completed", ""); err == nil {
		t.Error("FinishRun with unknown run id should fail")
	}
}

func TestRecorderReusesStore(t *testing.T) {
	recorder := NewRecorder(nil)
	defer recorder.Close()

	base := t.TempDir()
	for i := 0; i < 3; i++ {
		id, err := recorder.BeginRun(base, "sst")
		if err != nil {
			t.Fatalf("failed to begin run %d: %v", i, err)
		}
		if err := recorder.FinishRun(id, "completed", ""); err != nil {
			t.Fatalf("failed to finish run %d: %v", i, err)
		}
	}
	if len(recorder.stores) != 1 {
		t.Errorf("recorder opened %d stores, want 1", len(recorder.stores))
	}

	store := NewStore()
	if err := store.Open(filepath.Join(base, ".tephra", "history.db")); err != nil {
		t.Fatalf("failed to reopen history: %v", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("got %d runs, want 3", len(runs))
	}
}
