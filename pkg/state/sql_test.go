package state

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db, DialectSQLite)
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	return store
}

func TestSQLStoreNewRejectsNilDB(t *testing.T) {
	if _, err := NewSQLStore(nil, DialectSQLite); err == nil {
		t.Error("expected error for nil db")
	}
}

func TestSQLStoreNewRejectsUnknownDialect(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	if _, err := NewSQLStore(db, Dialect("oracle")); err == nil {
		t.Error("expected error for unsupported dialect")
	}
}

func TestSQLStoreSaveAndLoad(t *testing.T) {
	store := newTestSQLStore(t)

	ws := &WorkflowState{
		ProjectID:   "proj-1",
		Status:      StatusRunning,
		CurrentStep: 3,
		Variables:   map[string]any{"foo": "bar"},
		TraceID:     "trace-abc",
	}
	if err := store.SaveState(ws); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	loaded, err := store.LoadState("proj-1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected non-nil state")
	}
	if loaded.CurrentStep != 3 || loaded.Status != StatusRunning || loaded.TraceID != "trace-abc" {
		t.Errorf("unexpected loaded state: %+v", loaded)
	}
	if loaded.Variables["foo"] != "bar" {
		t.Errorf("unexpected variables: %+v", loaded.Variables)
	}
}

func TestSQLStoreSaveIsUpsert(t *testing.T) {
	store := newTestSQLStore(t)

	ws := &WorkflowState{ProjectID: "proj-1", Status: StatusRunning, CurrentStep: 1}
	if err := store.SaveState(ws); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	ws.Status = StatusCompleted
	ws.CurrentStep = 9
	if err := store.SaveState(ws); err != nil {
		t.Fatalf("SaveState (update): %v", err)
	}

	loaded, err := store.LoadState("proj-1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded.Status != StatusCompleted || loaded.CurrentStep != 9 {
		t.Errorf("expected upsert to overwrite, got %+v", loaded)
	}
}

func TestSQLStoreLoadMissingReturnsNilNil(t *testing.T) {
	store := newTestSQLStore(t)
	ws, err := store.LoadState("does-not-exist")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ws != nil {
		t.Errorf("expected nil state, got %+v", ws)
	}
}

func TestSQLStoreClearCacheForcesRequery(t *testing.T) {
	store := newTestSQLStore(t)
	ws := &WorkflowState{ProjectID: "proj-1", Status: StatusRunning, CurrentStep: 1}
	if err := store.SaveState(ws); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	// Load populates the cache.
	if _, err := store.LoadState("proj-1"); err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	// Mutate the row directly, bypassing SaveState/cache.
	if _, err := store.db.Exec(`UPDATE bmad_workflow_state SET current_step = 42 WHERE project_id = ?`, "proj-1"); err != nil {
		t.Fatalf("direct update: %v", err)
	}

	cached, err := store.LoadState("proj-1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if cached.CurrentStep != 1 {
		t.Fatalf("expected cached value to still be stale, got %d", cached.CurrentStep)
	}

	store.ClearCache()
	reloaded, err := store.LoadState("proj-1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if reloaded.CurrentStep != 42 {
		t.Errorf("expected reloaded value 42, got %d", reloaded.CurrentStep)
	}
}

func TestSQLStorePurge(t *testing.T) {
	store := newTestSQLStore(t)
	ws := &WorkflowState{ProjectID: "proj-1", Status: StatusRunning}
	if err := store.SaveState(ws); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := store.Purge("proj-1"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	loaded, err := store.LoadState("proj-1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil state after purge, got %+v", loaded)
	}
}

func TestSQLStoreSaveStateRejectsEmptyProjectID(t *testing.T) {
	store := newTestSQLStore(t)
	if err := store.SaveState(&WorkflowState{}); err == nil {
		t.Error("expected error for empty projectId")
	}
}

func TestSQLStoreClose(t *testing.T) {
	store := newTestSQLStore(t)
	if err := store.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
