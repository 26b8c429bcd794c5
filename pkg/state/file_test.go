package state

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreSaveAndLoad(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ws := &WorkflowState{
		ProjectID:   "proj-1",
		Status:      StatusRunning,
		CurrentStep: 2,
		Variables:   map[string]any{"key": "value"},
		StartedAt:   time.Now().UTC(),
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
	if loaded.CurrentStep != 2 || loaded.Status != StatusRunning {
		t.Errorf("unexpected loaded state: %+v", loaded)
	}
}

func TestFileStoreLoadMissingReturnsNilNil(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ws, err := store.LoadState("does-not-exist")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ws != nil {
		t.Errorf("expected nil state, got %+v", ws)
	}
}

func TestFileStoreClearCacheForcesReread(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ws := &WorkflowState{ProjectID: "proj-1", Status: StatusRunning, CurrentStep: 1}
	if err := store.SaveState(ws); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	// Simulate an external edit bypassing the cache.
	other, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ws.Status = StatusCompleted
	ws.CurrentStep = 5
	if err := other.SaveState(ws); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	store.ClearCache()
	reloaded, err := store.LoadState("proj-1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if reloaded.Status != StatusCompleted || reloaded.CurrentStep != 5 {
		t.Errorf("expected reloaded state to reflect external edit, got %+v", reloaded)
	}
}

func TestFileStorePurge(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
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

func TestFileStorePurgeMissingIsNotAnError(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Purge("never-existed"); err != nil {
		t.Errorf("expected no error purging a missing project, got %v", err)
	}
}

func TestFileStoreSaveStateRejectsEmptyProjectID(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.SaveState(&WorkflowState{}); err == nil {
		t.Error("expected error for empty projectId")
	}
}

func TestFileStoreAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.SaveState(&WorkflowState{ProjectID: "proj-1", Status: StatusRunning}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no leftover temp files, got %v", matches)
	}
}
