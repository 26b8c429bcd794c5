// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

const component = "state"

// FileStore is the default Store backend: one JSON file per project under
// Dir, written atomically (temp file + rename), with an invalidatable
// in-process cache.
type FileStore struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*WorkflowState
}

// NewFileStore returns a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Externalf(component, "NewFileStore", err, "create state directory %s", dir)
	}
	return &FileStore{dir: dir, cache: make(map[string]*WorkflowState)}, nil
}

func (s *FileStore) path(projectID string) string {
	return filepath.Join(s.dir, projectID+".json")
}

// SaveState writes state atomically and updates the cache.
func (s *FileStore) SaveState(ws *WorkflowState) error {
	if ws.ProjectID == "" {
		return errs.Validationf(component, "SaveState", "projectId is required")
	}

	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return errs.Externalf(component, "SaveState", err, "encode state for %s", ws.ProjectID)
	}

	tmp, err := os.CreateTemp(s.dir, ws.ProjectID+".*.tmp")
	if err != nil {
		return errs.Externalf(component, "SaveState", err, "create temp file for %s", ws.ProjectID)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Externalf(component, "SaveState", err, "write temp file for %s", ws.ProjectID)
	}
	if err := tmp.Close(); err != nil {
		return errs.Externalf(component, "SaveState", err, "close temp file for %s", ws.ProjectID)
	}
	// Rename is the atomicity boundary: a crash before this point leaves
	// the previous good file untouched; after, readers see only the new
	// content, never a torn write.
	if err := os.Rename(tmpPath, s.path(ws.ProjectID)); err != nil {
		return errs.Externalf(component, "SaveState", err, "rename temp file for %s", ws.ProjectID)
	}

	s.mu.Lock()
	cp := *ws
	s.cache[ws.ProjectID] = &cp
	s.mu.Unlock()
	return nil
}

// LoadState returns the cached state if present, else reads from disk.
// Returns (nil, nil) if no state exists for projectID.
func (s *FileStore) LoadState(projectID string) (*WorkflowState, error) {
	s.mu.RLock()
	if cached, ok := s.cache[projectID]; ok {
		s.mu.RUnlock()
		cp := *cached
		return &cp, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.path(projectID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Externalf(component, "LoadState", err, "read state for %s", projectID)
	}

	var ws WorkflowState
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, errs.Externalf(component, "LoadState", err, "decode state for %s", projectID)
	}

	s.mu.Lock()
	cp := ws
	s.cache[projectID] = &cp
	s.mu.Unlock()

	return &ws, nil
}

// ClearCache invalidates the in-process cache, forcing the next LoadState
// to re-read from disk. Needed for test scenarios and resume-after-
// external-edit.
func (s *FileStore) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*WorkflowState)
}

// Purge deletes a project's state file and cache entry.
func (s *FileStore) Purge(projectID string) error {
	s.mu.Lock()
	delete(s.cache, projectID)
	s.mu.Unlock()

	err := os.Remove(s.path(projectID))
	if err != nil && !os.IsNotExist(err) {
		return errs.Externalf(component, "Purge", err, "remove state for %s", projectID)
	}
	return nil
}

// Close is a no-op for FileStore; present to satisfy Store.
func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
