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

package escalation

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

const component = "escalation"

// Store is a filesystem-backed Queue: one JSON file per escalation under
// Dir. Each escalation is its own file, so concurrent Add across many
// workflows never contends; Respond takes a per-id lock only, and GetByID
// reads without a lock.
type Store struct {
	dir string
	log *slog.Logger

	mu      sync.Mutex // serializes per-id read-modify-write; see Respond
	idLocks map[string]*sync.Mutex
}

// NewStore returns a Store rooted at dir, creating it if necessary.
func NewStore(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Externalf(component, "NewStore", err, "create escalation directory %s", dir)
	}
	return &Store{dir: dir, log: log, idLocks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.idLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.idLocks[id] = l
	}
	return l
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Add writes a new pending escalation and logs a notification containing
// id, workflow, question, and confidence.
func (s *Store) Add(input AddInput) (*Escalation, error) {
	id, err := newID()
	if err != nil {
		return nil, errs.Externalf(component, "Add", err, "generate escalation id")
	}

	esc := &Escalation{
		ID:          id,
		WorkflowID:  input.WorkflowID,
		Step:        input.Step,
		Question:    input.Question,
		AIReasoning: input.AIReasoning,
		Confidence:  input.Confidence,
		Context:     input.Context,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.write(esc); err != nil {
		return nil, err
	}

	s.log.Info("escalation raised",
		"id", esc.ID,
		"workflow", esc.WorkflowID,
		"question", esc.Question,
		"confidence", esc.Confidence,
	)
	return esc, nil
}

// Respond resolves a pending escalation with response, computing
// resolutionTime from createdAt.
func (s *Store) Respond(id string, response ResponseInput) (*Escalation, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	esc, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusPending {
		return nil, errs.Preconditionf(component, "Respond", "escalation %s is not pending (status=%s)", id, esc.Status)
	}

	now := time.Now().UTC()
	ms := now.Sub(esc.CreatedAt).Milliseconds()
	esc.Response = response
	esc.Status = StatusResolved
	esc.ResolvedAt = &now
	esc.ResolutionMS = &ms

	if err := s.write(esc); err != nil {
		return nil, err
	}
	return esc, nil
}

// Cancel marks a pending escalation cancelled without a response.
func (s *Store) Cancel(id string) (*Escalation, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	esc, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusPending {
		return nil, errs.Preconditionf(component, "Cancel", "escalation %s is not pending (status=%s)", id, esc.Status)
	}
	esc.Status = StatusCancelled
	if err := s.write(esc); err != nil {
		return nil, err
	}
	return esc, nil
}

// GetByID loads a single escalation.
func (s *Store) GetByID(id string) (*Escalation, error) {
	return s.read(id)
}

// List enumerates the directory, applying filter. Returns an empty slice
// (not an error) when the directory doesn't exist.
func (s *Store) List(filter ListFilter) ([]*Escalation, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return []*Escalation{}, nil
	}
	if err != nil {
		return nil, errs.Externalf(component, "List", err, "read escalation directory %s", s.dir)
	}

	result := make([]*Escalation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := entry.Name()[:len(entry.Name())-len(".json")]
		esc, err := s.read(id)
		if err != nil {
			s.log.Warn("skipping unreadable escalation file", "file", entry.Name(), "error", err)
			continue
		}
		if filter.Status != "" && esc.Status != filter.Status {
			continue
		}
		if filter.WorkflowID != "" && esc.WorkflowID != filter.WorkflowID {
			continue
		}
		result = append(result, esc)
	}
	return result, nil
}

// GetMetrics summarizes all escalations under Dir.
func (s *Store) GetMetrics() (Metrics, error) {
	all, err := s.List(ListFilter{})
	if err != nil {
		return Metrics{}, err
	}

	return computeMetrics(all), nil
}

func (s *Store) read(id string) (*Escalation, error) {
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, errs.NotFoundf(component, "read", "escalation %s not found", id)
	}
	if err != nil {
		return nil, errs.Externalf(component, "read", err, "read escalation %s", id)
	}
	var esc Escalation
	if err := json.Unmarshal(data, &esc); err != nil {
		return nil, errs.Externalf(component, "read", err, "decode escalation %s", id)
	}
	return &esc, nil
}

// write persists esc atomically: write to a temp file in the same
// directory, then rename, so a crash mid-write never leaves a truncated
// escalation file behind.
func (s *Store) write(esc *Escalation) error {
	data, err := json.MarshalIndent(esc, "", "  ")
	if err != nil {
		return errs.Externalf(component, "write", err, "encode escalation %s", esc.ID)
	}

	tmp, err := os.CreateTemp(s.dir, esc.ID+".*.tmp")
	if err != nil {
		return errs.Externalf(component, "write", err, "create temp file for %s", esc.ID)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Externalf(component, "write", err, "write temp file for %s", esc.ID)
	}
	if err := tmp.Close(); err != nil {
		return errs.Externalf(component, "write", err, "close temp file for %s", esc.ID)
	}
	if err := os.Rename(tmpPath, s.path(esc.ID)); err != nil {
		return errs.Externalf(component, "write", err, "rename temp file for %s", esc.ID)
	}
	return nil
}

// newID mints an esc-<unix-ms>-<rand> identifier.
func newID() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("esc-%d-%x", time.Now().UnixMilli(), buf), nil
}

var _ Queue = (*Store)(nil)
