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
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

// Dialect identifies the SQL backend SQLStore runs against.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

const (
	createStateTableSQL = `
CREATE TABLE IF NOT EXISTS bmad_workflow_state (
    project_id VARCHAR(255) PRIMARY KEY,
    status VARCHAR(32) NOT NULL,
    current_step INTEGER NOT NULL,
    variables_json TEXT NOT NULL,
    trace_id VARCHAR(64),
    started_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

	createStateUpdatedAtIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_bmad_workflow_state_updated_at ON bmad_workflow_state(updated_at)`
)

// SQLStore is a Store backend over database/sql, for deployments where
// multiple orchestrator processes share one project (still single-writer
// per projectId).
type SQLStore struct {
	db      *sql.DB
	dialect Dialect

	mu    sync.RWMutex
	cache map[string]*WorkflowState
}

// NewSQLStore wraps db (already open, already connected) as a Store.
// Callers own db's lifecycle beyond Close's pass-through.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, errs.Validationf(component, "NewSQLStore", "database connection is required")
	}
	switch dialect {
	case DialectSQLite, DialectPostgres, DialectMySQL:
	default:
		return nil, errs.Validationf(component, "NewSQLStore", "unsupported dialect %q (supported: sqlite, postgres, mysql)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect, cache: make(map[string]*WorkflowState)}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createStateTableSQL); err != nil {
		return errs.Externalf(component, "initSchema", err, "create bmad_workflow_state table")
	}
	if _, err := s.db.ExecContext(ctx, createStateUpdatedAtIndexSQL); err != nil {
		return errs.Externalf(component, "initSchema", err, "create updated_at index")
	}
	return nil
}

// SaveState upserts state, dialect-switched.
func (s *SQLStore) SaveState(ws *WorkflowState) error {
	if ws.ProjectID == "" {
		return errs.Validationf(component, "SaveState", "projectId is required")
	}

	variablesJSON, err := json.Marshal(ws.Variables)
	if err != nil {
		return errs.Externalf(component, "SaveState", err, "encode variables for %s", ws.ProjectID)
	}

	now := time.Now().UTC()
	started := ws.StartedAt
	if started.IsZero() {
		started = now
	}

	var query string
	switch s.dialect {
	case DialectPostgres:
		query = `
INSERT INTO bmad_workflow_state (project_id, status, current_step, variables_json, trace_id, started_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (project_id) DO UPDATE SET
    status = EXCLUDED.status,
    current_step = EXCLUDED.current_step,
    variables_json = EXCLUDED.variables_json,
    trace_id = EXCLUDED.trace_id,
    updated_at = EXCLUDED.updated_at
`
	case DialectMySQL:
		query = `
INSERT INTO bmad_workflow_state (project_id, status, current_step, variables_json, trace_id, started_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    status = VALUES(status),
    current_step = VALUES(current_step),
    variables_json = VALUES(variables_json),
    trace_id = VALUES(trace_id),
    updated_at = VALUES(updated_at)
`
	default: // sqlite
		query = `
INSERT INTO bmad_workflow_state (project_id, status, current_step, variables_json, trace_id, started_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(project_id) DO UPDATE SET
    status = excluded.status,
    current_step = excluded.current_step,
    variables_json = excluded.variables_json,
    trace_id = excluded.trace_id,
    updated_at = excluded.updated_at
`
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = s.db.ExecContext(ctx, query,
		ws.ProjectID, string(ws.Status), ws.CurrentStep, string(variablesJSON), ws.TraceID, started, now)
	if err != nil {
		return errs.Externalf(component, "SaveState", err, "upsert state for %s", ws.ProjectID)
	}

	s.mu.Lock()
	cp := *ws
	cp.StartedAt = started
	cp.UpdatedAt = now
	s.cache[ws.ProjectID] = &cp
	s.mu.Unlock()
	return nil
}

// LoadState returns the cached state if present, else queries the table.
func (s *SQLStore) LoadState(projectID string) (*WorkflowState, error) {
	s.mu.RLock()
	if cached, ok := s.cache[projectID]; ok {
		s.mu.RUnlock()
		cp := *cached
		return &cp, nil
	}
	s.mu.RUnlock()

	query := `SELECT project_id, status, current_step, variables_json, trace_id, started_at, updated_at FROM bmad_workflow_state WHERE project_id = ?`
	if s.dialect == DialectPostgres {
		query = `SELECT project_id, status, current_step, variables_json, trace_id, started_at, updated_at FROM bmad_workflow_state WHERE project_id = $1`
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		ws            WorkflowState
		variablesJSON string
		traceID       sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, projectID).Scan(
		&ws.ProjectID, &ws.Status, &ws.CurrentStep, &variablesJSON, &traceID, &ws.StartedAt, &ws.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Externalf(component, "LoadState", err, "query state for %s", projectID)
	}
	if traceID.Valid {
		ws.TraceID = traceID.String
	}
	if err := json.Unmarshal([]byte(variablesJSON), &ws.Variables); err != nil {
		return nil, errs.Externalf(component, "LoadState", err, "decode variables for %s", projectID)
	}

	s.mu.Lock()
	cp := ws
	s.cache[projectID] = &cp
	s.mu.Unlock()

	return &ws, nil
}

// ClearCache invalidates the in-process cache.
func (s *SQLStore) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*WorkflowState)
}

// Purge deletes a project's row and cache entry.
func (s *SQLStore) Purge(projectID string) error {
	s.mu.Lock()
	delete(s.cache, projectID)
	s.mu.Unlock()

	query := `DELETE FROM bmad_workflow_state WHERE project_id = ?`
	if s.dialect == DialectPostgres {
		query = `DELETE FROM bmad_workflow_state WHERE project_id = $1`
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, query, projectID); err != nil {
		return errs.Externalf(component, "Purge", err, "delete state for %s", projectID)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error { return s.db.Close() }

var _ Store = (*SQLStore)(nil)
