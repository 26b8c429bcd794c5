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
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

// Dialect names a supported database/sql backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

const createEscalationTableSQL = `
CREATE TABLE IF NOT EXISTS bmad_escalations (
    id VARCHAR(64) PRIMARY KEY,
    workflow_id VARCHAR(255) NOT NULL,
    status VARCHAR(16) NOT NULL,
    doc_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`

// SQLStore is a Queue over database/sql, for deployments where multiple
// orchestrator processes share one escalation queue. It stores each
// escalation as a JSON document plus the columns List and GetMetrics
// filter on, sharing the State Store's dialect trio.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

// NewSQLStore wraps db (already open, already connected) as a Queue.
// Callers own db's lifecycle.
func NewSQLStore(db *sql.DB, dialect Dialect, log *slog.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, errs.Validationf(component, "NewSQLStore", "database connection is required")
	}
	switch dialect {
	case DialectSQLite, DialectPostgres, DialectMySQL:
	default:
		return nil, errs.Validationf(component, "NewSQLStore", "unsupported dialect %q (supported: sqlite, postgres, mysql)", dialect)
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createEscalationTableSQL); err != nil {
		return nil, errs.Externalf(component, "NewSQLStore", err, "create bmad_escalations table")
	}
	return &SQLStore{db: db, dialect: dialect, log: log}, nil
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return [...]string{"$1", "$2", "$3", "$4", "$5"}[n-1]
	}
	return "?"
}

// Add inserts a new pending escalation and logs a notification.
func (s *SQLStore) Add(input AddInput) (*Escalation, error) {
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
	doc, err := json.Marshal(esc)
	if err != nil {
		return nil, errs.Externalf(component, "Add", err, "encode escalation %s", id)
	}

	query := "INSERT INTO bmad_escalations (id, workflow_id, status, doc_json, created_at) VALUES (" +
		s.placeholder(1) + ", " + s.placeholder(2) + ", " + s.placeholder(3) + ", " + s.placeholder(4) + ", " + s.placeholder(5) + ")"
	if _, err := s.db.Exec(query, esc.ID, esc.WorkflowID, string(esc.Status), string(doc), esc.CreatedAt); err != nil {
		return nil, errs.Externalf(component, "Add", err, "insert escalation %s", id)
	}

	s.log.Info("escalation raised",
		"id", esc.ID,
		"workflow", esc.WorkflowID,
		"question", esc.Question,
		"confidence", esc.Confidence,
	)
	return esc, nil
}

// Respond resolves a pending escalation inside one transaction, so two
// concurrent responders cannot both win.
func (s *SQLStore) Respond(id string, response ResponseInput) (*Escalation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errs.Externalf(component, "Respond", err, "begin transaction")
	}
	defer tx.Rollback()

	esc, err := s.getTx(tx, id)
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

	if err := s.updateTx(tx, esc); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.Externalf(component, "Respond", err, "commit escalation %s", id)
	}
	return esc, nil
}

// Cancel marks a pending escalation cancelled without a response.
func (s *SQLStore) Cancel(id string) (*Escalation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errs.Externalf(component, "Cancel", err, "begin transaction")
	}
	defer tx.Rollback()

	esc, err := s.getTx(tx, id)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusPending {
		return nil, errs.Preconditionf(component, "Cancel", "escalation %s is not pending (status=%s)", id, esc.Status)
	}
	esc.Status = StatusCancelled

	if err := s.updateTx(tx, esc); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.Externalf(component, "Cancel", err, "commit escalation %s", id)
	}
	return esc, nil
}

type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func (s *SQLStore) getTx(q rowQuerier, id string) (*Escalation, error) {
	query := "SELECT doc_json FROM bmad_escalations WHERE id = " + s.placeholder(1)
	var doc string
	err := q.QueryRow(query, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf(component, "GetByID", "escalation %s", id)
	}
	if err != nil {
		return nil, errs.Externalf(component, "GetByID", err, "query escalation %s", id)
	}

	var esc Escalation
	if err := json.Unmarshal([]byte(doc), &esc); err != nil {
		return nil, errs.Externalf(component, "GetByID", err, "decode escalation %s", id)
	}
	return &esc, nil
}

func (s *SQLStore) updateTx(tx *sql.Tx, esc *Escalation) error {
	doc, err := json.Marshal(esc)
	if err != nil {
		return errs.Externalf(component, "update", err, "encode escalation %s", esc.ID)
	}
	query := "UPDATE bmad_escalations SET status = " + s.placeholder(1) + ", doc_json = " + s.placeholder(2) +
		" WHERE id = " + s.placeholder(3)
	if _, err := tx.Exec(query, string(esc.Status), string(doc), esc.ID); err != nil {
		return errs.Externalf(component, "update", err, "update escalation %s", esc.ID)
	}
	return nil
}

// GetByID loads a single escalation.
func (s *SQLStore) GetByID(id string) (*Escalation, error) {
	return s.getTx(s.db, id)
}

// List returns escalations matching filter, oldest first.
func (s *SQLStore) List(filter ListFilter) ([]*Escalation, error) {
	query := "SELECT doc_json FROM bmad_escalations"
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "status = "+s.placeholder(len(args)+1))
		args = append(args, string(filter.Status))
	}
	if filter.WorkflowID != "" {
		conds = append(conds, "workflow_id = "+s.placeholder(len(args)+1))
		args = append(args, filter.WorkflowID)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.Externalf(component, "List", err, "query escalations")
	}
	defer rows.Close()

	out := []*Escalation{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, errs.Externalf(component, "List", err, "scan escalation row")
		}
		var esc Escalation
		if err := json.Unmarshal([]byte(doc), &esc); err != nil {
			return nil, errs.Externalf(component, "List", err, "decode escalation row")
		}
		out = append(out, &esc)
	}
	return out, rows.Err()
}

// GetMetrics computes throughput metrics over the whole table.
func (s *SQLStore) GetMetrics() (Metrics, error) {
	all, err := s.List(ListFilter{})
	if err != nil {
		return Metrics{}, err
	}
	return computeMetrics(all), nil
}

var _ Queue = (*SQLStore)(nil)
