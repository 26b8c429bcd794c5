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

// Package state implements the State Store: persistent per-project
// workflow state with atomic writes, an invalidatable in-process cache,
// and a purge operation. Two backends are provided: a file backend
// (write-to-temp-then-rename, the default) and a SQL backend (for
// deployments where multiple orchestrator processes share one project).
package state

import "time"

// WorkflowStatus is the lifecycle state of a WorkflowState.
type WorkflowStatus string

const (
	StatusRunning   WorkflowStatus = "running"
	StatusPaused    WorkflowStatus = "paused"
	StatusCompleted WorkflowStatus = "completed"
	StatusFailed    WorkflowStatus = "failed"
)

// WorkflowState is the checkpointed state of one workflow run.
type WorkflowState struct {
	ProjectID   string         `json:"projectId"`
	Status      WorkflowStatus `json:"status"`
	CurrentStep int            `json:"currentStep"`
	Variables   map[string]any `json:"variables"`
	StartedAt   time.Time      `json:"startedAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`

	// TraceID is the OpenTelemetry trace id of the run, for observability
	// only; no invariant reads it.
	TraceID string `json:"traceId,omitempty"`
}

// Store is the State Store contract.
type Store interface {
	SaveState(state *WorkflowState) error
	LoadState(projectID string) (*WorkflowState, error) // nil, nil if absent
	ClearCache()
	Purge(projectID string) error
	Close() error
}
