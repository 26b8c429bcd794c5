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

// Package escalation implements the durable pending-question queue: one
// JSON file per escalation under a configurable root directory, with
// listing, filtering, resolution, and operational metrics.
package escalation

import "time"

// Status is the lifecycle state of an Escalation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
)

// Escalation is a durable pending question raised when an automated
// decision's confidence falls below threshold.
type Escalation struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflowId"`
	Step         int            `json:"step"`
	Question     string         `json:"question"`
	AIReasoning  string         `json:"aiReasoning"`
	Confidence   float64        `json:"confidence"`
	Context      map[string]any `json:"context,omitempty"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	ResolvedAt   *time.Time     `json:"resolvedAt,omitempty"`
	Response     map[string]any `json:"response,omitempty"`
	ResolutionMS *int64         `json:"resolutionTime,omitempty"`

	// ResponseToken is the jwx-signed token that authorized a remote
	// respond() call. Empty for local/CLI resolution.
	ResponseToken string `json:"responseToken,omitempty"`
}

// AddInput is the input to Queue.Add.
type AddInput struct {
	WorkflowID  string
	Step        int
	Question    string
	AIReasoning string
	Confidence  float64
	Context     map[string]any
}

// ResponseInput is the human response passed to Queue.Respond.
type ResponseInput map[string]any

// ListFilter narrows Queue.List results.
type ListFilter struct {
	Status     Status // empty matches all
	WorkflowID string // empty matches all
}

// Metrics summarizes escalation throughput.
type Metrics struct {
	TotalEscalations    int            `json:"totalEscalations"`
	ResolvedCount       int            `json:"resolvedCount"`
	AverageResolutionMS float64        `json:"averageResolutionTime"`
	CategoryBreakdown   map[string]int `json:"categoryBreakdown"`
}

// computeMetrics folds a snapshot of escalations into Metrics; shared by
// every Queue backend.
func computeMetrics(all []*Escalation) Metrics {
	m := Metrics{CategoryBreakdown: make(map[string]int)}
	var totalResolutionMS int64
	for _, esc := range all {
		m.TotalEscalations++
		m.CategoryBreakdown[esc.WorkflowID]++
		if esc.Status == StatusResolved && esc.ResolutionMS != nil {
			m.ResolvedCount++
			totalResolutionMS += *esc.ResolutionMS
		}
	}
	if m.ResolvedCount > 0 {
		m.AverageResolutionMS = float64(totalResolutionMS) / float64(m.ResolvedCount)
	}
	return m
}

// Queue is the Escalation Queue contract, implemented by the file-backed
// Store and the database-backed SQLStore, so orchestrator code depends on
// behavior, not the storage.
type Queue interface {
	Add(input AddInput) (*Escalation, error)
	Respond(id string, response ResponseInput) (*Escalation, error)
	GetByID(id string) (*Escalation, error)
	List(filter ListFilter) ([]*Escalation, error)
	GetMetrics() (Metrics, error)
}
