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

package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

// DecisionStatus is a TechnicalDecision's lifecycle state.
type DecisionStatus string

const (
	StatusProposed   DecisionStatus = "proposed"
	StatusAccepted   DecisionStatus = "accepted"
	StatusSuperseded DecisionStatus = "superseded"
)

// DecisionMaker identifies who or what authored a TechnicalDecision.
type DecisionMaker string

const (
	MakerWinston  DecisionMaker = "winston"
	MakerMurat    DecisionMaker = "murat"
	MakerCISAgent DecisionMaker = "cis-agent"
	MakerUser     DecisionMaker = "user"
)

// Alternative is one option considered and rejected for a TechnicalDecision.
type Alternative struct {
	Option string   `json:"option"`
	Pros   []string `json:"pros,omitempty"`
	Cons   []string `json:"cons,omitempty"`
}

// TechnicalDecision is one ADR entry. IDs are allocated sequentially and
// never reused, even across a clear-then-reload cycle.
type TechnicalDecision struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Context         string         `json:"context"`
	Decision        string         `json:"decision"`
	Alternatives    []Alternative  `json:"alternatives,omitempty"`
	Rationale       string         `json:"rationale"`
	Consequences    string         `json:"consequences"`
	Status          DecisionStatus `json:"status"`
	DecisionMaker   DecisionMaker  `json:"decisionMaker"`
	Date            time.Time      `json:"date"`
	Confidence      *float64       `json:"confidence,omitempty"`
	PRDRequirements []string       `json:"prdRequirements,omitempty"`
}

// TechnicalDecisionLogger captures and serializes ADRs, allocating
// sequential ADR-NNN ids.
type TechnicalDecisionLogger struct {
	mu        sync.Mutex
	decisions []TechnicalDecision
	nextID    int
}

// NewTechnicalDecisionLogger returns an empty logger, next id ADR-001.
func NewTechnicalDecisionLogger() *TechnicalDecisionLogger {
	return &TechnicalDecisionLogger{nextID: 1}
}

// Capture allocates the next sequential id for a decision and appends it.
// Capture always sets ID; it sets Date only when d.Date is zero and Status
// to proposed only when d.Status is empty. Other fields are kept verbatim.
func (l *TechnicalDecisionLogger) Capture(d TechnicalDecision) TechnicalDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	d.ID = fmt.Sprintf("ADR-%03d", l.nextID)
	l.nextID++
	if d.Date.IsZero() {
		d.Date = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = StatusProposed
	}
	l.decisions = append(l.decisions, d)
	return d
}

// Merge captures every decision in a batch from one agent, in order, so
// concurrent callers each hold Capture's lock for one decision at a time
// rather than the whole batch.
func (l *TechnicalDecisionLogger) Merge(batch []TechnicalDecision) []TechnicalDecision {
	out := make([]TechnicalDecision, 0, len(batch))
	for _, d := range batch {
		out = append(out, l.Capture(d))
	}
	return out
}

// Decisions returns a snapshot of every captured decision, in capture
// order.
func (l *TechnicalDecisionLogger) Decisions() []TechnicalDecision {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TechnicalDecision, len(l.decisions))
	copy(out, l.decisions)
	return out
}

// Save serializes all captured decisions to path as JSON.
func (l *TechnicalDecisionLogger) Save(path string) error {
	decisions := l.Decisions()
	data, err := json.MarshalIndent(decisions, "", "  ")
	if err != nil {
		return errs.Externalf(component, "Save", err, "encode technical decisions")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.Externalf(component, "Save", err, "write %s", path)
	}
	return nil
}

// Clear discards all captured decisions but preserves nextID, matching
// save→clear→load's requirement that ids are never reused.
func (l *TechnicalDecisionLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = nil
}

// Load replaces the logger's decisions with the contents of path and
// restores nextID to max(loaded id) + 1.
func (l *TechnicalDecisionLogger) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Externalf(component, "Load", err, "read %s", path)
	}
	var decisions []TechnicalDecision
	if err := json.Unmarshal(data, &decisions); err != nil {
		return errs.Validationf(component, "Load", "decode %s: %v", path, err)
	}

	maxID := 0
	for _, d := range decisions {
		if n, ok := parseADRNumber(d.ID); ok && n > maxID {
			maxID = n
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = decisions
	l.nextID = maxID + 1
	return nil
}

func parseADRNumber(id string) (int, bool) {
	const prefix = "ADR-"
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(id[len(prefix):], "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// SummaryTable renders a markdown table of every decision: id, title,
// status, decision maker.
func (l *TechnicalDecisionLogger) SummaryTable() string {
	decisions := l.Decisions()
	var b strings.Builder
	b.WriteString("| ID | Title | Status | Decision Maker |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, d := range decisions {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", d.ID, d.Title, d.Status, d.DecisionMaker)
	}
	return b.String()
}

// RenderDecision renders one ADR as a standalone markdown document.
func RenderDecision(d TechnicalDecision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", d.ID, d.Title)
	fmt.Fprintf(&b, "**Status:** %s | **Decision Maker:** %s | **Date:** %s\n\n", d.Status, d.DecisionMaker, d.Date.Format("2006-01-02"))
	b.WriteString("## Context\n\n")
	b.WriteString(d.Context + "\n\n")
	b.WriteString("## Decision\n\n")
	b.WriteString(d.Decision + "\n\n")
	if len(d.Alternatives) > 0 {
		b.WriteString("## Alternatives Considered\n\n")
		for _, alt := range d.Alternatives {
			fmt.Fprintf(&b, "### %s\n", alt.Option)
			for _, pro := range alt.Pros {
				fmt.Fprintf(&b, "- Pro: %s\n", pro)
			}
			for _, con := range alt.Cons {
				fmt.Fprintf(&b, "- Con: %s\n", con)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("## Rationale\n\n")
	b.WriteString(d.Rationale + "\n\n")
	b.WriteString("## Consequences\n\n")
	b.WriteString(d.Consequences + "\n")
	return b.String()
}

// TraceabilityMap builds a PRD-requirement → [ADR-ids] map from every
// captured decision's PRDRequirements.
func (l *TechnicalDecisionLogger) TraceabilityMap() map[string][]string {
	decisions := l.Decisions()
	out := make(map[string][]string)
	for _, d := range decisions {
		for _, req := range d.PRDRequirements {
			out[req] = append(out[req], d.ID)
		}
	}
	for req := range out {
		sort.Strings(out[req])
	}
	return out
}
