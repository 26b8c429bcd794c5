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

package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/bmad-forge/bmad-core/internal/errs"
	"github.com/bmad-forge/bmad-core/pkg/agentpool"
	"github.com/bmad-forge/bmad-core/pkg/decision"
	"github.com/bmad-forge/bmad-core/pkg/escalation"
	"github.com/bmad-forge/bmad-core/pkg/observability"
	"github.com/bmad-forge/bmad-core/pkg/state"
)

// Deps are the shared collaborators every phase orchestrator composes.
// Metrics may be nil (its recorders are nil-safe); everything else is
// required.
type Deps struct {
	Pool        *agentpool.Pool
	Decisions   *decision.Engine
	Escalations escalation.Queue
	States      state.Store
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// PhaseStatus is the lifecycle state of one orchestrated phase.
type PhaseStatus string

const (
	PhaseCompleted PhaseStatus = "completed"
	PhasePaused    PhaseStatus = "paused"
	PhaseFailed    PhaseStatus = "failed"
)

// PhaseResult summarizes one phase run; it is also the per-phase record
// written into the status file.
type PhaseResult struct {
	RunID       string      `yaml:"run_id"`
	Phase       string      `yaml:"phase"`
	Status      PhaseStatus `yaml:"status"`
	Score       float64     `yaml:"score"`
	Passed      bool        `yaml:"passed"`
	Attempts    int         `yaml:"attempts"`
	Artifacts   []string    `yaml:"artifacts,omitempty"`
	Escalations []string    `yaml:"escalations,omitempty"`
	StartedAt   time.Time   `yaml:"started_at"`
	FinishedAt  time.Time   `yaml:"finished_at"`
}

func newPhaseResult(phase string) *PhaseResult {
	return &PhaseResult{
		RunID:     uuid.New().String(),
		Phase:     phase,
		StartedAt: time.Now().UTC(),
	}
}

func (r *PhaseResult) finish(status PhaseStatus) *PhaseResult {
	r.Status = status
	r.FinishedAt = time.Now().UTC()
	return r
}

// statusFile is the on-disk shape of bmad/workflow-status.yaml: one record
// per phase, most recent run wins.
type statusFile struct {
	Phases    map[string]*PhaseResult `yaml:"phases"`
	UpdatedAt time.Time               `yaml:"updated_at"`
}

// writeStatus merges res into dir/workflow-status.yaml with the same
// temp-then-rename discipline the State Store uses. A corrupt existing
// file is replaced rather than surfaced: the status file is derived
// output, never the source of truth.
func writeStatus(dir string, res *PhaseResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Externalf(component, "writeStatus", err, "create status directory %s", dir)
	}
	path := filepath.Join(dir, "workflow-status.yaml")

	sf := statusFile{Phases: map[string]*PhaseResult{}}
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, &sf)
		if sf.Phases == nil {
			sf.Phases = map[string]*PhaseResult{}
		}
	}
	sf.Phases[res.Phase] = res
	sf.UpdatedAt = time.Now().UTC()

	data, err := yaml.Marshal(&sf)
	if err != nil {
		return errs.Externalf(component, "writeStatus", err, "marshal status")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.Externalf(component, "writeStatus", err, "write temp status file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Externalf(component, "writeStatus", err, "rename status file")
	}
	return nil
}

// writeArtifact atomically writes one produced artifact under dir,
// creating parent directories as needed, and records it on res.
func writeArtifact(dir, name, content string, res *PhaseResult) error {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Externalf(component, "writeArtifact", err, "create directory for %s", name)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return errs.Externalf(component, "writeArtifact", err, "write temp file for %s", name)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Externalf(component, "writeArtifact", err, "rename temp file for %s", name)
	}
	res.Artifacts = append(res.Artifacts, path)
	return nil
}

// agentSession holds one pooled agent for the duration of a phase, so
// repeated invocations (regeneration attempts, per-section calls) share
// cost accounting and lifecycle events.
type agentSession struct {
	pool *agentpool.Pool
	id   string
}

func startAgent(ctx context.Context, pool *agentpool.Pool, persona, clientName, task string) (*agentSession, error) {
	agent, err := pool.CreateAgent(ctx, persona, clientName, agentpool.AgentContext{TaskDesc: task})
	if err != nil {
		return nil, err
	}
	return &agentSession{pool: pool, id: agent.ID}, nil
}

func (s *agentSession) invoke(ctx context.Context, prompt string) (string, error) {
	return s.pool.InvokeAgent(ctx, s.id, prompt)
}

func (s *agentSession) close() {
	_ = s.pool.DestroyAgent(s.id)
}

// invokeWithRetry retries external invocation failures with exponential
// backoff (default posture from the Open Question resolution: 3 attempts).
// Validation of the returned text is the caller's business; only transport
// errors are retried here.
func (s *agentSession) invokeWithRetry(ctx context.Context, prompt string, attempts int, base time.Duration) (string, error) {
	if attempts <= 0 {
		attempts = 3
	}
	if base <= 0 {
		base = time.Second
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(base << (i - 1)):
			}
		}
		text, err := s.invoke(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// decodeJSONPayload parses raw as JSON into v, tolerating responses
// wrapped in a ``` or ```json code fence.
func decodeJSONPayload(raw string, v any) error {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return errs.Validationf(component, "decodeJSONPayload", "parse JSON payload: %v", err)
	}
	return nil
}

// raiseEscalations walks the decision engine's answers for the given
// questions; confident answers land in answers, low-confidence ones are
// enqueued and their ids recorded on res. Returns true when at least one
// escalation is pending and the phase should pause.
func raiseEscalations(ctx context.Context, deps Deps, workflowID string, step int, questions []string, answers map[string]string, res *PhaseResult) (bool, error) {
	pending := false
	for _, q := range questions {
		d, err := deps.Decisions.Decide(ctx, q)
		if err != nil {
			return false, err
		}
		deps.Metrics.RecordDecision(string(d.Source), d.Confidence)
		if !strings.Contains(d.Reasoning, decision.EscalationMarker) {
			answers[q] = d.DecisionText
			continue
		}
		esc, err := deps.Escalations.Add(escalation.AddInput{
			WorkflowID:  workflowID,
			Step:        step,
			Question:    q,
			AIReasoning: d.Reasoning,
			Confidence:  d.Confidence,
		})
		if err != nil {
			return false, err
		}
		deps.Metrics.RecordEscalationRaised()
		res.Escalations = append(res.Escalations, esc.ID)
		pending = true
	}
	return pending, nil
}

// resolvedAnswers collects responses of already-resolved escalations for
// workflowID, keyed by question, so a resumed phase can pick up where a
// pause left off.
func resolvedAnswers(deps Deps, workflowID string) (map[string]string, error) {
	resolved, err := deps.Escalations.List(escalation.ListFilter{
		Status:     escalation.StatusResolved,
		WorkflowID: workflowID,
	})
	if err != nil {
		return nil, err
	}
	answers := make(map[string]string, len(resolved))
	for _, esc := range resolved {
		answers[esc.Question] = responseText(esc.Response)
	}
	return answers, nil
}
