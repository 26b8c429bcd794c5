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

// Package decision implements the Decision Engine: answer a question with
// a confidence-scored Decision, preferring a literal match against project
// onboarding docs before falling back to an LLM call, and flagging
// low-confidence answers for escalation.
package decision

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Source identifies how a Decision was produced.
type Source string

const (
	SourceOnboarding Source = "onboarding"
	SourceLLM        Source = "llm"
)

// EscalationMarker is the literal string callers grep for in Reasoning to
// detect a decision that needs human escalation.
const EscalationMarker = "ESCALATION REQUIRED"

// onboardingConfidence is pinned — a literal onboarding
// match is treated as near-certain.
const onboardingConfidence = 0.95

// Decision is the answer to a single question, with provenance.
type Decision struct {
	Question     string
	DecisionText string
	Confidence   float64
	Reasoning    string
	Source       Source
	Timestamp    time.Time
	Context      map[string]any
}

// Config configures an Engine.
type Config struct {
	// OnboardingDir records the onboarding directory. The Engine does not
	// read it: onboarding matches come from the OnboardingIndex passed to
	// NewEngine or SetOnboarding.
	OnboardingDir string

	// Threshold is the confidence floor below which Reasoning must carry
	// EscalationMarker. Defaults to 0.75.
	Threshold float64

	// Temperature is used for the LLM fallback call. Defaults to 0.3.
	Temperature float64
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 0.75
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.3
	}
	return c
}

// LLMClient is the subset of llm.Client the engine needs; declared locally
// so this package doesn't import pkg/llm's provider adapters, only the
// capability it actually calls.
type LLMClient interface {
	Invoke(ctx context.Context, req LLMRequest) (*LLMResponse, error)
}

// LLMRequest/LLMResponse mirror pkg/llm.Request/Response's shape closely
// enough that an llm.Client can be adapted to LLMClient with a one-line
// shim (see AdaptLLMClient in llmshim.go); kept separate so decision has no import
// dependency on pkg/llm.
type LLMRequest struct {
	Messages    []LLMMessage
	Temperature float64
	JSONSchema  map[string]any
}

type LLMMessage struct {
	Role    string
	Content string
}

type LLMResponse struct {
	Text string
}

// Engine answers questions, consulting onboarding docs first.
type Engine struct {
	cfg      Config
	llm      LLMClient
	onboard  *OnboardingIndex
	mu       sync.Mutex
	auditLog []Decision
}

// NewEngine returns an Engine. onboard may be nil if no onboarding
// directory was configured or it failed to scan (caller's choice whether
// that's fatal).
func NewEngine(cfg Config, llm LLMClient, onboard *OnboardingIndex) *Engine {
	return &Engine{cfg: cfg.withDefaults(), llm: llm, onboard: onboard}
}

// SetOnboarding swaps the onboarding index, e.g. after a directory watch
// rebuild (see WatchOnboarding). Safe to call concurrently with Decide.
func (e *Engine) SetOnboarding(idx *OnboardingIndex) {
	e.mu.Lock()
	e.onboard = idx
	e.mu.Unlock()
}

// Decide answers question, appending the result to the audit trail.
func (e *Engine) Decide(ctx context.Context, question string) (*Decision, error) {
	var d *Decision
	var err error

	e.mu.Lock()
	onboard := e.onboard
	e.mu.Unlock()

	if onboard != nil {
		if match, ok := onboard.Match(question); ok {
			d = &Decision{
				Question:     question,
				DecisionText: match.Excerpt,
				Confidence:   onboardingConfidence,
				Reasoning:    fmt.Sprintf("matched onboarding document %q (keyword overlap, similarity=%.2f)", match.File, match.Similarity),
				Source:       SourceOnboarding,
				Timestamp:    time.Now().UTC(),
			}
		}
	}

	if d == nil {
		d, err = e.decideWithLLM(ctx, question)
		if err != nil {
			return nil, err
		}
	}

	if d.Confidence < e.cfg.Threshold {
		d.Reasoning = fmt.Sprintf("%s (%s: confidence %.2f below threshold %.2f)", d.Reasoning, EscalationMarker, d.Confidence, e.cfg.Threshold)
	}

	e.mu.Lock()
	e.auditLog = append(e.auditLog, *d)
	e.mu.Unlock()

	return d, nil
}

func (e *Engine) decideWithLLM(ctx context.Context, question string) (*Decision, error) {
	if e.llm == nil {
		return nil, fmt.Errorf("decision: no LLM client configured and no onboarding match")
	}

	resp, err := e.llm.Invoke(ctx, LLMRequest{
		Messages: []LLMMessage{
			{Role: "system", Content: "You answer project questions with a decision, reasoning, and a self-reported confidence between 0 and 1. Respond as JSON: {\"decision\": string, \"reasoning\": string, \"confidence\": number}."},
			{Role: "user", Content: question},
		},
		Temperature: e.cfg.Temperature,
		JSONSchema:  decisionJSONSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("decision: LLM invocation failed: %w", err)
	}

	parsed, err := parseLLMDecision(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("decision: parse LLM response: %w", err)
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &Decision{
		Question:     question,
		DecisionText: parsed.Decision,
		Confidence:   confidence,
		Reasoning:    parsed.Reasoning,
		Source:       SourceLLM,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// AuditTrail returns a snapshot of every decision made by this engine
// instance, in call order.
func (e *Engine) AuditTrail() []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Decision, len(e.auditLog))
	copy(out, e.auditLog)
	return out
}

var decisionJSONSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"decision":   map[string]any{"type": "string"},
		"reasoning":  map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
	},
	"required": []string{"decision", "reasoning", "confidence"},
}
