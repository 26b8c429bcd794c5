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
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

// Persona identifies one of the four CIS personas a question can be
// routed to.
type Persona string

const (
	PersonaTechnical  Persona = "technical"
	PersonaUX         Persona = "ux"
	PersonaProduct    Persona = "product"
	PersonaInnovation Persona = "innovation"
)

// defaultInvocationLimit is the hard per-workflow cap on CIS invocations
// per workflow.
const defaultInvocationLimit = 3

// defaultCISTimeout is the default per-invocation timeout.
const defaultCISTimeout = 60 * time.Second

// personaKeywords classifies a question by weighted keyword scoring. Ties
// default to technical.
var personaKeywords = map[Persona][]string{
	PersonaTechnical:  {"architecture", "database", "api", "performance", "scalability", "infrastructure", "algorithm", "latency"},
	PersonaUX:         {"user experience", "usability", "accessibility", "interface", "workflow", "interaction", "design system"},
	PersonaProduct:    {"market", "pricing", "roadmap", "competitor", "customer", "business", "revenue", "positioning"},
	PersonaInnovation: {"novel", "experiment", "disrupt", "emerging", "breakthrough", "unconventional", "prototype"},
}

// classificationOrder fixes the iteration order over personaKeywords.
// Classification starts from technical as the best candidate, so technical
// wins any tie it is part of; among the other personas, the first in this
// order with the highest score wins.
var classificationOrder = []Persona{PersonaUX, PersonaProduct, PersonaInnovation, PersonaTechnical}

// EventType identifies a CIS router event kind.
type EventType string

const (
	EventSuccess       EventType = "cis.success"
	EventError         EventType = "cis.error"
	EventLimitExceeded EventType = "cis.limit_exceeded"
)

// Event is one CIS router event.
type Event struct {
	Type      EventType
	Agent     Persona
	Decision  string
	Count     int
	Limit     int
	Err       string
	Timestamp time.Time
}

// Invocation records one routeDecision call for the history.
type Invocation struct {
	Question  string
	Persona   Persona
	Success   bool
	Timestamp time.Time
}

// RoutedDecision is the structured response a persona agent produces.
type RoutedDecision struct {
	Recommendation string   `json:"recommendation"`
	Rationale      string   `json:"rationale"`
	Confidence     float64  `json:"confidence"`
	Considerations []string `json:"considerations,omitempty"`
}

// defaultDecision is substituted when a persona agent's response can't be
// parsed as JSON, degrading gracefully rather than failing the route.
func defaultDecision() RoutedDecision {
	return RoutedDecision{Recommendation: "No recommendation provided"}
}

// PersonaAgent is the capability a concrete persona (technical, ux,
// product, innovation) must provide; narrow by design so the router has
// no dependency on pkg/agentpool or pkg/llm directly.
type PersonaAgent interface {
	Invoke(ctx context.Context, question string) (string, error)
}

// Config configures a Router.
type Config struct {
	// InvocationLimit caps routeDecision calls per Router instance
	// (conceptually, per workflow). Defaults to 3.
	InvocationLimit int
	// Timeout bounds each persona agent invocation. Defaults to 60s.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.InvocationLimit <= 0 {
		c.InvocationLimit = defaultInvocationLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultCISTimeout
	}
	return c
}

// Router classifies decisions by persona and dispatches them to the
// matching agent, enforcing a hard per-workflow invocation cap.
type Router struct {
	cfg     Config
	agents  map[Persona]PersonaAgent
	mu      sync.Mutex
	count   int
	history []Invocation

	listeners []chan Event
}

// NewRouter constructs a Router. agents need not cover every Persona; a
// question routed to an unregistered persona fails the invocation.
func NewRouter(cfg Config, agents map[Persona]PersonaAgent) *Router {
	return &Router{cfg: cfg.withDefaults(), agents: agents}
}

// Events returns a channel of router events. The channel is buffered;
// slow consumers don't block routing.
func (r *Router) Events() <-chan Event {
	ch := make(chan Event, 16)
	r.mu.Lock()
	r.listeners = append(r.listeners, ch)
	r.mu.Unlock()
	return ch
}

func (r *Router) emit(ev Event) {
	r.mu.Lock()
	listeners := append([]chan Event(nil), r.listeners...)
	r.mu.Unlock()
	for _, ch := range listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Classify scores question against every persona's keyword set and
// returns the highest-scoring persona. Ties default to technical.
func Classify(question string) Persona {
	lower := strings.ToLower(question)

	scores := make(map[Persona]int, len(personaKeywords))
	for persona, keywords := range personaKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				scores[persona]++
			}
		}
	}

	best := PersonaTechnical
	bestScore := scores[PersonaTechnical]
	for _, persona := range classificationOrder {
		if persona == PersonaTechnical {
			continue
		}
		if scores[persona] > bestScore {
			best = persona
			bestScore = scores[persona]
		}
	}
	return best
}

// RouteDecision classifies question, dispatches it to the matching
// persona agent (subject to cfg.Timeout), and records the outcome. The
// (InvocationLimit+1)th call returns a Precondition error without
// invoking any agent.
func (r *Router) RouteDecision(ctx context.Context, question string) (Persona, RoutedDecision, error) {
	r.mu.Lock()
	if r.count >= r.cfg.InvocationLimit {
		count, limit := r.count, r.cfg.InvocationLimit
		r.mu.Unlock()
		r.emit(Event{Type: EventLimitExceeded, Decision: question, Count: count, Limit: limit, Timestamp: time.Now().UTC()})
		return "", RoutedDecision{}, errs.Preconditionf(component, "RouteDecision", "CIS invocation limit exceeded: %d of %d used", count, limit)
	}
	r.count++
	r.mu.Unlock()

	persona := Classify(question)
	agent, ok := r.agents[persona]
	if !ok {
		err := errs.Configf(component, "RouteDecision", "no persona agent registered for %q", persona)
		r.record(question, persona, false)
		r.emit(Event{Type: EventError, Agent: persona, Decision: question, Err: err.Error(), Timestamp: time.Now().UTC()})
		return persona, RoutedDecision{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	raw, err := agent.Invoke(callCtx, question)
	if err != nil {
		r.record(question, persona, false)
		r.emit(Event{Type: EventError, Agent: persona, Decision: question, Err: err.Error(), Timestamp: time.Now().UTC()})
		return persona, RoutedDecision{}, errs.Externalf(component, "RouteDecision", err, "invoke %s persona agent", persona)
	}

	decision := parseRoutedDecision(raw)
	r.record(question, persona, true)
	r.emit(Event{Type: EventSuccess, Agent: persona, Decision: question, Timestamp: time.Now().UTC()})
	return persona, decision, nil
}

func (r *Router) record(question string, persona Persona, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, Invocation{Question: question, Persona: persona, Success: success, Timestamp: time.Now().UTC()})
}

// History returns a snapshot of every RouteDecision call, in call order.
func (r *Router) History() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Invocation, len(r.history))
	copy(out, r.history)
	return out
}

// parseRoutedDecision decodes a persona agent's JSON response, tolerating
// a markdown code fence wrapper. An unparseable response degrades to
// defaultDecision rather than failing the route.
func parseRoutedDecision(raw string) RoutedDecision {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var decision RoutedDecision
	if err := json.Unmarshal([]byte(trimmed), &decision); err != nil || decision.Recommendation == "" {
		return defaultDecision()
	}
	return decision
}
