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

// Package agentpool implements the Agent Pool: a capacity-limited registry
// of running agents with a FIFO wait queue, lifecycle events, and cost
// accounting.
package agentpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bmad-forge/bmad-core/internal/errs"
	"github.com/bmad-forge/bmad-core/pkg/llm"
	"github.com/bmad-forge/bmad-core/pkg/observability"
)

const component = "agentpool"

// State is an agent's position in the lifecycle FSM.
//
//	(none) --createAgent--> Started --invokeAgent--> Invoked --destroyAgent--> Completed
//	                                       │ error
//	                                       ▼
//	                                     Failed --destroyAgent--> Completed
type State string

const (
	StateStarted   State = "Started"
	StateInvoked   State = "Invoked"
	StateCompleted State = "Completed"
	StateCancelled State = "Cancelled"
	StateFailed    State = "Failed"
)

// IsTerminal reports whether state has no further transitions.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateCancelled:
		return true
	}
	return false
}

// EventType identifies a lifecycle event kind.
type EventType string

const (
	EventStarted   EventType = "STARTED"
	EventInvoked   EventType = "INVOKED"
	EventCompleted EventType = "COMPLETED"
)

// Event is one lifecycle transition, delivered in strict per-agent order
// (STARTED, then INVOKED*, then COMPLETED); no ordering is guaranteed
// across distinct agents.
type Event struct {
	Type      EventType
	AgentID   string
	Persona   string
	Timestamp time.Time
}

// AgentContext is the immutable context handed to an agent at creation.
type AgentContext struct {
	OnboardingDocs []string
	WorkflowState  any
	TaskDesc       string
	Overlay        map[string]any
}

// Agent is a unit of work bound to one LLM client and persona. Callers
// interact with agents only through the Pool; fields are read through the
// accessor methods to keep cost/state mutation serialized.
type Agent struct {
	ID      string
	Persona string
	// ClientName is the key this agent's LLM client is registered under in
	// the pool's llm.Registry — distinct from Persona, since several
	// personas may share one provider client.
	ClientName string
	Context    AgentContext
	// PersonaText is the persona's markdown definition when the pool was
	// configured with a PersonaStore; empty otherwise.
	PersonaText string

	mu            sync.RWMutex
	state         State
	estimatedCost float64
	createdAt     time.Time
	updatedAt     time.Time
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// EstimatedCost returns the agent's accumulated cost in dollars.
func (a *Agent) EstimatedCost() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.estimatedCost
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.updatedAt = time.Now().UTC()
	a.mu.Unlock()
}

func (a *Agent) addCost(dollars float64) {
	a.mu.Lock()
	a.estimatedCost += dollars
	a.mu.Unlock()
}

// Config configures a Pool.
type Config struct {
	// MaxConcurrentAgents bounds how many agents can be Started/Invoked at
	// once. Requests beyond capacity queue FIFO. Zero means unbounded.
	MaxConcurrentAgents int
	// AutoCleanupHungAgents and HeartbeatTimeout (default 10 minutes) are
	// carried on the config; the Pool runs no heartbeat check and does not
	// destroy hung agents on its own.
	AutoCleanupHungAgents bool
	HeartbeatTimeout      time.Duration

	// Personas, when non-nil, resolves persona names to their markdown
	// definitions: CreateAgent rejects unknown names, and the persona
	// text becomes the system message of every invocation. Nil accepts
	// any name with no system message.
	Personas *PersonaStore
}

func (c *Config) withDefaults() Config {
	cp := *c
	if cp.HeartbeatTimeout <= 0 {
		cp.HeartbeatTimeout = 10 * time.Minute
	}
	return cp
}

// pendingCreate is one queued createAgent request awaiting a free slot.
type pendingCreate struct {
	persona     string
	clientName  string
	personaText string
	ctx         AgentContext
	result      chan createResult
}

type createResult struct {
	agent *Agent
	err   error
}

// Pool manages a bounded set of running agents.
type Pool struct {
	cfg     Config
	clients *llm.Registry
	metrics *observability.Metrics

	mu        sync.Mutex
	agents    map[string]*Agent
	active    int
	queue     []*pendingCreate
	listeners []chan Event
	nextID    int
	shutdown  bool
}

// NewPool constructs a Pool drawing LLM clients from clients.
func NewPool(cfg Config, clients *llm.Registry, metrics *observability.Metrics) *Pool {
	return &Pool{
		cfg:     cfg.withDefaults(),
		clients: clients,
		metrics: metrics,
		agents:  make(map[string]*Agent),
	}
}

// Events returns a channel of lifecycle events. The channel is buffered;
// slow consumers may miss events rather than blocking the pool — callers
// needing a durable event log should persist from this channel promptly.
func (p *Pool) Events() <-chan Event {
	ch := make(chan Event, 64)
	p.mu.Lock()
	p.listeners = append(p.listeners, ch)
	p.mu.Unlock()
	return ch
}

func (p *Pool) emit(ev Event) {
	p.mu.Lock()
	listeners := append([]chan Event(nil), p.listeners...)
	p.mu.Unlock()
	for _, ch := range listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// CreateAgent admits a new agent under persona (invoking via the LLM
// client registered as clientName), or queues the request FIFO if the
// pool is at capacity. It returns once the agent reaches Started, which
// may be after this call blocks on ctx for a free slot.
func (p *Pool) CreateAgent(ctx context.Context, persona, clientName string, actx AgentContext) (*Agent, error) {
	var personaText string
	if p.cfg.Personas != nil {
		pe, err := p.cfg.Personas.Get(persona)
		if err != nil {
			return nil, err
		}
		personaText = pe.Text
	}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, errs.Preconditionf(component, "CreateAgent", "pool is shut down")
	}

	if p.cfg.MaxConcurrentAgents <= 0 || p.active < p.cfg.MaxConcurrentAgents {
		agent := p.admitLocked(persona, clientName, personaText, actx)
		p.mu.Unlock()
		p.metrics.RecordAgentSpawned(persona)
		p.emit(Event{Type: EventStarted, AgentID: agent.ID, Persona: persona, Timestamp: time.Now().UTC()})
		return agent, nil
	}

	pending := &pendingCreate{persona: persona, clientName: clientName, personaText: personaText, ctx: actx, result: make(chan createResult, 1)}
	p.queue = append(p.queue, pending)
	p.metrics.SetAgentQueueDepth(len(p.queue))
	p.mu.Unlock()

	select {
	case res := <-pending.result:
		if res.err != nil {
			return nil, res.err
		}
		p.metrics.RecordAgentSpawned(persona)
		p.emit(Event{Type: EventStarted, AgentID: res.agent.ID, Persona: persona, Timestamp: time.Now().UTC()})
		return res.agent, nil
	case <-ctx.Done():
		return nil, errs.Preconditionf(component, "CreateAgent", "cancelled while queued: %v", ctx.Err())
	}
}

// admitLocked creates and registers an agent. Caller holds p.mu.
func (p *Pool) admitLocked(persona, clientName, personaText string, actx AgentContext) *Agent {
	p.nextID++
	now := time.Now().UTC()
	agent := &Agent{
		ID:          fmt.Sprintf("agent-%d", p.nextID),
		Persona:     persona,
		ClientName:  clientName,
		Context:     actx,
		PersonaText: personaText,
		state:       StateStarted,
		createdAt:   now,
		updatedAt:   now,
	}
	p.agents[agent.ID] = agent
	p.active++
	p.metrics.SetAgentActive(persona, p.active)
	return agent
}

// InvokeAgent calls the LLM client bound to persona with prompt. On
// success the call's cost is added to the agent and the pool aggregate; on
// failure the agent remains in Invoked (or Failed, if this was its first
// invocation attempt and it errored) so the caller may retry.
func (p *Pool) InvokeAgent(ctx context.Context, id, prompt string) (string, error) {
	agent, err := p.getAgent(id)
	if err != nil {
		return "", err
	}
	if agent.State().IsTerminal() {
		return "", errs.Preconditionf(component, "InvokeAgent", "agent %s is in terminal state %s", id, agent.State())
	}

	client, err := p.clients.Get(agent.ClientName)
	if err != nil {
		return "", errs.Validationf(component, "InvokeAgent", "no llm client registered as %s: %v", agent.ClientName, err)
	}

	start := time.Now()
	messages := make([]llm.Message, 0, 2)
	if agent.PersonaText != "" {
		messages = append(messages, llm.Message{Role: "system", Content: agent.PersonaText})
	}
	messages = append(messages, llm.Message{Role: "user", Content: prompt})

	resp, err := client.Invoke(ctx, llm.Request{
		Model:    client.ModelName(),
		Messages: messages,
	})
	duration := time.Since(start)
	p.metrics.RecordAgentInvocation(agent.Persona, duration, err)

	if err != nil {
		if agent.State() == StateStarted {
			agent.setState(StateFailed)
		}
		return "", errs.Externalf(component, "InvokeAgent", err, "invoke agent %s", id)
	}

	cost := client.EstimateCost(resp.InputTokens, resp.OutputTokens)
	agent.addCost(cost)
	p.metrics.AddAgentCost(agent.Persona, cost)
	agent.setState(StateInvoked)
	p.emit(Event{Type: EventInvoked, AgentID: id, Persona: agent.Persona, Timestamp: time.Now().UTC()})

	return resp.Text, nil
}

// DestroyAgent detaches agent id, marks it Completed, emits COMPLETED, and
// services the queue head if one is waiting.
func (p *Pool) DestroyAgent(id string) error {
	agent, err := p.getAgent(id)
	if err != nil {
		return err
	}

	agent.setState(StateCompleted)

	p.mu.Lock()
	delete(p.agents, id)
	p.active--
	p.metrics.SetAgentActive(agent.Persona, p.countActiveLocked(agent.Persona))

	var next *pendingCreate
	if len(p.queue) > 0 {
		next = p.queue[0]
		p.queue = p.queue[1:]
		p.metrics.SetAgentQueueDepth(len(p.queue))
	}
	var admitted *Agent
	if next != nil {
		admitted = p.admitLocked(next.persona, next.clientName, next.personaText, next.ctx)
	}
	p.mu.Unlock()

	p.emit(Event{Type: EventCompleted, AgentID: id, Persona: agent.Persona, Timestamp: time.Now().UTC()})

	if next != nil {
		next.result <- createResult{agent: admitted}
	}
	return nil
}

func (p *Pool) countActiveLocked(persona string) int {
	n := 0
	for _, a := range p.agents {
		if a.Persona == persona {
			n++
		}
	}
	return n
}

// Shutdown destroys all agents and cancels queued requests.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	ids := make([]string, 0, len(p.agents))
	for id := range p.agents {
		ids = append(ids, id)
	}
	queued := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, pending := range queued {
		pending.result <- createResult{err: errs.Preconditionf(component, "Shutdown", "pool shut down while request was queued")}
	}
	for _, id := range ids {
		_ = p.DestroyAgent(id)
	}
}

// GetAgent returns an agent by id, for read-only inspection.
func (p *Pool) GetAgent(id string) (*Agent, error) {
	return p.getAgent(id)
}

func (p *Pool) getAgent(id string) (*Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	agent, ok := p.agents[id]
	if !ok {
		return nil, errs.NotFoundf(component, "getAgent", "agent %s not found", id)
	}
	return agent, nil
}

// QueueDepth returns the number of createAgent requests currently waiting
// for a free slot.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// ActiveCount returns the number of agents currently occupying a slot.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
