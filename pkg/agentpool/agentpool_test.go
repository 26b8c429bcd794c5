package agentpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bmad-forge/bmad-core/pkg/llm"
)

type fakeLLMClient struct {
	model string
	text  string
	err   error
}

func (f *fakeLLMClient) Invoke(_ context.Context, _ llm.Request) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text, InputTokens: 10, OutputTokens: 20}, nil
}
func (f *fakeLLMClient) ModelName() string { return f.model }
func (f *fakeLLMClient) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens+outputTokens) * 0.00001
}

func newTestRegistry(t *testing.T, name string, client llm.Client) *llm.Registry {
	t.Helper()
	r := llm.NewRegistry()
	if err := r.Register(name, client); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r
}

func TestPoolCreateAgentWithinCapacity(t *testing.T) {
	reg := newTestRegistry(t, "winston", &fakeLLMClient{model: "m", text: "hi"})
	pool := NewPool(Config{MaxConcurrentAgents: 2}, reg, nil)

	agent, err := pool.CreateAgent(context.Background(), "winston", "winston", AgentContext{TaskDesc: "draft prd"})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if agent.State() != StateStarted {
		t.Errorf("expected Started, got %s", agent.State())
	}
	if pool.ActiveCount() != 1 {
		t.Errorf("expected active count 1, got %d", pool.ActiveCount())
	}
}

func TestPoolInvokeAgentSuccess(t *testing.T) {
	reg := newTestRegistry(t, "winston", &fakeLLMClient{model: "m", text: "the answer"})
	pool := NewPool(Config{MaxConcurrentAgents: 1}, reg, nil)

	agent, err := pool.CreateAgent(context.Background(), "winston", "winston", AgentContext{})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	text, err := pool.InvokeAgent(context.Background(), agent.ID, "what next?")
	if err != nil {
		t.Fatalf("InvokeAgent: %v", err)
	}
	if text != "the answer" {
		t.Errorf("unexpected response text: %q", text)
	}
	if agent.State() != StateInvoked {
		t.Errorf("expected Invoked, got %s", agent.State())
	}
	if agent.EstimatedCost() <= 0 {
		t.Error("expected positive estimated cost after invocation")
	}
}

func TestPoolInvokeAgentFailureLeavesRetryable(t *testing.T) {
	client := &fakeLLMClient{model: "m", text: "recovered", err: errors.New("rate limited")}
	reg := newTestRegistry(t, "winston", client)
	pool := NewPool(Config{MaxConcurrentAgents: 1}, reg, nil)

	agent, err := pool.CreateAgent(context.Background(), "winston", "winston", AgentContext{})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	if _, err := pool.InvokeAgent(context.Background(), agent.ID, "prompt"); err == nil {
		t.Fatal("expected invocation error")
	}
	if agent.State() != StateFailed {
		t.Errorf("expected Failed after first-invocation error, got %s", agent.State())
	}

	// A Failed agent is not terminal; a retry may still be attempted once
	// the underlying issue clears.
	client.err = nil
	if _, err := pool.InvokeAgent(context.Background(), agent.ID, "retry"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestPoolDestroyAgentServicesQueue(t *testing.T) {
	reg := newTestRegistry(t, "winston", &fakeLLMClient{model: "m", text: "ok"})
	pool := NewPool(Config{MaxConcurrentAgents: 1}, reg, nil)

	first, err := pool.CreateAgent(context.Background(), "winston", "winston", AgentContext{})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	secondDone := make(chan *Agent, 1)
	secondErr := make(chan error, 1)
	go func() {
		second, err := pool.CreateAgent(context.Background(), "winston", "winston", AgentContext{})
		secondDone <- second
		secondErr <- err
	}()

	// Give the goroutine a moment to enqueue.
	time.Sleep(20 * time.Millisecond)
	if pool.QueueDepth() != 1 {
		t.Fatalf("expected queue depth 1, got %d", pool.QueueDepth())
	}

	if err := pool.DestroyAgent(first.ID); err != nil {
		t.Fatalf("DestroyAgent: %v", err)
	}
	if first.State() != StateCompleted {
		t.Errorf("expected Completed, got %s", first.State())
	}

	select {
	case second := <-secondDone:
		if err := <-secondErr; err != nil {
			t.Fatalf("queued CreateAgent returned error: %v", err)
		}
		if second == nil || second.State() != StateStarted {
			t.Error("expected queued request to be admitted as Started")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued CreateAgent to be serviced")
	}
	if pool.QueueDepth() != 0 {
		t.Errorf("expected queue depth 0 after servicing, got %d", pool.QueueDepth())
	}
}

func TestPoolCreateAgentQueuedCancelledByContext(t *testing.T) {
	reg := newTestRegistry(t, "winston", &fakeLLMClient{model: "m"})
	pool := NewPool(Config{MaxConcurrentAgents: 1}, reg, nil)

	if _, err := pool.CreateAgent(context.Background(), "winston", "winston", AgentContext{}); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.CreateAgent(ctx, "winston", "winston", AgentContext{}); err == nil {
		t.Error("expected context-cancellation error while queued")
	}
}

func TestPoolShutdownDestroysAllAndCancelsQueue(t *testing.T) {
	reg := newTestRegistry(t, "winston", &fakeLLMClient{model: "m"})
	pool := NewPool(Config{MaxConcurrentAgents: 1}, reg, nil)

	agent, err := pool.CreateAgent(context.Background(), "winston", "winston", AgentContext{})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	queuedErr := make(chan error, 1)
	go func() {
		_, err := pool.CreateAgent(context.Background(), "winston", "winston", AgentContext{})
		queuedErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	pool.Shutdown()

	if agent.State() != StateCompleted {
		t.Errorf("expected Completed after shutdown, got %s", agent.State())
	}

	select {
	case err := <-queuedErr:
		if err == nil {
			t.Error("expected queued request to error out on shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued request to be cancelled")
	}

	if _, err := pool.CreateAgent(context.Background(), "winston", "winston", AgentContext{}); err == nil {
		t.Error("expected CreateAgent to fail after shutdown")
	}
}

func TestPoolInvokeAgentUnknownID(t *testing.T) {
	reg := llm.NewRegistry()
	pool := NewPool(Config{}, reg, nil)
	if _, err := pool.InvokeAgent(context.Background(), "does-not-exist", "prompt"); err == nil {
		t.Error("expected error for unknown agent id")
	}
}

func TestPoolEventsOrderingPerAgent(t *testing.T) {
	reg := newTestRegistry(t, "winston", &fakeLLMClient{model: "m", text: "ok"})
	pool := NewPool(Config{MaxConcurrentAgents: 1}, reg, nil)
	events := pool.Events()

	agent, err := pool.CreateAgent(context.Background(), "winston", "winston", AgentContext{})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if _, err := pool.InvokeAgent(context.Background(), agent.ID, "prompt"); err != nil {
		t.Fatalf("InvokeAgent: %v", err)
	}
	if err := pool.DestroyAgent(agent.ID); err != nil {
		t.Fatalf("DestroyAgent: %v", err)
	}

	var seen []EventType
	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			seen = append(seen, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	want := []EventType{EventStarted, EventInvoked, EventCompleted}
	for i, w := range want {
		if seen[i] != w {
			t.Errorf("event %d: expected %s, got %s", i, w, seen[i])
		}
	}
}
