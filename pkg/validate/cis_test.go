package validate

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

type stubPersonaAgent struct {
	response string
	err      error
}

func (s *stubPersonaAgent) Invoke(ctx context.Context, question string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func newTestRouter(limit int) (*Router, *stubPersonaAgent) {
	agent := &stubPersonaAgent{response: `{"recommendation": "adopt gRPC", "rationale": "lower latency", "confidence": 0.8}`}
	agents := map[Persona]PersonaAgent{
		PersonaTechnical:  agent,
		PersonaUX:         agent,
		PersonaProduct:    agent,
		PersonaInnovation: agent,
	}
	return NewRouter(Config{InvocationLimit: limit}, agents), agent
}

func TestClassifyRoutesByKeyword(t *testing.T) {
	cases := map[string]Persona{
		"How should we architect the database layer for scalability?": PersonaTechnical,
		"Is this interface accessible enough for our users?":          PersonaUX,
		"What's our pricing strategy against the competitor?":         PersonaProduct,
		"Should we prototype a novel, unconventional approach?":       PersonaInnovation,
	}
	for question, want := range cases {
		if got := Classify(question); got != want {
			t.Errorf("Classify(%q) = %s, want %s", question, got, want)
		}
	}
}

func TestClassifyTiesDefaultToTechnical(t *testing.T) {
	if got := Classify("What should we name this thing?"); got != PersonaTechnical {
		t.Errorf("expected a no-signal question to default to technical, got %s", got)
	}
}

func TestRouteDecisionSucceedsWithinLimit(t *testing.T) {
	router, _ := newTestRouter(3)
	events := router.Events()

	for i := 1; i <= 3; i++ {
		_, decision, err := router.RouteDecision(context.Background(), fmt.Sprintf("Decision %d", i))
		if err != nil {
			t.Fatalf("invocation %d: unexpected error: %v", i, err)
		}
		if decision.Recommendation != "adopt gRPC" {
			t.Errorf("invocation %d: unexpected recommendation %q", i, decision.Recommendation)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			if ev.Type != EventSuccess {
				t.Errorf("expected cis.success event, got %s", ev.Type)
			}
		default:
			t.Fatalf("expected %d success events, got %d", 3, i)
		}
	}
}

func TestRouteDecisionFourthInvocationRaisesLimitExceeded(t *testing.T) {
	router, _ := newTestRouter(3)
	events := router.Events()

	for i := 1; i <= 3; i++ {
		if _, _, err := router.RouteDecision(context.Background(), fmt.Sprintf("Decision %d", i)); err != nil {
			t.Fatalf("invocation %d: unexpected error: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		<-events
	}

	_, _, err := router.RouteDecision(context.Background(), "Decision 4")
	if err == nil {
		t.Fatal("expected the 4th invocation to fail")
	}
	if !strings.Contains(err.Error(), "invocation limit exceeded") {
		t.Errorf("expected error to contain %q, got %q", "invocation limit exceeded", err.Error())
	}

	select {
	case ev := <-events:
		if ev.Type != EventLimitExceeded {
			t.Fatalf("expected cis.limit_exceeded event, got %s", ev.Type)
		}
		if ev.Decision != "Decision 4" || ev.Count != 3 || ev.Limit != 3 {
			t.Errorf("expected {decision:Decision 4, count:3, limit:3}, got {decision:%s, count:%d, limit:%d}", ev.Decision, ev.Count, ev.Limit)
		}
	default:
		t.Fatal("expected a cis.limit_exceeded event")
	}
}

func TestRouteDecisionParsesCodeFencedJSON(t *testing.T) {
	router, agent := newTestRouter(3)
	agent.response = "```json\n{\"recommendation\": \"use event sourcing\", \"confidence\": 0.7}\n```"

	_, decision, err := router.RouteDecision(context.Background(), "Decision 1")
	if err != nil {
		t.Fatalf("RouteDecision: %v", err)
	}
	if decision.Recommendation != "use event sourcing" {
		t.Errorf("expected fenced JSON to parse, got %+v", decision)
	}
}

func TestRouteDecisionDegradesOnUnparseableResponse(t *testing.T) {
	router, agent := newTestRouter(3)
	agent.response = "I think we should use gRPC, but I won't format that as JSON."

	_, decision, err := router.RouteDecision(context.Background(), "Decision 1")
	if err != nil {
		t.Fatalf("RouteDecision: %v", err)
	}
	if decision.Recommendation != "No recommendation provided" {
		t.Errorf("expected degraded default decision, got %+v", decision)
	}
}

func TestRouteDecisionRecordsHistory(t *testing.T) {
	router, _ := newTestRouter(3)
	router.RouteDecision(context.Background(), "Decision 1")

	history := router.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if !history[0].Success {
		t.Error("expected history entry to record success")
	}
}

func TestRouteDecisionAgentErrorEmitsErrorEvent(t *testing.T) {
	router, agent := newTestRouter(3)
	agent.err = fmt.Errorf("provider unavailable")
	events := router.Events()

	_, _, err := router.RouteDecision(context.Background(), "Decision 1")
	if err == nil {
		t.Fatal("expected an error when the persona agent fails")
	}

	select {
	case ev := <-events:
		if ev.Type != EventError {
			t.Errorf("expected cis.error event, got %s", ev.Type)
		}
	default:
		t.Fatal("expected a cis.error event")
	}

	history := router.History()
	if len(history) != 1 || history[0].Success {
		t.Fatalf("expected 1 failed history entry, got %+v", history)
	}
}
