package llm

import "testing"

func TestTokenCounterCount(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4o-mini")
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}
	n := tc.Count("hello world")
	if n <= 0 {
		t.Errorf("expected positive token count, got %d", n)
	}
}

func TestTokenCounterCountMessages(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4o-mini")
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}
	messages := []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "what is 2+2"},
	}
	total := tc.CountMessages(messages)
	if total <= 6 { // at least the 3-per-message + 3 reply-priming overhead
		t.Errorf("expected total tokens above overhead floor, got %d", total)
	}
}

func TestTokenCounterFallsBackForUnknownModel(t *testing.T) {
	tc, err := NewTokenCounter("claude-3-5-sonnet-latest")
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}
	if tc.Count("hello") <= 0 {
		t.Error("expected positive token count using fallback encoding")
	}
}

func TestTokenCounterGetModel(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4o-mini")
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}
	if tc.GetModel() != "gpt-4o-mini" {
		t.Errorf("unexpected model: %s", tc.GetModel())
	}
}
