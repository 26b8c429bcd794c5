package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestParseOpenAIRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "5")
	h.Set("x-ratelimit-remaining-requests", "42")
	h.Set("x-ratelimit-remaining-tokens", "1000")

	info := ParseOpenAIRateLimitHeaders(h)
	if info.RetryAfter != 5*time.Second {
		t.Errorf("expected RetryAfter=5s, got %v", info.RetryAfter)
	}
	if info.RequestsRemaining != 42 {
		t.Errorf("expected RequestsRemaining=42, got %d", info.RequestsRemaining)
	}
	if info.TokensRemaining != 1000 {
		t.Errorf("expected TokensRemaining=1000, got %d", info.TokensRemaining)
	}
}

func TestParseAnthropicRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("anthropic-ratelimit-requests-remaining", "10")
	h.Set("anthropic-ratelimit-input-tokens-remaining", "500")

	info := ParseAnthropicRateLimitHeaders(h)
	if info.RequestsRemaining != 10 {
		t.Errorf("expected RequestsRemaining=10, got %d", info.RequestsRemaining)
	}
	if info.InputTokensRemaining != 500 {
		t.Errorf("expected InputTokensRemaining=500, got %d", info.InputTokensRemaining)
	}
}

func TestParseGeminiRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "3")

	info := ParseGeminiRateLimitHeaders(h)
	if info.RetryAfter != 3*time.Second {
		t.Errorf("expected RetryAfter=3s, got %v", info.RetryAfter)
	}
}
