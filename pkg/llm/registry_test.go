package llm

import (
	"context"
	"testing"
)

func TestRegistryCreateFromConfigUnsupportedType(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateFromConfig(context.Background(), "default", ProviderConfig{Type: "does-not-exist"})
	if err == nil {
		t.Fatal("expected error for unsupported provider type")
	}
}

func TestRegistryCreateFromConfigOpenAI(t *testing.T) {
	r := NewRegistry()
	client, err := r.CreateFromConfig(context.Background(), "default", ProviderConfig{
		Type:   "openai",
		APIKey: "k",
		Model:  "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("CreateFromConfig: %v", err)
	}
	if client.ModelName() != "gpt-4o-mini" {
		t.Errorf("unexpected model name: %s", client.ModelName())
	}

	got, err := r.Get("default")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != client {
		t.Error("expected Get to return the same client instance")
	}
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("missing"); err == nil {
		t.Error("expected error for missing client")
	}
}

type fakeClient struct{ model string }

func (f *fakeClient) Invoke(_ context.Context, _ Request) (*Response, error) {
	return &Response{Text: "fake"}, nil
}
func (f *fakeClient) ModelName() string             { return f.model }
func (f *fakeClient) EstimateCost(_, _ int) float64 { return 0 }

func TestRegistryRegisterDirect(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{model: "fake-model"}
	if err := r.Register("winston", c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Get("winston")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != c {
		t.Error("expected Get to return the registered client instance")
	}
}

func TestRegistryRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{model: "fake-model"}
	if err := r.Register("winston", c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("winston", c); err == nil {
		t.Error("expected error registering a duplicate name")
	}
}
