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

package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/bmad-forge/bmad-core/internal/registry"
	"github.com/bmad-forge/bmad-core/pkg/httpclient"
)

// ProviderConfig is the provider-neutral configuration used to construct a
// Client from pkg/config's AgentAssignment entries.
type ProviderConfig struct {
	Type       string // "openai", "anthropic", "gemini"
	APIKey     string
	Model      string
	Host       string
	Timeout    time.Duration
	MaxRetries int
	TLS        *httpclient.TLSConfig

	PricePerInputToken  float64
	PricePerOutputToken float64
}

// Registry holds named, constructed LLM clients.
type Registry struct {
	clients *registry.Registry[Client]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: registry.New[Client]()}
}

// CreateFromConfig builds a Client of the type named in cfg, registers it
// under name, and returns it.
func (r *Registry) CreateFromConfig(ctx context.Context, name string, cfg ProviderConfig) (Client, error) {
	var (
		client Client
		err    error
	)

	switch cfg.Type {
	case "openai":
		client, err = NewOpenAIClient(OpenAIConfig{
			APIKey:              cfg.APIKey,
			Model:               cfg.Model,
			Host:                cfg.Host,
			Timeout:             cfg.Timeout,
			MaxRetries:          cfg.MaxRetries,
			TLS:                 cfg.TLS,
			PricePerInputToken:  cfg.PricePerInputToken,
			PricePerOutputToken: cfg.PricePerOutputToken,
		})
	case "anthropic":
		client, err = NewAnthropicClient(AnthropicConfig{
			APIKey:              cfg.APIKey,
			Model:               cfg.Model,
			Host:                cfg.Host,
			Timeout:             cfg.Timeout,
			MaxRetries:          cfg.MaxRetries,
			TLS:                 cfg.TLS,
			PricePerInputToken:  cfg.PricePerInputToken,
			PricePerOutputToken: cfg.PricePerOutputToken,
		})
	case "gemini":
		client, err = NewGeminiClient(ctx, GeminiConfig{
			APIKey:              cfg.APIKey,
			Model:               cfg.Model,
			PricePerInputToken:  cfg.PricePerInputToken,
			PricePerOutputToken: cfg.PricePerOutputToken,
		})
	default:
		return nil, fmt.Errorf("llm: unsupported provider type %q (supported: openai, anthropic, gemini)", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("llm: create %s client: %w", cfg.Type, err)
	}
	if err := r.clients.Register(name, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Register adds an already-constructed client under name, for callers that
// build a Client directly (tests, or providers outside CreateFromConfig's
// type switch).
func (r *Registry) Register(name string, client Client) error {
	return r.clients.Register(name, client)
}

// Get returns the client registered under name.
func (r *Registry) Get(name string) (Client, error) {
	client, ok := r.clients.Get(name)
	if !ok {
		return nil, fmt.Errorf("llm: client %q not registered", name)
	}
	return client, nil
}

// Names returns all registered client names.
func (r *Registry) Names() []string {
	return r.clients.Names()
}
