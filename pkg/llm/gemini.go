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
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey string
	Model  string

	PricePerInputToken  float64
	PricePerOutputToken float64
}

// GeminiClient implements Client against the Gemini API via the official
// google.golang.org/genai SDK. Only the non-streaming GenerateContent call
// is used; the SDK's streaming iterator is out of scope.
type GeminiClient struct {
	cfg    GeminiConfig
	client *genai.Client
}

// NewGeminiClient builds a Client for cfg.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &GeminiClient{cfg: cfg, client: client}, nil
}

// Invoke sends req as a single-turn (or flattened multi-turn) generation
// call. System-role messages are passed as system instruction content;
// remaining messages are concatenated into one user turn, since the
// decision/validation callers of this client never need multi-turn history.
func (c *GeminiClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	var system strings.Builder
	var user strings.Builder
	for _, m := range req.Messages {
		if m.Role == "system" {
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
			continue
		}
		if user.Len() > 0 {
			user.WriteString("\n\n")
		}
		user.WriteString(m.Content)
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system.Len() > 0 {
		genConfig.SystemInstruction = genai.NewContentFromText(system.String(), genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(user.String()), genConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			text.WriteString(part.Text)
		}
	}

	var inputTokens, outputTokens int
	if resp.UsageMetadata != nil {
		inputTokens = int(resp.UsageMetadata.PromptTokenCount)
		outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &Response{
		Text:         text.String(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// ModelName returns the configured model.
func (c *GeminiClient) ModelName() string { return c.cfg.Model }

// EstimateCost multiplies token counts by the configured per-token price.
func (c *GeminiClient) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*c.cfg.PricePerInputToken + float64(outputTokens)*c.cfg.PricePerOutputToken
}

var _ Client = (*GeminiClient)(nil)
