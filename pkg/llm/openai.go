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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bmad-forge/bmad-core/pkg/httpclient"
)

const openAIDefaultHost = "https://api.openai.com/v1"

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey              string
	Model               string
	Host                string // overridable for OpenAI-compatible gateways
	Timeout             time.Duration
	MaxRetries          int
	TLS                 *httpclient.TLSConfig
	PricePerInputToken  float64 // USD
	PricePerOutputToken float64 // USD
}

// OpenAIClient implements Client against the OpenAI Chat Completions API.
type OpenAIClient struct {
	cfg  OpenAIConfig
	http *httpclient.Client
}

// NewOpenAIClient builds a Client for cfg.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	if cfg.Host == "" {
		cfg.Host = openAIDefaultHost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, httpclient.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.TLS != nil {
		opts = append(opts, httpclient.WithTLSConfig(cfg.TLS))
	}

	return &OpenAIClient{cfg: cfg, http: httpclient.New(opts...)}, nil
}

type openAIChatRequest struct {
	Model          string             `json:"model"`
	Messages       []Message          `json:"messages"`
	Temperature    float64            `json:"temperature,omitempty"`
	MaxTokens      int                `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFmt `json:"response_format,omitempty"`
}

type openAIResponseFmt struct {
	Type       string            `json:"type"` // "json_schema"
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke sends req to the Chat Completions endpoint.
func (c *OpenAIClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	body := openAIChatRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONSchema != nil {
		body.ResponseFormat = &openAIResponseFmt{
			Type: "json_schema",
			JSONSchema: &openAIJSONSchema{
				Name:   "response",
				Strict: true,
				Schema: req.JSONSchema,
			},
		}
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.Host, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.APIKey))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai: API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in response")
	}

	return &Response{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// ModelName returns the configured model.
func (c *OpenAIClient) ModelName() string { return c.cfg.Model }

// EstimateCost multiplies token counts by the configured per-token price.
func (c *OpenAIClient) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*c.cfg.PricePerInputToken + float64(outputTokens)*c.cfg.PricePerOutputToken
}

var _ Client = (*OpenAIClient)(nil)
