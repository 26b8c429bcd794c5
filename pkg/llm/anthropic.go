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

const (
	anthropicDefaultHost      = "https://api.anthropic.com"
	anthropicAPIVersion       = "2023-06-01"
	anthropicDefaultMaxTokens = 4096
)

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey              string
	Model               string
	Host                string
	Timeout             time.Duration
	MaxRetries          int
	TLS                 *httpclient.TLSConfig
	PricePerInputToken  float64
	PricePerOutputToken float64
}

// AnthropicClient implements Client against the Anthropic Messages API.
type AnthropicClient struct {
	cfg  AnthropicConfig
	http *httpclient.Client
}

// NewAnthropicClient builds a Client for cfg.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}
	if cfg.Host == "" {
		cfg.Host = anthropicDefaultHost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	opts := []httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithHeaderParser(httpclient.ParseAnthropicRateLimitHeaders),
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, httpclient.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.TLS != nil {
		opts = append(opts, httpclient.WithTLSConfig(cfg.TLS))
	}

	return &AnthropicClient{cfg: cfg, http: httpclient.New(opts...)}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke sends req to the Messages endpoint. System-role messages are
// collapsed into the top-level "system" field, matching Anthropic's API
// shape (it has no "system" conversation role).
func (c *AnthropicClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	var system strings.Builder
	var turns []anthropicMessage
	for _, m := range req.Messages {
		if m.Role == "system" {
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
			continue
		}
		turns = append(turns, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	body := anthropicRequest{
		Model:       model,
		System:      system.String(),
		Messages:    turns,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.Host, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("anthropic: API error: %s", parsed.Error.Message)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Response{
		Text:         text.String(),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

// ModelName returns the configured model.
func (c *AnthropicClient) ModelName() string { return c.cfg.Model }

// EstimateCost multiplies token counts by the configured per-token price.
func (c *AnthropicClient) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*c.cfg.PricePerInputToken + float64(outputTokens)*c.cfg.PricePerOutputToken
}

var _ Client = (*AnthropicClient)(nil)
