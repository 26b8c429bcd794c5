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

// Package llm defines the provider-neutral capability contract every agent
// persona invokes through, plus OpenAI, Anthropic, and Gemini adapters. Only
// non-streaming, single-shot completion is modeled — agent personas in this
// pipeline ask one question and wait for one structured answer.
package llm

import "context"

// Message is one turn in a conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request is a single completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONSchema, if set, asks the provider for a structured JSON response
	// shaped by this schema. Support varies: callers should still parse the
	// response text defensively (see pkg/decision's code-fence tolerant
	// JSON extraction).
	JSONSchema map[string]any
}

// Response is a single completion response.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TotalTokens is InputTokens + OutputTokens.
func (r Response) TotalTokens() int { return r.InputTokens + r.OutputTokens }

// Client is the capability contract every provider adapter implements.
type Client interface {
	// Invoke sends req and returns the completion.
	Invoke(ctx context.Context, req Request) (*Response, error)
	// ModelName returns the model this client is bound to.
	ModelName() string
	// EstimateCost returns the dollar cost of a token count at this
	// client's provider pricing; an approximation used for budget alerts.
	EstimateCost(inputTokens, outputTokens int) float64
}
