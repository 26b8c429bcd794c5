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

package decision

import (
	"context"

	"github.com/bmad-forge/bmad-core/pkg/llm"
)

// llmClientAdapter adapts an llm.Client to the engine's narrower LLMClient
// interface, so callers can pass any of pkg/llm's provider clients
// directly.
type llmClientAdapter struct {
	client llm.Client
}

// AdaptLLMClient wraps client for use as an Engine's LLMClient.
func AdaptLLMClient(client llm.Client) LLMClient {
	return &llmClientAdapter{client: client}
}

func (a *llmClientAdapter) Invoke(ctx context.Context, req LLMRequest) (*LLMResponse, error) {
	messages := make([]llm.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = llm.Message{Role: m.Role, Content: m.Content}
	}

	resp, err := a.client.Invoke(ctx, llm.Request{
		Messages:    messages,
		Temperature: req.Temperature,
		JSONSchema:  req.JSONSchema,
	})
	if err != nil {
		return nil, err
	}
	return &LLMResponse{Text: resp.Text}, nil
}
