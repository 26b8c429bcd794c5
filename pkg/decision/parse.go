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
	"encoding/json"
	"fmt"
	"strings"
)

type llmDecisionPayload struct {
	Decision   string  `json:"decision"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// parseLLMDecision decodes the structured-output JSON the LLM returns.
// Some providers wrap their JSON in a markdown code fence even when asked
// for raw JSON; strip that before decoding.
func parseLLMDecision(text string) (*llmDecisionPayload, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var payload llmDecisionPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("decode decision JSON: %w", err)
	}
	if payload.Decision == "" {
		return nil, fmt.Errorf("decision field empty in LLM response")
	}
	return &payload, nil
}
