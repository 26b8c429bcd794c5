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

package template

import (
	"log/slog"
	"os"
)

// Loader loads a template's default content and, optionally, validates and
// prefers a custom override. It holds no state beyond its logger.
type Loader struct {
	log *slog.Logger
}

// NewLoader builds a Loader. A nil logger is replaced with a discard logger.
func NewLoader(log *slog.Logger) *Loader {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Loader{log: log}
}

// Load reads defaultPath unconditionally. When customPath is non-empty, it
// attempts to read and structurally validate it first; the custom content is
// used only if both reads and validation succeed, otherwise the default is
// used and the fallback reason is logged. requiredSections is passed through
// to ValidateStructure for the custom content.
func (l *Loader) Load(defaultPath, customPath string, requiredSections []string) (LoadResult, error) {
	if customPath != "" {
		data, err := os.ReadFile(customPath)
		if err != nil {
			l.log.Warn("custom template unreadable, falling back to default",
				"path", customPath, "error", err)
		} else {
			content := string(data)
			result := ValidateStructure(content, requiredSections)
			if result.Valid {
				l.log.Info("loaded custom template", "path", customPath)
				return LoadResult{Content: content, Source: "custom"}, nil
			}
			l.log.Warn("custom template failed structural validation, falling back to default",
				"path", customPath, "errors", result.Errors)
		}
	}

	data, err := os.ReadFile(defaultPath)
	if err != nil {
		return LoadResult{}, err
	}
	return LoadResult{Content: string(data), Source: "default"}, nil
}
