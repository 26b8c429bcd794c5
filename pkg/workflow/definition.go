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

// Package workflow implements the Workflow Engine: instructions parsing,
// guard/conditional evaluation, and a resumable step-execution loop backed
// by the State Store.
package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

const component = "workflow"

// Definition is a parsed `workflow.yaml`.
type Definition struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Instructions  string         `yaml:"instructions"`
	Variables     map[string]any `yaml:"variables"`
	Standalone    bool           `yaml:"standalone"`
	InstalledPath string         `yaml:"installed_path"`
}

// Validate checks the required definition fields.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errs.Configf(component, "Validate", "name is required")
	}
	if d.Instructions == "" {
		return errs.Configf(component, "Validate", "instructions path is required")
	}
	return nil
}

// LoadDefinition reads and parses a workflow.yaml file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NotFoundf(component, "LoadDefinition", "workflow file %s: %v", path, err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errs.Validationf(component, "LoadDefinition", "parse %s: %v", path, err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &def, nil
}
