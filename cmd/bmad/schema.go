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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/bmad-forge/bmad-core/pkg/config"
	"github.com/bmad-forge/bmad-core/pkg/workflow"
)

// SchemaCmd generates JSON Schema for the YAML files the pipeline reads.
// Output goes to stdout so it can be redirected into editor tooling.
type SchemaCmd struct {
	// Target selects which schema to emit.
	Target string `arg:"" optional:"" enum:"config,workflow" default:"config" help:"Schema to emit: config (project-config.yaml) or workflow (workflow.yaml)."`
	// Compact enables compact JSON output (no indentation).
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var schema *jsonschema.Schema
	switch c.Target {
	case "workflow":
		schema = reflector.Reflect(&workflow.Definition{})
		schema.ID = "https://bmad-forge.dev/schemas/workflow.json"
		schema.Title = "Workflow Definition Schema"
		schema.Description = "Schema for bmad/bmm/workflows/<phase>/workflow.yaml"
	default:
		schema = reflector.Reflect(&config.Config{})
		schema.ID = "https://bmad-forge.dev/schemas/project-config.json"
		schema.Title = "Project Configuration Schema"
		schema.Description = "Schema for .bmad/project-config.yaml"
	}
	schema.Version = "http://json-schema.org/draft-07/schema#"

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}
