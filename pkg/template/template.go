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

// Package template implements the Template Processor: variable resolution
// across a priority-ordered chain of sources, `{{name}}` substitution,
// idempotent marker-delimited section replacement, and structural
// validation of architecture-style templates.
package template

const component = "template"

// Source of a resolved variable, in descending priority order.
type Source string

const (
	SourceExplicit      Source = "explicit"
	SourceWorkflowState Source = "workflow_state"
	SourceProjectConfig Source = "project_config"
	SourceGit           Source = "git"
	SourceSystem        Source = "system"
)

// LoadResult is the outcome of loading a (possibly custom) template.
type LoadResult struct {
	Content string
	Source  string // "default" or "custom"
}
