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
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GitUser is the git user.name/user.email pair a GitUserProbe reports.
type GitUser struct {
	Name  string
	Email string
}

// GitUserProbe is the external collaborator that reads the local git
// identity. Probing git itself is out of scope for this package — the
// Resolver only consumes whatever this interface reports. A nil probe, or one returning ok=false, simply drops out of the
// priority chain.
type GitUserProbe interface {
	Probe() (GitUser, bool)
}

// ProjectConfig is the subset of project-config YAML the resolver reads
// for variable fallback.
type ProjectConfig struct {
	Project struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Repository  string `yaml:"repository"`
	} `yaml:"project"`
}

// Resolver resolves a variable name against a descending-priority chain:
// explicit arguments, workflow state snapshot, project-config YAML, git
// user identity, then system defaults. Missing sources degrade silently;
// explicit arguments always win.
type Resolver struct {
	Explicit      map[string]any
	WorkflowState map[string]any
	ConfigPath    string
	GitProbe      GitUserProbe

	// now is overridable for tests; when zero, the system defaults use
	// time.Now() at resolve time.
	now time.Time
}

// NewResolver builds a Resolver. now pins the instant used for the
// `date`/`timestamp`/`year` system defaults.
func NewResolver(explicit, workflowState map[string]any, configPath string, gitProbe GitUserProbe, now time.Time) *Resolver {
	return &Resolver{
		Explicit:      explicit,
		WorkflowState: workflowState,
		ConfigPath:    configPath,
		GitProbe:      gitProbe,
		now:           now,
	}
}

// Resolve returns the value for name and which source supplied it, or
// ("", "", false) if no source in the chain has it.
func (r *Resolver) Resolve(name string) (string, Source, bool) {
	if v, ok := r.Explicit[name]; ok {
		return fmt.Sprintf("%v", v), SourceExplicit, true
	}
	if v, ok := r.WorkflowState[name]; ok {
		return fmt.Sprintf("%v", v), SourceWorkflowState, true
	}
	if v, ok := r.resolveFromConfig(name); ok {
		return v, SourceProjectConfig, true
	}
	if v, ok := r.resolveFromGit(name); ok {
		return v, SourceGit, true
	}
	if v, ok := r.resolveSystemDefault(name); ok {
		return v, SourceSystem, true
	}
	return "", "", false
}

// resolveFromConfig loads r.ConfigPath (if set) and maps a small set of
// well-known project.* variable names. An unparseable or absent config
// file is non-fatal: resolution just falls through to lower-priority
// sources.
func (r *Resolver) resolveFromConfig(name string) (string, bool) {
	if r.ConfigPath == "" {
		return "", false
	}
	data, err := os.ReadFile(r.ConfigPath)
	if err != nil {
		return "", false
	}
	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", false
	}

	switch name {
	case "project_name":
		if cfg.Project.Name != "" {
			return cfg.Project.Name, true
		}
	case "project_description":
		if cfg.Project.Description != "" {
			return cfg.Project.Description, true
		}
	case "project_repository":
		if cfg.Project.Repository != "" {
			return cfg.Project.Repository, true
		}
	}
	return "", false
}

func (r *Resolver) resolveFromGit(name string) (string, bool) {
	if r.GitProbe == nil {
		return "", false
	}
	user, ok := r.GitProbe.Probe()
	if !ok {
		return "", false
	}
	switch name {
	case "user_name":
		if user.Name != "" {
			return user.Name, true
		}
	case "user_email":
		if user.Email != "" {
			return user.Email, true
		}
	}
	return "", false
}

func (r *Resolver) resolveSystemDefault(name string) (string, bool) {
	now := r.now
	if now.IsZero() {
		now = time.Now()
	}
	switch name {
	case "date":
		return now.Format("2006-01-02"), true
	case "timestamp":
		return now.Format(time.RFC3339), true
	case "year":
		return fmt.Sprintf("%d", now.Year()), true
	}
	return "", false
}
