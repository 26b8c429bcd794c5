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

// Package config loads `.bmad/project-config.yaml`: project identity,
// onboarding context, per-agent model assignments, cost/budget management,
// and agent pool limits.
package config

import (
	"fmt"
	"time"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

// Project identifies the project the pipeline is running against.
type Project struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Description string `yaml:"description" mapstructure:"description"`
	Repository  string `yaml:"repository" mapstructure:"repository"`
}

// Onboarding points at the prior-art the Decision Engine scans before
// falling back to an LLM.
type Onboarding struct {
	Directory            string `yaml:"directory" mapstructure:"directory"`
	TechStack            string `yaml:"tech_stack" mapstructure:"tech_stack"`
	CodingStandards      string `yaml:"coding_standards" mapstructure:"coding_standards"`
	ArchitecturePatterns string `yaml:"architecture_patterns" mapstructure:"architecture_patterns"`
}

// AgentAssignment binds a persona name to a model/provider/reasoning effort.
type AgentAssignment struct {
	Model     string `yaml:"model" mapstructure:"model"`
	Provider  string `yaml:"provider" mapstructure:"provider"`
	Reasoning string `yaml:"reasoning" mapstructure:"reasoning"`
}

// Budget sets spend alarms at daily/weekly/monthly granularity.
type Budget struct {
	Daily   float64   `yaml:"daily" mapstructure:"daily"`
	Weekly  float64   `yaml:"weekly" mapstructure:"weekly"`
	Monthly float64   `yaml:"monthly" mapstructure:"monthly"`
	Alerts  []float64 `yaml:"alerts" mapstructure:"alerts"` // fractions of budget, e.g. [0.5, 0.8, 1.0]
}

// CostManagement caps spend and names a cheaper fallback model.
type CostManagement struct {
	MaxMonthlyBudget float64 `yaml:"max_monthly_budget" mapstructure:"max_monthly_budget"`
	AlertThreshold   float64 `yaml:"alert_threshold" mapstructure:"alert_threshold"`
	FallbackModel    string  `yaml:"fallback_model" mapstructure:"fallback_model"`
	Budget           Budget  `yaml:"budget" mapstructure:"budget"`
}

// AgentPool controls the concurrency-limited agent registry.
type AgentPool struct {
	MaxConcurrentAgents   int           `yaml:"max_concurrent_agents" mapstructure:"max_concurrent_agents"`
	AutoCleanupHungAgents bool          `yaml:"auto_cleanup_hung_agents" mapstructure:"auto_cleanup_hung_agents"`
	HeartbeatTimeout      time.Duration `yaml:"heartbeat_timeout" mapstructure:"heartbeat_timeout"`
}

// Decision configures the Decision Engine's escalation threshold.
type Decision struct {
	EscalationThreshold float64 `yaml:"escalation_threshold" mapstructure:"escalation_threshold"`
}

// Escalation configures the durable pending-question queue.
type Escalation struct {
	Directory string `yaml:"directory" mapstructure:"directory"`
}

// Config is the fully decoded `.bmad/project-config.yaml`.
type Config struct {
	Project          Project                    `yaml:"project" mapstructure:"project"`
	Onboarding       Onboarding                 `yaml:"onboarding" mapstructure:"onboarding"`
	AgentAssignments map[string]AgentAssignment `yaml:"agent_assignments" mapstructure:"agent_assignments"`
	CostManagement   CostManagement             `yaml:"cost_management" mapstructure:"cost_management"`
	AgentPool        AgentPool                  `yaml:"agent_pool" mapstructure:"agent_pool"`
	Decision         Decision                   `yaml:"decision" mapstructure:"decision"`
	Escalation       Escalation                 `yaml:"escalation" mapstructure:"escalation"`
}

// SetDefaults fills unset fields with the project's documented defaults.
func (c *Config) SetDefaults() {
	if c.AgentPool.MaxConcurrentAgents <= 0 {
		c.AgentPool.MaxConcurrentAgents = 3
	}
	if c.AgentPool.HeartbeatTimeout <= 0 {
		c.AgentPool.HeartbeatTimeout = 10 * time.Minute
	}
	if c.Decision.EscalationThreshold <= 0 {
		c.Decision.EscalationThreshold = 0.75
	}
	if c.Escalation.Directory == "" {
		c.Escalation.Directory = ".bmad/escalations"
	}
	if c.CostManagement.Budget.Alerts == nil {
		c.CostManagement.Budget.Alerts = []float64{0.5, 0.8, 1.0}
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return errs.Validationf("config", "Validate", "project.name is required")
	}
	if c.AgentPool.MaxConcurrentAgents < 1 {
		return errs.Validationf("config", "Validate", "agent_pool.max_concurrent_agents must be >= 1")
	}
	if c.Decision.EscalationThreshold < 0 || c.Decision.EscalationThreshold > 1 {
		return errs.Validationf("config", "Validate", "decision.escalation_threshold must be in [0,1]")
	}
	for name, a := range c.AgentAssignments {
		if a.Model == "" {
			return errs.Validationf("config", "Validate", "agent_assignments.%s.model is required", name)
		}
		if a.Provider == "" {
			return errs.Validationf("config", "Validate", "agent_assignments.%s.provider is required", name)
		}
	}
	return nil
}

// ModelFor returns the model/provider assignment for persona, falling back
// to the cost-management fallback model if persona has no explicit entry.
func (c *Config) ModelFor(persona string) (AgentAssignment, error) {
	if a, ok := c.AgentAssignments[persona]; ok {
		return a, nil
	}
	if c.CostManagement.FallbackModel != "" {
		return AgentAssignment{Model: c.CostManagement.FallbackModel}, nil
	}
	return AgentAssignment{}, fmt.Errorf("no agent assignment or fallback model for persona %q", persona)
}
