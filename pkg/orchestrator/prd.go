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

package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmad-forge/bmad-core/internal/errs"
	"github.com/bmad-forge/bmad-core/pkg/validate"
)

// PRDConfig configures a PRDOrchestrator.
type PRDConfig struct {
	// ProjectID scopes state, escalations, and the status file.
	ProjectID string
	// Persona is the product-manager persona the phase runs as.
	// Defaults to "john".
	Persona string
	// ClientName keys the LLM client in the pool's registry.
	ClientName string
	// ClarifyQuestions are resolved through the Decision Engine before
	// generation; low-confidence answers escalate and pause the phase.
	ClarifyQuestions []string
	// MaxAttempts bounds generate-validate-regenerate cycles. Defaults
	// to 3.
	MaxAttempts int
	// ArtifactDir receives docs/PRD.md. Defaults to "docs".
	ArtifactDir string
	// StatusDir receives workflow-status.yaml. Defaults to "bmad".
	StatusDir string
}

func (c PRDConfig) withDefaults() PRDConfig {
	if c.Persona == "" {
		c.Persona = "john"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ArtifactDir == "" {
		c.ArtifactDir = "docs"
	}
	if c.StatusDir == "" {
		c.StatusDir = "bmad"
	}
	return c
}

// PRDOrchestrator runs the requirements phase: clarify open questions,
// generate a PRD from the product brief, gate it through the PRD
// validator, and regenerate with the validator's findings until it passes
// or attempts run out.
type PRDOrchestrator struct {
	cfg       PRDConfig
	deps      Deps
	validator *validate.PRDValidator
}

// NewPRDOrchestrator returns a PRDOrchestrator over deps.
func NewPRDOrchestrator(cfg PRDConfig, deps Deps) *PRDOrchestrator {
	return &PRDOrchestrator{cfg: cfg.withDefaults(), deps: deps, validator: validate.NewPRDValidator()}
}

// Run executes the phase against productBrief. A paused result (pending
// escalations) returns with a nil error; calling Run again after the
// escalations are resolved picks their answers up and proceeds.
func (o *PRDOrchestrator) Run(ctx context.Context, productBrief string) (*PhaseResult, error) {
	res := newPhaseResult("prd")
	log := o.deps.logger().With("phase", "prd", "project", o.cfg.ProjectID)

	answers, err := resolvedAnswers(o.deps, o.cfg.ProjectID)
	if err != nil {
		return res.finish(PhaseFailed), err
	}

	var unanswered []string
	for _, q := range o.cfg.ClarifyQuestions {
		if _, ok := answers[q]; !ok {
			unanswered = append(unanswered, q)
		}
	}
	pending, err := raiseEscalations(ctx, o.deps, o.cfg.ProjectID, 0, unanswered, answers, res)
	if err != nil {
		return res.finish(PhaseFailed), err
	}
	if pending {
		log.Info("phase paused on escalations", "count", len(res.Escalations))
		res.finish(PhasePaused)
		return res, writeStatus(o.cfg.StatusDir, res)
	}

	session, err := startAgent(ctx, o.deps.Pool, o.cfg.Persona, o.cfg.ClientName, "Draft the product requirements document")
	if err != nil {
		return res.finish(PhaseFailed), err
	}
	defer session.close()

	var doc string
	var report *validate.ValidationReport
	feedback := ""
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt
		doc, err = session.invokeWithRetry(ctx, o.prdPrompt(productBrief, answers, feedback), 3, 0)
		if err != nil {
			res.finish(PhaseFailed)
			if werr := writeStatus(o.cfg.StatusDir, res); werr != nil {
				log.Warn("status write failed", "error", werr)
			}
			return res, err
		}

		report = o.validator.Validate(doc)
		o.deps.Metrics.RecordValidation("prd", report.Passed, report.OverallScore)
		res.Score = report.OverallScore
		res.Passed = report.Passed
		if report.Passed {
			break
		}
		feedback = reportFeedback(report)
		log.Info("prd below gate, regenerating", "attempt", attempt, "score", report.OverallScore)
	}

	if !res.Passed {
		res.finish(PhaseFailed)
		if werr := writeStatus(o.cfg.StatusDir, res); werr != nil {
			return res, werr
		}
		return res, errs.Validationf(component, "Run", "prd validation below gate after %d attempts (score %.1f)", res.Attempts, res.Score)
	}

	if err := writeArtifact(o.cfg.ArtifactDir, "PRD.md", doc, res); err != nil {
		return res.finish(PhaseFailed), err
	}
	res.finish(PhaseCompleted)
	log.Info("prd phase completed", "score", res.Score, "attempts", res.Attempts)
	return res, writeStatus(o.cfg.StatusDir, res)
}

func (o *PRDOrchestrator) prdPrompt(brief string, answers map[string]string, feedback string) string {
	var b strings.Builder
	b.WriteString("Write a complete product requirements document in markdown.\n")
	b.WriteString("It must contain these sections: Executive Summary, Success Criteria, MVP Scope, Functional Requirements, Success Metrics.\n")
	b.WriteString("Number every functional requirement FR-NNN and give each acceptance criteria.\n")
	b.WriteString("Avoid vague language such as \"better\" or \"improve\"; state measurable outcomes.\n\n")
	b.WriteString("Product brief:\n")
	b.WriteString(brief)
	b.WriteString("\n")
	if len(answers) > 0 {
		b.WriteString("\nClarified decisions:\n")
		for q, a := range answers {
			fmt.Fprintf(&b, "- %s -> %s\n", q, a)
		}
	}
	if feedback != "" {
		b.WriteString("\nThe previous draft failed validation. Address every finding:\n")
		b.WriteString(feedback)
	}
	return b.String()
}

// reportFeedback flattens a failed report into regeneration guidance.
func reportFeedback(report *validate.ValidationReport) string {
	var b strings.Builder
	for _, dim := range report.Dimensions {
		for _, s := range dim.Findings.Issues {
			fmt.Fprintf(&b, "- [%s] %s\n", dim.Name, s)
		}
		for _, s := range dim.Findings.Gaps {
			fmt.Fprintf(&b, "- [%s] %s\n", dim.Name, s)
		}
		for _, s := range dim.Findings.Recommendations {
			fmt.Fprintf(&b, "- [%s] %s\n", dim.Name, s)
		}
	}
	return b.String()
}
