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
	"time"

	"github.com/bmad-forge/bmad-core/internal/errs"
	"github.com/bmad-forge/bmad-core/pkg/template"
	"github.com/bmad-forge/bmad-core/pkg/validate"
)

// architectureSections maps each marker-delimited template section to the
// heading the agent writes under. The marker set matches the default
// architecture template.
var architectureSections = []struct {
	Marker  string
	Heading string
}{
	{"system-overview", "System Overview"},
	{"component-architecture", "Component Architecture"},
	{"data-models", "Data Models"},
	{"api-specifications", "API Specifications"},
	{"non-functional-requirements", "Non-Functional Requirements"},
	{"test-strategy", "Test Strategy"},
	{"technical-decisions", "Technical Decisions"},
	{"glossary", "Glossary"},
	{"references", "References"},
}

// ArchitectureConfig configures an ArchitectureOrchestrator.
type ArchitectureConfig struct {
	ProjectID string
	// Persona defaults to "winston".
	Persona    string
	ClientName string

	// TemplatePath is the default architecture template;
	// CustomTemplatePath, if set, is tried first and falls back per
	// template.Loader semantics.
	TemplatePath       string
	CustomTemplatePath string

	// Variables are explicit (highest-priority) substitution arguments.
	Variables  map[string]any
	ConfigPath string
	GitProbe   template.GitUserProbe

	// MaxAttempts bounds generate-validate-regenerate cycles. Defaults
	// to 3.
	MaxAttempts int
	ArtifactDir string
	StatusDir   string
}

func (c ArchitectureConfig) withDefaults() ArchitectureConfig {
	if c.Persona == "" {
		c.Persona = "winston"
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

// ArchitectureOrchestrator runs the architecture phase: fill every
// template section from the PRD, substitute variables, gate the document
// through the architecture and security validators, and capture the
// agent's technical decisions as ADRs.
type ArchitectureOrchestrator struct {
	cfg       ArchitectureConfig
	deps      Deps
	loader    *template.Loader
	validator *validate.ArchitectureValidator
	security  *validate.SecurityGateValidator
	decisions *validate.TechnicalDecisionLogger
}

// NewArchitectureOrchestrator returns an ArchitectureOrchestrator over
// deps. adrLog may be nil, in which case a fresh logger (ids from
// ADR-001) is used.
func NewArchitectureOrchestrator(cfg ArchitectureConfig, deps Deps, adrLog *validate.TechnicalDecisionLogger) *ArchitectureOrchestrator {
	if adrLog == nil {
		adrLog = validate.NewTechnicalDecisionLogger()
	}
	return &ArchitectureOrchestrator{
		cfg:       cfg.withDefaults(),
		deps:      deps,
		loader:    template.NewLoader(deps.logger()),
		validator: validate.NewArchitectureValidator(),
		security:  validate.NewSecurityGateValidator(),
		decisions: adrLog,
	}
}

// DecisionLog exposes the ADR logger so callers can persist or merge it.
func (o *ArchitectureOrchestrator) DecisionLog() *validate.TechnicalDecisionLogger {
	return o.decisions
}

// Run executes the phase against prdDoc.
func (o *ArchitectureOrchestrator) Run(ctx context.Context, prdDoc string) (*PhaseResult, error) {
	res := newPhaseResult("architecture")
	log := o.deps.logger().With("phase", "architecture", "project", o.cfg.ProjectID)

	required := make([]string, len(architectureSections))
	for i, s := range architectureSections {
		required[i] = s.Marker
	}
	loaded, err := o.loader.Load(o.cfg.TemplatePath, o.cfg.CustomTemplatePath, required)
	if err != nil {
		return res.finish(PhaseFailed), err
	}
	log.Info("template loaded", "source", loaded.Source)

	session, err := startAgent(ctx, o.deps.Pool, o.cfg.Persona, o.cfg.ClientName, "Draft the architecture document")
	if err != nil {
		return res.finish(PhaseFailed), err
	}
	defer session.close()

	doc := loaded.Content
	regenerate := required
	var archReport, secReport *validate.ValidationReport
	feedback := ""

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		for _, marker := range regenerate {
			heading := headingFor(marker)
			body, err := session.invokeWithRetry(ctx, o.sectionPrompt(heading, prdDoc, feedback), 3, 0)
			if err != nil {
				res.finish(PhaseFailed)
				if werr := writeStatus(o.cfg.StatusDir, res); werr != nil {
					log.Warn("status write failed", "error", werr)
				}
				return res, err
			}
			doc, err = template.ReplaceSection(doc, marker, fmt.Sprintf("## %s\n\n%s", heading, strings.TrimSpace(body)))
			if err != nil {
				return res.finish(PhaseFailed), err
			}
		}

		rendered := o.substitute(doc)
		archReport, err = o.validator.Validate(ctx, rendered, prdDoc)
		if err != nil {
			return res.finish(PhaseFailed), err
		}
		secReport = o.security.Validate(rendered)
		o.deps.Metrics.RecordValidation("architecture", archReport.Passed, archReport.OverallScore)
		o.deps.Metrics.RecordValidation("security", secReport.Passed, secReport.OverallScore)

		res.Score = archReport.OverallScore
		res.Passed = archReport.Passed && secReport.Passed
		if res.Passed {
			doc = rendered
			break
		}

		feedback = reportFeedback(archReport) + reportFeedback(secReport)
		regenerate = failingSections(archReport)
		if len(regenerate) == 0 {
			// Failure isn't attributable to specific sections (e.g. a
			// security gap or contradiction); rewrite everything.
			regenerate = required
		}
		log.Info("architecture below gate, regenerating",
			"attempt", attempt,
			"architecture_score", archReport.OverallScore,
			"security_score", secReport.OverallScore,
			"sections", regenerate,
		)
	}

	if !res.Passed {
		res.finish(PhaseFailed)
		if werr := writeStatus(o.cfg.StatusDir, res); werr != nil {
			return res, werr
		}
		return res, errs.Validationf(component, "Run",
			"architecture validation below gate after %d attempts (architecture %.1f, security %.1f)",
			res.Attempts, archReport.OverallScore, secReport.OverallScore)
	}

	if err := o.captureDecisions(ctx, session, doc, res); err != nil {
		log.Warn("adr capture failed, continuing without decisions", "error", err)
	}

	if err := writeArtifact(o.cfg.ArtifactDir, "architecture.md", doc, res); err != nil {
		return res.finish(PhaseFailed), err
	}
	res.finish(PhaseCompleted)
	log.Info("architecture phase completed", "score", res.Score, "attempts", res.Attempts)
	return res, writeStatus(o.cfg.StatusDir, res)
}

func headingFor(marker string) string {
	for _, s := range architectureSections {
		if s.Marker == marker {
			return s.Heading
		}
	}
	return marker
}

func (o *ArchitectureOrchestrator) sectionPrompt(heading, prdDoc, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the %q section of an architecture document for the product below.\n", heading)
	b.WriteString("Write markdown body text only; do not repeat the section heading.\n\n")
	b.WriteString("Product requirements:\n")
	b.WriteString(prdDoc)
	if feedback != "" {
		b.WriteString("\n\nA previous draft failed validation. Address any finding relevant to this section:\n")
		b.WriteString(feedback)
	}
	return b.String()
}

func (o *ArchitectureOrchestrator) substitute(doc string) string {
	resolver := template.NewResolver(o.cfg.Variables, nil, o.cfg.ConfigPath, o.cfg.GitProbe, time.Now().UTC())
	return template.Substitute(doc, resolver)
}

// failingSections maps completeness findings back to template markers so
// only the sections that actually failed are rewritten.
func failingSections(report *validate.ValidationReport) []string {
	var markers []string
	for _, dim := range report.Dimensions {
		if dim.Name != "completeness" || dim.Score >= 100 {
			continue
		}
		findings := append(append([]string{}, dim.Findings.Gaps...), dim.Findings.Issues...)
		for _, finding := range findings {
			for _, s := range architectureSections {
				if strings.Contains(finding, fmt.Sprintf("%q", s.Heading)) {
					markers = append(markers, s.Marker)
				}
			}
		}
	}
	return markers
}

// adrWire is the JSON shape the agent is asked to produce for decisions;
// ids, dates, and the decision maker are assigned locally.
type adrWire struct {
	Title           string                 `json:"title"`
	Context         string                 `json:"context"`
	Decision        string                 `json:"decision"`
	Alternatives    []validate.Alternative `json:"alternatives"`
	Rationale       string                 `json:"rationale"`
	Consequences    string                 `json:"consequences"`
	PRDRequirements []string               `json:"prdRequirements"`
}

func (o *ArchitectureOrchestrator) captureDecisions(ctx context.Context, session *agentSession, doc string, res *PhaseResult) error {
	prompt := "List the significant technical decisions in the architecture document below as a JSON array. " +
		`Each element: {"title", "context", "decision", "alternatives": [{"option", "pros": [], "cons": []}], ` +
		`"rationale", "consequences", "prdRequirements": ["FR-NNN", ...]}. Respond with JSON only.` +
		"\n\n" + doc

	raw, err := session.invokeWithRetry(ctx, prompt, 3, 0)
	if err != nil {
		return err
	}
	var wires []adrWire
	if err := decodeJSONPayload(raw, &wires); err != nil {
		return err
	}

	batch := make([]validate.TechnicalDecision, len(wires))
	for i, w := range wires {
		batch[i] = validate.TechnicalDecision{
			Title:           w.Title,
			Context:         w.Context,
			Decision:        w.Decision,
			Alternatives:    w.Alternatives,
			Rationale:       w.Rationale,
			Consequences:    w.Consequences,
			DecisionMaker:   validate.MakerWinston,
			PRDRequirements: w.PRDRequirements,
		}
	}
	captured := o.decisions.Merge(batch)

	var md strings.Builder
	md.WriteString("# Technical Decisions\n\n")
	md.WriteString(o.decisions.SummaryTable())
	md.WriteString("\n")
	for _, d := range captured {
		md.WriteString(validate.RenderDecision(d))
		md.WriteString("\n")
	}
	return writeArtifact(o.cfg.ArtifactDir, "technical-decisions.md", md.String(), res)
}
