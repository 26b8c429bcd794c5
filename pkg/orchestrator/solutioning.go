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
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bmad-forge/bmad-core/internal/errs"
	"github.com/bmad-forge/bmad-core/pkg/depgraph"
	"github.com/bmad-forge/bmad-core/pkg/validate"
)

// SolutioningConfig configures a SolutioningOrchestrator.
type SolutioningConfig struct {
	ProjectID string
	// Persona defaults to "bob".
	Persona    string
	ClientName string

	// Router, if non-nil, is consulted for stories that carry an open
	// question. Its per-workflow invocation cap applies; once exceeded,
	// remaining questions are left in the story text unanswered.
	Router *validate.Router

	// BottleneckThreshold overrides the dependency graph's default
	// out-degree floor. Zero keeps the default.
	BottleneckThreshold int

	// MaxAttempts bounds plan-parse retries. Defaults to 3.
	MaxAttempts int
	ArtifactDir string
	StatusDir   string
}

func (c SolutioningConfig) withDefaults() SolutioningConfig {
	if c.Persona == "" {
		c.Persona = "bob"
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

// Epic groups stories toward one outcome.
type Epic struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Goal    string  `json:"goal"`
	Stories []Story `json:"stories"`
}

// Story is one unit of delivery inside an epic.
type Story struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	DependsOn   []StoryDependency `json:"depends_on,omitempty"`
	// OpenQuestion, when non-empty, is routed through the CIS router.
	OpenQuestion string `json:"open_question,omitempty"`
}

// StoryDependency names a story that must (or should) land first.
type StoryDependency struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // "hard" or "soft"
	Blocking bool   `json:"blocking"`
	Reason   string `json:"reason,omitempty"`
}

// solutionPlan is the JSON payload the agent produces.
type solutionPlan struct {
	Epics []Epic `json:"epics"`
}

// SolutioningOrchestrator runs the final phase: decompose the PRD and
// architecture into epics and stories, resolve story-level open questions
// through the CIS router, and emit the story files and dependency graph.
type SolutioningOrchestrator struct {
	cfg  SolutioningConfig
	deps Deps
}

// NewSolutioningOrchestrator returns a SolutioningOrchestrator over deps.
func NewSolutioningOrchestrator(cfg SolutioningConfig, deps Deps) *SolutioningOrchestrator {
	return &SolutioningOrchestrator{cfg: cfg.withDefaults(), deps: deps}
}

// Run executes the phase against the assembled PRD and architecture
// documents.
func (o *SolutioningOrchestrator) Run(ctx context.Context, prdDoc, archDoc string) (*PhaseResult, error) {
	res := newPhaseResult("solutioning")
	log := o.deps.logger().With("phase", "solutioning", "project", o.cfg.ProjectID)

	session, err := startAgent(ctx, o.deps.Pool, o.cfg.Persona, o.cfg.ClientName, "Decompose requirements into epics and stories")
	if err != nil {
		return res.finish(PhaseFailed), err
	}
	defer session.close()

	plan, err := o.generatePlan(ctx, session, prdDoc, archDoc, res)
	if err != nil {
		res.finish(PhaseFailed)
		if werr := writeStatus(o.cfg.StatusDir, res); werr != nil {
			log.Warn("status write failed", "error", werr)
		}
		return res, err
	}

	routed := o.routeOpenQuestions(ctx, plan, log)

	graph, err := buildStoryGraph(plan, o.cfg.BottleneckThreshold)
	if err != nil {
		return res.finish(PhaseFailed), err
	}

	if err := o.writeArtifacts(plan, routed, graph, res); err != nil {
		return res.finish(PhaseFailed), err
	}

	res.Passed = true
	res.finish(PhaseCompleted)
	log.Info("solutioning phase completed",
		"epics", len(plan.Epics),
		"stories", len(graph.Nodes),
		"critical_path", len(graph.CriticalPath),
	)
	return res, writeStatus(o.cfg.StatusDir, res)
}

func (o *SolutioningOrchestrator) generatePlan(ctx context.Context, session *agentSession, prdDoc, archDoc string, res *PhaseResult) (*solutionPlan, error) {
	prompt := "Decompose the product below into epics and stories. Respond with JSON only:\n" +
		`{"epics": [{"id", "title", "goal", "stories": [{"id", "title", "description", ` +
		`"depends_on": [{"id", "type": "hard|soft", "blocking": true|false, "reason"}], "open_question"}]}]}` + "\n" +
		"Story ids must be unique across all epics; depends_on ids must reference existing stories.\n\n" +
		"Product requirements:\n" + prdDoc + "\n\nArchitecture:\n" + archDoc

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt
		raw, err := session.invokeWithRetry(ctx, prompt, 3, 0)
		if err != nil {
			return nil, err
		}
		var plan solutionPlan
		if err := decodeJSONPayload(raw, &plan); err != nil {
			lastErr = err
			continue
		}
		if len(plan.Epics) == 0 {
			lastErr = errs.Validationf(component, "generatePlan", "plan contains no epics")
			continue
		}
		return &plan, nil
	}
	return nil, lastErr
}

// routeOpenQuestions resolves story open questions through the CIS
// router, returning recommendations keyed by story id. Routing stops at
// the router's invocation cap; unrouted questions stay open in the story
// file.
func (o *SolutioningOrchestrator) routeOpenQuestions(ctx context.Context, plan *solutionPlan, log *slog.Logger) map[string]validate.RoutedDecision {
	routed := make(map[string]validate.RoutedDecision)
	if o.cfg.Router == nil {
		return routed
	}
	for _, epic := range plan.Epics {
		for _, story := range epic.Stories {
			if story.OpenQuestion == "" {
				continue
			}
			persona, decision, err := o.cfg.Router.RouteDecision(ctx, story.OpenQuestion)
			if err != nil {
				if errs.KindOf(err) == errs.Precondition {
					log.Info("cis invocation cap reached, remaining questions stay open")
					return routed
				}
				log.Warn("cis routing failed", "story", story.ID, "error", err)
				continue
			}
			log.Info("cis routed", "story", story.ID, "persona", string(persona))
			routed[story.ID] = decision
		}
	}
	return routed
}

func buildStoryGraph(plan *solutionPlan, threshold int) (*depgraph.DependencyGraph, error) {
	var g depgraph.Graph
	for _, epic := range plan.Epics {
		for _, story := range epic.Stories {
			g.Nodes = append(g.Nodes, story.ID)
			for _, dep := range story.DependsOn {
				edgeType := depgraph.EdgeSoft
				if dep.Type == string(depgraph.EdgeHard) {
					edgeType = depgraph.EdgeHard
				}
				g.Edges = append(g.Edges, depgraph.Edge{
					From:      dep.ID,
					To:        story.ID,
					Type:      edgeType,
					Blocking:  dep.Blocking,
					Reasoning: dep.Reason,
				})
			}
		}
	}
	return depgraph.Build(g, depgraph.BuildOptions{BottleneckThreshold: threshold})
}

func (o *SolutioningOrchestrator) writeArtifacts(plan *solutionPlan, routed map[string]validate.RoutedDecision, graph *depgraph.DependencyGraph, res *PhaseResult) error {
	var epics strings.Builder
	epics.WriteString("# Epics\n")
	for _, epic := range plan.Epics {
		fmt.Fprintf(&epics, "\n## %s: %s\n\n%s\n\n", epic.ID, epic.Title, epic.Goal)
		for _, story := range epic.Stories {
			fmt.Fprintf(&epics, "- %s: %s\n", story.ID, story.Title)
		}
	}
	if err := writeArtifact(o.cfg.ArtifactDir, "epics.md", epics.String(), res); err != nil {
		return err
	}

	for _, epic := range plan.Epics {
		for _, story := range epic.Stories {
			name := filepath.Join("stories", story.ID+".md")
			if err := writeArtifact(o.cfg.ArtifactDir, name, renderStory(epic, story, routed), res); err != nil {
				return err
			}
		}
	}

	data, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return errs.Externalf(component, "writeArtifacts", err, "marshal dependency graph")
	}
	return writeArtifact(o.cfg.ArtifactDir, "dependency-graph.json", string(data)+"\n", res)
}

func renderStory(epic Epic, story Story, routed map[string]validate.RoutedDecision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", story.ID, story.Title)
	fmt.Fprintf(&b, "Epic: %s (%s)\n\n", epic.ID, epic.Title)
	b.WriteString(strings.TrimSpace(story.Description))
	b.WriteString("\n")

	if len(story.DependsOn) > 0 {
		b.WriteString("\n## Dependencies\n\n")
		for _, dep := range story.DependsOn {
			fmt.Fprintf(&b, "- %s (%s", dep.ID, dep.Type)
			if dep.Blocking {
				b.WriteString(", blocking")
			}
			b.WriteString(")")
			if dep.Reason != "" {
				fmt.Fprintf(&b, ": %s", dep.Reason)
			}
			b.WriteString("\n")
		}
	}

	if story.OpenQuestion != "" {
		b.WriteString("\n## Open Question\n\n")
		b.WriteString(story.OpenQuestion)
		b.WriteString("\n")
		if d, ok := routed[story.ID]; ok {
			fmt.Fprintf(&b, "\nRecommendation (confidence %.2f): %s\n", d.Confidence, d.Recommendation)
			if d.Rationale != "" {
				fmt.Fprintf(&b, "\nRationale: %s\n", d.Rationale)
			}
		}
	}
	return b.String()
}
