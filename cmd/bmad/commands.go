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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/bmad-forge/bmad-core/pkg/agentpool"
	"github.com/bmad-forge/bmad-core/pkg/config"
	"github.com/bmad-forge/bmad-core/pkg/decision"
	"github.com/bmad-forge/bmad-core/pkg/depgraph"
	"github.com/bmad-forge/bmad-core/pkg/escalation"
	"github.com/bmad-forge/bmad-core/pkg/llm"
	"github.com/bmad-forge/bmad-core/pkg/orchestrator"
	"github.com/bmad-forge/bmad-core/pkg/report"
	"github.com/bmad-forge/bmad-core/pkg/state"
	"github.com/bmad-forge/bmad-core/pkg/validate"
)

// apiKeyEnvVars maps a provider type to the environment variable its key
// is read from (loaded from .env by godotenv when present).
var apiKeyEnvVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// personaDir holds the markdown persona definitions; a missing directory
// means agents run without persona system messages.
const personaDir = "bmad/bmm/agents"

// pipelineRuntime is the wired object graph behind run/resume: config,
// clients, pool, decision engine, escalation queue, and state store.
type pipelineRuntime struct {
	cfg     *config.Config
	deps    orchestrator.Deps
	closers []func()
}

func (rt *pipelineRuntime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func buildRuntime(ctx context.Context, cli *CLI) (*pipelineRuntime, error) {
	cfg, loader, err := config.LoadFile(ctx, cli.Config)
	if err != nil {
		return nil, fmt.Errorf("load project config %s: %w", cli.Config, err)
	}

	rt := &pipelineRuntime{cfg: cfg}
	rt.closers = append(rt.closers, func() { _ = loader.Close() })

	reg := llm.NewRegistry()
	for persona, a := range cfg.AgentAssignments {
		_, err := reg.CreateFromConfig(ctx, persona, llm.ProviderConfig{
			Type:   a.Provider,
			Model:  a.Model,
			APIKey: os.Getenv(apiKeyEnvVars[a.Provider]),
		})
		if err != nil {
			return nil, fmt.Errorf("create llm client for persona %q: %w", persona, err)
		}
	}

	var personas *agentpool.PersonaStore
	if _, statErr := os.Stat(personaDir); statErr == nil {
		personas, err = agentpool.LoadPersonas(personaDir)
		if err != nil {
			return nil, err
		}
	}

	pool := agentpool.NewPool(agentpool.Config{
		MaxConcurrentAgents:   cfg.AgentPool.MaxConcurrentAgents,
		AutoCleanupHungAgents: cfg.AgentPool.AutoCleanupHungAgents,
		HeartbeatTimeout:      cfg.AgentPool.HeartbeatTimeout,
		Personas:              personas,
	}, reg, nil)
	rt.closers = append(rt.closers, pool.Shutdown)

	var onboard *decision.OnboardingIndex
	if dir := cfg.Onboarding.Directory; dir != "" {
		onboard, err = decision.NewOnboardingIndex(ctx, dir)
		if err != nil {
			slog.Warn("onboarding index unavailable, decisions fall back to llm", "dir", dir, "error", err)
			onboard = nil
		}
	}

	var decisionLLM decision.LLMClient
	if client, err := decisionClient(reg, cfg); err == nil {
		decisionLLM = decision.AdaptLLMClient(client)
	} else {
		slog.Warn("no llm client for the decision engine; only onboarding answers available", "error", err)
	}
	engine := decision.NewEngine(decision.Config{
		OnboardingDir: cfg.Onboarding.Directory,
		Threshold:     cfg.Decision.EscalationThreshold,
	}, decisionLLM, onboard)

	if dir := cfg.Onboarding.Directory; dir != "" && onboard != nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		if err := decision.WatchOnboarding(watchCtx, dir, slog.Default(), engine.SetOnboarding); err != nil {
			slog.Warn("onboarding hot reload disabled", "dir", dir, "error", err)
			cancel()
		} else {
			rt.closers = append(rt.closers, cancel)
		}
	}

	queue, err := escalation.NewStore(cfg.Escalation.Directory, slog.Default())
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(filepath.Dir(cfg.Escalation.Directory), "state")
	states, err := state.NewFileStore(stateDir)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { _ = states.Close() })

	rt.deps = orchestrator.Deps{
		Pool:        pool,
		Decisions:   engine,
		Escalations: queue,
		States:      states,
		Logger:      slog.Default(),
	}
	return rt, nil
}

// decisionClient picks the client backing the Decision Engine: the
// assignment named "decision" when present, otherwise the fallback model's
// persona is irrelevant — any registered client serves.
func decisionClient(reg *llm.Registry, cfg *config.Config) (llm.Client, error) {
	if _, ok := cfg.AgentAssignments["decision"]; ok {
		return reg.Get("decision")
	}
	names := reg.Names()
	if len(names) == 0 {
		return nil, fmt.Errorf("no llm clients configured")
	}
	return reg.Get(names[0])
}

// RunCmd runs one pipeline phase.
type RunCmd struct {
	Phase   string `arg:"" enum:"prd,architecture,solutioning" help:"Phase to run: prd, architecture, or solutioning."`
	Project string `help:"Project id (defaults to project.name from config)."`

	Brief        string `help:"Product brief file (prd phase)." type:"path"`
	PRD          string `help:"PRD file (architecture and solutioning phases)." default:"docs/PRD.md" type:"path"`
	Architecture string `help:"Architecture file (solutioning phase)." default:"docs/architecture.md" type:"path"`

	Template       string `help:"Default architecture template." default:"bmad/bmm/workflows/architecture/template.md" type:"path"`
	CustomTemplate string `help:"Custom architecture template override." type:"path"`

	ArtifactDir string `help:"Directory for produced artifacts." default:"docs"`
	StatusDir   string `help:"Directory for the status file." default:"bmad"`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, err := buildRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()

	project := c.Project
	if project == "" {
		project = rt.cfg.Project.Name
	}

	res, err := c.runPhase(ctx, cli, rt, project)
	if err != nil {
		return err
	}
	printPhaseResult(res)
	return nil
}

func (c *RunCmd) runPhase(ctx context.Context, cli *CLI, rt *pipelineRuntime, project string) (*orchestrator.PhaseResult, error) {
	switch c.Phase {
	case "prd":
		if c.Brief == "" {
			return nil, fmt.Errorf("--brief is required for the prd phase")
		}
		brief, err := os.ReadFile(c.Brief)
		if err != nil {
			return nil, err
		}
		o := orchestrator.NewPRDOrchestrator(orchestrator.PRDConfig{
			ProjectID:   project,
			ClientName:  clientNameFor(rt.cfg, "john"),
			ArtifactDir: c.ArtifactDir,
			StatusDir:   c.StatusDir,
		}, rt.deps)
		return o.Run(ctx, string(brief))

	case "architecture":
		prd, err := os.ReadFile(c.PRD)
		if err != nil {
			return nil, err
		}
		o := orchestrator.NewArchitectureOrchestrator(orchestrator.ArchitectureConfig{
			ProjectID:          project,
			ClientName:         clientNameFor(rt.cfg, "winston"),
			TemplatePath:       c.Template,
			CustomTemplatePath: c.CustomTemplate,
			Variables:          map[string]any{"project_name": rt.cfg.Project.Name},
			ConfigPath:         cli.Config,
			ArtifactDir:        c.ArtifactDir,
			StatusDir:          c.StatusDir,
		}, rt.deps, nil)
		return o.Run(ctx, string(prd))

	case "solutioning":
		prd, err := os.ReadFile(c.PRD)
		if err != nil {
			return nil, err
		}
		arch, err := os.ReadFile(c.Architecture)
		if err != nil {
			return nil, err
		}
		o := orchestrator.NewSolutioningOrchestrator(orchestrator.SolutioningConfig{
			ProjectID:   project,
			ClientName:  clientNameFor(rt.cfg, "bob"),
			Router:      buildCISRouter(rt),
			ArtifactDir: c.ArtifactDir,
			StatusDir:   c.StatusDir,
		}, rt.deps)
		return o.Run(ctx, string(prd), string(arch))
	}
	return nil, fmt.Errorf("unknown phase %q", c.Phase)
}

// clientNameFor returns the registry key the phase's agent invokes: the
// persona's own assignment when it exists, otherwise any one of the
// configured assignments (map iteration order, so not fixed across runs).
func clientNameFor(cfg *config.Config, persona string) string {
	if _, ok := cfg.AgentAssignments[persona]; ok {
		return persona
	}
	for name := range cfg.AgentAssignments {
		return name
	}
	return persona
}

// poolPersonaAgent exposes one pooled persona as a CIS PersonaAgent: a
// fresh agent per invocation, destroyed immediately after (the router caps
// total invocations at 3, so churn is bounded).
type poolPersonaAgent struct {
	pool       *agentpool.Pool
	persona    string
	clientName string
}

func (a *poolPersonaAgent) Invoke(ctx context.Context, question string) (string, error) {
	agent, err := a.pool.CreateAgent(ctx, a.persona, a.clientName, agentpool.AgentContext{TaskDesc: question})
	if err != nil {
		return "", err
	}
	defer func() { _ = a.pool.DestroyAgent(agent.ID) }()
	return a.pool.InvokeAgent(ctx, agent.ID, question)
}

func buildCISRouter(rt *pipelineRuntime) *validate.Router {
	agents := make(map[validate.Persona]validate.PersonaAgent, 4)
	for _, p := range []validate.Persona{validate.PersonaTechnical, validate.PersonaUX, validate.PersonaProduct, validate.PersonaInnovation} {
		name := string(p)
		agents[p] = &poolPersonaAgent{
			pool:       rt.deps.Pool,
			persona:    name,
			clientName: clientNameFor(rt.cfg, name),
		}
	}
	return validate.NewRouter(validate.Config{}, agents)
}

func printPhaseResult(res *orchestrator.PhaseResult) {
	fmt.Printf("phase:    %s\n", res.Phase)
	fmt.Printf("status:   %s\n", res.Status)
	if res.Score > 0 {
		fmt.Printf("score:    %.1f\n", res.Score)
	}
	fmt.Printf("attempts: %d\n", res.Attempts)
	for _, a := range res.Artifacts {
		fmt.Printf("artifact: %s\n", a)
	}
	for _, id := range res.Escalations {
		fmt.Printf("escalation: %s (answer with `bmad escalations respond %s --answer ...`)\n", id, id)
	}
}

// ResumeCmd re-runs a paused phase; resolved escalations are picked up and
// the phase proceeds past its pause point.
type ResumeCmd struct {
	RunCmd
}

func (c *ResumeCmd) Run(cli *CLI) error {
	return c.RunCmd.Run(cli)
}

// EscalationsCmd groups the escalation queue operations.
type EscalationsCmd struct {
	List    EscalationsListCmd    `cmd:"" help:"List escalations."`
	Respond EscalationsRespondCmd `cmd:"" help:"Answer a pending escalation."`
	Metrics EscalationsMetricsCmd `cmd:"" help:"Show queue metrics."`
}

func openQueue(cli *CLI) (escalation.Queue, error) {
	cfg, loader, err := config.LoadFile(context.Background(), cli.Config)
	if err != nil {
		return nil, err
	}
	defer loader.Close()
	return escalation.NewStore(cfg.Escalation.Directory, slog.Default())
}

// EscalationsListCmd lists escalations, optionally filtered.
type EscalationsListCmd struct {
	Status   string `help:"Filter by status (pending, resolved, cancelled)."`
	Workflow string `help:"Filter by workflow id."`
}

func (c *EscalationsListCmd) Run(cli *CLI) error {
	queue, err := openQueue(cli)
	if err != nil {
		return err
	}
	escalations, err := queue.List(escalation.ListFilter{
		Status:     escalation.Status(c.Status),
		WorkflowID: c.Workflow,
	})
	if err != nil {
		return err
	}
	if len(escalations) == 0 {
		fmt.Println("no escalations")
		return nil
	}
	for _, e := range escalations {
		fmt.Printf("%s  [%s]  %s  (workflow %s, step %d, confidence %.2f)\n",
			e.ID, e.Status, e.Question, e.WorkflowID, e.Step, e.Confidence)
	}
	return nil
}

// EscalationsRespondCmd answers one pending escalation. With no --answer
// flag and a terminal on stdin, the answer is prompted for interactively.
type EscalationsRespondCmd struct {
	ID     string `arg:"" help:"Escalation id."`
	Answer string `help:"Answer text. Prompted for when omitted and stdin is a terminal."`
}

func (c *EscalationsRespondCmd) Run(cli *CLI) error {
	queue, err := openQueue(cli)
	if err != nil {
		return err
	}

	answer := c.Answer
	if answer == "" {
		esc, err := queue.GetByID(c.ID)
		if err != nil {
			return err
		}
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("--answer is required when stdin is not a terminal")
		}
		fmt.Printf("question: %s\nreasoning: %s\n> ", esc.Question, esc.AIReasoning)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return err
		}
		answer = strings.TrimSpace(line)
	}

	esc, err := queue.Respond(c.ID, escalation.ResponseInput{"answer": answer})
	if err != nil {
		return err
	}
	fmt.Printf("resolved %s in %dms\n", esc.ID, *esc.ResolutionMS)
	return nil
}

// EscalationsMetricsCmd prints queue throughput metrics.
type EscalationsMetricsCmd struct{}

func (c *EscalationsMetricsCmd) Run(cli *CLI) error {
	queue, err := openQueue(cli)
	if err != nil {
		return err
	}
	m, err := queue.GetMetrics()
	if err != nil {
		return err
	}
	fmt.Printf("total:    %d\nresolved: %d\navg resolution: %.0fms\n", m.TotalEscalations, m.ResolvedCount, m.AverageResolutionMS)
	for workflow, count := range m.CategoryBreakdown {
		fmt.Printf("  %-20s %d\n", workflow, count)
	}
	return nil
}

// ValidateCmd re-runs the validators against artifacts on disk.
type ValidateCmd struct {
	PRD          string `help:"PRD file." default:"docs/PRD.md" type:"path"`
	Architecture string `help:"Architecture file (omit to skip architecture and security gates)." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	prd, err := os.ReadFile(c.PRD)
	if err != nil {
		return err
	}

	failed := false

	prdReport := validate.NewPRDValidator().Validate(string(prd))
	printReport("prd", prdReport)
	failed = failed || !prdReport.Passed

	if c.Architecture != "" {
		arch, err := os.ReadFile(c.Architecture)
		if err != nil {
			return err
		}
		archReport, err := validate.NewArchitectureValidator().Validate(context.Background(), string(arch), string(prd))
		if err != nil {
			return err
		}
		printReport("architecture", archReport)
		failed = failed || !archReport.Passed

		secReport := validate.NewSecurityGateValidator().Validate(string(arch))
		printReport("security", secReport)
		failed = failed || !secReport.Passed
	}

	if failed {
		return fmt.Errorf("one or more quality gates failed")
	}
	return nil
}

func printReport(name string, r *validate.ValidationReport) {
	verdict := "PASS"
	if !r.Passed {
		verdict = "FAIL"
	}
	fmt.Printf("%s: %.1f [%s]\n", name, r.OverallScore, verdict)
	for _, dim := range r.Dimensions {
		fmt.Printf("  %-28s %.1f\n", dim.Name, dim.Score)
		for _, g := range dim.Findings.Gaps {
			fmt.Printf("    gap: %s\n", g)
		}
		for _, i := range dim.Findings.Issues {
			fmt.Printf("    issue: %s\n", i)
		}
	}
}

// ExportCmd exports artifacts for consumption outside markdown.
type ExportCmd struct {
	Xlsx string `help:"Write an xlsx workbook (decisions + dependency graph) to this path." type:"path"`
	Docx string `help:"Write the PRD as docx to this path." type:"path"`

	PRD       string `help:"PRD file." default:"docs/PRD.md" type:"path"`
	Decisions string `help:"Technical decisions JSON file." default:"docs/technical-decisions.json" type:"path"`
	Graph     string `help:"Dependency graph JSON file." default:"docs/dependency-graph.json" type:"path"`
}

func (c *ExportCmd) Run(cli *CLI) error {
	if c.Xlsx == "" && c.Docx == "" {
		return fmt.Errorf("nothing to export: pass --xlsx and/or --docx")
	}

	if c.Xlsx != "" {
		var wb report.Workbook

		logger := validate.NewTechnicalDecisionLogger()
		if err := logger.Load(c.Decisions); err == nil {
			wb.Decisions = logger.Decisions()
		} else {
			slog.Warn("decision log not exported", "path", c.Decisions, "error", err)
		}

		if data, err := os.ReadFile(c.Graph); err == nil {
			var g depgraph.DependencyGraph
			if err := json.Unmarshal(data, &g); err != nil {
				return fmt.Errorf("parse dependency graph %s: %w", c.Graph, err)
			}
			wb.Graph = &g
		} else {
			slog.Warn("dependency graph not exported", "path", c.Graph, "error", err)
		}

		if err := report.WriteXLSX(c.Xlsx, wb); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", c.Xlsx)
	}

	if c.Docx != "" {
		prd, err := os.ReadFile(c.PRD)
		if err != nil {
			return err
		}
		if err := report.WriteDOCX(c.Docx, "", string(prd)); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", c.Docx)
	}
	return nil
}
