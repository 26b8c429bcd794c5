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

// Package orchestrator composes the Agent Pool, Decision Engine,
// Escalation Queue, Template Processor, and Validators into the PRD,
// Architecture, and Solutioning phases the Workflow Engine drives. It is
// the one package that depends on every
// other core package; everything else stays narrowly scoped.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmad-forge/bmad-core/internal/errs"
	"github.com/bmad-forge/bmad-core/pkg/agentpool"
	"github.com/bmad-forge/bmad-core/pkg/decision"
	"github.com/bmad-forge/bmad-core/pkg/escalation"
	"github.com/bmad-forge/bmad-core/pkg/template"
	"github.com/bmad-forge/bmad-core/pkg/workflow"
)

const component = "orchestrator"

// AgentCollaborators implements the Workflow Engine's four narrow
// collaborator interfaces (ActionRunner, Prompter, TemplateRenderer,
// OutputWriter) by wiring in the Agent Pool, Decision Engine, Escalation
// Queue, and Template Processor. One instance serves one workflow run.
type AgentCollaborators struct {
	Pool        *agentpool.Pool
	Decisions   *decision.Engine
	Escalation  escalation.Queue
	ProjectID   string
	ArtifactDir string

	// Persona and ClientName select which agent RunAction invokes.
	Persona    string
	ClientName string

	// ConfigPath/GitProbe feed the template Resolver's fallback chain.
	ConfigPath string
	GitProbe   template.GitUserProbe

	agentID string
}

var _ workflow.ActionRunner = (*AgentCollaborators)(nil)
var _ workflow.Prompter = (*AgentCollaborators)(nil)
var _ workflow.TemplateRenderer = (*AgentCollaborators)(nil)
var _ workflow.OutputWriter = (*AgentCollaborators)(nil)

// RunAction invokes this run's agent (created lazily, on first use) with
// actionText as the prompt and stores its reply under
// vars["last_action_output"].
func (c *AgentCollaborators) RunAction(ctx context.Context, actionText string, vars map[string]any) error {
	if c.agentID == "" {
		agent, err := c.Pool.CreateAgent(ctx, c.Persona, c.ClientName, agentpool.AgentContext{
			TaskDesc: actionText,
		})
		if err != nil {
			return err
		}
		c.agentID = agent.ID
	}

	reply, err := c.Pool.InvokeAgent(ctx, c.agentID, actionText)
	if err != nil {
		return err
	}
	vars["last_action_output"] = reply
	return nil
}

// Close destroys this run's agent, if one was created. Callers should call
// Close once the workflow reaches a terminal state (completed or failed);
// a paused workflow may still need the agent on resume.
func (c *AgentCollaborators) Close() error {
	if c.agentID == "" {
		return nil
	}
	id := c.agentID
	c.agentID = ""
	return c.Pool.DestroyAgent(id)
}

// Ask answers question via the Decision Engine. A confident answer
// returns immediately; a low-confidence one escalates and pauses the
// workflow (it reuses workflow.ErrAwaitingApproval — from the engine's
// perspective, an unresolved escalation and a rejected template-output
// approval are the same "needs a human" outcome).
func (c *AgentCollaborators) Ask(ctx context.Context, question string) (string, error) {
	d, err := c.Decisions.Decide(ctx, question)
	if err != nil {
		return "", err
	}
	if !strings.Contains(d.Reasoning, decision.EscalationMarker) {
		return d.DecisionText, nil
	}
	return c.resolveOrEscalate(ctx, question, d.Reasoning, d.Confidence)
}

// ElicitRequired always defers to a human: the element exists precisely
// for information the workflow cannot safely infer on its own.
func (c *AgentCollaborators) ElicitRequired(ctx context.Context, prompt string) (string, error) {
	return c.resolveOrEscalate(ctx, prompt, "elicit-required: human input required", 0)
}

// ApproveTemplateOutput asks a human to approve rendered content before it
// is written.
func (c *AgentCollaborators) ApproveTemplateOutput(ctx context.Context, file, renderedContent string) (bool, error) {
	question := fmt.Sprintf("Approve generated output %q?", file)
	answer, err := c.resolveOrEscalate(ctx, question, "template-output: human approval required", 0)
	if err != nil {
		return false, err
	}
	return isAffirmative(answer), nil
}

// resolveOrEscalate looks for an already-resolved escalation matching
// question under this project/workflow; if found, returns its response
// text. Otherwise it raises a new escalation (unless one is already
// pending for the same question) and returns ErrAwaitingApproval so the
// caller's step pauses rather than fails.
func (c *AgentCollaborators) resolveOrEscalate(ctx context.Context, question, reasoning string, confidence float64) (string, error) {
	existing, err := c.Escalation.List(escalation.ListFilter{WorkflowID: c.ProjectID})
	if err != nil {
		return "", err
	}

	for _, esc := range existing {
		if esc.Question != question {
			continue
		}
		switch esc.Status {
		case escalation.StatusResolved:
			return responseText(esc.Response), nil
		case escalation.StatusPending:
			return "", workflow.ErrAwaitingApproval
		}
	}

	if _, err := c.Escalation.Add(escalation.AddInput{
		WorkflowID:  c.ProjectID,
		Question:    question,
		AIReasoning: reasoning,
		Confidence:  confidence,
	}); err != nil {
		return "", err
	}
	return "", workflow.ErrAwaitingApproval
}

func responseText(response map[string]any) string {
	if v, ok := response["answer"]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func isAffirmative(answer string) bool {
	lower := strings.ToLower(strings.TrimSpace(answer))
	switch lower {
	case "yes", "y", "true", "approve", "approved":
		return true
	default:
		return false
	}
}

// Render substitutes vars into tmpl using the Template Processor's
// priority-chain Resolver.
func (c *AgentCollaborators) Render(ctx context.Context, tmpl string, vars map[string]any) (string, error) {
	resolver := template.NewResolver(vars, nil, c.ConfigPath, c.GitProbe, time.Now().UTC())
	return template.Substitute(tmpl, resolver), nil
}

// WriteOutput atomically writes content to file under ArtifactDir.
func (c *AgentCollaborators) WriteOutput(ctx context.Context, file, content string) error {
	path := filepath.Join(c.ArtifactDir, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Externalf(component, "WriteOutput", err, "create directory for %s", file)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return errs.Externalf(component, "WriteOutput", err, "write temp file for %s", file)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Externalf(component, "WriteOutput", err, "rename temp file for %s", file)
	}
	return nil
}
