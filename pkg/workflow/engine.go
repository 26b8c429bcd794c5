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

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bmad-forge/bmad-core/internal/errs"
	"github.com/bmad-forge/bmad-core/pkg/observability"
	"github.com/bmad-forge/bmad-core/pkg/state"
)

// ErrAwaitingApproval is returned (and wrapped into the persisted error)
// when an interactive-mode template-output gate is rejected. The workflow
// is left paused, resumable at the same step.
var ErrAwaitingApproval = errors.New("workflow: template output awaiting approval")

// ActionRunner executes the free-text body of an <action> element. It may
// mutate vars in place; the persona/agent wiring that actually answers the
// action is the orchestrator's concern, not the engine's.
type ActionRunner interface {
	RunAction(ctx context.Context, actionText string, vars map[string]any) error
}

// Prompter mediates the interactive ask/elicit/approval gates. The Engine
// never calls it in YOLO mode.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
	ElicitRequired(ctx context.Context, prompt string) (string, error)
	ApproveTemplateOutput(ctx context.Context, file, renderedContent string) (bool, error)
}

// TemplateRenderer resolves `{{var}}` placeholders in a template-output
// element's body. Implementations typically wrap pkg/template.
type TemplateRenderer interface {
	Render(ctx context.Context, tmpl string, vars map[string]any) (string, error)
}

// OutputWriter persists rendered template-output content.
type OutputWriter interface {
	WriteOutput(ctx context.Context, file, content string) error
}

// Config configures an Engine.
type Config struct {
	// YOLOMode, when true, auto-skips ask/elicit-required and
	// auto-approves template-output gates instead of calling Prompter.
	YOLOMode bool
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Engine executes InstructionStep sequences against the State Store.
type Engine struct {
	cfg     Config
	store   state.Store
	runner  ActionRunner
	prompt  Prompter
	render  TemplateRenderer
	writer  OutputWriter
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewEngine constructs an Engine. prompt/render/writer may be nil only if
// the instructions never reach the corresponding element kind; a nil value
// used at runtime surfaces as a Configuration error rather than a panic.
func NewEngine(cfg Config, store state.Store, runner ActionRunner, prompt Prompter, render TemplateRenderer, writer OutputWriter, metrics *observability.Metrics) *Engine {
	return &Engine{
		cfg:     cfg.withDefaults(),
		store:   store,
		runner:  runner,
		prompt:  prompt,
		render:  render,
		writer:  writer,
		metrics: metrics,
		tracer:  observability.GetTracer("workflow"),
	}
}

// Start initializes fresh WorkflowState for projectID and runs steps to
// completion or suspension. It is a Precondition error to Start a project
// that already has persisted state; callers should Resume instead.
func (e *Engine) Start(ctx context.Context, def *Definition, steps []Step, projectID string, vars map[string]any) (*state.WorkflowState, error) {
	existing, err := e.store.LoadState(projectID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Preconditionf(component, "Start", "workflow state already exists for project %s; use Resume", projectID)
	}

	if vars == nil {
		vars = make(map[string]any)
	}
	for k, v := range def.Variables {
		if _, ok := vars[k]; !ok {
			vars[k] = v
		}
	}

	now := time.Now().UTC()
	st := &state.WorkflowState{
		ProjectID:   projectID,
		Status:      state.StatusRunning,
		CurrentStep: 0,
		Variables:   vars,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.SaveState(st); err != nil {
		return st, err
	}
	return e.runLoop(ctx, def, steps, st)
}

// Resume continues a previously persisted, non-completed workflow from
// state.currentStep + 1.
func (e *Engine) Resume(ctx context.Context, def *Definition, steps []Step, projectID string) (*state.WorkflowState, error) {
	st, err := e.store.LoadState(projectID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errs.NotFoundf(component, "Resume", "no workflow state for project %s", projectID)
	}
	if st.Status == state.StatusCompleted {
		return nil, errs.Preconditionf(component, "Resume", "workflow for project %s is already completed", projectID)
	}
	st.Status = state.StatusRunning
	if err := e.store.SaveState(st); err != nil {
		return st, err
	}
	return e.runLoop(ctx, def, steps, st)
}

func (e *Engine) runLoop(ctx context.Context, def *Definition, steps []Step, st *state.WorkflowState) (*state.WorkflowState, error) {
	for n := st.CurrentStep + 1; n <= len(steps); n++ {
		step := steps[n-1]

		stepCtx, span := e.tracer.Start(ctx, fmt.Sprintf("workflow.step.%d", step.N),
			trace.WithAttributes(attribute.String("workflow.name", def.Name), attribute.Int("workflow.step", step.N)))

		outcome := "completed"
		start := time.Now()

		guardOK, err := EvalGuard(step.If, st.Variables)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return e.fail(st, err)
		}

		if guardOK {
			if err := e.executeBody(stepCtx, def, step, step.Body, st.Variables); err != nil {
				if step.Optional {
					e.cfg.Logger.Warn("optional step failed, continuing", "workflow", def.Name, "step", step.N, "error", err)
					outcome = "skipped_optional_error"
				} else if errors.Is(err, ErrAwaitingApproval) {
					st.Status = state.StatusPaused
					st.UpdatedAt = time.Now().UTC()
					saveErr := e.store.SaveState(st)
					span.SetStatus(codes.Error, err.Error())
					span.End()
					e.recordStep(def.Name, "paused", time.Since(start))
					if saveErr != nil {
						return st, saveErr
					}
					return st, err
				} else {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
					span.End()
					e.recordStep(def.Name, "failed", time.Since(start))
					return e.fail(st, err)
				}
			}
		} else {
			outcome = "skipped_guard"
		}

		st.CurrentStep = n
		st.UpdatedAt = time.Now().UTC()
		if err := e.store.SaveState(st); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return st, errs.Fatalf(component, "runLoop", err, "persist state after step %d", n)
		}
		e.recordStep(def.Name, outcome, time.Since(start))
		span.End()
	}

	st.Status = state.StatusCompleted
	st.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveState(st); err != nil {
		return st, err
	}
	return st, nil
}

func (e *Engine) fail(st *state.WorkflowState, cause error) (*state.WorkflowState, error) {
	st.Status = state.StatusFailed
	st.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveState(st); err != nil {
		return st, err
	}
	return st, cause
}

func (e *Engine) recordStep(workflow, outcome string, d time.Duration) {
	e.metrics.RecordWorkflowStep(workflow, outcome, d)
}

func (e *Engine) executeBody(ctx context.Context, def *Definition, step Step, body []Node, vars map[string]any) error {
	for _, node := range body {
		if err := e.executeNode(ctx, def, step, node, vars); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) executeNode(ctx context.Context, def *Definition, step Step, node Node, vars map[string]any) error {
	switch node.Kind {
	case NodeAction:
		if e.runner == nil {
			return errs.Configf(component, "executeNode", "no ActionRunner configured for <action>")
		}
		return e.runner.RunAction(ctx, node.Text, vars)

	case NodeCheck:
		ok, err := EvalGuard(node.If, vars)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return e.executeBody(ctx, def, step, node.Children, vars)

	case NodeAsk:
		if e.cfg.YOLOMode {
			return nil
		}
		if e.prompt == nil {
			return errs.Configf(component, "executeNode", "no Prompter configured for <ask>")
		}
		answer, err := e.prompt.Ask(ctx, node.Text)
		if err != nil {
			return err
		}
		vars[fmt.Sprintf("ask_step_%d", step.N)] = answer
		return nil

	case NodeElicitRequired:
		if e.cfg.YOLOMode {
			return nil
		}
		if e.prompt == nil {
			return errs.Configf(component, "executeNode", "no Prompter configured for <elicit-required>")
		}
		answer, err := e.prompt.ElicitRequired(ctx, node.Text)
		if err != nil {
			return err
		}
		if answer == "" {
			return errs.Validationf(component, "executeNode", "elicit-required at step %d received an empty response", step.N)
		}
		vars[fmt.Sprintf("elicit_step_%d", step.N)] = answer
		return nil

	case NodeTemplateOutput:
		if e.render == nil {
			return errs.Configf(component, "executeNode", "no TemplateRenderer configured for <template-output>")
		}
		rendered, err := e.render.Render(ctx, node.Text, vars)
		if err != nil {
			return err
		}
		if !e.cfg.YOLOMode {
			if e.prompt == nil {
				return errs.Configf(component, "executeNode", "no Prompter configured for <template-output> approval gate")
			}
			approved, err := e.prompt.ApproveTemplateOutput(ctx, node.File, rendered)
			if err != nil {
				return err
			}
			if !approved {
				return ErrAwaitingApproval
			}
		}
		if e.writer == nil {
			return errs.Configf(component, "executeNode", "no OutputWriter configured for <template-output>")
		}
		return e.writer.WriteOutput(ctx, node.File, rendered)

	case NodeOutput:
		text := node.Text
		if e.render != nil {
			if rendered, err := e.render.Render(ctx, node.Text, vars); err == nil {
				text = rendered
			}
		}
		e.cfg.Logger.Info("workflow step output", "workflow", def.Name, "step", step.N, "message", text)
		return nil

	default:
		return nil
	}
}
