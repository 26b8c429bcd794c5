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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmad-forge/bmad-core/pkg/orchestrator"
	"github.com/bmad-forge/bmad-core/pkg/state"
	"github.com/bmad-forge/bmad-core/pkg/workflow"
)

// WorkflowCmd executes a declarative workflow: workflow.yaml plus its
// instructions file, checkpointed after every step. A paused run (an
// unresolved escalation or an unapproved template output) resumes from its
// persisted step with --resume once the blocker clears.
type WorkflowCmd struct {
	File    string `arg:"" help:"Path to workflow.yaml." type:"path"`
	Project string `help:"Project id (defaults to the workflow name)."`
	Persona string `help:"Persona the workflow's actions run as." default:"john"`
	Resume  bool   `help:"Resume from persisted state instead of starting fresh."`
	Yolo    bool   `help:"YOLO mode: skip ask/elicit gates and auto-approve template outputs."`

	ArtifactDir string `help:"Directory for template outputs." default:"docs"`
}

func (c *WorkflowCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, err := buildRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()

	def, err := workflow.LoadDefinition(c.File)
	if err != nil {
		return err
	}

	instructionsPath := def.Instructions
	if !filepath.IsAbs(instructionsPath) {
		instructionsPath = filepath.Join(filepath.Dir(c.File), instructionsPath)
	}
	src, err := os.ReadFile(instructionsPath)
	if err != nil {
		return fmt.Errorf("read instructions %s: %w", instructionsPath, err)
	}
	steps, err := workflow.ParseInstructions(string(src))
	if err != nil {
		return err
	}

	project := c.Project
	if project == "" {
		project = def.Name
	}

	collab := &orchestrator.AgentCollaborators{
		Pool:        rt.deps.Pool,
		Decisions:   rt.deps.Decisions,
		Escalation:  rt.deps.Escalations,
		ProjectID:   project,
		ArtifactDir: c.ArtifactDir,
		Persona:     c.Persona,
		ClientName:  clientNameFor(rt.cfg, c.Persona),
		ConfigPath:  cli.Config,
	}
	defer collab.Close()

	engine := workflow.NewEngine(workflow.Config{
		YOLOMode: c.Yolo,
		Logger:   slog.Default(),
	}, rt.deps.States, collab, collab, collab, collab, nil)

	var st *state.WorkflowState
	if c.Resume {
		st, err = engine.Resume(ctx, def, steps, project)
	} else {
		st, err = engine.Start(ctx, def, steps, project, nil)
	}

	if errors.Is(err, workflow.ErrAwaitingApproval) {
		fmt.Printf("workflow %s paused at step %d awaiting human input\n", def.Name, st.CurrentStep+1)
		fmt.Println("answer pending escalations, then re-run with --resume")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("workflow %s %s (step %d of %d)\n", def.Name, st.Status, st.CurrentStep, len(steps))
	return nil
}
