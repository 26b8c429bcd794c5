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

// Command bmad drives the delivery pipeline: run a phase, resume a paused
// one, answer escalations, validate artifacts, and export them.
//
// Usage:
//
//	bmad run prd --brief docs/brief.md
//	bmad resume prd --brief docs/brief.md
//	bmad workflow bmad/bmm/workflows/prd/workflow.yaml --yolo
//	bmad escalations list --status pending
//	bmad escalations respond esc-1718000000000-a1b2c3d4 --answer "yes"
//	bmad validate --architecture docs/architecture.md --prd docs/PRD.md
//	bmad export --xlsx out/pipeline.xlsx
//	bmad schema > config-schema.json
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/bmad-forge/bmad-core"
	"github.com/bmad-forge/bmad-core/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version     VersionCmd     `cmd:"" help:"Show version information."`
	Run         RunCmd         `cmd:"" help:"Run a pipeline phase."`
	Resume      ResumeCmd      `cmd:"" help:"Resume a paused or failed phase."`
	Workflow    WorkflowCmd    `cmd:"" help:"Execute a declarative workflow file."`
	Escalations EscalationsCmd `cmd:"" help:"List, answer, and summarize escalations."`
	Validate    ValidateCmd    `cmd:"" help:"Validate produced artifacts against their quality gates."`
	Export      ExportCmd      `cmd:"" help:"Export artifacts to xlsx/docx."`
	Schema      SchemaCmd      `cmd:"" help:"Generate JSON Schema for the project config and workflow definition."`

	Config    string `short:"c" help:"Path to project config file." default:".bmad/project-config.yaml" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, text, or json)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(bmad.GetVersion().String())
	return nil
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("bmad"),
		kong.Description("bmad-core - agent-orchestrated delivery pipeline"),
		kong.UsageOnError(),
	)

	out := os.Stderr
	var cleanup func()
	if cli.LogFile != "" {
		f, closeFn, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		out = f
		cleanup = closeFn
	}
	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cli.LogLevel),
		Output: out,
		Format: logger.Format(cli.LogFormat),
		Quiet:  true,
	})
	slog.SetDefault(log)
	if cleanup != nil {
		defer cleanup()
	}

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
