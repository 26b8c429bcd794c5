// Package bmad implements the core of a multi-phase software delivery
// pipeline: a declarative workflow engine, a concurrency-limited agent pool,
// a confidence-gated decision and escalation subsystem, incremental document
// assembly, and a family of artifact validators.
//
// # Layout
//
//	pkg/workflow       workflow engine & state machine
//	pkg/agentpool       agent lifecycle, queueing, cost accounting
//	pkg/decision        autonomous decisions + escalation handoff
//	pkg/escalation      durable pending-question queue
//	pkg/state           per-project workflow state persistence
//	pkg/template        variable substitution & section-marked assembly
//	pkg/validate        architecture / PRD / security / ADR / CIS validators
//	pkg/depgraph        story dependency graph analysis
//	pkg/orchestrator    PRD, architecture, and solutioning phase composition
//	pkg/llm             LLM provider capability contract + adapters
//	pkg/config          project configuration loading
//	pkg/observability   metrics and tracing
//	pkg/report          xlsx/docx artifact export
//
// The LLM provider clients, CLI wrappers, logging sinks, and markdown
// authoring rules encoded in agent personas are treated as external
// collaborators; see cmd/bmad for the CLI surface.
package bmad
