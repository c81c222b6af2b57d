// Package pipeline defines the shared contract for weir pipeline runs: the
// stage and artefact types the orchestrator executes, the provenance document
// type it records, and the error taxonomy every component reports through.
//
// # Overview
//
// A weir run takes one named subject through a fixed, ordered sequence of
// stages. Each stage invokes an opaque external tool, consumes artefacts
// produced by earlier stages (or seeded as run inputs), and produces new
// artefacts inside the subject's workspace. Execution is strictly sequential
// and fail-fast: the first stage error aborts the run, and whatever is already
// on disk stays there for inspection.
//
// # Core Concepts
//
// Stage: one unit of work. A stage declares what it consumes and what it
// produces; the executor behind it is a black box to the orchestrator.
//
// Artefact: a named filesystem work product. Every artefact carries a lifetime
// class: persistent artefacts survive the run and are listed in the outputs
// document, transient artefacts are deleted as soon as their last declared
// consumer has completed, even while later stages are still running.
//
// Document: one provenance record, a tree of JSON-compatible values. Documents
// are rendered with alphabetically sorted keys and four-space indentation so
// that two runs with identical settings produce byte-identical logs.
//
// # Error Taxonomy
//
// Every failure a run can hit maps onto exactly one error type:
//
//   - ValidationError: the invocation itself is malformed. Raised before the
//     workspace is touched; the run has no side effects.
//   - WorkspaceError: the workspace could not be erased, created, or written.
//     No stages have executed.
//   - StageExecutionError: a stage's tool failed. Later stages never start and
//     nothing is cleaned up.
//   - SerializationError: the analysis succeeded but a provenance document
//     could not be rendered. The outputs on disk remain valid.
//
// Callers distinguish the classes with the Is helpers (IsValidation,
// IsWorkspace, IsStageExecution, IsSerialization) rather than by matching
// error strings.
//
// # Design Principles
//
// The types in this package are plain data: no hidden registries, no global
// state, no behaviour beyond validation. Orchestration policy (ordering,
// artefact release, provenance flushing) lives with the orchestrator; tool
// invocation lives with the executors. This package only fixes the vocabulary
// they agree on.
package pipeline
