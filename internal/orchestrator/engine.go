// Package orchestrator executes a declared stage sequence against one
// subject's workspace: strictly in order, fail-fast, releasing transient
// artefacts as soon as their last consumer has completed.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/dyluth/weir/internal/workspace"
	"github.com/dyluth/weir/pkg/pipeline"
)

// EventLog receives structured engine events. Event types are stage_started,
// stage_completed, artefact_registered, artefact_released, release_failed,
// run_completed and run_failed. The CLI maps events onto printed progress
// according to the verbosity level; tests capture them directly.
type EventLog func(eventType string, fields map[string]any)

// Run bundles everything one execution needs beyond the stage list: the
// prepared workspace and the validated, seeded run inputs.
type Run struct {
	Workspace *workspace.Workspace
	Inputs    []pipeline.Artefact
}

// Engine executes one declared stage list. It is stateless between runs and
// holds no global registry: every run carries its own artefact namespace.
type Engine struct {
	stages []pipeline.Stage
	log    EventLog
}

// Option customises an Engine.
type Option func(*Engine)

// WithEventLog wires an event sink. The default discards events.
func WithEventLog(log EventLog) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates an engine for the given stage sequence. The sequence is
// validated again at Run time against the actual seed inputs, so New never
// fails.
func New(stages []pipeline.Stage, opts ...Option) *Engine {
	e := &Engine{
		stages: stages,
		log:    func(string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidateStages checks a stage sequence for structural soundness against a
// set of seeded input names: stage names unique, artefact names unique across
// seeds and outputs, and every consumed name resolvable from seeds or earlier
// stages. Resolution order doubles as the acyclicity check, since a stage can
// only consume what already exists when it starts. Returns a
// *pipeline.ValidationError describing the first problem found.
func ValidateStages(stages []pipeline.Stage, seeds []string) error {
	if len(stages) == 0 {
		return &pipeline.ValidationError{Err: fmt.Errorf("pipeline has no stages")}
	}

	produced := make(map[string]bool, len(seeds))
	for _, name := range seeds {
		if name == "" {
			return &pipeline.ValidationError{Err: fmt.Errorf("run input name cannot be empty")}
		}
		if produced[name] {
			return &pipeline.ValidationError{Err: fmt.Errorf("duplicate run input '%s'", name)}
		}
		produced[name] = true
	}

	stageNames := make(map[string]bool, len(stages))
	for _, stage := range stages {
		if err := stage.Validate(); err != nil {
			return &pipeline.ValidationError{Err: err}
		}
		if stageNames[stage.Name] {
			return &pipeline.ValidationError{Err: fmt.Errorf("duplicate stage name '%s'", stage.Name)}
		}
		stageNames[stage.Name] = true

		for _, name := range stage.Consumes {
			if !produced[name] {
				return &pipeline.ValidationError{Err: fmt.Errorf(
					"stage '%s' consumes '%s', which is not a run input or an earlier stage's output", stage.Name, name)}
			}
		}
		for _, out := range stage.Produces {
			if produced[out.Name] {
				return &pipeline.ValidationError{Err: fmt.Errorf(
					"stage '%s' produces '%s', which is already taken by a run input or an earlier stage", stage.Name, out.Name)}
			}
			produced[out.Name] = true
		}
	}

	return nil
}

// Execute runs the stage sequence to completion or first failure.
//
// A non-nil error means the run could never start: the declaration failed
// validation and nothing has touched the workspace beyond what Prepare did.
// Otherwise the RunResult carries the verdict. On failure, everything already
// on disk is deliberately left in place for inspection, except transient
// artefacts already released before the failing stage started.
func (e *Engine) Execute(ctx context.Context, run Run) (pipeline.RunResult, error) {
	seeds := make([]string, 0, len(run.Inputs))
	artefacts := make(map[string]pipeline.Artefact, len(run.Inputs))
	for _, in := range run.Inputs {
		if err := in.Validate(); err != nil {
			return pipeline.RunResult{}, &pipeline.ValidationError{Err: err}
		}
		if _, dup := artefacts[in.Name]; dup {
			return pipeline.RunResult{}, &pipeline.ValidationError{Err: fmt.Errorf("duplicate run input '%s'", in.Name)}
		}
		artefacts[in.Name] = in
		seeds = append(seeds, in.Name)
	}

	if err := ValidateStages(e.stages, seeds); err != nil {
		return pipeline.RunResult{}, err
	}
	for _, stage := range e.stages {
		if stage.Exec == nil {
			return pipeline.RunResult{}, &pipeline.ValidationError{Err: fmt.Errorf("stage '%s' has no executor", stage.Name)}
		}
	}

	tracker := newTracker(e.stages, e.log)

	for i, stage := range e.stages {
		e.log("stage_started", map[string]any{
			"stage": stage.Name,
			"index": i + 1,
			"total": len(e.stages),
		})

		req := pipeline.Request{
			Workspace: run.Workspace.Path(),
			Subject:   run.Workspace.Subject,
			Inputs:    make(map[string]pipeline.Artefact, len(stage.Consumes)),
		}
		for _, name := range stage.Consumes {
			req.Inputs[name] = artefacts[name]
		}

		produced, err := stage.Exec.Exec(ctx, req)
		if err != nil {
			return e.failed(stage.Name, err), nil
		}

		for _, out := range stage.Produces {
			paths, ok := produced[out.Name]
			if !ok || len(paths) == 0 {
				return e.failed(stage.Name, fmt.Errorf("declared output '%s' was not produced", out.Name)), nil
			}
			if !out.List && len(paths) != 1 {
				return e.failed(stage.Name, fmt.Errorf("output '%s' expects a single path, got %d", out.Name, len(paths))), nil
			}

			artefact := pipeline.Artefact{
				Name:     out.Name,
				Paths:    paths,
				Lifetime: out.Class(),
				List:     out.List,
				Stage:    stage.Name,
			}
			artefacts[out.Name] = artefact
			tracker.Register(artefact, i)
			e.log("artefact_registered", map[string]any{
				"stage":    stage.Name,
				"artefact": out.Name,
				"lifetime": string(artefact.Lifetime),
				"paths":    len(paths),
			})
		}

		// Transient artefacts whose last consumer has now completed are
		// deleted here, before the next stage starts.
		tracker.ReleaseAfter(i)

		e.log("stage_completed", map[string]any{
			"stage": stage.Name,
			"index": i + 1,
			"total": len(e.stages),
		})
	}

	outputs := outputsDocument(artefacts)
	e.log("run_completed", map[string]any{
		"stages":  len(e.stages),
		"outputs": len(outputs),
	})

	return pipeline.RunResult{
		Status:  pipeline.RunSucceeded,
		Outputs: outputs,
	}, nil
}

// failed wraps a stage failure into the final result. Nothing is cleaned up:
// partial artefacts stay on disk so the operator can inspect what the tool
// left behind.
func (e *Engine) failed(stage string, cause error) pipeline.RunResult {
	err := &pipeline.StageExecutionError{Stage: stage, Err: cause}
	e.log("run_failed", map[string]any{
		"stage": stage,
		"error": cause.Error(),
	})
	return pipeline.RunResult{
		Status:      pipeline.RunFailed,
		FailedStage: stage,
		Err:         err,
	}
}

// outputsDocument builds the final outputs document: every persistent
// artefact produced by a stage, mapped to its path (or paths, for list
// artefacts). Seeded run inputs and transient artefacts are excluded.
func outputsDocument(artefacts map[string]pipeline.Artefact) pipeline.Document {
	doc := pipeline.Document{}
	for name, artefact := range artefacts {
		if artefact.Stage == "" || artefact.Lifetime != pipeline.LifetimePersistent {
			continue
		}
		if artefact.List {
			doc[name] = artefact.Paths
		} else {
			doc[name] = artefact.Path()
		}
	}
	return doc
}
