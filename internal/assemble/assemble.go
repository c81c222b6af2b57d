// Package assemble compiles a configured pipeline into the stage sequence the
// orchestrator executes: it checks the declaration statically, resolves the
// invocation's inputs and options, and binds each stage to a tool runner.
package assemble

import (
	"context"
	"fmt"
	"sort"

	"github.com/dyluth/weir/internal/config"
	dockerpkg "github.com/dyluth/weir/internal/docker"
	"github.com/dyluth/weir/internal/orchestrator"
	"github.com/dyluth/weir/internal/toolexec"
	"github.com/dyluth/weir/internal/validate"
	"github.com/dyluth/weir/pkg/pipeline"
)

// Params carries the resolved values of one invocation.
type Params struct {
	Subject string            // Validated subject identifier
	RunID   string            // Unique id for this run
	Inputs  map[string]string // Input name to validated absolute path
	Options map[string]string // Option name to value, defaults applied
}

// Runners supplies the execution backends stages bind to. Docker may be nil
// when no stage needs it.
type Runners struct {
	Local  toolexec.Runner
	Docker toolexec.Runner
}

// Plan is one pipeline compiled against its declaration: every stage's
// consume set and output specs are computed and statically validated, but no
// executor is attached yet. `weir check` stops here; `weir run` binds the
// plan to runners afterwards.
type Plan struct {
	Name     string
	Pipeline config.Pipeline
	stages   []stagePlan
}

type stagePlan struct {
	decl config.Stage
	tool config.Tool
	spec pipeline.Stage
}

// Stages compiles the named pipeline. It returns a *pipeline.ValidationError
// for every declaration problem: unknown pipelines, unknown placeholders,
// undeclared options, consume/produce inconsistencies.
func Stages(cfg *config.WeirConfig, name string) (*Plan, error) {
	p, ok := cfg.Pipelines[name]
	if !ok {
		return nil, &pipeline.ValidationError{Err: fmt.Errorf(
			"unknown pipeline '%s' (available: %s)", name, config.FormatPipelineList(cfg.PipelineNames()))}
	}

	inputNames := make(map[string]bool, len(p.Inputs))
	seeds := make([]string, 0, len(p.Inputs))
	for _, in := range p.Inputs {
		inputNames[in.Name] = true
		seeds = append(seeds, in.Name)
	}
	optionNames := make(map[string]bool, len(p.Options))
	for _, opt := range p.Options {
		optionNames[opt.Name] = true
	}

	plan := &Plan{Name: name, Pipeline: p}
	specs := make([]pipeline.Stage, 0, len(p.Stages))
	for _, decl := range p.Stages {
		tool, ok := cfg.Tools[decl.Tool]
		if !ok {
			return nil, &pipeline.ValidationError{Err: fmt.Errorf("stage '%s': unknown tool '%s'", decl.Name, decl.Tool)}
		}

		consumes, err := consumeSet(decl, tool, inputNames, optionNames)
		if err != nil {
			return nil, &pipeline.ValidationError{Err: fmt.Errorf("stage '%s': %w", decl.Name, err)}
		}

		spec := pipeline.Stage{
			Name:     decl.Name,
			Consumes: consumes,
			Produces: outputSpecs(decl.Produces),
		}
		plan.stages = append(plan.stages, stagePlan{decl: decl, tool: tool, spec: spec})
		specs = append(specs, spec)
	}

	if err := orchestrator.ValidateStages(specs, seeds); err != nil {
		return nil, err
	}

	return plan, nil
}

// consumeSet computes everything a stage reads: its declared consumes plus
// every input or artefact referenced by placeholder in its arguments and
// environment. Output-position strings are validated with the stricter
// grammar as a side effect.
func consumeSet(decl config.Stage, tool config.Tool, inputs, options map[string]bool) ([]string, error) {
	seen := make(map[string]bool)
	var consumes []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			consumes = append(consumes, name)
		}
	}
	for _, name := range decl.Consumes {
		add(name)
	}

	checkInputPosition := func(kind refKind, name string) (string, error) {
		switch kind {
		case refSubject, refWorkspace:
		case refOption:
			if !options[name] {
				return "", fmt.Errorf("references undeclared option '%s'", name)
			}
		case refInput:
			if !inputs[name] {
				return "", fmt.Errorf("references undeclared input '%s'", name)
			}
			add(name)
		case refArtefact:
			add(name)
		}
		return "", nil
	}
	checkOutputPosition := func(kind refKind, name string) (string, error) {
		switch kind {
		case refSubject:
		case refOption:
			if !options[name] {
				return "", fmt.Errorf("references undeclared option '%s'", name)
			}
		default:
			return "", fmt.Errorf("placeholder kind '%s' is not allowed in output paths", kind)
		}
		return "", nil
	}

	for _, arg := range decl.Args {
		if _, err := walkRefs(arg, checkInputPosition); err != nil {
			return nil, err
		}
	}
	envKeys := make([]string, 0, len(tool.Env)+len(decl.Env))
	for k := range tool.Env {
		envKeys = append(envKeys, k)
	}
	for k := range decl.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		value, ok := decl.Env[k]
		if !ok {
			value = tool.Env[k]
		}
		if _, err := walkRefs(value, checkInputPosition); err != nil {
			return nil, err
		}
	}

	if decl.Stdout != "" {
		if _, err := walkRefs(decl.Stdout, checkOutputPosition); err != nil {
			return nil, err
		}
	}
	for _, out := range decl.Produces {
		if _, err := walkRefs(out.Path, checkOutputPosition); err != nil {
			return nil, fmt.Errorf("output '%s': %w", out.Name, err)
		}
		if _, err := walkRefs(out.Glob, checkOutputPosition); err != nil {
			return nil, fmt.Errorf("output '%s': %w", out.Name, err)
		}
	}

	return consumes, nil
}

func outputSpecs(outputs []config.Output) []pipeline.OutputSpec {
	specs := make([]pipeline.OutputSpec, 0, len(outputs))
	for _, out := range outputs {
		specs = append(specs, pipeline.OutputSpec{
			Name:     out.Name,
			Lifetime: pipeline.Lifetime(out.Lifetime),
			List:     out.Glob != "",
		})
	}
	return specs
}

// NeedsDocker reports whether any stage of the plan runs a containerised
// tool.
func (pl *Plan) NeedsDocker() bool {
	for _, sp := range pl.stages {
		if sp.tool.Image != "" {
			return true
		}
	}
	return false
}

// ImageTools returns the names of the containerised tools the plan invokes,
// sorted, for the daemon probe's error message. Empty when every stage runs
// as a subprocess.
func (pl *Plan) ImageTools() []string {
	seen := make(map[string]bool)
	var tools []string
	for _, sp := range pl.stages {
		if sp.tool.Image != "" && !seen[sp.decl.Tool] {
			seen[sp.decl.Tool] = true
			tools = append(tools, sp.decl.Tool)
		}
	}
	sort.Strings(tools)
	return tools
}

// Tools returns the tools this plan invokes, keyed by name, for the runtime
// provenance document.
func (pl *Plan) Tools() map[string]config.Tool {
	tools := make(map[string]config.Tool)
	for _, sp := range pl.stages {
		tools[sp.decl.Tool] = sp.tool
	}
	return tools
}

// StageNames returns the stage names in execution order.
func (pl *Plan) StageNames() []string {
	names := make([]string, 0, len(pl.stages))
	for _, sp := range pl.stages {
		names = append(names, sp.spec.Name)
	}
	return names
}

// Bind attaches an executor to every stage of the plan. Each executor
// expands the stage's arguments against the live artefact namespace, invokes
// the tool through the matching runner, and resolves the declared outputs.
func (pl *Plan) Bind(params Params, runners Runners) ([]pipeline.Stage, error) {
	stages := make([]pipeline.Stage, 0, len(pl.stages))
	for _, sp := range pl.stages {
		runner := runners.Local
		if sp.tool.Image != "" {
			runner = runners.Docker
		}
		if runner == nil {
			return nil, fmt.Errorf("stage '%s' uses tool '%s' but no matching runner is available", sp.decl.Name, sp.decl.Tool)
		}

		stage := sp.spec
		stage.Exec = executor(sp, params, runner)
		stages = append(stages, stage)
	}
	return stages, nil
}

// executor builds the closure that runs one stage.
func executor(sp stagePlan, params Params, runner toolexec.Runner) pipeline.Executor {
	return pipeline.ExecutorFunc(func(ctx context.Context, req pipeline.Request) (map[string][]string, error) {
		sc := scope{params: params, req: req}

		args := make([]string, len(sp.decl.Args))
		for i, arg := range sp.decl.Args {
			expanded, err := walkRefs(arg, sc.resolveInput)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i+1, err)
			}
			args[i] = expanded
		}

		env, err := buildEnv(sp.tool.Env, sp.decl.Env, sc)
		if err != nil {
			return nil, err
		}

		stdout := ""
		if sp.decl.Stdout != "" {
			stdout, err = walkRefs(sp.decl.Stdout, sc.resolveOutput)
			if err != nil {
				return nil, fmt.Errorf("stdout: %w", err)
			}
		}

		cmd := toolexec.Command{
			Tool:    sp.decl.Tool,
			Args:    args,
			Env:     env,
			Dir:     req.Workspace,
			Stdout:  stdout,
			Timeout: sp.tool.ExecTimeout(),
		}
		if sp.tool.Image != "" {
			cmd.Image = sp.tool.Image
			cmd.Mounts = externalMounts(req.Workspace, req.Inputs)
			cmd.Labels = dockerpkg.BuildLabels(params.Subject, params.RunID, sp.decl.Tool, sp.decl.Name)
		} else {
			cmd.Path = sp.tool.ResolvedBinary()
		}

		if err := runner.Run(ctx, cmd); err != nil {
			return nil, err
		}

		return resolveOutputs(req.Workspace, sp.decl.Produces, sc)
	})
}

// Invocation resolves the caller-supplied inputs and options against the
// pipeline's declaration: every declared input must be present and name an
// existing file or directory of the declared kind, unknown names are
// rejected, and option defaults are applied. Nothing here has side effects.
func Invocation(p config.Pipeline, inputs, options map[string]string) (map[string]string, map[string]string, error) {
	declaredInputs := make(map[string]config.Input, len(p.Inputs))
	for _, in := range p.Inputs {
		declaredInputs[in.Name] = in
	}
	for name := range inputs {
		if _, ok := declaredInputs[name]; !ok {
			return nil, nil, &pipeline.ValidationError{Err: fmt.Errorf("unknown input '%s'", name)}
		}
	}

	resolvedInputs := make(map[string]string, len(p.Inputs))
	for _, in := range p.Inputs {
		path, ok := inputs[in.Name]
		if !ok {
			return nil, nil, &pipeline.ValidationError{Err: fmt.Errorf("required input '%s' is missing (use --input %s=PATH)", in.Name, in.Name)}
		}
		abs, err := validate.Kind(in.Kind, path)
		if err != nil {
			return nil, nil, &pipeline.ValidationError{Err: fmt.Errorf("input '%s': %w", in.Name, err)}
		}
		resolvedInputs[in.Name] = abs
	}

	declaredOptions := make(map[string]config.Option, len(p.Options))
	for _, opt := range p.Options {
		declaredOptions[opt.Name] = opt
	}
	for name := range options {
		if _, ok := declaredOptions[name]; !ok {
			return nil, nil, &pipeline.ValidationError{Err: fmt.Errorf("unknown option '%s'", name)}
		}
	}

	resolvedOptions := make(map[string]string, len(p.Options))
	for _, opt := range p.Options {
		if value, ok := options[opt.Name]; ok {
			resolvedOptions[opt.Name] = value
			continue
		}
		if opt.Default == nil {
			return nil, nil, &pipeline.ValidationError{Err: fmt.Errorf("required option '%s' is missing (use --opt %s=VALUE)", opt.Name, opt.Name)}
		}
		resolvedOptions[opt.Name] = *opt.Default
	}

	return resolvedInputs, resolvedOptions, nil
}

// SeedArtefacts turns the resolved run inputs into the artefacts the first
// stages consume. Run inputs are persistent by definition: weir never deletes
// anything it did not create.
func SeedArtefacts(p config.Pipeline, inputs map[string]string) []pipeline.Artefact {
	seeds := make([]pipeline.Artefact, 0, len(p.Inputs))
	for _, in := range p.Inputs {
		seeds = append(seeds, pipeline.Artefact{
			Name:     in.Name,
			Paths:    []string{inputs[in.Name]},
			Lifetime: pipeline.LifetimePersistent,
		})
	}
	return seeds
}
