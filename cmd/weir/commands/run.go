package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dyluth/weir/internal/assemble"
	"github.com/dyluth/weir/internal/config"
	dockerpkg "github.com/dyluth/weir/internal/docker"
	"github.com/dyluth/weir/internal/orchestrator"
	"github.com/dyluth/weir/internal/printer"
	"github.com/dyluth/weir/internal/provenance"
	"github.com/dyluth/weir/internal/toolexec"
	"github.com/dyluth/weir/internal/workspace"
	"github.com/dyluth/weir/pkg/pipeline"
	"github.com/spf13/cobra"
)

var (
	runSubject    string
	runOutRoot    string
	runConfigPath string
	runInputs     []string
	runOptions    []string
	runErase      bool
	runVerbosity  int
)

var runCmd = &cobra.Command{
	Use:   "run PIPELINE",
	Short: "Run a pipeline against one subject",
	Long: `Run the named pipeline against a single subject.

Stages execute strictly in declared order and the run stops at the first
failure. Each run gets its own workspace under the output root:

  <out>/<subject>/          workspace, working directory for every stage
  <out>/<subject>/logs/     runtime.json, inputs.json, outputs.json

Transient artefacts are deleted as soon as their last consuming stage has
finished. On failure everything still on disk is left in place for
inspection and no provenance documents are written.

All inputs are validated before the workspace is touched: a bad flag, a
missing input file or an invalid pipeline declaration aborts with no side
effects.

Examples:
  # Run the demo pipeline from 'weir init'
  weir run demo --subject sample-01 --out ./out --input archive=sample.txt.gz

  # Re-run from scratch, discarding the previous workspace
  weir run demo --subject sample-01 --out ./out --input archive=sample.txt.gz --erase

  # Watch stages and artefacts as they happen
  weir run demo --subject sample-01 --out ./out --input archive=sample.txt.gz -vv`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runSubject, "subject", "s", "", "Subject identifier (required)")
	runCmd.Flags().StringVarP(&runOutRoot, "out", "o", "", "Output root directory (required)")
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "weir.yml", "Configuration file")
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "Run input as name=PATH (repeatable)")
	runCmd.Flags().StringArrayVar(&runOptions, "opt", nil, "Pipeline option as name=VALUE (repeatable)")
	runCmd.Flags().BoolVar(&runErase, "erase", false, "Erase an existing workspace for this subject first")
	runCmd.Flags().CountVarP(&runVerbosity, "verbose", "v", "Verbosity: -v stage progress, -vv artefact detail and outputs")
	runCmd.MarkFlagRequired("subject")
	runCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	pipelineName := args[0]
	startedAt := time.Now()

	// Phase 1: Configuration
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return printer.Error(
			"configuration not found or invalid",
			fmt.Sprintf("Could not load %s: %v", runConfigPath, err),
			[]string{
				"Initialize a project in this directory:\n  weir init",
				fmt.Sprintf("Point --config at an existing file:\n  weir run %s --config path/to/weir.yml ...", pipelineName),
			},
		)
	}
	configPath, err := filepath.Abs(runConfigPath)
	if err != nil {
		configPath = runConfigPath
	}

	// Phase 2: Static pipeline compilation
	plan, err := assemble.Stages(cfg, pipelineName)
	if err != nil {
		return printer.Error(
			"invalid pipeline declaration",
			err.Error(),
			[]string{fmt.Sprintf("Validate the configuration:\n  weir check --config %s", runConfigPath)},
		)
	}

	// Phase 3: Invocation resolution (still no side effects)
	inputs, err := parsePairs(runInputs, "input")
	if err != nil {
		return printer.Error("invalid invocation", err.Error(), []string{"Pass inputs as --input name=PATH"})
	}
	options, err := parsePairs(runOptions, "opt")
	if err != nil {
		return printer.Error("invalid invocation", err.Error(), []string{"Pass options as --opt name=VALUE"})
	}

	resolvedInputs, resolvedOptions, err := assemble.Invocation(plan.Pipeline, inputs, options)
	if err != nil {
		return printer.Error("invalid invocation", err.Error(), nil)
	}
	if err := workspace.ValidateSubjectID(runSubject); err != nil {
		return printer.Error("invalid invocation", err.Error(), nil)
	}
	outRoot, err := filepath.Abs(runOutRoot)
	if err != nil {
		return printer.Error("invalid invocation", fmt.Sprintf("could not resolve output root '%s': %v", runOutRoot, err), nil)
	}

	// Phase 4: Execution backends
	runners := assemble.Runners{Local: toolexec.LocalRunner{}}
	if plan.NeedsDocker() {
		docker, err := toolexec.NewDockerRunner(ctx, plan.ImageTools())
		if err != nil {
			return printer.Error(
				"Docker is required for this pipeline",
				err.Error(),
				[]string{
					"Every tool with an 'image' needs a reachable Docker daemon",
					"Start Docker Desktop (macOS) or the service (Linux):\n  sudo systemctl start docker",
				},
			)
		}
		defer docker.Close()
		runners.Docker = docker
	}

	runID := dockerpkg.GenerateRunID()
	stages, err := plan.Bind(assemble.Params{
		Subject: runSubject,
		RunID:   runID,
		Inputs:  resolvedInputs,
		Options: resolvedOptions,
	}, runners)
	if err != nil {
		return printer.Error("invalid invocation", err.Error(), nil)
	}

	// Phase 5: Workspace preparation (first side effects)
	ws, err := workspace.Prepare(outRoot, runSubject, runErase)
	if err != nil {
		return printer.ErrorWithContext(
			"workspace preparation failed",
			err.Error(),
			map[string]string{
				"Subject":     runSubject,
				"Output root": outRoot,
			},
			[]string{"Check that the output root exists and is writable"},
		)
	}

	// Phase 6: Provenance accumulation
	rec := provenance.NewRecorder()
	rec.RecordRuntime(provenance.RuntimeInfo{
		Version:    version,
		Commit:     commit,
		BuiltAt:    date,
		RunID:      runID,
		Pipeline:   pipelineName,
		ConfigPath: configPath,
		StartedAt:  startedAt,
		Tools:      toolInventory(plan),
	})
	rec.RecordInputs(inputsDocument(pipelineName, runSubject, outRoot, runErase, resolvedInputs, resolvedOptions))

	if runVerbosity >= 1 {
		printer.Info("Running pipeline '%s' for subject '%s' (%d stages)\n", pipelineName, runSubject, len(stages))
	}

	// Phase 7: Execution
	engine := orchestrator.New(stages, orchestrator.WithEventLog(eventPrinter(runVerbosity)))
	res, err := engine.Execute(ctx, orchestrator.Run{
		Workspace: ws,
		Inputs:    assemble.SeedArtefacts(plan.Pipeline, resolvedInputs),
	})
	if err != nil {
		return printer.Error("invalid invocation", err.Error(), nil)
	}
	if res.Status == pipeline.RunFailed {
		return printer.ErrorWithContext(
			fmt.Sprintf("pipeline failed at stage '%s'", res.FailedStage),
			res.Err.Error(),
			map[string]string{
				"Pipeline":  pipelineName,
				"Subject":   runSubject,
				"Workspace": ws.Path(),
			},
			[]string{
				"Inspect the artefacts left in the workspace",
				fmt.Sprintf("Re-run from scratch:\n  weir run %s --subject %s --out %s --erase ...", pipelineName, runSubject, runOutRoot),
			},
		)
	}

	// Phase 8: Provenance documents (the run itself has already succeeded)
	rec.RecordOutputs(res.Outputs)
	if err := rec.Flush(ws.LogsDir()); err != nil {
		explanation := fmt.Sprintf("The pipeline completed and every analysis output is intact in the workspace; only the provenance documents could not be written.\n\nError: %v", err)
		if pipeline.IsSerialization(err) {
			explanation = fmt.Sprintf("The pipeline completed and every analysis output is intact in the workspace, but a provenance document could not be serialized.\n\nError: %v", err)
		}
		return printer.ErrorWithContext(
			"failed to record provenance",
			explanation,
			map[string]string{"Workspace": ws.Path()},
			nil,
		)
	}

	printer.Success("pipeline '%s' completed for subject '%s'\n", pipelineName, runSubject)
	printer.Printf("Workspace: %s\n", ws.Path())
	if runVerbosity >= 2 && len(res.Outputs) > 0 {
		printer.Printf("\nOutputs:\n")
		printer.Outputs(os.Stdout, res.Outputs)
	}

	return nil
}

// parsePairs splits repeatable name=value flags into a map.
func parsePairs(pairs []string, flag string) (map[string]string, error) {
	m := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("--%s expects name=value, got '%s'", flag, pair)
		}
		if _, dup := m[name]; dup {
			return nil, fmt.Errorf("--%s '%s' given more than once", flag, name)
		}
		m[name] = value
	}
	return m, nil
}

// toolInventory resolves the plan's tools for the runtime document.
func toolInventory(plan *assemble.Plan) map[string]provenance.ToolInfo {
	tools := make(map[string]provenance.ToolInfo)
	for name, tool := range plan.Tools() {
		info := provenance.ToolInfo{
			Version: tool.Version,
			Image:   tool.Image,
			Home:    tool.Home,
		}
		if tool.Binary != "" {
			info.Binary = tool.ResolvedBinary()
		}
		tools[name] = info
	}
	return tools
}

// inputsDocument captures the fully resolved invocation: what the caller asked
// for, after validation and defaulting, so a run can be reproduced from its
// logs alone.
func inputsDocument(pipelineName, subject, outRoot string, erase bool, inputs, options map[string]string) pipeline.Document {
	doc := pipeline.Document{
		"erase":    erase,
		"out_root": outRoot,
		"pipeline": pipelineName,
		"subject":  subject,
	}
	if len(inputs) > 0 {
		m := make(map[string]any, len(inputs))
		for name, path := range inputs {
			m[name] = path
		}
		doc["inputs"] = m
	}
	if len(options) > 0 {
		m := make(map[string]any, len(options))
		for name, value := range options {
			m[name] = value
		}
		doc["options"] = m
	}
	return doc
}

// eventPrinter maps engine events onto printed progress for the requested
// verbosity. Failed transient deletions always surface as warnings; they never
// fail the run.
func eventPrinter(verbosity int) orchestrator.EventLog {
	return func(eventType string, fields map[string]any) {
		switch eventType {
		case "stage_started":
			if verbosity >= 1 {
				printer.Step("[%v/%v] %v\n", fields["index"], fields["total"], fields["stage"])
			}
		case "stage_completed":
			if verbosity >= 1 {
				printer.Success("[%v/%v] %v\n", fields["index"], fields["total"], fields["stage"])
			}
		case "artefact_registered":
			if verbosity >= 2 {
				printer.Info("  artefact '%v' registered by stage '%v' (%v)\n", fields["artefact"], fields["stage"], fields["lifetime"])
			}
		case "artefact_released":
			if verbosity >= 2 {
				printer.Info("  transient artefact '%v' deleted\n", fields["artefact"])
			}
		case "release_failed":
			printer.Warning("could not delete transient artefact '%v': %v\n", fields["artefact"], fields["error"])
		}
	}
}
