package assemble

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/weir/internal/config"
	"github.com/dyluth/weir/internal/orchestrator"
	"github.com/dyluth/weir/internal/toolexec"
	"github.com/dyluth/weir/internal/workspace"
	"github.com/dyluth/weir/pkg/pipeline"
)

// testConfig builds a minimal valid config around the given pipeline.
func testConfig(t *testing.T, p config.Pipeline) *config.WeirConfig {
	t.Helper()
	cfg := &config.WeirConfig{
		Version: "1.0",
		Tools: map[string]config.Tool{
			"cp": {Binary: "cp", Version: "system"},
			"sh": {Binary: "sh", Version: "system"},
		},
		Pipelines: map[string]config.Pipeline{"demo": p},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestStages_UnknownPipeline(t *testing.T) {
	cfg := testConfig(t, config.Pipeline{
		Stages: []config.Stage{{Name: "s", Tool: "sh"}},
	})

	_, err := Stages(cfg, "nope")
	require.Error(t, err)
	assert.True(t, pipeline.IsValidation(err))
	assert.Contains(t, err.Error(), "unknown pipeline 'nope'")
	assert.Contains(t, err.Error(), "demo")
}

func TestStages_PlaceholderImpliesConsumption(t *testing.T) {
	cfg := testConfig(t, config.Pipeline{
		Inputs: []config.Input{{Name: "archive"}},
		Stages: []config.Stage{
			{
				Name: "unzip", Tool: "cp",
				Args:     []string{"${input.archive}", "raw.dat"},
				Produces: []config.Output{{Name: "raw", Path: "raw.dat", Lifetime: "transient"}},
			},
			{
				Name: "transform", Tool: "sh",
				Args:     []string{"-c", "tr a-z A-Z < ${artefact.raw} > result.txt"},
				Produces: []config.Output{{Name: "result", Path: "result.txt"}},
			},
		},
	})

	plan, err := Stages(cfg, "demo")
	require.NoError(t, err)

	// unzip consumes archive purely through its placeholder; transform
	// consumes raw the same way. Both must appear in the computed sets so
	// the tracker keeps raw alive until transform completes.
	require.Len(t, plan.stages, 2)
	assert.Equal(t, []string{"archive"}, plan.stages[0].spec.Consumes)
	assert.Equal(t, []string{"raw"}, plan.stages[1].spec.Consumes)
}

func TestStages_DeclaredAndReferencedConsumesMerge(t *testing.T) {
	cfg := testConfig(t, config.Pipeline{
		Inputs: []config.Input{{Name: "a"}, {Name: "b"}},
		Stages: []config.Stage{
			{
				Name: "s", Tool: "sh",
				Consumes: []string{"a"},
				Args:     []string{"-c", "cat ${input.a} ${input.b}"},
			},
		},
	})

	plan, err := Stages(cfg, "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, plan.stages[0].spec.Consumes)
}

func TestStages_StaticErrors(t *testing.T) {
	tests := []struct {
		name     string
		pipeline config.Pipeline
		wantErr  string
	}{
		{
			name: "undeclared option",
			pipeline: config.Pipeline{
				Stages: []config.Stage{{Name: "s", Tool: "sh", Args: []string{"${option.nope}"}}},
			},
			wantErr: "undeclared option 'nope'",
		},
		{
			name: "undeclared input",
			pipeline: config.Pipeline{
				Stages: []config.Stage{{Name: "s", Tool: "sh", Args: []string{"${input.nope}"}}},
			},
			wantErr: "undeclared input 'nope'",
		},
		{
			name: "unknown placeholder kind",
			pipeline: config.Pipeline{
				Stages: []config.Stage{{Name: "s", Tool: "sh", Args: []string{"${env.HOME}"}}},
			},
			wantErr: "unknown placeholder",
		},
		{
			name: "artefact placeholder in output path",
			pipeline: config.Pipeline{
				Stages: []config.Stage{{
					Name: "s", Tool: "sh",
					Produces: []config.Output{{Name: "out", Path: "${artefact.raw}.bak"}},
				}},
			},
			wantErr: "not allowed in output paths",
		},
		{
			name: "consuming an artefact no stage produces",
			pipeline: config.Pipeline{
				Stages: []config.Stage{{Name: "s", Tool: "sh", Consumes: []string{"ghost"}}},
			},
			wantErr: "not a run input or an earlier stage's output",
		},
		{
			name: "env value references undeclared input",
			pipeline: config.Pipeline{
				Stages: []config.Stage{{
					Name: "s", Tool: "sh",
					Env: map[string]string{"SRC": "${input.nope}"},
				}},
			},
			wantErr: "undeclared input 'nope'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.pipeline)
			_, err := Stages(cfg, "demo")
			require.Error(t, err)
			assert.True(t, pipeline.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInvocation(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "sub-01.zip")
	require.NoError(t, os.WriteFile(archive, []byte("zip"), 0o644))

	half := "0.5"
	p := config.Pipeline{
		Inputs: []config.Input{
			{Name: "archive", Kind: "file"},
		},
		Options: []config.Option{
			{Name: "threshold", Default: &half},
			{Name: "atlas"},
		},
	}

	t.Run("resolves paths and applies defaults", func(t *testing.T) {
		inputs, options, err := Invocation(p,
			map[string]string{"archive": archive},
			map[string]string{"atlas": "MNI152"},
		)
		require.NoError(t, err)
		assert.Equal(t, archive, inputs["archive"])
		assert.Equal(t, "0.5", options["threshold"])
		assert.Equal(t, "MNI152", options["atlas"])
	})

	t.Run("explicit option overrides default", func(t *testing.T) {
		_, options, err := Invocation(p,
			map[string]string{"archive": archive},
			map[string]string{"atlas": "MNI152", "threshold": "0.9"},
		)
		require.NoError(t, err)
		assert.Equal(t, "0.9", options["threshold"])
	})

	t.Run("missing required input", func(t *testing.T) {
		_, _, err := Invocation(p, nil, map[string]string{"atlas": "MNI152"})
		require.Error(t, err)
		assert.True(t, pipeline.IsValidation(err))
		assert.Contains(t, err.Error(), "required input 'archive' is missing")
	})

	t.Run("input file does not exist", func(t *testing.T) {
		_, _, err := Invocation(p,
			map[string]string{"archive": filepath.Join(dir, "nope.zip")},
			map[string]string{"atlas": "MNI152"},
		)
		require.Error(t, err)
		assert.True(t, pipeline.IsValidation(err))
		assert.True(t, pipeline.IsNotFound(err), "cause should stay visible")
	})

	t.Run("unknown input name", func(t *testing.T) {
		_, _, err := Invocation(p,
			map[string]string{"archive": archive, "extra": archive},
			map[string]string{"atlas": "MNI152"},
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown input 'extra'")
	})

	t.Run("missing required option", func(t *testing.T) {
		_, _, err := Invocation(p, map[string]string{"archive": archive}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "required option 'atlas' is missing")
	})

	t.Run("unknown option name", func(t *testing.T) {
		_, _, err := Invocation(p,
			map[string]string{"archive": archive},
			map[string]string{"atlas": "MNI152", "nope": "1"},
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown option 'nope'")
	})
}

func TestSeedArtefacts(t *testing.T) {
	p := config.Pipeline{
		Inputs: []config.Input{{Name: "archive"}, {Name: "atlas", Kind: "directory"}},
	}
	seeds := SeedArtefacts(p, map[string]string{
		"archive": "/in/sub-01.zip",
		"atlas":   "/opt/atlas",
	})

	require.Len(t, seeds, 2)
	assert.Equal(t, "archive", seeds[0].Name)
	assert.Equal(t, []string{"/in/sub-01.zip"}, seeds[0].Paths)
	assert.Equal(t, pipeline.LifetimePersistent, seeds[0].Lifetime)
	assert.Equal(t, "atlas", seeds[1].Name)
}

// TestBindAndExecute drives a real two-stage pipeline through the assembler,
// the local runner and the engine: copy an input into the workspace as a
// transient, then uppercase it into a persistent result.
func TestBindAndExecute(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test drives /bin/sh")
	}

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "input.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello weir"), 0o644))

	cfg := testConfig(t, config.Pipeline{
		Inputs: []config.Input{{Name: "src", Kind: "file"}},
		Options: []config.Option{
			{Name: "greeting"},
		},
		Stages: []config.Stage{
			{
				Name: "copy", Tool: "cp",
				Args:     []string{"${input.src}", "raw.txt"},
				Produces: []config.Output{{Name: "raw", Path: "raw.txt", Lifetime: "transient"}},
			},
			{
				Name: "shout", Tool: "sh",
				Args:   []string{"-c", `tr a-z A-Z < ${artefact.raw}; printf ' %s' "$GREETING"`},
				Env:    map[string]string{"GREETING": "${option.greeting}"},
				Stdout: "${subject}_result.txt",
				Produces: []config.Output{
					{Name: "result", Path: "${subject}_result.txt"},
				},
			},
		},
	})

	plan, err := Stages(cfg, "demo")
	require.NoError(t, err)
	assert.False(t, plan.NeedsDocker())
	assert.Empty(t, plan.ImageTools())

	inputs, options, err := Invocation(cfg.Pipelines["demo"],
		map[string]string{"src": src},
		map[string]string{"greeting": "bonjour"},
	)
	require.NoError(t, err)

	params := Params{
		Subject: "sub-01",
		RunID:   "test-run",
		Inputs:  inputs,
		Options: options,
	}
	stages, err := plan.Bind(params, Runners{Local: toolexec.LocalRunner{}})
	require.NoError(t, err)

	ws, err := workspace.Prepare(t.TempDir(), "sub-01", false)
	require.NoError(t, err)

	engine := orchestrator.New(stages)
	result, err := engine.Execute(context.Background(), orchestrator.Run{
		Workspace: ws,
		Inputs:    SeedArtefacts(cfg.Pipelines["demo"], inputs),
	})
	require.NoError(t, err)
	require.Equal(t, pipeline.RunSucceeded, result.Status)

	resultPath := filepath.Join(ws.Path(), "sub-01_result.txt")
	content, err := os.ReadFile(resultPath)
	require.NoError(t, err)
	assert.Equal(t, "HELLO WEIR bonjour", string(content))

	// The transient copy was released after its last consumer.
	assert.NoFileExists(t, filepath.Join(ws.Path(), "raw.txt"))

	// Outputs document carries the one persistent artefact.
	assert.Equal(t, pipeline.Document{"result": resultPath}, result.Outputs)
}

func TestBind_MissingDockerRunner(t *testing.T) {
	cfg := &config.WeirConfig{
		Version: "1.0",
		Tools: map[string]config.Tool{
			"segmenter": {Image: "lab/segmenter:5.1", Version: "5.1"},
		},
		Pipelines: map[string]config.Pipeline{
			"demo": {Stages: []config.Stage{{Name: "segment", Tool: "segmenter"}}},
		},
	}
	require.NoError(t, cfg.Validate())

	plan, err := Stages(cfg, "demo")
	require.NoError(t, err)
	assert.True(t, plan.NeedsDocker())
	assert.Equal(t, []string{"segmenter"}, plan.ImageTools())

	_, err = plan.Bind(Params{Subject: "sub-01"}, Runners{Local: toolexec.LocalRunner{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no matching runner")
}

func TestPlan_ImageTools(t *testing.T) {
	cfg := &config.WeirConfig{
		Version: "1.0",
		Tools: map[string]config.Tool{
			"sh":        {Binary: "sh", Version: "system"},
			"tracer":    {Image: "lab/tracer:2.0", Version: "2.0"},
			"segmenter": {Image: "lab/segmenter:5.1", Version: "5.1"},
		},
		Pipelines: map[string]config.Pipeline{
			"demo": {Stages: []config.Stage{
				{Name: "segment", Tool: "segmenter"},
				{Name: "trace", Tool: "tracer"},
				{Name: "resegment", Tool: "segmenter"},
				{Name: "report", Tool: "sh"},
			}},
		},
	}
	require.NoError(t, cfg.Validate())

	plan, err := Stages(cfg, "demo")
	require.NoError(t, err)

	// Deduplicated and sorted; the subprocess tool does not appear.
	assert.Equal(t, []string{"segmenter", "tracer"}, plan.ImageTools())
}

func TestPlan_Tools(t *testing.T) {
	cfg := testConfig(t, config.Pipeline{
		Stages: []config.Stage{
			{Name: "a", Tool: "cp"},
			{Name: "b", Tool: "sh"},
			{Name: "c", Tool: "sh"},
		},
	})

	plan, err := Stages(cfg, "demo")
	require.NoError(t, err)

	tools := plan.Tools()
	assert.Len(t, tools, 2)
	assert.Contains(t, tools, "cp")
	assert.Contains(t, tools, "sh")
	assert.Equal(t, []string{"a", "b", "c"}, plan.StageNames())
}
