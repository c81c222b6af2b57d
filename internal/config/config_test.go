package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes content to a temp weir.yml and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weir.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
version: "1.0"

tools:
  gzip:
    binary: /usr/bin/gzip
    version: "1.12"
  fsl:
    home: /opt/fsl
    binary: bin/flirt
    version: "6.0.7"
    env:
      FSLOUTPUTTYPE: NIFTI_GZ
    timeout: 45m
  segmenter:
    image: lab/segmenter:5.1
    version: "5.1"

pipelines:
  anat:
    description: Anatomical preprocessing
    inputs:
      - name: archive
        kind: file
        description: compressed scan data
    options:
      - name: threshold
        default: "0.5"
    stages:
      - name: unzip
        tool: gzip
        args: ["-dc", "${input.archive}"]
        stdout: raw.dat
        produces:
          - name: raw
            path: raw.dat
            lifetime: transient
      - name: transform
        tool: fsl
        args: ["${artefact.raw}", "-t", "${option.threshold}", "result.nii"]
        consumes: [raw]
        produces:
          - name: result
            path: result.nii
      - name: segment
        tool: segmenter
        args: ["${artefact.result}"]
        consumes: [result]
        produces:
          - name: masks
            glob: "masks/*.nii"
`

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1.0", cfg.Version)
	assert.Len(t, cfg.Tools, 3)
	assert.Len(t, cfg.Pipelines, 1)

	fsl := cfg.Tools["fsl"]
	assert.Equal(t, "/opt/fsl", fsl.Home)
	assert.Equal(t, "bin/flirt", fsl.Binary)
	assert.Equal(t, "NIFTI_GZ", fsl.Env["FSLOUTPUTTYPE"])

	anat := cfg.Pipelines["anat"]
	require.Len(t, anat.Stages, 3)
	assert.Equal(t, "unzip", anat.Stages[0].Name)
	assert.Equal(t, "raw.dat", anat.Stages[0].Stdout)
	assert.Equal(t, "transient", anat.Stages[0].Produces[0].Lifetime)
	assert.Equal(t, []string{"raw"}, anat.Stages[1].Consumes)
	assert.Equal(t, "masks/*.nii", anat.Stages[2].Produces[0].Glob)

	require.Len(t, anat.Options, 1)
	require.NotNil(t, anat.Options[0].Default)
	assert.Equal(t, "0.5", *anat.Options[0].Default)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "version: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_UnsupportedVersion(t *testing.T) {
	path := writeConfig(t, `
version: "2.0"
pipelines:
  p:
    stages:
      - name: s
        tool: t
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version")
}

func TestLoad_NoPipelines(t *testing.T) {
	path := writeConfig(t, `
version: "1.0"
tools:
  gzip:
    binary: gzip
    version: system
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pipelines defined")
}

func TestValidate_ToolDeclarations(t *testing.T) {
	tests := []struct {
		name    string
		tool    Tool
		wantErr string
	}{
		{
			name:    "missing version",
			tool:    Tool{Binary: "gzip"},
			wantErr: "version is required",
		},
		{
			name:    "neither binary nor image",
			tool:    Tool{Version: "1.0"},
			wantErr: "one of binary or image is required",
		},
		{
			name:    "both binary and image",
			tool:    Tool{Binary: "gzip", Image: "gzip:latest", Version: "1.0"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "bad timeout",
			tool:    Tool{Binary: "gzip", Version: "1.0", Timeout: "soon"},
			wantErr: "invalid timeout",
		},
		{
			name: "valid subprocess tool",
			tool: Tool{Binary: "gzip", Version: "1.0", Timeout: "30s"},
		},
		{
			name: "valid container tool",
			tool: Tool{Image: "lab/tool:1", Version: "1.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tool.Validate("mytool")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "mytool")
		})
	}
}

func TestValidate_StageDeclarations(t *testing.T) {
	tools := map[string]Tool{"gzip": {Binary: "gzip", Version: "1"}}

	tests := []struct {
		name    string
		stage   Stage
		wantErr string
	}{
		{
			name:    "unknown tool",
			stage:   Stage{Name: "unzip", Tool: "nope"},
			wantErr: "unknown tool 'nope'",
		},
		{
			name:    "missing tool",
			stage:   Stage{Name: "unzip"},
			wantErr: "tool is required",
		},
		{
			name:    "absolute stdout path",
			stage:   Stage{Name: "unzip", Tool: "gzip", Stdout: "/tmp/out.txt"},
			wantErr: "stdout must be workspace-relative",
		},
		{
			name: "output with neither path nor glob",
			stage: Stage{Name: "unzip", Tool: "gzip",
				Produces: []Output{{Name: "raw"}}},
			wantErr: "one of path or glob is required",
		},
		{
			name: "output with both path and glob",
			stage: Stage{Name: "unzip", Tool: "gzip",
				Produces: []Output{{Name: "raw", Path: "a", Glob: "b*"}}},
			wantErr: "mutually exclusive",
		},
		{
			name: "absolute output path",
			stage: Stage{Name: "unzip", Tool: "gzip",
				Produces: []Output{{Name: "raw", Path: "/etc/raw"}}},
			wantErr: "workspace-relative",
		},
		{
			name: "invalid lifetime",
			stage: Stage{Name: "unzip", Tool: "gzip",
				Produces: []Output{{Name: "raw", Path: "raw.dat", Lifetime: "forever"}}},
			wantErr: "invalid lifetime",
		},
		{
			name: "duplicate outputs",
			stage: Stage{Name: "unzip", Tool: "gzip",
				Produces: []Output{{Name: "raw", Path: "a"}, {Name: "raw", Path: "b"}}},
			wantErr: "duplicate output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stage.Validate("anat", tools)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_PipelineDeclarations(t *testing.T) {
	tools := map[string]Tool{"gzip": {Binary: "gzip", Version: "1"}}
	stage := Stage{Name: "s", Tool: "gzip"}

	tests := []struct {
		name     string
		pipeline Pipeline
		wantErr  string
	}{
		{
			name:     "no stages",
			pipeline: Pipeline{},
			wantErr:  "no stages defined",
		},
		{
			name: "duplicate stage names",
			pipeline: Pipeline{Stages: []Stage{
				{Name: "s", Tool: "gzip"}, {Name: "s", Tool: "gzip"},
			}},
			wantErr: "duplicate stage 's'",
		},
		{
			name: "invalid input kind",
			pipeline: Pipeline{
				Inputs: []Input{{Name: "archive", Kind: "socket"}},
				Stages: []Stage{stage},
			},
			wantErr: "invalid kind 'socket'",
		},
		{
			name: "duplicate inputs",
			pipeline: Pipeline{
				Inputs: []Input{{Name: "archive"}, {Name: "archive"}},
				Stages: []Stage{stage},
			},
			wantErr: "duplicate input",
		},
		{
			name: "duplicate options",
			pipeline: Pipeline{
				Options: []Option{{Name: "threshold"}, {Name: "threshold"}},
				Stages:  []Stage{stage},
			},
			wantErr: "duplicate option",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pipeline.Validate("anat", tools)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTool_ExecTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, (&Tool{}).ExecTimeout())
	assert.Equal(t, 45*time.Minute, (&Tool{Timeout: "45m"}).ExecTimeout())
}

func TestTool_ResolvedBinary(t *testing.T) {
	assert.Equal(t, "/usr/bin/gzip", (&Tool{Binary: "/usr/bin/gzip"}).ResolvedBinary())
	assert.Equal(t, "/opt/fsl/bin/flirt", (&Tool{Home: "/opt/fsl", Binary: "bin/flirt"}).ResolvedBinary())
	// Bare names stay bare for PATH lookup.
	assert.Equal(t, "gzip", (&Tool{Binary: "gzip"}).ResolvedBinary())
}

func TestPipeline_UsesImages(t *testing.T) {
	tools := map[string]Tool{
		"gzip":      {Binary: "gzip", Version: "1"},
		"segmenter": {Image: "lab/segmenter:5.1", Version: "5.1"},
	}

	local := Pipeline{Stages: []Stage{{Name: "a", Tool: "gzip"}}}
	assert.False(t, local.UsesImages(tools))

	mixed := Pipeline{Stages: []Stage{{Name: "a", Tool: "gzip"}, {Name: "b", Tool: "segmenter"}}}
	assert.True(t, mixed.UsesImages(tools))
}

func TestPipelineNames_Sorted(t *testing.T) {
	cfg := &WeirConfig{Pipelines: map[string]Pipeline{
		"zeta": {}, "anat": {}, "func": {},
	}}
	assert.Equal(t, []string{"anat", "func", "zeta"}, cfg.PipelineNames())
}
