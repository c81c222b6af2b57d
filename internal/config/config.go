package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout bounds a single tool invocation when the tool declares none.
// External analysis tools can legitimately run for a long time.
const DefaultTimeout = 1 * time.Hour

// WeirConfig represents the top-level weir.yml configuration: the external
// tool inventory plus every pipeline this project can run.
type WeirConfig struct {
	Version   string              `yaml:"version"`
	Tools     map[string]Tool     `yaml:"tools"`
	Pipelines map[string]Pipeline `yaml:"pipelines"`
}

// Tool describes one external analysis program. Exactly one of binary or
// image must be set: binary tools run as host subprocesses, image tools run
// in containers with the workspace bind-mounted.
type Tool struct {
	Home    string            `yaml:"home,omitempty"`    // Install root; relative binary paths resolve against it
	Binary  string            `yaml:"binary,omitempty"`  // Executable: absolute, home-relative, or bare for PATH lookup
	Image   string            `yaml:"image,omitempty"`   // Container image reference
	Version string            `yaml:"version"`           // Required: reported verbatim in the runtime provenance document
	Env     map[string]string `yaml:"env,omitempty"`     // Extra environment for every invocation of this tool
	Timeout string            `yaml:"timeout,omitempty"` // Go duration string, e.g. "45m"
}

// Pipeline declares one ordered stage sequence.
type Pipeline struct {
	Description string   `yaml:"description,omitempty"`
	Inputs      []Input  `yaml:"inputs,omitempty"`  // Run inputs the caller must supply
	Options     []Option `yaml:"options,omitempty"` // Tunable run parameters
	Stages      []Stage  `yaml:"stages"`
}

// Input declares one run input supplied on the command line.
type Input struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind,omitempty"` // "file" (default) or "directory"
	Description string `yaml:"description,omitempty"`
}

// Option declares one tunable run parameter.
type Option struct {
	Name        string  `yaml:"name"`
	Default     *string `yaml:"default,omitempty"` // nil means the option must be supplied
	Description string  `yaml:"description,omitempty"`
}

// Stage declares one unit of work inside a pipeline.
type Stage struct {
	Name     string            `yaml:"name"`
	Tool     string            `yaml:"tool"`
	Args     []string          `yaml:"args,omitempty"`
	Stdout   string            `yaml:"stdout,omitempty"` // Workspace-relative file capturing the tool's stdout
	Env      map[string]string `yaml:"env,omitempty"`    // Stage-level environment, overriding the tool's
	Consumes []string          `yaml:"consumes,omitempty"`
	Produces []Output          `yaml:"produces,omitempty"`
}

// Output declares one artefact a stage produces. Exactly one of path or glob
// must be set; glob outputs resolve to a list of paths after the stage runs.
type Output struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path,omitempty"`     // Workspace-relative file path
	Glob     string `yaml:"glob,omitempty"`     // Workspace-relative glob pattern
	Lifetime string `yaml:"lifetime,omitempty"` // "persistent" (default) or "transient"
}

// Validate performs strict validation on the configuration
func (c *WeirConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: at least one pipeline
	if len(c.Pipelines) == 0 {
		return fmt.Errorf("no pipelines defined")
	}

	for name, tool := range c.Tools {
		if err := tool.Validate(name); err != nil {
			return err
		}
	}

	for name, p := range c.Pipelines {
		if err := p.Validate(name, c.Tools); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks a single tool declaration
func (t *Tool) Validate(name string) error {
	// Required: version, so provenance can always name what ran
	if t.Version == "" {
		return fmt.Errorf("tool '%s': version is required", name)
	}

	// Exactly one of binary or image
	if t.Binary == "" && t.Image == "" {
		return fmt.Errorf("tool '%s': one of binary or image is required", name)
	}
	if t.Binary != "" && t.Image != "" {
		return fmt.Errorf("tool '%s': binary and image are mutually exclusive", name)
	}

	if t.Timeout != "" {
		if _, err := time.ParseDuration(t.Timeout); err != nil {
			return fmt.Errorf("tool '%s': invalid timeout '%s': %w", name, t.Timeout, err)
		}
	}

	return nil
}

// Validate checks a single pipeline declaration
func (p *Pipeline) Validate(name string, tools map[string]Tool) error {
	// Required: at least one stage
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline '%s': no stages defined", name)
	}

	inputNames := make(map[string]bool, len(p.Inputs))
	for _, in := range p.Inputs {
		if in.Name == "" {
			return fmt.Errorf("pipeline '%s': input name is required", name)
		}
		if inputNames[in.Name] {
			return fmt.Errorf("pipeline '%s': duplicate input '%s'", name, in.Name)
		}
		inputNames[in.Name] = true

		switch in.Kind {
		case "", "file", "directory":
		default:
			return fmt.Errorf("pipeline '%s': input '%s' has invalid kind '%s' (expected: file or directory)", name, in.Name, in.Kind)
		}
	}

	optionNames := make(map[string]bool, len(p.Options))
	for _, opt := range p.Options {
		if opt.Name == "" {
			return fmt.Errorf("pipeline '%s': option name is required", name)
		}
		if optionNames[opt.Name] {
			return fmt.Errorf("pipeline '%s': duplicate option '%s'", name, opt.Name)
		}
		optionNames[opt.Name] = true
	}

	stageNames := make(map[string]bool, len(p.Stages))
	for _, stage := range p.Stages {
		if err := stage.Validate(name, tools); err != nil {
			return err
		}
		if stageNames[stage.Name] {
			return fmt.Errorf("pipeline '%s': duplicate stage '%s'", name, stage.Name)
		}
		stageNames[stage.Name] = true
	}

	return nil
}

// Validate checks a single stage declaration
func (s *Stage) Validate(pipelineName string, tools map[string]Tool) error {
	if s.Name == "" {
		return fmt.Errorf("pipeline '%s': stage name is required", pipelineName)
	}

	if s.Tool == "" {
		return fmt.Errorf("pipeline '%s': stage '%s': tool is required", pipelineName, s.Name)
	}
	if _, ok := tools[s.Tool]; !ok {
		return fmt.Errorf("pipeline '%s': stage '%s': unknown tool '%s'", pipelineName, s.Name, s.Tool)
	}

	if s.Stdout != "" && filepath.IsAbs(s.Stdout) {
		return fmt.Errorf("pipeline '%s': stage '%s': stdout must be workspace-relative", pipelineName, s.Name)
	}

	outputNames := make(map[string]bool, len(s.Produces))
	for _, out := range s.Produces {
		if out.Name == "" {
			return fmt.Errorf("pipeline '%s': stage '%s': output name is required", pipelineName, s.Name)
		}
		if outputNames[out.Name] {
			return fmt.Errorf("pipeline '%s': stage '%s': duplicate output '%s'", pipelineName, s.Name, out.Name)
		}
		outputNames[out.Name] = true

		if out.Path == "" && out.Glob == "" {
			return fmt.Errorf("pipeline '%s': stage '%s': output '%s': one of path or glob is required", pipelineName, s.Name, out.Name)
		}
		if out.Path != "" && out.Glob != "" {
			return fmt.Errorf("pipeline '%s': stage '%s': output '%s': path and glob are mutually exclusive", pipelineName, s.Name, out.Name)
		}
		if filepath.IsAbs(out.Path) || filepath.IsAbs(out.Glob) {
			return fmt.Errorf("pipeline '%s': stage '%s': output '%s' must be workspace-relative", pipelineName, s.Name, out.Name)
		}

		switch out.Lifetime {
		case "", "persistent", "transient":
		default:
			return fmt.Errorf("pipeline '%s': stage '%s': output '%s' has invalid lifetime '%s' (expected: persistent or transient)",
				pipelineName, s.Name, out.Name, out.Lifetime)
		}
	}

	return nil
}

// ExecTimeout returns the tool's invocation timeout, defaulting when the
// declaration carries none. The string is validated at load time, so a parse
// failure here is a programming error.
func (t *Tool) ExecTimeout() time.Duration {
	if t.Timeout == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(t.Timeout)
	if err != nil {
		return DefaultTimeout
	}
	return d
}

// ResolvedBinary returns the executable path for a subprocess tool: absolute
// binaries pass through, relative ones resolve against home when one is set,
// and bare names are left for PATH lookup at execution time.
func (t *Tool) ResolvedBinary() string {
	if t.Binary == "" || filepath.IsAbs(t.Binary) {
		return t.Binary
	}
	if t.Home != "" {
		return filepath.Join(t.Home, t.Binary)
	}
	return t.Binary
}

// UsesImages reports whether any stage of the pipeline runs a containerised
// tool, which means a Docker daemon will be needed.
func (p *Pipeline) UsesImages(tools map[string]Tool) bool {
	for _, stage := range p.Stages {
		if tool, ok := tools[stage.Tool]; ok && tool.Image != "" {
			return true
		}
	}
	return false
}

// PipelineNames returns the declared pipeline names in sorted order, for
// error messages and listings.
func (c *WeirConfig) PipelineNames() []string {
	names := make([]string, 0, len(c.Pipelines))
	for name := range c.Pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads, parses and validates a weir.yml file
func Load(path string) (*WeirConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config WeirConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// FormatPipelineList renders the declared pipelines for "unknown pipeline"
// error suggestions.
func FormatPipelineList(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
