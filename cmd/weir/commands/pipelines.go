package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dyluth/weir/internal/config"
	"github.com/dyluth/weir/internal/printer"
	"github.com/spf13/cobra"
)

var (
	pipelinesConfigPath string
	pipelinesJSON       bool
)

// pipelineInfo is one row of the listing.
type pipelineInfo struct {
	Name        string   `json:"name"`
	Stages      []string `json:"stages"`
	Inputs      []string `json:"inputs"`
	Options     []string `json:"options,omitempty"`
	NeedsDocker bool     `json:"needs_docker"`
	Description string   `json:"description,omitempty"`
}

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "List the configured pipelines",
	Long: `List every pipeline declared in the configuration file.

For each pipeline, displays:
  • Name and description
  • Stages in execution order
  • Declared inputs
  • Whether a Docker daemon is needed

Use --json for machine-readable output.`,
	RunE: runPipelines,
}

func init() {
	pipelinesCmd.Flags().StringVarP(&pipelinesConfigPath, "config", "c", "weir.yml", "Configuration file")
	pipelinesCmd.Flags().BoolVar(&pipelinesJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(pipelinesCmd)
}

func runPipelines(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(pipelinesConfigPath)
	if err != nil {
		return printer.Error(
			"configuration not found or invalid",
			fmt.Sprintf("Could not load %s: %v", pipelinesConfigPath, err),
			[]string{"Initialize a project in this directory:\n  weir init"},
		)
	}

	var infos []pipelineInfo
	for _, name := range cfg.PipelineNames() {
		p := cfg.Pipelines[name]

		stages := make([]string, 0, len(p.Stages))
		for _, stage := range p.Stages {
			stages = append(stages, stage.Name)
		}
		inputs := make([]string, 0, len(p.Inputs))
		for _, in := range p.Inputs {
			inputs = append(inputs, in.Name)
		}
		options := make([]string, 0, len(p.Options))
		for _, opt := range p.Options {
			options = append(options, opt.Name)
		}

		infos = append(infos, pipelineInfo{
			Name:        name,
			Stages:      stages,
			Inputs:      inputs,
			Options:     options,
			NeedsDocker: p.UsesImages(cfg.Tools),
			Description: p.Description,
		})
	}

	if len(infos) == 0 {
		if pipelinesJSON {
			fmt.Println("[]")
		} else {
			fmt.Println("No pipelines configured.")
		}
		return nil
	}

	if pipelinesJSON {
		outputPipelinesJSON(infos)
	} else {
		outputPipelinesTable(infos)
	}

	return nil
}

func outputPipelinesJSON(infos []pipelineInfo) {
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func outputPipelinesTable(infos []pipelineInfo) {
	// Print header
	fmt.Printf("%-15s %-7s %-25s %-7s %s\n", "PIPELINE", "STAGES", "INPUTS", "DOCKER", "DESCRIPTION")

	// Print rows
	for _, info := range infos {
		inputs := strings.Join(info.Inputs, ", ")
		if inputs == "" {
			inputs = "-"
		}
		if len(inputs) > 25 {
			inputs = inputs[:22] + "..."
		}

		docker := "no"
		if info.NeedsDocker {
			docker = "yes"
		}

		description := info.Description
		if len(description) > 40 {
			description = description[:37] + "..."
		}

		fmt.Printf("%-15s %-7d %-25s %-7s %s\n", info.Name, len(info.Stages), inputs, docker, description)
	}
}
