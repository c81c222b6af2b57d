package commands

import (
	"fmt"
	"strings"

	"github.com/dyluth/weir/internal/assemble"
	"github.com/dyluth/weir/internal/config"
	"github.com/dyluth/weir/internal/printer"
	"github.com/dyluth/weir/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	checkConfigPath string
	checkSubject    string
	checkInputs     []string
	checkOptions    []string
)

var checkCmd = &cobra.Command{
	Use:   "check [PIPELINE]",
	Short: "Validate configuration and pipelines without running anything",
	Long: `Validate everything 'weir run' would check before touching the workspace.

Without arguments, the configuration file and every declared pipeline are
validated statically: tool references, placeholder grammar, consume and
produce consistency, stage ordering.

With a PIPELINE argument plus --subject / --input / --opt, the full
invocation is validated too: input paths must exist and be of the declared
kind, options must be declared, the subject identifier must be valid.

Nothing is created, so check never needs a Docker daemon or an output
directory.

Examples:
  # Validate the whole configuration
  weir check

  # Validate one pipeline and a concrete invocation
  weir check demo --subject sample-01 --input archive=sample.txt.gz`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkConfigPath, "config", "c", "weir.yml", "Configuration file")
	checkCmd.Flags().StringVarP(&checkSubject, "subject", "s", "", "Subject identifier to validate")
	checkCmd.Flags().StringArrayVar(&checkInputs, "input", nil, "Run input as name=PATH (repeatable)")
	checkCmd.Flags().StringArrayVar(&checkOptions, "opt", nil, "Pipeline option as name=VALUE (repeatable)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(checkConfigPath)
	if err != nil {
		return printer.Error(
			"configuration not found or invalid",
			fmt.Sprintf("Could not load %s: %v", checkConfigPath, err),
			[]string{"Initialize a project in this directory:\n  weir init"},
		)
	}
	printer.Success("%s is valid\n", checkConfigPath)

	names := cfg.PipelineNames()
	if len(args) == 1 {
		names = args[:1]
	} else if len(checkInputs) > 0 || len(checkOptions) > 0 {
		return printer.Error(
			"invalid invocation",
			"--input and --opt need a single PIPELINE argument to validate against.",
			[]string{fmt.Sprintf("Name the pipeline:\n  weir check <pipeline> %s", strings.Join(checkArgsSummary(), " "))},
		)
	}

	for _, name := range names {
		plan, err := assemble.Stages(cfg, name)
		if err != nil {
			return printer.Error(
				fmt.Sprintf("pipeline '%s' is invalid", name),
				err.Error(),
				nil,
			)
		}
		detail := fmt.Sprintf("%d stages: %s", len(plan.StageNames()), strings.Join(plan.StageNames(), " → "))
		if plan.NeedsDocker() {
			detail += " (needs Docker)"
		}
		printer.Success("pipeline '%s': %s\n", name, detail)
	}

	if checkSubject != "" {
		if err := workspace.ValidateSubjectID(checkSubject); err != nil {
			return printer.Error("invalid invocation", err.Error(), nil)
		}
		printer.Success("subject '%s' is valid\n", checkSubject)
	}

	if len(checkInputs) > 0 || len(checkOptions) > 0 {
		inputs, err := parsePairs(checkInputs, "input")
		if err != nil {
			return printer.Error("invalid invocation", err.Error(), nil)
		}
		options, err := parsePairs(checkOptions, "opt")
		if err != nil {
			return printer.Error("invalid invocation", err.Error(), nil)
		}
		if _, _, err := assemble.Invocation(cfg.Pipelines[names[0]], inputs, options); err != nil {
			return printer.Error("invalid invocation", err.Error(), nil)
		}
		printer.Success("invocation for pipeline '%s' is valid\n", names[0])
	}

	return nil
}

// checkArgsSummary reconstructs the caller's input/option flags for the error
// suggestion.
func checkArgsSummary() []string {
	var parts []string
	for _, pair := range checkInputs {
		parts = append(parts, "--input "+pair)
	}
	for _, pair := range checkOptions {
		parts = append(parts, "--opt "+pair)
	}
	return parts
}
