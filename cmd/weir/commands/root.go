package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "weir",
	Short: "Weir - Reproducible pipeline runner for external analysis tools",
	Long: `Weir runs a named subject through an ordered sequence of external
analysis tools, each stage consuming artefacts produced by earlier
stages, stopping at the first failure.

Every run gets an isolated per-subject workspace. Transient intermediate
artefacts are deleted as soon as their last consumer has finished, and a
complete provenance record (what ran, with which inputs, producing which
outputs) is written alongside the results on success.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	// e.g., "weir --subject s01" instead of "weir run demo --subject s01"
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package;
	// main prints the returned one-line summary
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
