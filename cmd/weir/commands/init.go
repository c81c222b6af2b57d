package commands

import (
	"fmt"

	"github.com/dyluth/weir/internal/printer"
	"github.com/dyluth/weir/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new weir project",
	Long: `Initialize a new weir project with a runnable demo configuration.

Creates:
  • weir.yml - Tool and pipeline configuration file
  • samples/ - Helper script and notes for the demo pipeline

The demo pipeline only needs gzip and wc, so it runs anywhere.

Use --force to reinitialize an existing project (WARNING: destroys existing configuration).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force reinitialization (removes existing weir.yml and samples/)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	// Check for existing files (unless --force)
	if !forceInit {
		if err := scaffold.CheckExisting(); err != nil {
			return printer.Error(
				"initialization aborted",
				err.Error(),
				nil,
			)
		}
	}

	// Initialize the project
	if err := scaffold.Initialize(forceInit); err != nil {
		return printer.Error(
			"initialization failed",
			fmt.Sprintf("Error: %v", err),
			nil,
		)
	}

	// Print success message
	scaffold.PrintSuccess()

	return nil
}
