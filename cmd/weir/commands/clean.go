package commands

import (
	"path/filepath"

	"github.com/dyluth/weir/internal/printer"
	"github.com/dyluth/weir/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	cleanSubject string
	cleanOutRoot string
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Erase a subject's workspace",
	Long: `Erase the workspace for one subject under the output root, including
every artefact and provenance document in it.

The removal is immediate and unrecoverable; there is no confirmation
prompt. Cleaning a subject that has no workspace is not an error.

Examples:
  weir clean --subject sample-01 --out ./out`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().StringVarP(&cleanSubject, "subject", "s", "", "Subject identifier (required)")
	cleanCmd.Flags().StringVarP(&cleanOutRoot, "out", "o", "", "Output root directory (required)")
	cleanCmd.MarkFlagRequired("subject")
	cleanCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	if err := workspace.ValidateSubjectID(cleanSubject); err != nil {
		return printer.Error("invalid invocation", err.Error(), nil)
	}
	outRoot, err := filepath.Abs(cleanOutRoot)
	if err != nil {
		return printer.Error("invalid invocation", err.Error(), nil)
	}

	removed, err := workspace.Erase(outRoot, cleanSubject)
	if err != nil {
		return printer.ErrorWithContext(
			"failed to erase workspace",
			err.Error(),
			map[string]string{
				"Subject":     cleanSubject,
				"Output root": outRoot,
			},
			nil,
		)
	}

	if removed {
		printer.Success("removed workspace %s\n", filepath.Join(outRoot, cleanSubject))
	} else {
		printer.Info("no workspace for subject '%s' under %s, nothing to do\n", cleanSubject, outRoot)
	}

	return nil
}
