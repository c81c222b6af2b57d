package scaffold

import (
	"fmt"
	"os"
)

// CheckExisting checks if weir.yml or samples/ directory already exist
// Returns an error if they do, nil otherwise
func CheckExisting() error {
	var existingFiles []string

	// Check for weir.yml
	if _, err := os.Stat("weir.yml"); err == nil {
		existingFiles = append(existingFiles, "weir.yml")
	}

	// Check for samples/ directory
	if info, err := os.Stat("samples"); err == nil && info.IsDir() {
		existingFiles = append(existingFiles, "samples/")
	}

	if len(existingFiles) > 0 {
		errMsg := "project already initialized\n\nFound existing"
		if len(existingFiles) == 1 {
			errMsg += fmt.Sprintf(": %s", existingFiles[0])
		} else {
			errMsg += " files:\n"
			for _, file := range existingFiles {
				errMsg += fmt.Sprintf("  - %s\n", file)
			}
		}
		errMsg += "\nUse 'weir init --force' to reinitialize (this will overwrite existing configuration)"

		return fmt.Errorf("%s", errMsg)
	}

	return nil
}
