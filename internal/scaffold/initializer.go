package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/weir/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the weir project structure
// If force is true, it will remove existing weir.yml and samples/ directory
func Initialize(force bool) error {
	// Handle --force flag
	if force {
		if err := handleForce(); err != nil {
			return err
		}
	}

	// Get template files
	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	// Create directories
	if err := createDirectories(); err != nil {
		return err
	}

	// Write files
	if err := writeFiles(files); err != nil {
		return err
	}

	// Validate created files
	if err := validateCreatedFiles(); err != nil {
		return err
	}

	return nil
}

// handleForce removes existing files if --force was specified
func handleForce() error {
	// Remove weir.yml if it exists
	if _, err := os.Stat("weir.yml"); err == nil {
		fmt.Println("⚠️  Removing existing weir.yml...")
		if err := os.Remove("weir.yml"); err != nil {
			return fmt.Errorf("failed to remove weir.yml: %w", err)
		}
	}

	// Remove samples/ directory if it exists
	if info, err := os.Stat("samples"); err == nil && info.IsDir() {
		fmt.Println("⚠️  Removing existing samples/ directory...")
		if err := os.RemoveAll("samples"); err != nil {
			return fmt.Errorf("failed to remove samples/ directory: %w", err)
		}
	}

	return nil
}

// getTemplateFiles reads and processes all template files
func getTemplateFiles() ([]FileInfo, error) {
	files := []FileInfo{}

	// weir.yml
	weirYml, err := templatesFS.ReadFile("templates/weir.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read weir.yml template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        "weir.yml",
		Content:     weirYml,
		Permissions: 0644,
	})

	// samples/make-input.sh
	makeInput, err := templatesFS.ReadFile("templates/make-input.sh.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read make-input.sh template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        filepath.Join("samples", "make-input.sh"),
		Content:     makeInput,
		Permissions: 0755, // Executable
	})

	// samples/README.md
	readme, err := templatesFS.ReadFile("templates/README.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read README.md template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        filepath.Join("samples", "README.md"),
		Content:     readme,
		Permissions: 0644,
	})

	return files, nil
}

// createDirectories creates the necessary directory structure
func createDirectories() error {
	dirs := []string{
		"samples",
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// writeFiles writes all template files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles validates that created files are correct
func validateCreatedFiles() error {
	// The created weir.yml must load through the same path 'weir run' uses
	if _, err := config.Load("weir.yml"); err != nil {
		return fmt.Errorf("created weir.yml is not valid: %w", err)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized weir project!")
	fmt.Println("\nCreated:")
	fmt.Println("  ✓ weir.yml")
	fmt.Println("  ✓ samples/make-input.sh")
	fmt.Println("  ✓ samples/README.md")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Create a demo input: ./samples/make-input.sh")
	fmt.Println("  2. Run it: weir run demo --subject sample-01 --out ./out --input archive=sample.txt.gz")
	fmt.Println("  3. Edit weir.yml to describe your own tools and pipelines")
	fmt.Println("\nFor more information, visit: https://github.com/dyluth/weir")
}
