// Package workspace manages the per-subject working directory that isolates
// one run's artefacts from every other subject under the same output root.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/dyluth/weir/pkg/pipeline"
)

const (
	// MaxSubjectIDLength is the maximum length for a subject identifier.
	// Subject ids become directory and container names, so they stay short.
	MaxSubjectIDLength = 128

	// LogsDirName is the directory inside the workspace that holds the
	// provenance documents.
	LogsDirName = "logs"
)

var (
	// SubjectIDPattern is the regex pattern for valid subject identifiers.
	// Must start with an alphanumeric; dots, underscores and hyphens are
	// allowed afterwards. This keeps ids safe as directory and container
	// name components.
	SubjectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// ValidateSubjectID checks if a subject identifier is safe to use as a
// workspace directory name.
func ValidateSubjectID(subject string) error {
	if subject == "" {
		return fmt.Errorf("subject id cannot be empty")
	}

	if len(subject) > MaxSubjectIDLength {
		return fmt.Errorf("subject id too long: %d characters (max: %d)", len(subject), MaxSubjectIDLength)
	}

	if !SubjectIDPattern.MatchString(subject) {
		return fmt.Errorf("invalid subject id '%s': must be alphanumeric with dots, underscores or hyphens (not at start)", subject)
	}

	return nil
}

// Workspace is one subject's working directory under the output root. Every
// stage of a run reads and writes inside it and nowhere else.
type Workspace struct {
	Root    string // Output root shared by all subjects
	Subject string // Subject identifier, already validated
}

// Path returns the effective working directory, always Root/Subject.
func (w *Workspace) Path() string {
	return filepath.Join(w.Root, w.Subject)
}

// LogsDir returns the provenance log directory inside the workspace. It is
// created lazily by the provenance recorder, not by Prepare, so a failed run
// never leaves an empty logs directory behind.
func (w *Workspace) LogsDir() string {
	return filepath.Join(w.Path(), LogsDirName)
}

// Prepare makes the workspace ready for a run: it optionally erases any
// pre-existing directory, creates the directory if needed, and probes that it
// is writable. With erase false, Prepare is idempotent and leaves existing
// content untouched. Every filesystem failure is reported as a
// *pipeline.WorkspaceError; when Prepare fails, no stage has run and no
// provenance has been written.
func Prepare(root, subject string, erase bool) (*Workspace, error) {
	if err := ValidateSubjectID(subject); err != nil {
		return nil, &pipeline.ValidationError{Err: err}
	}

	ws := &Workspace{Root: root, Subject: subject}
	path := ws.Path()

	if erase {
		if err := os.RemoveAll(path); err != nil {
			return nil, &pipeline.WorkspaceError{Path: path, Err: fmt.Errorf("failed to erase previous workspace: %w", err)}
		}
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, &pipeline.WorkspaceError{Path: path, Err: fmt.Errorf("failed to create workspace: %w", err)}
	}

	// Probe writability up front so the run fails here, not halfway through
	// the first stage.
	probe, err := os.CreateTemp(path, ".weir-probe-*")
	if err != nil {
		return nil, &pipeline.WorkspaceError{Path: path, Err: fmt.Errorf("workspace is not writable: %w", err)}
	}
	probeName := probe.Name()
	if err := probe.Close(); err != nil {
		return nil, &pipeline.WorkspaceError{Path: path, Err: fmt.Errorf("workspace is not writable: %w", err)}
	}
	if err := os.Remove(probeName); err != nil {
		return nil, &pipeline.WorkspaceError{Path: path, Err: fmt.Errorf("failed to remove probe file: %w", err)}
	}

	return ws, nil
}

// Erase removes one subject's workspace entirely. It returns true when a
// workspace existed and was removed, false when there was nothing to remove.
func Erase(root, subject string) (bool, error) {
	if err := ValidateSubjectID(subject); err != nil {
		return false, &pipeline.ValidationError{Err: err}
	}

	ws := &Workspace{Root: root, Subject: subject}
	path := ws.Path()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &pipeline.WorkspaceError{Path: path, Err: err}
	}

	if err := os.RemoveAll(path); err != nil {
		return false, &pipeline.WorkspaceError{Path: path, Err: fmt.Errorf("failed to erase workspace: %w", err)}
	}

	return true, nil
}
