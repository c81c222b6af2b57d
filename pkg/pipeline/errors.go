package pipeline

import (
	"errors"
	"fmt"
)

// NotFoundError reports a declared input path that does not exist or is the
// wrong kind of filesystem object.
type NotFoundError struct {
	Path string // The path that was checked
	Kind string // What was expected there: "file" or "directory"
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Path)
}

// ValidationError reports a malformed invocation: bad flags, bad
// configuration, missing inputs, or an inconsistent stage declaration. It is
// always raised before the workspace is touched, so a validation failure has
// no side effects at all.
type ValidationError struct {
	Err error // Underlying cause
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid invocation: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// WorkspaceError reports a filesystem failure while erasing, creating, or
// probing the per-subject workspace. No stages have executed when it is
// raised.
type WorkspaceError struct {
	Path string // The workspace path involved
	Err  error  // Underlying cause
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s: %v", e.Path, e.Err)
}

func (e *WorkspaceError) Unwrap() error {
	return e.Err
}

// StageExecutionError reports the failure of one stage. It aborts the
// remaining pipeline immediately; artefacts already written are left on disk
// for inspection.
type StageExecutionError struct {
	Stage string // Name of the failing stage
	Err   error  // Underlying cause, typically the tool's exit error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage '%s' failed: %v", e.Stage, e.Err)
}

func (e *StageExecutionError) Unwrap() error {
	return e.Err
}

// SerializationError reports a provenance document that could not be rendered
// to JSON. It can only occur after a fully successful run, so the analysis
// outputs on disk are valid even though the log write failed.
type SerializationError struct {
	Document string // Name of the document that failed to render
	Err      error  // Underlying cause from the JSON encoder
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot serialize provenance document '%s': %v", e.Document, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error is a NotFoundError.
// This allows callers to distinguish "doesn't exist" from other errors.
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// IsValidation returns true if the error is a ValidationError.
func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsWorkspace returns true if the error is a WorkspaceError.
func IsWorkspace(err error) bool {
	var workspaceErr *WorkspaceError
	return errors.As(err, &workspaceErr)
}

// IsStageExecution returns true if the error is a StageExecutionError.
func IsStageExecution(err error) bool {
	var stageErr *StageExecutionError
	return errors.As(err, &stageErr)
}

// IsSerialization returns true if the error is a SerializationError.
func IsSerialization(err error) bool {
	var serErr *SerializationError
	return errors.As(err, &serErr)
}
