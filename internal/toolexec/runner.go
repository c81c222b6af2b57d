// Package toolexec invokes external analysis tools, either as host
// subprocesses or inside containers, with timeouts and bounded output
// capture. It knows nothing about stages or artefacts: it receives a fully
// resolved command and reports whether the tool succeeded.
package toolexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	// DefaultTimeout bounds one tool invocation when the command carries
	// none. Analysis tools can legitimately run for a long time.
	DefaultTimeout = 1 * time.Hour

	// maxOutputSize is the maximum number of bytes captured from tool
	// stdout/stderr when not redirected to a file (10MB)
	maxOutputSize = 10 * 1024 * 1024

	// stderrTailLen is how much captured stderr makes it into error messages
	stderrTailLen = 500
)

// Command is one fully resolved external tool invocation. All paths are
// absolute except Stdout, which is relative to Dir.
type Command struct {
	Tool    string            // Tool name, for error messages
	Path    string            // Executable path (subprocess mode)
	Image   string            // Container image reference (container mode)
	Args    []string          // Arguments, already expanded
	Env     []string          // Extra KEY=VALUE entries on top of the base environment
	Dir     string            // Working directory: the subject's workspace
	Stdout  string            // Optional file, relative to Dir, capturing the tool's stdout
	Mounts  []string          // Extra read-only bind paths (container mode only)
	Labels  map[string]string // Container labels (container mode only)
	Timeout time.Duration     // Zero means DefaultTimeout
}

// Runner executes prepared tool commands. Implementations must treat the
// workspace in Dir as the only writable location.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// LocalRunner executes tools as subprocesses on the host.
type LocalRunner struct{}

// Run starts the tool, waits for it, and maps any non-zero exit onto an
// error carrying the exit code and a stderr tail. Output is capped so a
// chatty tool cannot exhaust memory.
func (LocalRunner) Run(ctx context.Context, cmd Command) error {
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proc := exec.CommandContext(execCtx, cmd.Path, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = append(os.Environ(), cmd.Env...)

	stderrBuf := &bytes.Buffer{}
	proc.Stderr = &limitedWriter{w: stderrBuf, limit: maxOutputSize}

	var stdoutFile *os.File
	if cmd.Stdout != "" {
		f, err := os.Create(filepath.Join(cmd.Dir, cmd.Stdout))
		if err != nil {
			return fmt.Errorf("failed to create stdout file for %s: %w", cmd.Tool, err)
		}
		stdoutFile = f
		proc.Stdout = f
	} else {
		proc.Stdout = &limitedWriter{w: io.Discard, limit: maxOutputSize}
	}

	err := proc.Run()

	if stdoutFile != nil {
		if closeErr := stdoutFile.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to flush stdout file: %w", closeErr)
		}
	}

	if err == nil {
		return nil
	}

	if execCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s timed out after %s", cmd.Tool, timeout)
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		tail := truncate(stderrBuf.String(), stderrTailLen)
		if tail != "" {
			return fmt.Errorf("%s exited with code %d: %s", cmd.Tool, exitErr.ExitCode(), tail)
		}
		return fmt.Errorf("%s exited with code %d", cmd.Tool, exitErr.ExitCode())
	}

	return fmt.Errorf("failed to start %s: %w", cmd.Tool, err)
}

// limitedWriter caps how many bytes reach the underlying writer; writes past
// the limit are silently discarded so the process never blocks.
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		// Already hit limit, discard this write
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
	}

	n, err = lw.w.Write(toWrite)
	lw.written += n
	return len(p), err // Return len(p) to satisfy the writer interface
}

// truncate limits a string to maxLen characters, appending "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
