package toolexec

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	dockerpkg "github.com/dyluth/weir/internal/docker"
)

// DockerRunner executes tools inside containers. The workspace is
// bind-mounted read-write at its host path so every expanded argument path
// stays valid inside the container; referenced input files outside the
// workspace are bind-mounted read-only, also at their host paths.
type DockerRunner struct {
	cli *client.Client
}

// NewDockerRunner connects to the Docker daemon. The connection is verified
// eagerly so a missing daemon surfaces before any stage runs; imageTools
// names the containerised tools in that error.
func NewDockerRunner(ctx context.Context, imageTools []string) (*DockerRunner, error) {
	cli, err := dockerpkg.NewClient(ctx, imageTools)
	if err != nil {
		return nil, err
	}
	return &DockerRunner{cli: cli}, nil
}

// Close releases the client connection.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

// Run creates, starts and waits for a one-shot tool container. The image's
// entrypoint is the tool; cmd.Args become the container command. Non-zero
// exits are mapped onto errors carrying the exit code and a log tail.
func (r *DockerRunner) Run(ctx context.Context, cmd Command) error {
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mounts := []mount.Mount{
		{
			Type:   mount.TypeBind,
			Source: cmd.Dir,
			Target: cmd.Dir,
		},
	}
	for _, path := range cmd.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   path,
			Target:   path,
			ReadOnly: true,
		})
	}

	containerConfig := &container.Config{
		Image:      cmd.Image,
		Cmd:        cmd.Args,
		Env:        cmd.Env,
		WorkingDir: cmd.Dir,
		Labels:     cmd.Labels,
	}
	hostConfig := &container.HostConfig{
		Mounts:     mounts,
		AutoRemove: false, // We manage cleanup explicitly so logs survive until read
	}

	containerName := dockerpkg.ToolContainerName(cmd.Tool)
	resp, err := r.cli.ContainerCreate(execCtx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return fmt.Errorf("failed to create container for %s: %w", cmd.Tool, err)
	}
	defer r.cli.ContainerRemove(context.Background(), resp.ID, types.ContainerRemoveOptions{Force: true})

	if err := r.cli.ContainerStart(execCtx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start container for %s: %w", cmd.Tool, err)
	}

	statusCh, errCh := r.cli.ContainerWait(execCtx, resp.ID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case err := <-errCh:
		if execCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out after %s", cmd.Tool, timeout)
		}
		return fmt.Errorf("failed waiting for %s: %w", cmd.Tool, err)
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	if cmd.Stdout != "" {
		if err := r.captureStdout(resp.ID, cmd); err != nil {
			return err
		}
	}

	if exitCode != 0 {
		tail := r.logTail(resp.ID)
		if tail != "" {
			return fmt.Errorf("%s exited with code %d: %s", cmd.Tool, exitCode, truncate(tail, stderrTailLen))
		}
		return fmt.Errorf("%s exited with code %d", cmd.Tool, exitCode)
	}

	return nil
}

// captureStdout demultiplexes the container's stdout stream into the
// requested workspace file.
func (r *DockerRunner) captureStdout(containerID string, cmd Command) error {
	options := types.ContainerLogsOptions{
		ShowStdout: true,
	}
	reader, err := r.cli.ContainerLogs(context.Background(), containerID, options)
	if err != nil {
		return fmt.Errorf("failed to read %s output: %w", cmd.Tool, err)
	}
	defer reader.Close()

	f, err := os.Create(filepath.Join(cmd.Dir, cmd.Stdout))
	if err != nil {
		return fmt.Errorf("failed to create stdout file for %s: %w", cmd.Tool, err)
	}
	defer f.Close()

	// Docker multiplexes stdout and stderr onto one stream for non-TTY
	// containers; stdcopy strips the framing.
	if _, err := stdcopy.StdCopy(f, io.Discard, reader); err != nil {
		return fmt.Errorf("failed to capture %s output: %w", cmd.Tool, err)
	}

	return nil
}

// logTail retrieves the last container log lines for failure messages.
func (r *DockerRunner) logTail(containerID string) string {
	options := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "100", // Last 100 lines
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reader, err := r.cli.ContainerLogs(ctx, containerID, options)
	if err != nil {
		return fmt.Sprintf("(failed to retrieve logs: %v)", err)
	}
	defer reader.Close()

	logs, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Sprintf("(failed to read logs: %v)", err)
	}

	return string(logs)
}
