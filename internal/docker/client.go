package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/client"
)

// NewClient creates a Docker client and verifies the daemon is reachable
// before any stage runs. imageTools names the containerised tools the caller
// is about to execute; a failed probe reports them, so the error says which
// part of the pipeline wanted Docker rather than just that a socket was
// missing. Subprocess-only pipelines never call this.
func NewClient(ctx context.Context, imageTools []string) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("Docker daemon not accessible, needed by %s: %w", describeTools(imageTools), err)
	}

	return cli, nil
}

// describeTools renders the containerised tool names for the probe error.
func describeTools(imageTools []string) string {
	switch len(imageTools) {
	case 0:
		return "containerised tools"
	case 1:
		return "containerised tool " + imageTools[0]
	}
	return "containerised tools " + strings.Join(imageTools, ", ")
}
