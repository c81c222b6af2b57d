package docker

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys used for weir tool containers
const (
	LabelProject = "weir.project"
	LabelSubject = "weir.subject"
	LabelRunID   = "weir.run_id"
	LabelTool    = "weir.tool"
	LabelStage   = "weir.stage"
)

// BuildLabels creates the standard label set for a tool container, so
// leftover containers from interrupted runs can be found and attributed.
// All parameters are required except stage (tools can run outside a stage,
// e.g. version probes).
func BuildLabels(subject, runID, tool, stage string) map[string]string {
	labels := map[string]string{
		LabelProject: "true",
		LabelSubject: subject,
		LabelRunID:   runID,
		LabelTool:    tool,
	}

	if stage != "" {
		labels[LabelStage] = stage
	}

	return labels
}

// GenerateRunID creates a new UUID for a run.
// Each invocation of `weir run` gets a unique run ID.
func GenerateRunID() string {
	return uuid.New().String()
}

// ToolContainerName returns a unique container name for one tool invocation.
// The UUID suffix keeps retries and concurrent subjects from colliding.
func ToolContainerName(tool string) string {
	return fmt.Sprintf("weir-%s-%s", tool, uuid.New().String()[:8])
}
