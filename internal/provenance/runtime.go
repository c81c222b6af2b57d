package provenance

import (
	"runtime"
	"time"

	"github.com/dyluth/weir/pkg/pipeline"
)

// ToolInfo describes one resolved external tool for the runtime document.
type ToolInfo struct {
	Version string // Version string declared in configuration, reported verbatim
	Binary  string // Resolved executable path for subprocess tools
	Image   string // Container image reference for containerised tools
	Home    string // Install root when one is configured
}

// RuntimeInfo captures the identity of the software that performed a run.
// Every field is populated explicitly by the component that owns it; nothing
// is scraped from ambient state, so the document stays honest when weir is
// embedded somewhere unusual.
type RuntimeInfo struct {
	Version    string              // weir version
	Commit     string              // Build commit
	BuiltAt    string              // Build date
	RunID      string              // Unique id for this invocation
	Pipeline   string              // Pipeline name being run
	ConfigPath string              // Resolved configuration file path
	StartedAt  time.Time           // When the run began
	Tools      map[string]ToolInfo // Resolved tool inventory, keyed by tool name
}

// Document renders the runtime info as a provenance document. The Go runtime
// version stands in for the execution environment's backing library.
func (i RuntimeInfo) Document() pipeline.Document {
	doc := pipeline.Document{
		"built_at":     i.BuiltAt,
		"commit":       i.Commit,
		"config_path":  i.ConfigPath,
		"go_version":   runtime.Version(),
		"pipeline":     i.Pipeline,
		"run_id":       i.RunID,
		"started_at":   i.StartedAt.UTC().Format(time.RFC3339),
		"weir_version": i.Version,
	}

	if len(i.Tools) > 0 {
		tools := make(map[string]any, len(i.Tools))
		for name, tool := range i.Tools {
			entry := map[string]any{"version": tool.Version}
			if tool.Binary != "" {
				entry["binary"] = tool.Binary
			}
			if tool.Image != "" {
				entry["image"] = tool.Image
			}
			if tool.Home != "" {
				entry["home"] = tool.Home
			}
			tools[name] = entry
		}
		doc["tools"] = tools
	}

	return doc
}
