package pipeline

// Document is one provenance record: a finite tree of JSON-compatible values
// (strings, numbers, booleans, nested maps and slices). encoding/json renders
// map keys in sorted order, which is what makes the persisted documents
// deterministic and diffable across runs.
type Document map[string]any

// RunStatus is the overall verdict on one pipeline run.
type RunStatus string

const (
	// RunSucceeded means every stage completed.
	RunSucceeded RunStatus = "succeeded"

	// RunFailed means a stage failed and the remaining stages were skipped.
	RunFailed RunStatus = "failed"
)

// RunResult reports the outcome of one pipeline run.
type RunResult struct {
	Status      RunStatus // Overall verdict
	FailedStage string    // Name of the failing stage when Status is RunFailed
	Err         error     // The StageExecutionError when Status is RunFailed
	Outputs     Document  // Persistent artefact name to path(s); nil on failure
}
