// Package provenance accumulates the per-run provenance documents and
// persists them, atomically from the caller's point of view, once a run has
// fully succeeded.
package provenance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dyluth/weir/pkg/pipeline"
)

// Canonical document names. Every successful run writes these three.
const (
	DocRuntime = "runtime"
	DocInputs  = "inputs"
	DocOutputs = "outputs"
)

// indent is four spaces so the persisted documents diff cleanly in review
// tools; combined with encoding/json's sorted map keys this makes two runs
// with identical settings produce byte-identical logs.
const indent = "    "

// Recorder collects named documents during a run. Nothing touches the disk
// until Flush, so an aborted run leaves no partial provenance behind.
type Recorder struct {
	docs    map[string]pipeline.Document
	flushed bool
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{docs: make(map[string]pipeline.Document)}
}

// Record stores one named document, replacing any document previously
// recorded under the same name.
func (r *Recorder) Record(name string, doc pipeline.Document) {
	r.docs[name] = doc
}

// RecordRuntime stores the canonical runtime document.
func (r *Recorder) RecordRuntime(info RuntimeInfo) {
	r.Record(DocRuntime, info.Document())
}

// RecordInputs stores the canonical inputs document.
func (r *Recorder) RecordInputs(doc pipeline.Document) {
	r.Record(DocInputs, doc)
}

// RecordOutputs stores the canonical outputs document.
func (r *Recorder) RecordOutputs(doc pipeline.Document) {
	r.Record(DocOutputs, doc)
}

// Flush persists every recorded document as <logDir>/<name>.json with
// alphabetically sorted keys and four-space indentation, creating logDir if
// needed.
//
// All documents are rendered before anything is written: a document that
// cannot be serialized aborts the flush with a *pipeline.SerializationError
// and leaves no file behind. Callers only flush after a successful run, so by
// the time Flush can fail the analysis outputs on disk are already valid.
// Flush may be called at most once.
func (r *Recorder) Flush(logDir string) error {
	if r.flushed {
		return fmt.Errorf("provenance already flushed")
	}

	names := make([]string, 0, len(r.docs))
	for name := range r.docs {
		names = append(names, name)
	}
	sort.Strings(names)

	rendered := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := json.MarshalIndent(r.docs[name], "", indent)
		if err != nil {
			return &pipeline.SerializationError{Document: name, Err: err}
		}
		rendered[name] = append(data, '\n')
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	for _, name := range names {
		path := filepath.Join(logDir, name+".json")
		if err := os.WriteFile(path, rendered[name], 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	r.flushed = true
	return nil
}
