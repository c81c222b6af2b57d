package orchestrator

import (
	"os"

	"github.com/dyluth/weir/pkg/pipeline"
)

// tracker owns transient artefact lifetimes for one run. From the declared
// stage list it derives, per artefact name, the index of the last stage that
// consumes it; once that stage completes, the artefact's files are deleted
// from the workspace. Persistent artefacts are never touched.
//
// A transient artefact nothing consumes is released as soon as its producing
// stage completes. Deletion failures are logged through the event sink and
// never escalated: a release is best-effort bookkeeping, not part of the
// analysis.
type tracker struct {
	lastConsumer map[string]int
	releaseAt    map[string]int
	live         map[string]pipeline.Artefact
	log          EventLog
}

func newTracker(stages []pipeline.Stage, log EventLog) *tracker {
	last := make(map[string]int)
	for i, stage := range stages {
		for _, name := range stage.Consumes {
			last[name] = i
		}
	}
	return &tracker{
		lastConsumer: last,
		releaseAt:    make(map[string]int),
		live:         make(map[string]pipeline.Artefact),
		log:          log,
	}
}

// Register records a freshly produced artefact. Only transient artefacts need
// tracking: their release point is the last consuming stage, or the producing
// stage itself when nothing consumes them.
func (t *tracker) Register(artefact pipeline.Artefact, producedAt int) {
	if artefact.Lifetime != pipeline.LifetimeTransient {
		return
	}

	releaseAt := producedAt
	if last, ok := t.lastConsumer[artefact.Name]; ok && last > releaseAt {
		releaseAt = last
	}

	t.releaseAt[artefact.Name] = releaseAt
	t.live[artefact.Name] = artefact
}

// ReleaseAfter deletes every live transient artefact whose last consumer is
// the stage that just completed (or an earlier one). Each artefact gets
// exactly one release attempt.
func (t *tracker) ReleaseAfter(stageIndex int) {
	for name, artefact := range t.live {
		if t.releaseAt[name] > stageIndex {
			continue
		}
		t.release(name, artefact)
	}
}

func (t *tracker) release(name string, artefact pipeline.Artefact) {
	delete(t.live, name)

	failed := 0
	for _, path := range artefact.Paths {
		if err := os.Remove(path); err != nil {
			failed++
			t.log("release_failed", map[string]any{
				"artefact": name,
				"path":     path,
				"error":    err.Error(),
			})
		}
	}

	if failed < len(artefact.Paths) {
		t.log("artefact_released", map[string]any{
			"artefact": name,
			"stage":    artefact.Stage,
			"paths":    len(artefact.Paths) - failed,
		})
	}
}

// Live returns the number of transient artefacts still awaiting release.
func (t *tracker) Live() int {
	return len(t.live)
}
