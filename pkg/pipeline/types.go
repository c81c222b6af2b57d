package pipeline

import (
	"context"
	"fmt"
)

// Lifetime classifies how long an artefact survives inside the workspace.
type Lifetime string

const (
	// LifetimePersistent marks artefacts that survive the run and are listed
	// in the final outputs document.
	LifetimePersistent Lifetime = "persistent"

	// LifetimeTransient marks intermediate artefacts that are deleted as soon
	// as the last stage that consumes them has completed.
	LifetimeTransient Lifetime = "transient"
)

// OutputSpec declares one artefact a stage promises to produce.
type OutputSpec struct {
	Name     string   // Artefact name, unique across the whole pipeline
	Lifetime Lifetime // Lifetime class; empty defaults to persistent
	List     bool     // True when the artefact resolves to a list of paths
}

// Class returns the effective lifetime, defaulting to persistent.
func (o OutputSpec) Class() Lifetime {
	if o.Lifetime == "" {
		return LifetimePersistent
	}
	return o.Lifetime
}

// Artefact is a named filesystem work product registered during a run.
// Non-list artefacts carry exactly one path; list artefacts carry one or more.
type Artefact struct {
	Name     string   // Artefact name within the run's namespace
	Paths    []string // Absolute paths of the files backing this artefact
	Lifetime Lifetime // Lifetime class assigned at registration
	List     bool     // True when the artefact is a list of paths
	Stage    string   // Name of the producing stage; empty for seeded run inputs
}

// Path returns the single backing path of a non-list artefact. For list
// artefacts it returns the first path; callers that care about the full set
// must read Paths directly.
func (a Artefact) Path() string {
	if len(a.Paths) == 0 {
		return ""
	}
	return a.Paths[0]
}

// Validate checks that the artefact is structurally complete.
func (a Artefact) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("artefact: name is required")
	}
	if len(a.Paths) == 0 {
		return fmt.Errorf("artefact '%s': at least one path is required", a.Name)
	}
	if !a.List && len(a.Paths) != 1 {
		return fmt.Errorf("artefact '%s': single artefact carries %d paths", a.Name, len(a.Paths))
	}
	switch a.Lifetime {
	case LifetimePersistent, LifetimeTransient:
		return nil
	default:
		return fmt.Errorf("artefact '%s': invalid lifetime '%s'", a.Name, a.Lifetime)
	}
}

// Request is what the orchestrator hands to a stage executor: the workspace
// the stage must confine its writes to, the subject being processed, and every
// artefact the stage declared as consumed, fully resolved.
type Request struct {
	Workspace string              // Absolute path of the per-subject workspace
	Subject   string              // Subject identifier for this run
	Inputs    map[string]Artefact // Consumed artefacts keyed by artefact name
}

// Executor runs one stage's external tool. The returned map must contain one
// entry per declared output, keyed by output name, each value holding the
// produced path(s). Implementations are opaque to the orchestrator: any error
// is treated uniformly as stage failure, with no retries.
type Executor interface {
	Exec(ctx context.Context, req Request) (map[string][]string, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) (map[string][]string, error)

// Exec implements Executor.
func (f ExecutorFunc) Exec(ctx context.Context, req Request) (map[string][]string, error) {
	return f(ctx, req)
}

// Stage is one ordered unit of work: a declared contract from consumed
// artefacts to produced artefacts, fulfilled by an executor.
type Stage struct {
	Name     string       // Stage name, unique within the pipeline
	Consumes []string     // Names of run inputs or earlier outputs this stage reads
	Produces []OutputSpec // Artefacts this stage promises to produce
	Exec     Executor     // The tool invocation behind this stage
}

// Validate checks that a single stage declaration is well-formed. Cross-stage
// rules (name collisions, unresolved consumes) are checked by the
// orchestrator, which sees the whole sequence.
func (s Stage) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("stage: name is required")
	}
	seen := make(map[string]bool, len(s.Produces))
	for _, out := range s.Produces {
		if out.Name == "" {
			return fmt.Errorf("stage '%s': output name is required", s.Name)
		}
		if seen[out.Name] {
			return fmt.Errorf("stage '%s': duplicate output '%s'", s.Name, out.Name)
		}
		seen[out.Name] = true
		switch out.Lifetime {
		case "", LifetimePersistent, LifetimeTransient:
		default:
			return fmt.Errorf("stage '%s': output '%s' has invalid lifetime '%s'", s.Name, out.Name, out.Lifetime)
		}
	}
	return nil
}
