package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dyluth/weir/internal/config"
	"github.com/dyluth/weir/pkg/pipeline"
)

// Placeholder grammar for stage arguments, environment values and output
// paths:
//
//	${subject}       the subject identifier
//	${workspace}     the absolute workspace path
//	${input.NAME}    the resolved path of a declared run input
//	${artefact.NAME} the path of an earlier stage's output
//	${option.NAME}   a resolved option value
//
// Anything else inside ${...} is a declaration error, caught statically so a
// typo cannot survive until stage three of a long run.

type refKind string

const (
	refSubject   refKind = "subject"
	refWorkspace refKind = "workspace"
	refInput     refKind = "input"
	refArtefact  refKind = "artefact"
	refOption    refKind = "option"
)

// walkRefs finds every ${...} in s and replaces it with resolve's result.
// resolve is also how static validation hooks in: a resolver that returns the
// placeholder verbatim validates without changing anything.
func walkRefs(s string, resolve func(kind refKind, name string) (string, error)) (string, error) {
	var out strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in '%s'", s)
		}
		end += start

		out.WriteString(rest[:start])
		ref := rest[start+2 : end]
		kind, name, err := splitRef(ref)
		if err != nil {
			return "", err
		}
		value, err := resolve(kind, name)
		if err != nil {
			return "", err
		}
		out.WriteString(value)
		rest = rest[end+1:]
	}
}

func splitRef(ref string) (refKind, string, error) {
	head, name, hasName := strings.Cut(ref, ".")
	kind := refKind(head)
	switch kind {
	case refSubject, refWorkspace:
		if hasName {
			return "", "", fmt.Errorf("placeholder '${%s}' takes no name", ref)
		}
		return kind, "", nil
	case refInput, refArtefact, refOption:
		if !hasName || name == "" {
			return "", "", fmt.Errorf("placeholder '${%s}' needs a name, e.g. '${%s.raw}'", ref, head)
		}
		return kind, name, nil
	default:
		return "", "", fmt.Errorf("unknown placeholder '${%s}'", ref)
	}
}

// scope resolves placeholders at execution time, against one stage request.
type scope struct {
	params Params
	req    pipeline.Request
}

// resolveInput handles input-position strings: arguments and environment
// values, where every placeholder kind is legal.
func (s scope) resolveInput(kind refKind, name string) (string, error) {
	switch kind {
	case refSubject:
		return s.params.Subject, nil
	case refWorkspace:
		return s.req.Workspace, nil
	case refOption:
		value, ok := s.params.Options[name]
		if !ok {
			return "", fmt.Errorf("option '%s' is not set", name)
		}
		return value, nil
	case refInput, refArtefact:
		artefact, ok := s.req.Inputs[name]
		if !ok {
			return "", fmt.Errorf("artefact '%s' is not consumed by this stage", name)
		}
		if artefact.List {
			return "", fmt.Errorf("list artefact '%s' cannot be expanded into a single value", name)
		}
		return artefact.Path(), nil
	default:
		return "", fmt.Errorf("unknown placeholder kind '%s'", kind)
	}
}

// resolveOutput handles output-position strings: stdout files and produced
// paths, which are resolved before or after the tool runs and therefore may
// only depend on the subject and options.
func (s scope) resolveOutput(kind refKind, name string) (string, error) {
	switch kind {
	case refSubject:
		return s.params.Subject, nil
	case refOption:
		value, ok := s.params.Options[name]
		if !ok {
			return "", fmt.Errorf("option '%s' is not set", name)
		}
		return value, nil
	default:
		return "", fmt.Errorf("placeholder kind '%s' is not allowed in output paths", kind)
	}
}

// buildEnv merges the tool's environment with the stage's (stage wins),
// expands each value, and renders sorted KEY=VALUE pairs so invocations are
// reproducible.
func buildEnv(toolEnv, stageEnv map[string]string, sc scope) ([]string, error) {
	merged := make(map[string]string, len(toolEnv)+len(stageEnv))
	for k, v := range toolEnv {
		merged[k] = v
	}
	for k, v := range stageEnv {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		value, err := walkRefs(merged[k], sc.resolveInput)
		if err != nil {
			return nil, fmt.Errorf("environment '%s': %w", k, err)
		}
		env = append(env, fmt.Sprintf("%s=%s", k, value))
	}
	return env, nil
}

// resolveOutputs locates the files a completed stage promised. Path outputs
// must exist; glob outputs must match at least one file and are returned
// sorted so list artefacts are deterministic.
func resolveOutputs(ws string, outputs []config.Output, sc scope) (map[string][]string, error) {
	produced := make(map[string][]string, len(outputs))
	for _, out := range outputs {
		if out.Glob != "" {
			pattern, err := walkRefs(out.Glob, sc.resolveOutput)
			if err != nil {
				return nil, fmt.Errorf("output '%s': %w", out.Name, err)
			}
			matches, err := filepath.Glob(filepath.Join(ws, pattern))
			if err != nil {
				return nil, fmt.Errorf("output '%s': invalid glob '%s': %w", out.Name, pattern, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("output '%s': no files match '%s' after the stage completed", out.Name, pattern)
			}
			sort.Strings(matches)
			produced[out.Name] = matches
			continue
		}

		rel, err := walkRefs(out.Path, sc.resolveOutput)
		if err != nil {
			return nil, fmt.Errorf("output '%s': %w", out.Name, err)
		}
		path := filepath.Join(ws, rel)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("output '%s' was not produced at '%s'", out.Name, path)
		}
		produced[out.Name] = []string{path}
	}
	return produced, nil
}

// externalMounts collects consumed artefact paths that live outside the
// workspace; containerised tools need them bind-mounted to read them. Paths
// are deduplicated and sorted.
func externalMounts(ws string, inputs map[string]pipeline.Artefact) []string {
	prefix := ws + string(filepath.Separator)
	seen := make(map[string]bool)
	var mounts []string
	for _, artefact := range inputs {
		for _, path := range artefact.Paths {
			if path == ws || strings.HasPrefix(path, prefix) {
				continue
			}
			if !seen[path] {
				seen[path] = true
				mounts = append(mounts, path)
			}
		}
	}
	sort.Strings(mounts)
	return mounts
}
