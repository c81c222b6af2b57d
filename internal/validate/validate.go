// Package validate holds the side-effect-free predicates weir applies to
// declared run inputs before any workspace mutation happens.
package validate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/weir/pkg/pipeline"
)

// File checks that path names an existing regular file and returns its
// cleaned absolute form. Values that pass are treated as immutable references
// for the remainder of the run; weir never writes to them.
func File(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return "", &pipeline.NotFoundError{Path: abs, Kind: "file"}
	}

	return abs, nil
}

// Dir checks that path names an existing directory and returns its cleaned
// absolute form.
func Dir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", &pipeline.NotFoundError{Path: abs, Kind: "directory"}
	}

	return abs, nil
}

// Kind dispatches to File or Dir based on a declared input kind. The kind
// string comes from configuration and is validated there; anything else is a
// programming error and reported as such.
func Kind(kind, path string) (string, error) {
	switch kind {
	case "file", "":
		return File(path)
	case "directory":
		return Dir(path)
	default:
		return "", &pipeline.ValidationError{Err: fmt.Errorf("unknown input kind '%s'", kind)}
	}
}
