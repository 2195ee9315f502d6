package plugin

import (
	"errors"
	"fmt"
)

// ManifestErrorKind classifies manifest failures.
type ManifestErrorKind int

const (
	// ManifestNotFound means the manifest file does not exist.
	ManifestNotFound ManifestErrorKind = iota
	// ManifestMalformed means the file exists but is not valid JSON.
	ManifestMalformed
	// ManifestMissingField means a required field is empty or absent.
	ManifestMissingField
)

func (k ManifestErrorKind) String() string {
	switch k {
	case ManifestNotFound:
		return "not found"
	case ManifestMalformed:
		return "malformed"
	case ManifestMissingField:
		return "missing required field"
	default:
		return "unknown"
	}
}

// ManifestError reports a failure to load a plugin manifest.
type ManifestError struct {
	Path  string
	Kind  ManifestErrorKind
	Field string // set when Kind == ManifestMissingField
	Err   error
}

func (e *ManifestError) Error() string {
	if e.Kind == ManifestMissingField {
		return fmt.Sprintf("manifest %s: missing required field %q", e.Path, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("manifest %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("manifest %s: %s", e.Path, e.Kind)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// ErrDuplicateName is wrapped by LoadError when two files in one component
// directory resolve to the same name.
var ErrDuplicateName = errors.New("duplicate name")

// LoadError reports a failure to load a plugin's component files.
type LoadError struct {
	Dir  string // component directory (commands/, agents/, skills/)
	Name string // offending component name, if known
	Err  error
}

func (e *LoadError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("loading %s: %q: %v", e.Dir, e.Name, e.Err)
	}
	return fmt.Sprintf("loading %s: %v", e.Dir, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
