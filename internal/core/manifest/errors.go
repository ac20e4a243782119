// Package manifest parses Python dependency manifests (requirements.txt).
// This is part of the Functional Core - all functions are pure with no I/O.
package manifest

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrEmptyManifest is returned when the manifest has no content at all.
	ErrEmptyManifest = errors.New("manifest is empty")

	// ErrInvalidRequirement is returned when a requirement line cannot be parsed.
	ErrInvalidRequirement = errors.New("invalid requirement")

	// ErrDuplicateRequirement is returned when a package is declared twice.
	ErrDuplicateRequirement = errors.New("duplicate requirement")
)

// ManifestError wraps parse errors with line context.
type ManifestError struct {
	Op      string // Operation that failed (e.g., "Parse")
	Line    int    // 1-based line number in the manifest
	Message string
	Err     error
}

func (e *ManifestError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s line %d: %s", e.Op, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// NewManifestError creates a new ManifestError.
func NewManifestError(op string, line int, message string, err error) *ManifestError {
	return &ManifestError{
		Op:      op,
		Line:    line,
		Message: message,
		Err:     err,
	}
}
