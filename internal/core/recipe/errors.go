// Package recipe builds the container image recipe for a Python application:
// an ordered, linear sequence of build steps rendered to a Dockerfile.
// This is part of the Functional Core - all functions are pure with no I/O.
package recipe

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrInvalidPythonVersion is returned for a malformed interpreter version.
	ErrInvalidPythonVersion = errors.New("invalid python version")

	// ErrInvalidWorkDir is returned when the working directory is not absolute.
	ErrInvalidWorkDir = errors.New("working directory must be an absolute path")

	// ErrInvalidEntrypoint is returned for a malformed entry point script.
	ErrInvalidEntrypoint = errors.New("invalid entry point script")

	// ErrReservedEnv is returned when extra env overrides an interpreter flag.
	ErrReservedEnv = errors.New("environment variable is reserved")

	// ErrInvalidEnvName is returned for a malformed environment variable name.
	ErrInvalidEnvName = errors.New("invalid environment variable name")

	// ErrInvalidPort is returned for an out-of-range exposed port.
	ErrInvalidPort = errors.New("exposed port out of range")

	// ErrStepOrder is returned when the step sequence violates the layer
	// ordering contract (manifest install must precede the project copy).
	ErrStepOrder = errors.New("build steps out of order")
)

// RecipeError wraps validation errors with field context.
type RecipeError struct {
	Op      string // Operation that failed (e.g., "Validate")
	Field   string // Plan field (e.g., "python_version")
	Message string
	Err     error
}

func (e *RecipeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RecipeError) Unwrap() error {
	return e.Err
}

// NewRecipeError creates a new RecipeError.
func NewRecipeError(op, field, message string, err error) *RecipeError {
	return &RecipeError{
		Op:      op,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
