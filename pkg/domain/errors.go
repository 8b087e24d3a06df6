package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoGraph is returned when an operation requires a loaded graph.
	ErrNoGraph = errors.New("no graph loaded")

	// ErrTaskNotFound is returned when a task ID is not in the graph.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDeadlock is returned when parallel execution stalls: no task is
	// ready, none is running, but the graph is incomplete.
	ErrDeadlock = errors.New("execution deadlock")
)

// ValidationError wraps the error-level findings of graph validation.
// Execution entry points return it synchronously and refuse to start.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid graph: %s", strings.Join(e.Result.Errors, "; "))
}

// NewValidationError builds a ValidationError from a validation result.
func NewValidationError(result ValidationResult) *ValidationError {
	return &ValidationError{Result: result}
}
