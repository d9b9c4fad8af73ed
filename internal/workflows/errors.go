package workflows

import (
	"fmt"
)

// ErrorSeverity ranks workflow errors.
type ErrorSeverity string

const (
	// ErrorSeverityCritical fails the workflow.
	ErrorSeverityCritical ErrorSeverity = "critical"
	// ErrorSeverityHigh is recorded in the result; the workflow continues.
	ErrorSeverityHigh ErrorSeverity = "high"
	// ErrorSeverityLow is only logged.
	ErrorSeverityLow ErrorSeverity = "low"
)

// WorkflowError is a structured workflow failure.
type WorkflowError struct {
	Operation string        // e.g. "evaluate repository"
	Severity  ErrorSeverity
	Err       error
	Context   string // e.g. the repository URL
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s failed: %s (%s)", e.Operation, e.Err.Error(), e.Context)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Err.Error())
}

// Unwrap allows errors.Is and errors.As to work with WorkflowError
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError creates a new workflow error with context
func NewWorkflowError(operation string, severity ErrorSeverity, err error, context string) *WorkflowError {
	return &WorkflowError{
		Operation: operation,
		Severity:  severity,
		Err:       err,
		Context:   context,
	}
}

// FormatErrorForResult renders err for BatchResult.Errors.
func FormatErrorForResult(operation string, err error) string {
	return fmt.Sprintf("%s: %v", operation, err)
}

// Error handling in the batch workflow:
//
// CRITICAL (Propagate & Record):
//   - Invalid batch configuration
//   - Pattern: add to result.Errors AND return the error to fail the workflow
//
// HIGH (Record but Continue):
//   - One repository's activity failed (clone refused, worker lost)
//   - Pattern: add to result.Errors and record a failed RepoRunResult; the
//     remaining repositories still run
//
// LOW (Log as Warning):
//   - Writing the JSON summary failed
//   - Pattern: log only; the result is still returned to the caller
//
// A repository whose pipeline ended in a non-success FinalStatus is not an
// error at all: it is an evaluation outcome and is counted in StatusCounts.
