package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: agent_not_found, output_write, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches any ExecutionError with the same code, so copies made by the
// With* helpers still match the predefined values.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Load-time errors, fatal before any step runs
	ErrDocumentFormat = &ExecutionError{
		Category: ErrCategoryDocument,
		Code:     "document_format",
		Message:  "invalid command document",
	}
	ErrMissingField = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_field",
		Message:  "missing required field",
	}

	// Step-level errors, routed through the step's on_error policy
	ErrAgentNotFound = &ExecutionError{
		Category: ErrCategoryAgent,
		Code:     "agent_not_found",
		Message:  "agent not found",
	}
	ErrStepExecution = &ExecutionError{
		Category: ErrCategoryExecution,
		Code:     "step_execution",
		Message:  "agent invocation failed",
	}
	ErrStepTimeout = &ExecutionError{
		Category: ErrCategoryExecution,
		Code:     "step_timeout",
		Message:  "agent invocation timed out",
	}

	// Run-level errors
	ErrOutputWrite = &ExecutionError{
		Category: ErrCategoryOutput,
		Code:     "output_write",
		Message:  "failed to write output",
	}
	ErrRunCancelled = &ExecutionError{
		Category: ErrCategoryExecution,
		Code:     "run_cancelled",
		Message:  "run cancelled",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// CategoryOf returns the category of the first ExecutionError in err's chain.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ErrCategoryExecution
}

// Retryable reports whether a step failure may be retried. Agent resolution
// failures and cancellation are never retried.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrAgentNotFound) && !errors.Is(err, ErrRunCancelled)
}
