package core

import "fmt"

// StepStatus represents the execution status of a step
type StepStatus int

const (
	StatusPending   StepStatus = iota // Not yet visited
	StatusRunning                     // Agent invocation in flight
	StatusCompleted                   // Agent returned a result
	StatusFailed                      // Agent missing or invocation failed
	StatusSkipped                     // Condition evaluated false
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON output.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *StepStatus) UnmarshalText(text []byte) error {
	for _, candidate := range []StepStatus{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusSkipped} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown step status %q", text)
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the step did not fail
func (s StepStatus) IsSuccess() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// CanTransition reports whether a step may move from s to next.
//
//	pending -> skipped | running
//	running -> completed | failed
//	failed  -> running (retry)
func (s StepStatus) CanTransition(next StepStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusSkipped || next == StatusRunning
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusRunning
	default:
		return false
	}
}

// ErrorCategory classifies the type of error for reporting
type ErrorCategory int

const (
	ErrCategoryNone      ErrorCategory = iota // No error
	ErrCategoryDocument                       // Malformed document sections
	ErrCategoryConfig                         // Missing required field, bad parameter
	ErrCategoryAgent                          // Agent could not be resolved
	ErrCategoryExecution                      // Agent invocation failed or timed out
	ErrCategoryOutput                         // Rendered artifact could not be written
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryDocument:
		return "document"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryAgent:
		return "agent"
	case ErrCategoryExecution:
		return "execution"
	case ErrCategoryOutput:
		return "output"
	default:
		return "unknown"
	}
}
