package core

import "time"

// StepResult captures the outcome of one visited step. Result is nil for
// skipped steps and for failures.
type StepResult struct {
	Step      string  `json:"step"`
	Agent     string  `json:"agent"`
	Result    *string `json:"result"`
	Timestamp string  `json:"timestamp"`

	Status   StepStatus    `json:"status"`
	Attempts int           `json:"attempts,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"-"`
}

// Output returns the step result, or "" when absent.
func (r StepResult) Output() string {
	if r.Result == nil {
		return ""
	}
	return *r.Result
}

// RunResult captures the complete outcome of one run.
type RunResult struct {
	RunID string
	Name  string

	Status StepStatus // StatusCompleted or StatusFailed
	Err    error      // Run-level failure, if any

	Params   []Binding
	Context  *Context
	Steps    []StepResult
	Warnings []string

	StartTime  time.Time
	Duration   time.Duration
	OutputPath string // Where the rendered artifact was written, if anywhere

	// Summary (computed)
	CompletedSteps int
	FailedSteps    int
	SkippedSteps   int
}

// Success returns true if the run finished without a stop-triggered abort or
// a run-level error.
func (r *RunResult) Success() bool {
	return r.Status == StatusCompleted && r.Err == nil
}

// ComputeSummary calculates step counts from the Steps slice
func (r *RunResult) ComputeSummary() {
	r.CompletedSteps = 0
	r.FailedSteps = 0
	r.SkippedSteps = 0

	for _, step := range r.Steps {
		switch step.Status {
		case StatusCompleted:
			r.CompletedSteps++
		case StatusFailed:
			r.FailedSteps++
		case StatusSkipped:
			r.SkippedSteps++
		}
	}
}
