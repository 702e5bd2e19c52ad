// Package report renders a run's final context in the document's output
// format and writes run records.
//
// Two artifacts exist:
//   - the document output (markdown, json or text) saved to output.save_to
//   - an optional run record (JSON) describing every visited step
package report

import "time"

// Version is the run record schema version.
const Version = "1.0.0"

// Status represents the overall run status in a record.
type Status string

// Status values.
const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Record is the machine-readable account of one run.
type Record struct {
	Version    string      `json:"version"`
	RunID      string      `json:"runId"`
	Name       string      `json:"name"`
	SourceFile string      `json:"sourceFile,omitempty"`
	Status     Status      `json:"status"`
	StartTime  time.Time   `json:"startTime"`
	EndTime    time.Time   `json:"endTime"`
	Duration   int64       `json:"duration"` // milliseconds
	Params     []Param     `json:"params"`
	Summary    Summary     `json:"summary"`
	Steps      []StepEntry `json:"steps"`
	Warnings   []string    `json:"warnings,omitempty"`
	Error      *string     `json:"error,omitempty"`
	OutputPath string      `json:"outputPath,omitempty"`
	Runner     RunnerInfo  `json:"runner"`
}

// Param is one resolved input parameter.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RunnerInfo identifies the runner and backend that produced the record.
type RunnerInfo struct {
	Version string `json:"version"`
	Backend string `json:"backend"` // simulated, command, llm, script
}

// Summary contains aggregated step counts.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// StepEntry is the record entry for a visited step.
type StepEntry struct {
	Index     int     `json:"index"`
	Step      string  `json:"step"`
	Agent     string  `json:"agent"`
	Status    string  `json:"status"`
	Result    *string `json:"result,omitempty"`
	Timestamp string  `json:"timestamp"`
	Duration  int64   `json:"duration"` // milliseconds
	Attempts  int     `json:"attempts,omitempty"`
	Error     *string `json:"error,omitempty"`
}
