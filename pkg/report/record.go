package report

import (
	"encoding/json"
	"fmt"

	"github.com/devicelab-dev/command-runner/pkg/command"
	"github.com/devicelab-dev/command-runner/pkg/core"
)

// RecordConfig carries runner metadata for a record.
type RecordConfig struct {
	RunnerVersion string
	Backend       string
}

// BuildRecord converts a run result into a Record.
func BuildRecord(def *command.Definition, run *core.RunResult, cfg RecordConfig) *Record {
	run.ComputeSummary()

	rec := &Record{
		Version:    Version,
		RunID:      run.RunID,
		Name:       run.Name,
		SourceFile: def.SourcePath,
		Status:     StatusPassed,
		StartTime:  run.StartTime,
		EndTime:    run.StartTime.Add(run.Duration),
		Duration:   run.Duration.Milliseconds(),
		Params:     make([]Param, 0, len(run.Params)),
		Steps:      make([]StepEntry, 0, len(run.Steps)),
		Warnings:   run.Warnings,
		OutputPath: run.OutputPath,
		Runner: RunnerInfo{
			Version: cfg.RunnerVersion,
			Backend: cfg.Backend,
		},
		Summary: Summary{
			Total:     len(run.Steps),
			Completed: run.CompletedSteps,
			Failed:    run.FailedSteps,
			Skipped:   run.SkippedSteps,
		},
	}
	if !run.Success() {
		rec.Status = StatusFailed
	}
	if run.Err != nil {
		msg := run.Err.Error()
		rec.Error = &msg
	}

	for _, p := range run.Params {
		rec.Params = append(rec.Params, Param{Name: p.Name, Value: p.Value})
	}
	for i, s := range run.Steps {
		entry := StepEntry{
			Index:     i,
			Step:      s.Step,
			Agent:     s.Agent,
			Status:    s.Status.String(),
			Result:    s.Result,
			Timestamp: s.Timestamp,
			Duration:  s.Duration.Milliseconds(),
			Attempts:  s.Attempts,
		}
		if s.Error != "" {
			msg := s.Error
			entry.Error = &msg
		}
		rec.Steps = append(rec.Steps, entry)
	}
	return rec
}

// WriteRecord writes rec as indented JSON to path.
func WriteRecord(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}
