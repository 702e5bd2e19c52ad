package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRunResult_ComputeSummary(t *testing.T) {
	out := "done"
	r := &RunResult{
		Status: StatusCompleted,
		Steps: []StepResult{
			{Step: "a", Status: StatusCompleted, Result: &out},
			{Step: "b", Status: StatusSkipped},
			{Step: "c", Status: StatusFailed},
			{Step: "d", Status: StatusCompleted, Result: &out},
		},
	}
	r.ComputeSummary()

	if r.CompletedSteps != 2 || r.SkippedSteps != 1 || r.FailedSteps != 1 {
		t.Errorf("summary = %d/%d/%d, want 2/1/1", r.CompletedSteps, r.SkippedSteps, r.FailedSteps)
	}
}

func TestRunResult_Success(t *testing.T) {
	if !(&RunResult{Status: StatusCompleted}).Success() {
		t.Error("completed run without error should succeed")
	}
	if (&RunResult{Status: StatusFailed}).Success() {
		t.Error("failed run should not succeed")
	}
	if (&RunResult{Status: StatusCompleted, Err: errors.New("write")}).Success() {
		t.Error("run with error should not succeed")
	}
}

func TestStepResult_JSONAbsentResultIsNull(t *testing.T) {
	data, err := json.Marshal(StepResult{Step: "review", Agent: "reviewer", Status: StatusSkipped})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"result":null`) {
		t.Errorf("JSON = %s, want result null", s)
	}
	if !strings.Contains(s, `"status":"skipped"`) {
		t.Errorf("JSON = %s, want status skipped", s)
	}
}

func TestStepResult_Output(t *testing.T) {
	v := "text"
	if got := (StepResult{Result: &v}).Output(); got != "text" {
		t.Errorf("Output() = %q, want %q", got, "text")
	}
	if got := (StepResult{}).Output(); got != "" {
		t.Errorf("Output() = %q, want empty", got)
	}
}
