package report

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devicelab-dev/command-runner/pkg/core"
)

func TestSave(t *testing.T) {
	dir := t.TempDir()
	def := testDefinition("text", "analysis")
	def.Output.SaveTo = filepath.Join(dir, "reports", "{{file}}", "out.txt")

	path, err := Save(def, testRun())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	want := filepath.Join(dir, "reports", "main.go", "out.txt")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "analysis:\nlooks fine\n" {
		t.Errorf("content = %q", data)
	}

	info, err := os.Stat(filepath.Dir(path))
	if err != nil || !info.IsDir() {
		t.Errorf("parent directory not created: %v", err)
	}
}

func TestSave_NothingConfigured(t *testing.T) {
	path, err := Save(testDefinition("text"), testRun())
	if err != nil || path != "" {
		t.Errorf("Save() = %q, %v; want no-op", path, err)
	}
}

func TestSave_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	def := testDefinition("text", "analysis")
	def.Output.SaveTo = filepath.Join(blocker, "out.txt")

	_, err := Save(def, testRun())
	if !errors.Is(err, core.ErrOutputWrite) {
		t.Fatalf("error = %v, want ErrOutputWrite", err)
	}
}

func TestSave_Overwrites(t *testing.T) {
	dir := t.TempDir()
	def := testDefinition("text", "analysis")
	def.Output.SaveTo = filepath.Join(dir, "out.txt")
	if err := os.WriteFile(def.Output.SaveTo, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Save(def, testRun()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, _ := os.ReadFile(def.Output.SaveTo)
	if string(data) == "old" {
		t.Error("existing file was not replaced")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestBuildRecord(t *testing.T) {
	run := testRun()
	run.RunID = "run-1"
	run.StartTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run.Duration = 1500 * time.Millisecond
	run.Steps = append(run.Steps, core.StepResult{
		Step: "publish", Agent: "publisher", Status: core.StatusFailed, Error: "boom", Attempts: 2,
	})
	run.Status = core.StatusFailed
	run.Err = errors.New("step publish failed")
	def := testDefinition("text")
	def.SourcePath = "review.yaml"

	rec := BuildRecord(def, run, RecordConfig{RunnerVersion: "1.2.3", Backend: "simulated"})

	if rec.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", rec.Status)
	}
	if rec.Summary != (Summary{Total: 3, Completed: 1, Failed: 1, Skipped: 1}) {
		t.Errorf("Summary = %+v", rec.Summary)
	}
	if rec.Duration != 1500 {
		t.Errorf("Duration = %d", rec.Duration)
	}
	if !rec.EndTime.Equal(run.StartTime.Add(run.Duration)) {
		t.Errorf("EndTime = %v", rec.EndTime)
	}
	if rec.Error == nil || *rec.Error != "step publish failed" {
		t.Errorf("Error = %v", rec.Error)
	}
	if last := rec.Steps[2]; last.Error == nil || *last.Error != "boom" || last.Attempts != 2 || last.Status != "failed" {
		t.Errorf("failed step entry = %+v", last)
	}
	if rec.Steps[1].Result != nil {
		t.Error("skipped step should have no result")
	}
	if rec.Runner.Backend != "simulated" || rec.SourceFile != "review.yaml" {
		t.Errorf("record metadata = %+v / %q", rec.Runner, rec.SourceFile)
	}
}

func TestWriteRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run.json")
	run := testRun()
	rec := BuildRecord(testDefinition("text"), run, RecordConfig{})

	if err := WriteRecord(path, rec); err != nil {
		t.Fatalf("WriteRecord() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid record JSON: %v", err)
	}
	if decoded.Status != StatusPassed || len(decoded.Steps) != 2 || decoded.Version != Version {
		t.Errorf("decoded = %+v", decoded)
	}
}
