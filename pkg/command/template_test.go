package command

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestScaffold_ParsesAndIsReady(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	content := Scaffold("Migrate Component", "", created)

	def, err := Parse([]byte(content), "scaffold.yaml")
	if err != nil {
		t.Fatalf("scaffold does not parse: %v", err)
	}
	if err := def.CheckReady(); err != nil {
		t.Errorf("scaffold not ready: %v", err)
	}
	if def.Metadata.Name != "Migrate Component" {
		t.Errorf("expected name, got %q", def.Metadata.Name)
	}
	if def.Metadata.Description != "Execute Migrate Component workflow" {
		t.Errorf("expected default description, got %q", def.Metadata.Description)
	}
	if def.Metadata.Created != "2025-06-01T12:00:00.000000" {
		t.Errorf("unexpected created %q", def.Metadata.Created)
	}
	if len(def.Workflow) != 3 {
		t.Errorf("expected 3 steps, got %d", len(def.Workflow))
	}
	if !strings.Contains(def.Workflow[0].Prompt, "{{example_param}}") {
		t.Errorf("placeholders must keep double braces, got %q", def.Workflow[0].Prompt)
	}
	if def.Output.SaveTo != ".claude/command-outputs/Migrate Component-{{timestamp}}.md" {
		t.Errorf("unexpected save_to %q", def.Output.SaveTo)
	}
}

func TestScaffoldFileName(t *testing.T) {
	tests := map[string]string{
		"migrate-vue-component": "migrate-vue-component.yaml",
		"Migrate Vue_Component": "migrate-vue-component.yaml",
		"review":                "review.yaml",
	}
	for in, want := range tests {
		if got := ScaffoldFileName(in); got != want {
			t.Errorf("ScaffoldFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteScaffold(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "commands")

	path, err := WriteScaffold(dir, "review", "Review code", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(path) != "review.yaml" {
		t.Errorf("unexpected path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "description: Review code") {
		t.Error("description not written")
	}

	if _, err := WriteScaffold(dir, "review", "again", time.Now()); !errors.Is(err, ErrScaffoldExists) {
		t.Errorf("expected ErrScaffoldExists, got %v", err)
	}
}
