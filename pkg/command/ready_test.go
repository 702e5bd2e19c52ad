package command

import (
	"errors"
	"strings"
	"testing"

	"github.com/devicelab-dev/command-runner/pkg/core"
)

func mustParse(t *testing.T, content string) *Definition {
	t.Helper()
	def, err := Parse([]byte(content), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return def
}

func TestCheckReady_Valid(t *testing.T) {
	def := mustParse(t, sampleDoc)
	if err := def.CheckReady(); err != nil {
		t.Errorf("CheckReady() = %v, want nil", err)
	}
}

func TestCheckReady_MissingFields(t *testing.T) {
	def := mustParse(t, `---
name: ""
description: no name
---
workflow:
  - step: a
    agent: x
  - agent: y
    prompt: hi
`)
	err := def.CheckReady()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, core.ErrMissingField) {
		t.Errorf("expected missing field error, got %v", err)
	}

	msg := err.Error()
	for _, want := range []string{"metadata.name", "workflow[0].prompt", "workflow[1].step"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestCheckReady_EmptyWorkflow(t *testing.T) {
	def := mustParse(t, "---\nname: a\ndescription: b\n---\nworkflow: []\n")
	err := def.CheckReady()
	if !errors.Is(err, core.ErrMissingField) {
		t.Fatalf("expected missing field error, got %v", err)
	}
	if !strings.Contains(err.Error(), "workflow") {
		t.Errorf("expected workflow in %q", err.Error())
	}
}

func TestCheckReady_InvalidValues(t *testing.T) {
	def := mustParse(t, `---
name: a
description: b
---
workflow:
  - step: a
    agent: x
    prompt: p
    on_error: explode
    retry_count: -1
    timeout: soon
`)
	err := def.CheckReady()
	if !errors.Is(err, core.ErrMissingField) {
		t.Fatalf("expected missing field error, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "workflow[0].on_error") || !strings.Contains(msg, "stop continue retry") {
		t.Errorf("expected on_error complaint in %q", msg)
	}
	if !strings.Contains(msg, "workflow[0].retry_count") {
		t.Errorf("expected retry_count complaint in %q", msg)
	}
	if !strings.Contains(msg, "workflow[0].timeout") {
		t.Errorf("expected timeout complaint in %q", msg)
	}
}

func TestCheckReady_ShapeIssuesAreDocumentErrors(t *testing.T) {
	def := mustParse(t, "---\nname: a\ndescription: b\n---\nworkflow: nope\n")
	err := def.CheckReady()
	if !errors.Is(err, core.ErrDocumentFormat) {
		t.Fatalf("expected document format error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Workflow must be a list") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
