package command

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devicelab-dev/command-runner/pkg/core"
)

const scaffoldTemplate = `---
name: {name}
description: {description}
created: {timestamp}
---

# Command: {name}

## Parameters
parameters:
  - name: example_param
    type: string
    required: true
    description: Description of the parameter
    default: null

## Workflow
workflow:
  # Step 1: Initial action
  - step: step_1
    agent: vue-developer  # Name of the agent file (without .md)
    description: Brief description of what this step does
    prompt: |
      Your instructions for the agent.
      You can use parameter interpolation: {{example_param}}
    output_variable: step_1_result
    on_error: stop  # Options: stop, continue, retry
    retry_count: 0

  # Step 2: Use output from previous step
  - step: step_2
    agent: code-reviewer
    description: Review the output from step 1
    prompt: |
      Review this code:
      {{step_1_result}}
    output_variable: step_2_result
    on_error: stop

  # Step 3: Conditional execution (optional)
  - step: step_3
    agent: vue-developer
    description: Final refactoring
    condition: "step_2_result contains 'critical'"  # Simple condition
    prompt: |
      Refactor based on this review:
      {{step_2_result}}

      Original code:
      {{step_1_result}}
    output_variable: final_result

## Output
output:
  # Define what the command returns
  format: markdown  # Options: markdown, json, text
  variables:
    - final_result
  save_to: .claude/command-outputs/{name}-{{timestamp}}.md
`

// ErrScaffoldExists is returned when the scaffold target already exists.
var ErrScaffoldExists = errors.New("command file already exists")

// Scaffold renders a starter document for a new command.
func Scaffold(name, description string, created time.Time) string {
	if description == "" {
		description = fmt.Sprintf("Execute %s workflow", name)
	}
	// "{{" maps to itself so run-time placeholders such as {{timestamp}}
	// are not mistaken for template fields.
	r := strings.NewReplacer(
		"{{", "{{",
		"{name}", name,
		"{description}", description,
		"{timestamp}", core.FormatTimestamp(created),
	)
	return r.Replace(scaffoldTemplate)
}

// ScaffoldFileName returns the file name for a command: lowercased, with
// spaces and underscores replaced by dashes.
func ScaffoldFileName(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer(" ", "-", "_", "-").Replace(name)
	return name + ".yaml"
}

// WriteScaffold writes a starter document into dir and returns its path.
// An existing file is never overwritten.
func WriteScaffold(dir, name, description string, created time.Time) (string, error) {
	path := filepath.Join(dir, ScaffoldFileName(name))
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%w: %s", ErrScaffoldExists, path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Scaffold(name, description, created)), 0o644); err != nil {
		return path, fmt.Errorf("failed to write command file: %w", err)
	}
	return path, nil
}
