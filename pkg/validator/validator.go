// Package validator statically checks command documents without running
// them. Errors block execution; warnings are advisory.
package validator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/command-runner/pkg/agent"
	"github.com/devicelab-dev/command-runner/pkg/command"
	"github.com/devicelab-dev/command-runner/pkg/condition"
	"github.com/devicelab-dev/command-runner/pkg/core"
	"github.com/devicelab-dev/command-runner/pkg/logger"
	"github.com/devicelab-dev/command-runner/pkg/vars"
)

// Result contains the validation result for one document.
type Result struct {
	File     string   `json:"file"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

func (r *Result) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates command documents.
type Validator struct {
	agentsDir string
}

// New creates a new Validator resolving agents under agentsDir.
func New(agentsDir string) *Validator {
	if agentsDir == "" {
		agentsDir = agent.DefaultDir
	}
	return &Validator{agentsDir: agentsDir}
}

// Validate validates a single document file.
func (v *Validator) Validate(path string) *Result {
	result := &Result{File: path, Errors: []string{}, Warnings: []string{}}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		result.errorf("File not found: %s", path)
		return result
	}

	def, err := command.ParseFile(path)
	if err != nil {
		var pe *command.ParseError
		switch {
		case errors.As(err, &pe) && pe.IsMissingFrontmatter():
			result.errorf("Invalid YAML structure: missing frontmatter")
		case errors.Is(err, core.ErrDocumentFormat):
			result.errorf("YAML parsing error: %v", err)
		default:
			result.errorf("Unexpected error: %v", err)
		}
		return result
	}

	v.check(def, result)
	logger.Info("validated %s: %d errors, %d warnings", path, len(result.Errors), len(result.Warnings))
	return result
}

// ValidateDefinition validates an already parsed document.
func (v *Validator) ValidateDefinition(def *command.Definition) *Result {
	result := &Result{File: def.SourcePath, Errors: []string{}, Warnings: []string{}}
	v.check(def, result)
	return result
}

// ValidateAll validates a file, or every .yaml/.yml file under a directory.
func (v *Validator) ValidateAll(path string) ([]*Result, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return []*Result{v.Validate(path)}, nil
	}

	files, err := collectCommandFiles(path)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}
	results := make([]*Result, 0, len(files))
	for _, f := range files {
		results = append(results, v.Validate(f))
	}
	return results, nil
}

// collectCommandFiles finds all .yaml/.yml files in a directory.
func collectCommandFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

func (v *Validator) check(def *command.Definition, result *Result) {
	v.checkMetadata(def.Metadata, result)
	for _, issue := range def.Issues {
		if issue.Kind == command.IssueFieldType {
			result.errorf("%s", issue.Message)
		}
	}
	v.checkParameters(def, result)
	v.checkWorkflow(def, result)
	v.checkOutput(def, result)
}

func (v *Validator) checkMetadata(meta command.Metadata, result *Result) {
	fields := []struct {
		key   string
		value string
	}{
		{"name", meta.Name},
		{"description", meta.Description},
	}
	for _, f := range fields {
		if !meta.Has(f.key) {
			result.errorf("Missing required frontmatter field: %s", f.key)
		} else if !meta.Mistyped(f.key) && strings.TrimSpace(f.value) == "" {
			result.errorf("Frontmatter field '%s' is empty", f.key)
		}
	}
}

func hasIssue(def *command.Definition, kind command.IssueKind) bool {
	for _, issue := range def.Issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

// itemIssues indexes per-item issues of the given kind by list position.
func itemIssues(def *command.Definition, kind command.IssueKind) map[int]string {
	out := make(map[int]string)
	for _, issue := range def.Issues {
		if issue.Kind == kind {
			out[issue.Index] = issue.Message
		}
	}
	return out
}

func (v *Validator) checkParameters(def *command.Definition, result *Result) {
	if hasIssue(def, command.IssueParametersNotList) {
		result.errorf("Parameters must be a list")
		return
	}

	notMapping := itemIssues(def, command.IssueParameterNotMapping)
	params := make(map[int]command.Parameter, len(def.Parameters))
	for _, p := range def.Parameters {
		params[p.Index] = p
	}

	names := make(map[string]bool)
	for i := 0; i < len(def.Parameters)+len(notMapping); i++ {
		if msg, ok := notMapping[i]; ok {
			result.errorf("%s", msg)
			continue
		}
		p := params[i]

		label := fmt.Sprint(i)
		if !p.Has("name") {
			result.errorf("Parameter %d missing 'name' field", i)
		} else {
			label = p.Name
			if names[p.Name] {
				result.errorf("Duplicate parameter name: %s", p.Name)
			}
			names[p.Name] = true
		}

		if !p.Has("type") {
			result.warnf("Parameter '%s' missing 'type' field", label)
		}
		if !p.Has("required") {
			result.warnf("Parameter '%s' missing 'required' field", label)
		}
	}
}

func (v *Validator) checkWorkflow(def *command.Definition, result *Result) {
	if hasIssue(def, command.IssueWorkflowNotList) {
		result.errorf("Workflow must be a list")
		return
	}

	notMapping := itemIssues(def, command.IssueStepNotMapping)
	total := len(def.Workflow) + len(notMapping)
	if total == 0 {
		result.errorf("Workflow is empty")
		return
	}

	steps := make(map[int]command.Step, len(def.Workflow))
	for _, s := range def.Workflow {
		steps[s.Index] = s
	}

	// Names visible to a step's prompt: parameters, the run timestamp and
	// outputs of strictly preceding steps.
	declared := map[string]bool{core.TimestampKey: true}
	for _, p := range def.Parameters {
		if p.Name != "" {
			declared[p.Name] = true
		}
	}

	stepNames := make(map[string]bool)
	agents := &agentChecker{dir: v.agentsDir, result: result}

	for i := 0; i < total; i++ {
		if msg, ok := notMapping[i]; ok {
			result.errorf("%s", msg)
			continue
		}
		step := steps[i]

		for _, field := range []string{"step", "agent", "prompt"} {
			if !step.Has(field) {
				result.errorf("Step %d missing required field: %s", i, field)
			}
		}

		name := step.Label()
		if stepNames[name] {
			result.errorf("Duplicate step name: %s", name)
		}
		stepNames[name] = true

		if step.Agent != "" {
			agents.check(step.Agent)
		}

		for _, ref := range vars.References(step.Prompt) {
			if !declared[ref] {
				result.warnf("Step %d: variable '%s' referenced but not defined in previous steps", i, ref)
			}
		}
		if step.OutputVariable != "" {
			declared[step.OutputVariable] = true
		}

		if step.Has("on_error") && (step.OnError == "" || !step.OnError.Valid()) {
			result.errorf("Step %d: invalid on_error value '%s'. Must be: stop, continue, or retry", i, step.OnError)
		}
		if step.RetryCount < 0 {
			result.errorf("Step %d: retry_count must be a non-negative integer, got %d", i, step.RetryCount)
		}
		if _, err := step.TimeoutDuration(); err != nil {
			result.errorf("Step %d: %v", i, err)
		}
		if w := condition.Parse(step.Condition).Warning(); w != "" {
			result.warnf("Step %d: %s", i, w)
		}
	}
}

// agentChecker reports missing agent files, warning about a missing
// agents directory only once.
type agentChecker struct {
	dir        string
	result     *Result
	dirChecked bool
	dirExists  bool
}

func (a *agentChecker) check(id string) {
	if !a.dirChecked {
		info, err := os.Stat(a.dir)
		a.dirExists = err == nil && info.IsDir()
		a.dirChecked = true
		if !a.dirExists {
			a.result.warnf("Agents directory not found: %s", a.dir)
		}
	}
	if !a.dirExists {
		return
	}
	if !agent.Exists(a.dir, id) && !scriptExists(a.dir, id) {
		a.result.warnf("Agent file not found: %s", agent.Path(a.dir, id))
	}
}

func scriptExists(dir, id string) bool {
	if !agent.ValidID(id) {
		return false
	}
	info, err := os.Stat(agent.ScriptPath(dir, id))
	return err == nil && !info.IsDir()
}

func (v *Validator) checkOutput(def *command.Definition, result *Result) {
	if hasIssue(def, command.IssueOutputNotMapping) {
		result.errorf("Output must be a dictionary")
		return
	}
	if def.Output == nil {
		result.warnf("No output configuration defined")
		return
	}

	format := def.Output.EffectiveFormat()
	if !command.KnownFormat(format) {
		result.warnf("Unknown output format: %s", format)
	}

	bound := map[string]bool{core.TimestampKey: true}
	for _, p := range def.Parameters {
		bound[p.Name] = true
	}
	for _, s := range def.Workflow {
		if s.OutputVariable != "" {
			bound[s.OutputVariable] = true
		}
	}
	for _, name := range def.Output.Variables {
		if !bound[name] {
			result.warnf("Output variable '%s' is never set by any step or parameter", name)
		}
	}
}
