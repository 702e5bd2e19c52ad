// Package command handles parsing and representation of command documents:
// a metadata frontmatter section followed by parameters, workflow steps and
// output configuration.
package command

import (
	"fmt"
	"time"
)

// Definition represents a parsed command document.
type Definition struct {
	SourcePath string      `yaml:"-" json:"-"`
	Metadata   Metadata    `yaml:"-" json:"-"`
	Parameters []Parameter `yaml:"parameters" json:"parameters,omitempty" jsonschema_description:"Input parameters bound into the run context" validate:"dive"`
	Workflow   []Step      `yaml:"workflow" json:"workflow" jsonschema:"required,minItems=1" jsonschema_description:"Ordered steps, executed in document order" validate:"required,min=1,dive"`
	Output     *Output     `yaml:"output" json:"output,omitempty" jsonschema_description:"How results are rendered and saved"`

	// Issues lists structural problems the loader tolerated, such as a
	// workflow that is not a list. The validator reports them; the
	// executor refuses to run a document that has any.
	Issues []Issue `yaml:"-" json:"-"`
}

// Metadata is the frontmatter section of a document.
type Metadata struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description" validate:"required"`
	Created     string `yaml:"created,omitempty"`

	present  keySet
	mistyped keySet
}

// Has reports whether key appeared in the frontmatter.
func (m Metadata) Has(key string) bool { return m.present.has(key) }

// Mistyped reports whether key held a value that is not a scalar. The
// loader records an IssueFieldType for it.
func (m Metadata) Mistyped(key string) bool { return m.mistyped.has(key) }

// Parameter declares an input parameter.
type Parameter struct {
	Name        string      `yaml:"name" json:"name" jsonschema:"required" validate:"required"`
	Type        string      `yaml:"type,omitempty" json:"type,omitempty"`
	Required    bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`

	Index   int `yaml:"-" json:"-"` // Position in the parameters list
	Line    int `yaml:"-" json:"-"`
	present keySet
}

// Has reports whether key was set on the parameter.
func (p Parameter) Has(key string) bool { return p.present.has(key) }

// DefaultValue returns the default as a string and whether one was declared.
// A null default counts as no default.
func (p Parameter) DefaultValue() (string, bool) {
	if p.Default == nil {
		return "", false
	}
	return fmt.Sprint(p.Default), true
}

// OnError is the policy applied when a step fails.
type OnError string

const (
	OnErrorStop     OnError = "stop"
	OnErrorContinue OnError = "continue"
	OnErrorRetry    OnError = "retry"
)

// Valid reports whether the policy is one of stop, continue or retry.
// An empty policy is valid and means stop.
func (o OnError) Valid() bool {
	switch o {
	case "", OnErrorStop, OnErrorContinue, OnErrorRetry:
		return true
	}
	return false
}

// Effective returns the policy with the default applied.
func (o OnError) Effective() OnError {
	if o == "" {
		return OnErrorStop
	}
	return o
}

// Step is one unit of work bound to an agent and a prompt template.
type Step struct {
	Name           string  `yaml:"step" json:"step" jsonschema:"required" validate:"required"`
	Agent          string  `yaml:"agent" json:"agent" jsonschema:"required" validate:"required"`
	Description    string  `yaml:"description,omitempty" json:"description,omitempty"`
	Prompt         string  `yaml:"prompt" json:"prompt" jsonschema:"required" validate:"required"`
	Condition      string  `yaml:"condition,omitempty" json:"condition,omitempty" jsonschema_description:"<var> contains '<text>' or <var> equals '<text>'"`
	OutputVariable string  `yaml:"output_variable,omitempty" json:"output_variable,omitempty"`
	OnError        OnError `yaml:"on_error,omitempty" json:"on_error,omitempty" jsonschema:"enum=stop,enum=continue,enum=retry,default=stop" validate:"omitempty,oneof=stop continue retry"`
	RetryCount     int     `yaml:"retry_count,omitempty" json:"retry_count,omitempty" jsonschema:"minimum=0" validate:"gte=0"`
	Timeout        string  `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema_description:"Per-attempt limit as a duration such as 30s or 5m"`

	Index   int `yaml:"-" json:"-"` // Position in the workflow list
	Line    int `yaml:"-" json:"-"`
	present keySet
}

// Has reports whether key was set on the step.
func (s Step) Has(key string) bool { return s.present.has(key) }

// Label returns the step name, or step_<index> for unnamed steps.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("step_%d", s.Index)
}

// TimeoutDuration parses Timeout. Zero means no limit.
func (s Step) TimeoutDuration() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must not be negative", s.Timeout)
	}
	return d, nil
}

// Output format names.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatText     = "text"
)

// Output configures how the final context is rendered and where it is saved.
type Output struct {
	Format    string   `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"enum=markdown,enum=json,enum=text,default=markdown"`
	Variables []string `yaml:"variables,omitempty" json:"variables,omitempty"`
	SaveTo    string   `yaml:"save_to,omitempty" json:"save_to,omitempty" jsonschema_description:"Destination path; may contain {{placeholders}}"`
}

// EffectiveFormat returns the configured format, defaulting to markdown.
func (o *Output) EffectiveFormat() string {
	if o == nil || o.Format == "" {
		return FormatMarkdown
	}
	return o.Format
}

// KnownFormat reports whether format is markdown, json or text.
func KnownFormat(format string) bool {
	switch format {
	case FormatMarkdown, FormatJSON, FormatText:
		return true
	}
	return false
}

// IssueKind classifies a structural problem found while loading.
type IssueKind int

const (
	IssueParametersNotList IssueKind = iota
	IssueParameterNotMapping
	IssueWorkflowNotList
	IssueStepNotMapping
	IssueOutputNotMapping
	IssueFieldType
)

// Issue is a structural problem the loader tolerated.
type Issue struct {
	Kind    IssueKind
	Index   int // Item index for per-item issues
	Line    int
	Message string
}

func (i Issue) String() string {
	return i.Message
}

type keySet map[string]bool

func (k keySet) has(key string) bool { return k[key] }
