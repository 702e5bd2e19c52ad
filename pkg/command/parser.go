package command

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/command-runner/pkg/core"
)

// Divider separates the document sections.
const Divider = "---"

const missingFrontmatter = "invalid document structure: missing frontmatter"

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Unwrap lets errors.Is(err, core.ErrDocumentFormat) match parse failures.
func (e *ParseError) Unwrap() error {
	return core.ErrDocumentFormat
}

// IsMissingFrontmatter reports whether the document had fewer than three
// sections.
func (e *ParseError) IsMissingFrontmatter() bool {
	return e.Message == missingFrontmatter
}

// ParseFile parses a single command document.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided command file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses command document content. The content must hold three
// divider-separated sections: an ignored leading section, the metadata
// mapping, and the body mapping with parameters, workflow and output.
//
// Parse only enforces structure. Missing fields are left for the validator
// and the executor's readiness check.
func Parse(data []byte, sourcePath string) (*Definition, error) {
	sections := splitSections(string(data))
	if len(sections) < 3 {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: missingFrontmatter,
		}
	}

	def := &Definition{SourcePath: sourcePath}

	meta, err := parseMapping(sections[1], sourcePath, "metadata")
	if err != nil {
		return nil, err
	}
	if err := decodeMetadata(meta, def); err != nil {
		return nil, err
	}

	body, err := parseMapping(sections[2], sourcePath, "body")
	if err != nil {
		return nil, err
	}
	decodeBody(body, def)

	return def, nil
}

type section struct {
	text      string
	startLine int
}

// blockScalarHeader matches a mapping key whose value is a block scalar
// indicator such as "|", ">-" or "|2+", with an optional trailing comment.
var blockScalarHeader = regexp.MustCompile(`^(\s*)(?:-\s+)?[^\s#'"][^:#]*:[ \t]+[|>](?:[1-9][+-]?|[+-][1-9]?)?[ \t]*(?:#.*)?$`)

// splitSections splits content on divider lines. Only the first two
// dividers count; everything after the second belongs to the body. Block
// scalar content is indented past its key, so a divider inside a block
// scalar is never at column 0 and a column 0 line always ends the block.
func splitSections(content string) []section {
	var parts []section
	var current strings.Builder
	start := 1
	inBlock := false
	keyIndent := 0

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		line := strings.TrimRight(line, "\r")

		if len(parts) < 2 {
			trimmed := strings.TrimSpace(line)
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if inBlock && trimmed != "" && indent <= keyIndent {
				inBlock = false
			}

			if !inBlock && strings.TrimRight(line, " \t") == Divider {
				parts = append(parts, section{text: current.String(), startLine: start})
				current.Reset()
				start = i + 2
				continue
			}

			if !inBlock {
				if m := blockScalarHeader.FindStringSubmatch(line); m != nil {
					inBlock = true
					keyIndent = len(m[1])
				}
			}
		}

		current.WriteString(lines[i])
		current.WriteString("\n")
	}

	return append(parts, section{text: current.String(), startLine: start})
}

// parseMapping parses a section into a mapping node. The section is padded
// so node lines match the document.
func parseMapping(s section, path, name string) (*yaml.Node, error) {
	padded := strings.Repeat("\n", s.startLine-1) + s.text

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(padded), &doc); err != nil {
		return nil, &ParseError{
			Path:    path,
			Line:    s.startLine,
			Message: fmt.Sprintf("invalid %s section: %v", name, err),
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ParseError{
			Path:    path,
			Line:    s.startLine,
			Message: fmt.Sprintf("%s section is empty", name),
		}
	}
	node := doc.Content[0]
	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Path:    path,
			Line:    node.Line,
			Message: fmt.Sprintf("%s section must be a mapping", name),
		}
	}
	return node, nil
}

func decodeMetadata(node *yaml.Node, def *Definition) error {
	if err := node.Decode(&def.Metadata); err != nil {
		var typeErr *yaml.TypeError
		if !errors.As(err, &typeErr) {
			return wrapParseError(def.SourcePath, node.Line, err)
		}
		for _, msg := range typeErr.Errors {
			def.Issues = append(def.Issues, Issue{Kind: IssueFieldType, Line: node.Line, Message: "metadata: " + msg})
		}
		def.Metadata.mistyped = make(keySet)
		for i := 0; i < len(node.Content)-1; i += 2 {
			if node.Content[i+1].Kind != yaml.ScalarNode {
				def.Metadata.mistyped[node.Content[i].Value] = true
			}
		}
	}
	def.Metadata.present = mappingKeys(node)
	return nil
}

func decodeBody(node *yaml.Node, def *Definition) {
	for i := 0; i < len(node.Content)-1; i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "parameters":
			decodeParameters(value, def)
		case "workflow":
			decodeWorkflow(value, def)
		case "output":
			decodeOutput(value, def)
		}
	}
}

func decodeParameters(node *yaml.Node, def *Definition) {
	if isNull(node) {
		return
	}
	if node.Kind != yaml.SequenceNode {
		def.addIssue(IssueParametersNotList, 0, node.Line, "Parameters must be a list")
		return
	}
	for i, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			def.addIssue(IssueParameterNotMapping, i, item.Line, fmt.Sprintf("Parameter %d must be a dictionary", i))
			continue
		}
		var p Parameter
		def.decodeItem(item, &p, fmt.Sprintf("Parameter %d", i), i)
		p.Index = i
		p.Line = item.Line
		p.present = mappingKeys(item)
		def.Parameters = append(def.Parameters, p)
	}
}

func decodeWorkflow(node *yaml.Node, def *Definition) {
	if isNull(node) {
		return
	}
	if node.Kind != yaml.SequenceNode {
		def.addIssue(IssueWorkflowNotList, 0, node.Line, "Workflow must be a list")
		return
	}
	for i, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			def.addIssue(IssueStepNotMapping, i, item.Line, fmt.Sprintf("Workflow step %d must be a dictionary", i))
			continue
		}
		var s Step
		def.decodeItem(item, &s, fmt.Sprintf("Step %d", i), i)
		s.Index = i
		s.Line = item.Line
		s.present = mappingKeys(item)
		def.Workflow = append(def.Workflow, s)
	}
}

func decodeOutput(node *yaml.Node, def *Definition) {
	if isNull(node) {
		return
	}
	if node.Kind != yaml.MappingNode {
		def.addIssue(IssueOutputNotMapping, 0, node.Line, "Output must be a dictionary")
		return
	}
	if len(node.Content) == 0 {
		return
	}
	var out Output
	def.decodeItem(node, &out, "Output", 0)
	def.Output = &out
}

// decodeItem decodes a mapping, keeping whatever fields decoded cleanly and
// recording type mismatches as issues.
func (d *Definition) decodeItem(node *yaml.Node, v interface{}, label string, index int) {
	err := node.Decode(v)
	if err == nil {
		return
	}
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		for _, msg := range typeErr.Errors {
			d.addIssue(IssueFieldType, index, node.Line, fmt.Sprintf("%s: %s", label, msg))
		}
		return
	}
	d.addIssue(IssueFieldType, index, node.Line, fmt.Sprintf("%s: %v", label, err))
}

func (d *Definition) addIssue(kind IssueKind, index, line int, msg string) {
	d.Issues = append(d.Issues, Issue{Kind: kind, Index: index, Line: line, Message: msg})
}

func mappingKeys(node *yaml.Node) keySet {
	keys := make(keySet, len(node.Content)/2)
	for i := 0; i < len(node.Content)-1; i += 2 {
		keys[node.Content[i].Value] = true
	}
	return keys
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}

func wrapParseError(path string, line int, err error) error {
	return &ParseError{
		Path:    path,
		Line:    line,
		Message: err.Error(),
	}
}
