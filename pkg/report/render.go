package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/devicelab-dev/command-runner/pkg/command"
	"github.com/devicelab-dev/command-runner/pkg/core"
)

// NotAvailable is rendered for output variables with no binding.
const NotAvailable = "N/A"

// Render renders the run's final context in the document's output format.
// Unknown formats fall back to text.
func Render(def *command.Definition, run *core.RunResult) ([]byte, error) {
	var variables []string
	if def.Output != nil {
		variables = def.Output.Variables
	}

	switch def.Output.EffectiveFormat() {
	case command.FormatMarkdown:
		return []byte(renderMarkdown(def.Metadata, variables, run)), nil
	case command.FormatJSON:
		return renderJSON(variables, run)
	default:
		return []byte(renderText(variables, run.Context)), nil
	}
}

func renderMarkdown(meta command.Metadata, variables []string, run *core.RunResult) string {
	executed, ok := run.Context.Lookup(core.TimestampKey)
	if !ok {
		executed = NotAvailable
	}

	lines := []string{
		"# " + meta.Name,
		"",
		"**Description:** " + meta.Description,
		"**Executed:** " + executed,
		"",
		"## Parameters",
		"",
	}
	for _, p := range run.Params {
		lines = append(lines, fmt.Sprintf("- **%s:** %s", p.Name, p.Value))
	}

	lines = append(lines, "", "## Results", "")
	for _, name := range variables {
		value, ok := run.Context.Lookup(name)
		if !ok {
			value = NotAvailable
		}
		lines = append(lines, "### "+name, "", "```", value, "```", "")
	}

	lines = append(lines, "", "## Execution Steps", "")
	for i, s := range run.Steps {
		lines = append(lines,
			fmt.Sprintf("### Step %d: %s", i+1, s.Step),
			"",
			"- **Agent:** "+s.Agent,
			"- **Timestamp:** "+s.Timestamp,
			"",
		)
	}

	return strings.Join(lines, "\n")
}

func renderText(variables []string, ctx *core.Context) string {
	blocks := make([]string, 0, len(variables))
	for _, name := range variables {
		value, ok := ctx.Lookup(name)
		if !ok {
			value = NotAvailable
		}
		blocks = append(blocks, name+":\n"+value+"\n")
	}
	return strings.Join(blocks, "\n")
}

// jsonOutput is the json format document.
type jsonOutput struct {
	Context   selectedContext   `json:"context"`
	Steps     []core.StepResult `json:"steps"`
	Timestamp *string           `json:"timestamp"`
}

// selectedContext encodes the chosen variables in declared order, with
// null for unbound ones.
type selectedContext struct {
	names []string
	ctx   *core.Context
}

func (s selectedContext) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, ok := s.ctx.Lookup(name)
		if !ok {
			buf.WriteString("null")
			continue
		}
		encoded, err := marshalNoEscape(value)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func renderJSON(variables []string, run *core.RunResult) ([]byte, error) {
	steps := run.Steps
	if steps == nil {
		steps = []core.StepResult{}
	}
	out := jsonOutput{
		Context: selectedContext{names: dedupe(variables), ctx: run.Context},
		Steps:   steps,
	}
	if ts, ok := run.Context.Lookup(core.TimestampKey); ok {
		out.Timestamp = &ts
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode json output: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// dedupe keeps the first occurrence of each name; a JSON object cannot
// repeat keys.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
