// Package agent resolves agent definitions and provides the invocation
// backends that execute a rendered prompt on behalf of a step.
//
// An agent is identified by name and defined by <agents-dir>/<name>.md: an
// optional YAML frontmatter block followed by the agent's instructions.
package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/command-runner/pkg/core"
)

const (
	// DefaultDir is where agent definitions live unless configured otherwise.
	DefaultDir = ".claude/agents"

	// FileExt is the extension of agent definition files.
	FileExt = ".md"

	frontMatterDelimiter = "---"
)

// Definition is a parsed agent file.
type Definition struct {
	ID          string `yaml:"-"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Tools       Tools  `yaml:"tools"`
	Model       string `yaml:"model"`
	Color       string `yaml:"color"`

	Body string `yaml:"-"` // Instructions following the frontmatter
	Path string `yaml:"-"`
}

// Tools accepts either a YAML list or a comma separated string.
type Tools []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Tools) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var out Tools
		for _, part := range strings.Split(node.Value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*t = out
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = list
		return nil
	}
	return fmt.Errorf("line %d: tools must be a list or a comma separated string", node.Line)
}

// Path returns the definition file path for an agent.
func Path(dir, id string) string {
	return filepath.Join(dir, id+FileExt)
}

// ValidID reports whether id can name a file inside the agents directory.
func ValidID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

func invalidID(id string) error {
	return core.ErrAgentNotFound.WithMessage(fmt.Sprintf("invalid agent name %q", id))
}

// Exists reports whether the agent definition file exists.
func Exists(dir, id string) bool {
	if !ValidID(id) {
		return false
	}
	info, err := os.Stat(Path(dir, id))
	return err == nil && !info.IsDir()
}

// Load reads and parses an agent definition. A missing file returns an
// error matching core.ErrAgentNotFound.
func Load(dir, id string) (*Definition, error) {
	if !ValidID(id) {
		return nil, invalidID(id)
	}

	path := Path(dir, id)
	data, err := os.ReadFile(path) //#nosec G304 -- agent names are validated above
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.ErrAgentNotFound.
				WithMessage(fmt.Sprintf("Agent file not found: %s", path)).
				WithDetails(map[string]interface{}{"agent": id, "path": path})
		}
		return nil, fmt.Errorf("failed to read agent %s: %w", id, err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", id, err)
	}
	def.ID = id
	def.Path = path
	if def.Name == "" {
		def.Name = id
	}
	return def, nil
}

// Parse parses agent file content. Files without frontmatter are all body.
func Parse(data []byte) (*Definition, error) {
	frontmatter, body, ok := extractFrontmatter(string(data))
	def := &Definition{Body: body}
	if !ok {
		return def, nil
	}
	if err := yaml.Unmarshal([]byte(frontmatter), def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML frontmatter: %w", err)
	}
	return def, nil
}

func extractFrontmatter(content string) (frontmatter, body string, ok bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, frontMatterDelimiter) {
		return "", trimmed, false
	}

	lines := strings.Split(trimmed, "\n")
	if strings.TrimSpace(lines[0]) != frontMatterDelimiter {
		return "", trimmed, false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontMatterDelimiter {
			frontmatter = strings.Join(lines[1:i], "\n")
			body = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			return frontmatter, body, true
		}
	}
	return "", trimmed, false
}
