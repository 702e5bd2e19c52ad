package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/devicelab-dev/command-runner/pkg/core"
)

// LoadParams reads a parameters file: a JSON object that may contain
// comments and trailing commas. String values are used as-is; other values
// keep their JSON text. Bindings are sorted by name.
func LoadParams(path string) ([]core.Binding, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided params file
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}
	return ParseParams(data)
}

// ParseParams parses parameters file content.
func ParseParams(data []byte) ([]core.Binding, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("invalid params file: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]core.Binding, 0, len(names))
	for _, name := range names {
		value := raw[name]
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			out = append(out, core.Binding{Name: name, Value: s})
			continue
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			out = append(out, core.Binding{Name: name, Value: ""})
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		out = append(out, core.Binding{Name: name, Value: compact.String()})
	}
	return out, nil
}
