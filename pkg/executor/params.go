package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devicelab-dev/command-runner/pkg/command"
	"github.com/devicelab-dev/command-runner/pkg/core"
)

// ParseAssignments parses key=value pairs as given on the command line.
// The value may itself contain '='.
func ParseAssignments(pairs []string) ([]core.Binding, error) {
	out := make([]core.Binding, 0, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("Invalid parameter format: %s (expected key=value)", p)
		}
		out = append(out, core.Binding{Name: key, Value: value})
	}
	return out, nil
}

// BindingsFromMap converts a decoded map into bindings sorted by name.
// Non-string values are formatted with fmt.Sprint.
func BindingsFromMap(m map[string]interface{}) []core.Binding {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]core.Binding, 0, len(keys))
	for _, k := range keys {
		v := m[k]
		s, ok := v.(string)
		if !ok {
			if v == nil {
				s = ""
			} else {
				s = fmt.Sprint(v)
			}
		}
		out = append(out, core.Binding{Name: k, Value: s})
	}
	return out
}

// ResolveParams merges parameter layers over the declared defaults. Later
// layers win. Declared parameters come first in declaration order,
// followed by undeclared names in the order they were first supplied.
//
// A declared parameter with required: true and no value from any layer
// returns an error matching core.ErrMissingField.
func ResolveParams(specs []command.Parameter, layers ...[]core.Binding) ([]core.Binding, error) {
	values := make(map[string]string)
	var order []string
	set := func(name, value string) {
		if _, ok := values[name]; !ok {
			order = append(order, name)
		}
		values[name] = value
	}

	declared := make(map[string]bool, len(specs))
	for _, p := range specs {
		if p.Name == "" {
			continue
		}
		declared[p.Name] = true
		if v, ok := p.DefaultValue(); ok {
			set(p.Name, v)
		}
	}

	for _, layer := range layers {
		for _, b := range layer {
			set(b.Name, b.Value)
		}
	}

	var missing []string
	for _, p := range specs {
		if p.Required && p.Name != "" {
			if _, ok := values[p.Name]; !ok {
				missing = append(missing, p.Name)
			}
		}
	}
	if len(missing) > 0 {
		return nil, core.ErrMissingField.
			WithMessage("missing required parameter: " + strings.Join(missing, ", ")).
			WithDetails(map[string]interface{}{"parameters": missing})
	}

	out := make([]core.Binding, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, p := range specs {
		if v, ok := values[p.Name]; ok && !seen[p.Name] {
			out = append(out, core.Binding{Name: p.Name, Value: v})
			seen[p.Name] = true
		}
	}
	for _, name := range order {
		if !declared[name] && !seen[name] {
			out = append(out, core.Binding{Name: name, Value: values[name]})
			seen[name] = true
		}
	}
	return out, nil
}
