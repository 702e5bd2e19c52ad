// Package vars implements {{name}} placeholder substitution.
package vars

import (
	"regexp"
)

// placeholder matches {{identifier}} where identifier is a word token.
var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Lookuper resolves variable names. *core.Context implements it.
type Lookuper interface {
	Lookup(name string) (string, bool)
}

// Map is a Lookuper backed by a plain map.
type Map map[string]string

// Lookup implements Lookuper.
func (m Map) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Undefined returns the sentinel that replaces an unbound placeholder.
func Undefined(name string) string {
	return "{{UNDEFINED:" + name + "}}"
}

// Interpolate replaces every {{name}} in text with its binding. Unbound
// names become {{UNDEFINED:name}}. Substitution is a single pass: inserted
// values are never expanded again.
func Interpolate(text string, vars Lookuper) string {
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-2]
		if v, ok := vars.Lookup(name); ok {
			return v
		}
		return Undefined(name)
	})
}

// References returns the placeholder names in text, in order of first
// appearance, without duplicates.
func References(text string) []string {
	matches := placeholder.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
