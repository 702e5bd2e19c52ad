// Package condition parses and evaluates step conditions. Two forms are
// recognized:
//
//	<name> contains '<text>'   case-insensitive substring match
//	<name> equals '<text>'     exact match
//
// An empty condition always holds. Anything else is Unrecognized and, by
// default, also holds; callers surface Warning to the user.
package condition

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	containsPattern = regexp.MustCompile(`^(\w+)\s+contains\s+'([^']+)'`)
	equalsPattern   = regexp.MustCompile(`^(\w+)\s+equals\s+'([^']+)'`)
)

// Kind identifies the form of a condition.
type Kind int

const (
	Always Kind = iota
	Contains
	Equals
	Unrecognized
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case Always:
		return "always"
	case Contains:
		return "contains"
	case Equals:
		return "equals"
	case Unrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Lookuper resolves variable names. *core.Context implements it.
type Lookuper interface {
	Lookup(name string) (string, bool)
}

// Condition is a parsed condition expression.
type Condition struct {
	Kind     Kind
	Variable string // Contains, Equals
	Text     string // Contains, Equals
	Source   string // Original expression
}

// Parse parses expr. It never fails: unsupported expressions yield an
// Unrecognized condition.
func Parse(expr string) Condition {
	if expr == "" {
		return Condition{Kind: Always}
	}
	if m := containsPattern.FindStringSubmatch(expr); m != nil {
		return Condition{Kind: Contains, Variable: m[1], Text: m[2], Source: expr}
	}
	if m := equalsPattern.FindStringSubmatch(expr); m != nil {
		return Condition{Kind: Equals, Variable: m[1], Text: m[2], Source: expr}
	}
	return Condition{Kind: Unrecognized, Source: expr}
}

// Evaluate reports whether the condition holds against vars. Unbound
// variables compare as the empty string. Unrecognized conditions hold.
func (c Condition) Evaluate(vars Lookuper) bool {
	switch c.Kind {
	case Contains:
		value, _ := vars.Lookup(c.Variable)
		return strings.Contains(strings.ToLower(value), strings.ToLower(c.Text))
	case Equals:
		value, _ := vars.Lookup(c.Variable)
		return value == c.Text
	default:
		return true
	}
}

// EvaluateStrict is Evaluate, except Unrecognized conditions do not hold.
func (c Condition) EvaluateStrict(vars Lookuper) bool {
	if c.Kind == Unrecognized {
		return false
	}
	return c.Evaluate(vars)
}

// Warning returns the diagnostic for an Unrecognized condition, or "".
func (c Condition) Warning() string {
	if c.Kind != Unrecognized {
		return ""
	}
	return fmt.Sprintf("Unsupported condition format: %s", c.Source)
}
