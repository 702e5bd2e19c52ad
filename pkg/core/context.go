package core

import "time"

// TimestampKey is the context binding seeded with the run start time.
const TimestampKey = "timestamp"

// TimestampLayout formats run and step timestamps (local time, microseconds).
const TimestampLayout = "2006-01-02T15:04:05.000000"

// FormatTimestamp formats t with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Binding is a single name/value pair, used for ordered parameter lists.
type Binding struct {
	Name  string
	Value string
}

// Context holds the variable bindings of one run. Entries are added or
// overwritten, never removed. Insertion order is preserved for rendering.
//
// A Context is owned by a single executor run and is not safe for
// concurrent use.
type Context struct {
	keys   []string
	values map[string]string
}

// NewContext creates a Context seeded with the given bindings.
func NewContext(seed ...Binding) *Context {
	c := &Context{values: make(map[string]string, len(seed))}
	for _, b := range seed {
		c.Set(b.Name, b.Value)
	}
	return c
}

// Set binds name to value.
func (c *Context) Set(name, value string) {
	if _, ok := c.values[name]; !ok {
		c.keys = append(c.keys, name)
	}
	c.values[name] = value
}

// Lookup returns the value bound to name.
func (c *Context) Lookup(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.values[name]
	return v, ok
}

// Get returns the value bound to name, or "" when unbound.
func (c *Context) Get(name string) string {
	v, _ := c.Lookup(name)
	return v
}

// Keys returns the bound names in insertion order.
func (c *Context) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of bindings.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Snapshot returns a copy of the bindings.
func (c *Context) Snapshot() map[string]string {
	out := make(map[string]string, c.Len())
	if c == nil {
		return out
	}
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
