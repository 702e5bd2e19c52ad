package core

import "context"

// Invocation is a single request to an agent.
type Invocation struct {
	Step   string // Step name, for diagnostics
	Agent  string // Agent identifier
	Prompt string // Rendered prompt
}

// Invoker delegates a rendered prompt to a named agent. Invoke blocks until
// the agent has produced a result or failed; the executor never starts the
// next step while a call is in flight.
//
// Implementations report an unresolvable agent with an error matching
// ErrAgentNotFound. Any other error is treated as a step execution failure.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, inv Invocation) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, inv Invocation) (string, error) {
	return f(ctx, inv)
}
