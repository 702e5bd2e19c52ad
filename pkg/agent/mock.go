package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/command-runner/pkg/core"
)

// MockConfig configures mock behavior.
type MockConfig struct {
	// FailOnCall makes call N fail (1-indexed). 0 = never fail.
	FailOnCall int
	// FailAgents makes the listed agents fail; see Invoke.
	FailAgents map[string]int
	// MissingAgents are reported as not found.
	MissingAgents []string
	// Responses maps agent name to its result. Agents without an entry
	// return "<agent>:<prompt>".
	Responses map[string]string
	// Delay is applied to every call and honours cancellation.
	Delay time.Duration
}

// Mock is an in-memory invoker for tests and demos. It records every call.
type Mock struct {
	Config MockConfig

	mu       sync.Mutex
	calls    []core.Invocation
	failures map[string]int
}

// NewMock creates a mock invoker.
func NewMock(cfg MockConfig) *Mock {
	return &Mock{Config: cfg, failures: make(map[string]int)}
}

// Invoke implements core.Invoker.
func (m *Mock) Invoke(ctx context.Context, inv core.Invocation) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, inv)
	n := len(m.calls)
	m.mu.Unlock()

	if m.Config.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Config.Delay):
		}
	}

	for _, a := range m.Config.MissingAgents {
		if a == inv.Agent {
			return "", core.ErrAgentNotFound.WithMessage(fmt.Sprintf("Agent file not found: %s", inv.Agent))
		}
	}

	if m.Config.FailOnCall > 0 && n == m.Config.FailOnCall {
		return "", core.ErrStepExecution.WithCause(fmt.Errorf("mock failure on call %d", n))
	}

	// FailAgents values count failures before the agent starts succeeding;
	// a negative value fails forever.
	if limit, ok := m.Config.FailAgents[inv.Agent]; ok {
		m.mu.Lock()
		failed := m.failures[inv.Agent]
		fail := limit < 0 || failed < limit
		if fail {
			m.failures[inv.Agent] = failed + 1
		}
		m.mu.Unlock()
		if fail {
			return "", core.ErrStepExecution.WithCause(fmt.Errorf("mock failure for agent %s", inv.Agent))
		}
	}

	if r, ok := m.Config.Responses[inv.Agent]; ok {
		return r, nil
	}
	return inv.Agent + ":" + inv.Prompt, nil
}

// Calls returns the recorded invocations in order.
func (m *Mock) Calls() []core.Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Invocation, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of recorded invocations.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
