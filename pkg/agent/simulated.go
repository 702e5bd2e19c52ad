package agent

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/command-runner/pkg/core"
)

// Simulated resolves the agent definition and returns a placeholder result
// instead of doing any work. It is the default backend and the one used
// for dry runs.
type Simulated struct {
	Dir string
}

// NewSimulated creates a Simulated backend reading definitions from dir.
func NewSimulated(dir string) *Simulated {
	return &Simulated{Dir: dir}
}

// Invoke implements core.Invoker.
func (s *Simulated) Invoke(ctx context.Context, inv core.Invocation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ValidID(inv.Agent) {
		return "", invalidID(inv.Agent)
	}
	if !Exists(s.Dir, inv.Agent) {
		path := Path(s.Dir, inv.Agent)
		return "", core.ErrAgentNotFound.
			WithMessage(fmt.Sprintf("Agent file not found: %s", path)).
			WithDetails(map[string]interface{}{"agent": inv.Agent, "path": path})
	}
	return SimulatedOutput(inv.Agent, inv.Step), nil
}

// SimulatedOutput is the placeholder result returned for a step.
func SimulatedOutput(agent, step string) string {
	return fmt.Sprintf("[Simulated output from %s for step '%s']", agent, step)
}
