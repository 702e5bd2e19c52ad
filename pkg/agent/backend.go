package agent

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/command-runner/pkg/core"
)

// Backend names.
const (
	BackendSimulated = "simulated"
	BackendCommand   = "command"
	BackendLLM       = "llm"
	BackendScript    = "script"
)

// Backends lists the selectable backend names.
var Backends = []string{BackendSimulated, BackendCommand, BackendLLM, BackendScript}

// Options selects and configures a backend.
type Options struct {
	Backend string
	Dir     string
	DryRun  bool
	Command CommandConfig
	LLM     LLMConfig
}

// New creates the invoker for opts.Backend. Dry runs always use the
// simulated backend.
func New(ctx context.Context, opts Options) (core.Invoker, error) {
	dir := opts.Dir
	if dir == "" {
		dir = DefaultDir
	}
	if opts.DryRun {
		return NewSimulated(dir), nil
	}

	switch opts.Backend {
	case BackendSimulated, "":
		return NewSimulated(dir), nil
	case BackendCommand:
		return NewCommand(dir, opts.Command)
	case BackendLLM:
		return NewLLMFromConfig(ctx, dir, opts.LLM)
	case BackendScript:
		return NewScript(dir), nil
	}
	return nil, fmt.Errorf("unknown backend %q (available: %v)", opts.Backend, Backends)
}
