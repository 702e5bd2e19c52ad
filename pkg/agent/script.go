package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/command-runner/pkg/core"
	"github.com/devicelab-dev/command-runner/pkg/jsengine"
	"github.com/devicelab-dev/command-runner/pkg/logger"
)

// ScriptExt is the extension of script agents.
const ScriptExt = ".js"

// ScriptEntry is the function a script agent must define:
//
//	function run(prompt, request) { return "..." }
//
// request carries step, agent and instructions. The function may return a
// promise.
const ScriptEntry = "run"

// Script runs agents implemented as JavaScript files in the agents
// directory. Each invocation gets a fresh runtime.
type Script struct {
	Dir string
}

// NewScript creates a Script backend reading scripts from dir.
func NewScript(dir string) *Script {
	return &Script{Dir: dir}
}

// ScriptPath returns the script file path for an agent.
func ScriptPath(dir, id string) string {
	return filepath.Join(dir, id+ScriptExt)
}

// Invoke implements core.Invoker.
func (s *Script) Invoke(ctx context.Context, inv core.Invocation) (string, error) {
	if !ValidID(inv.Agent) {
		return "", invalidID(inv.Agent)
	}
	path := ScriptPath(s.Dir, inv.Agent)
	src, err := os.ReadFile(path) //#nosec G304 -- agent names are validated above
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", core.ErrAgentNotFound.
				WithMessage(fmt.Sprintf("Agent file not found: %s", path)).
				WithDetails(map[string]interface{}{"agent": inv.Agent, "path": path})
		}
		return "", fmt.Errorf("failed to read agent script %s: %w", path, err)
	}

	request := map[string]interface{}{
		"step":  inv.Step,
		"agent": inv.Agent,
	}
	// The markdown definition is optional for script agents.
	if def, err := Load(s.Dir, inv.Agent); err == nil {
		request["instructions"] = def.Body
		request["model"] = def.Model
	}

	engine := jsengine.New()
	defer engine.Close()

	if err := engine.RunScript(ctx, path, string(src)); err != nil {
		return "", s.failure(ctx, err)
	}
	value, err := engine.Call(ctx, ScriptEntry, inv.Prompt, request)
	for _, line := range engine.Logs() {
		logger.Debug("agent %s: %s", inv.Agent, line)
	}
	if err != nil {
		return "", s.failure(ctx, err)
	}
	return scriptResult(value)
}

func (s *Script) failure(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.ErrStepTimeout.WithCause(err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return core.ErrStepExecution.WithCause(err)
}

// scriptResult converts a script's return value to a result string.
// Strings pass through; other values are JSON encoded.
func scriptResult(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", core.ErrStepExecution.WithCause(fmt.Errorf("script result is not serializable: %w", err))
	}
	return string(data), nil
}
