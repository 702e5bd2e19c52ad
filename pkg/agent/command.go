package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/devicelab-dev/command-runner/pkg/core"
	"github.com/devicelab-dev/command-runner/pkg/logger"
	"github.com/devicelab-dev/command-runner/pkg/vars"
)

// CommandConfig configures the external command backend.
type CommandConfig struct {
	// Program is the executable to run, e.g. an agent CLI.
	Program string
	// Args may contain {{agent}}, {{agent_file}}, {{step}} and {{model}}.
	Args []string
	// Timeout bounds each invocation. Zero means no limit.
	Timeout time.Duration
	// Env is appended to the current environment.
	Env []string
	// WorkDir is the working directory of the process.
	WorkDir string
}

// waitDelay bounds how long output pipes are drained after the process
// is killed, in case children still hold them open.
const waitDelay = 2 * time.Second

// Command runs an external program per invocation. The rendered prompt is
// written to stdin; trimmed stdout is the result.
type Command struct {
	dir string
	cfg CommandConfig
}

// NewCommand creates a Command backend reading definitions from dir.
func NewCommand(dir string, cfg CommandConfig) (*Command, error) {
	if cfg.Program == "" {
		return nil, errors.New("command backend requires a program")
	}
	return &Command{dir: dir, cfg: cfg}, nil
}

// Invoke implements core.Invoker.
func (c *Command) Invoke(ctx context.Context, inv core.Invocation) (string, error) {
	def, err := Load(c.dir, inv.Agent)
	if err != nil {
		return "", err
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	argVars := vars.Map{
		"agent":      def.ID,
		"agent_file": def.Path,
		"step":       inv.Step,
		"model":      def.Model,
	}
	args := make([]string, len(c.cfg.Args))
	for i, a := range c.cfg.Args {
		args[i] = vars.Interpolate(a, argVars)
	}

	cmd := exec.CommandContext(ctx, c.cfg.Program, args...) //#nosec G204 -- program comes from user configuration
	cmd.Dir = c.cfg.WorkDir
	if len(c.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), c.cfg.Env...)
	}
	cmd.Stdin = strings.NewReader(inv.Prompt)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(&stderr, logger.GetWriter())

	start := time.Now()
	logger.Debug("agent %s: running %s %v", inv.Agent, c.cfg.Program, args)
	err = cmd.Run()
	logger.Debug("agent %s: exited after %v", inv.Agent, time.Since(start))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", core.ErrStepTimeout.WithCause(ctx.Err())
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", core.ErrStepExecution.WithCause(fmt.Errorf("%s: %w%s", c.cfg.Program, err, stderrTail(stderr.String())))
	}

	return strings.TrimRight(stdout.String(), "\r\n"), nil
}

// stderrTail returns the last line of stderr formatted for an error
// message, or "" when stderr is empty.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return ": " + s
}
