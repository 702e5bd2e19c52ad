// Package executor drives command runs, connecting an agent invoker to the
// context store and the output renderer.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/command-runner/pkg/command"
	"github.com/devicelab-dev/command-runner/pkg/core"
	"github.com/devicelab-dev/command-runner/pkg/logger"
	"github.com/devicelab-dev/command-runner/pkg/report"
)

// RunnerConfig configures the executor.
type RunnerConfig struct {
	// StrictConditions makes unrecognized conditions evaluate false.
	StrictConditions bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// NewRunID returns a run identifier. Defaults to a random UUID.
	NewRunID func() string

	// Live progress callbacks
	OnRunStart  func(runID string, def *command.Definition)
	OnStepStart func(idx, total int, step command.Step)
	OnStepEnd   func(idx int, step command.Step, result core.StepResult)
	OnRetry     func(idx int, step command.Step, attempt int, err error)
	OnWarning   func(msg string)
	OnRunEnd    func(result *core.RunResult)
}

// Runner executes command definitions, one step at a time.
type Runner struct {
	config  RunnerConfig
	invoker core.Invoker
}

// New creates a new Runner.
func New(invoker core.Invoker, cfg RunnerConfig) *Runner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}
	return &Runner{
		config:  cfg,
		invoker: invoker,
	}
}

// Run executes def with the given parameter bindings.
//
// An error is returned only when the run cannot start because the
// definition is not ready. Step failures, aborts and output write failures
// are reported through the returned RunResult. Callers resolve params with
// ResolveParams first.
func (r *Runner) Run(ctx context.Context, def *command.Definition, params []core.Binding) (*core.RunResult, error) {
	if def == nil {
		return nil, errors.New("nil command definition")
	}
	if err := def.CheckReady(); err != nil {
		return nil, err
	}

	start := r.config.Now()
	ctxStore := core.NewContext(params...)
	ctxStore.Set(core.TimestampKey, core.FormatTimestamp(start))

	result := &core.RunResult{
		RunID:     r.config.NewRunID(),
		Name:      def.Metadata.Name,
		Status:    core.StatusCompleted,
		Params:    params,
		Context:   ctxStore,
		StartTime: start,
	}

	logger.Info("run %s: starting %q (%d steps, %d params)", result.RunID, result.Name, len(def.Workflow), len(params))
	if r.config.OnRunStart != nil {
		r.config.OnRunStart(result.RunID, def)
	}

	sr := &stepRunner{
		ctx:    ctx,
		config: r.config,
		invoke: r.invoker,
		run:    result,
		total:  len(def.Workflow),
	}

	for i, step := range def.Workflow {
		if err := ctx.Err(); err != nil {
			result.Status = core.StatusFailed
			result.Err = core.ErrRunCancelled.WithCause(err)
			logger.Warn("run %s: cancelled before step %d", result.RunID, i)
			break
		}

		if abort := sr.execute(i, step); abort != nil {
			result.Status = core.StatusFailed
			result.Err = abort
			logger.Error("run %s: aborted at step %d (%s): %v", result.RunID, i, step.Label(), abort)
			break
		}
	}

	// Output is only produced by runs that visited every step.
	if result.Status == core.StatusCompleted {
		path, err := report.Save(def, result)
		if err != nil {
			result.Status = core.StatusFailed
			result.Err = err
			logger.Error("run %s: %v", result.RunID, err)
		} else if path != "" {
			result.OutputPath = path
			logger.Info("run %s: output saved to %s", result.RunID, path)
		}
	}

	result.Duration = r.config.Now().Sub(start)
	result.ComputeSummary()

	logger.Info("run %s: finished %s in %v (%d completed, %d failed, %d skipped)",
		result.RunID, result.Status, result.Duration,
		result.CompletedSteps, result.FailedSteps, result.SkippedSteps)
	if r.config.OnRunEnd != nil {
		r.config.OnRunEnd(result)
	}

	return result, nil
}

// stepError wraps a step failure that aborted the run.
func stepError(step command.Step, err error) error {
	return fmt.Errorf("step %s failed: %w", step.Label(), err)
}
