package executor

import (
	"context"
	"errors"
	"time"

	"github.com/devicelab-dev/command-runner/pkg/command"
	"github.com/devicelab-dev/command-runner/pkg/condition"
	"github.com/devicelab-dev/command-runner/pkg/core"
	"github.com/devicelab-dev/command-runner/pkg/logger"
	"github.com/devicelab-dev/command-runner/pkg/vars"
)

// stepRunner executes the steps of a single run against its context.
type stepRunner struct {
	ctx    context.Context
	config RunnerConfig
	invoke core.Invoker
	run    *core.RunResult
	total  int
}

// execute runs one step, appends its StepResult, and returns a non-nil
// error when the run must abort.
func (sr *stepRunner) execute(idx int, step command.Step) error {
	if sr.config.OnStepStart != nil {
		sr.config.OnStepStart(idx, sr.total, step)
	}

	start := sr.config.Now()
	res, abort := sr.visit(idx, step)
	res.Duration = sr.config.Now().Sub(start)
	res.Timestamp = core.FormatTimestamp(sr.config.Now())

	sr.run.Steps = append(sr.run.Steps, res)
	if sr.config.OnStepEnd != nil {
		sr.config.OnStepEnd(idx, step, res)
	}
	return abort
}

func (sr *stepRunner) visit(idx int, step command.Step) (core.StepResult, error) {
	label := step.Label()
	res := core.StepResult{Step: label, Agent: step.Agent, Status: core.StatusPending}

	cond := condition.Parse(step.Condition)
	if w := cond.Warning(); w != "" {
		sr.warn(w)
	}
	holds := cond.Evaluate(sr.run.Context)
	if sr.config.StrictConditions {
		holds = cond.EvaluateStrict(sr.run.Context)
	}
	if !holds {
		sr.transition(label, &res, core.StatusSkipped)
		logger.Info("step %d (%s): skipped, condition not met: %s", idx, label, step.Condition)
		return res, nil
	}

	prompt := vars.Interpolate(step.Prompt, sr.run.Context)
	policy := step.OnError.Effective()
	maxAttempts := 1
	if policy == command.OnErrorRetry {
		maxAttempts += step.RetryCount
	}
	// CheckReady has already rejected unparsable timeouts.
	timeout, _ := step.TimeoutDuration()

	var (
		out string
		err error
	)
	for attempt := 1; ; attempt++ {
		sr.transition(label, &res, core.StatusRunning)
		res.Attempts = attempt

		out, err = sr.attempt(core.Invocation{Step: label, Agent: step.Agent, Prompt: prompt}, timeout)
		if err == nil {
			break
		}

		sr.transition(label, &res, core.StatusFailed)
		logger.Warn("step %d (%s): attempt %d/%d failed: %v", idx, label, attempt, maxAttempts, err)
		if sr.ctx.Err() != nil || attempt >= maxAttempts || !core.Retryable(err) {
			break
		}
		if sr.config.OnRetry != nil {
			sr.config.OnRetry(idx, step, attempt+1, err)
		}
	}

	if err == nil {
		sr.transition(label, &res, core.StatusCompleted)
		res.Result = &out
		if step.OutputVariable != "" && out != "" {
			sr.run.Context.Set(step.OutputVariable, out)
		}
		return res, nil
	}

	res.Error = err.Error()

	if ctxErr := sr.ctx.Err(); ctxErr != nil {
		return res, core.ErrRunCancelled.WithCause(ctxErr)
	}
	if policy == command.OnErrorContinue {
		logger.Info("step %d (%s): on_error=continue, proceeding", idx, label)
		return res, nil
	}
	if policy == command.OnErrorRetry && res.Attempts > 1 {
		logger.Info("step %d (%s): retries exhausted after %d attempts", idx, label, res.Attempts)
	}
	return res, stepError(step, err)
}

// attempt performs a single invocation, bounded by timeout when set.
func (sr *stepRunner) attempt(inv core.Invocation, timeout time.Duration) (string, error) {
	ctx := sr.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := sr.invoke.Invoke(ctx, inv)
	if err == nil {
		return out, nil
	}
	var ee *core.ExecutionError
	if errors.As(err, &ee) {
		return "", err
	}
	if errors.Is(err, context.DeadlineExceeded) && sr.ctx.Err() == nil {
		return "", core.ErrStepTimeout.WithCause(err)
	}
	return "", core.ErrStepExecution.WithCause(err)
}

func (sr *stepRunner) transition(label string, res *core.StepResult, next core.StepStatus) {
	if !res.Status.CanTransition(next) {
		logger.Warn("step %s: unexpected transition %s -> %s", label, res.Status, next)
	}
	logger.Debug("step %s: %s -> %s", label, res.Status, next)
	res.Status = next
}

func (sr *stepRunner) warn(msg string) {
	sr.run.Warnings = append(sr.run.Warnings, msg)
	logger.Warn("%s", msg)
	if sr.config.OnWarning != nil {
		sr.config.OnWarning(msg)
	}
}
