package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devicelab-dev/command-runner/pkg/command"
	"github.com/devicelab-dev/command-runner/pkg/core"
)

// fakeInvoker implements core.Invoker for testing.
type fakeInvoker struct {
	invokeFunc func(ctx context.Context, inv core.Invocation) (string, error)

	mu    sync.Mutex
	calls []core.Invocation
}

func (f *fakeInvoker) Invoke(ctx context.Context, inv core.Invocation) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()
	if f.invokeFunc != nil {
		return f.invokeFunc(ctx, inv)
	}
	return "out:" + inv.Step, nil
}

func (f *fakeInvoker) stepsCalled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Step)
	}
	return out
}

var fixedStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)

func testConfig() RunnerConfig {
	return RunnerConfig{
		Now:      func() time.Time { return fixedStart },
		NewRunID: func() string { return "run-1" },
	}
}

func parseDoc(t *testing.T, body string) *command.Definition {
	t.Helper()
	def, err := command.Parse([]byte("---\nname: test\ndescription: test command\n---\n"+body), "test.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return def
}

func failWith(steps ...string) func(ctx context.Context, inv core.Invocation) (string, error) {
	return func(ctx context.Context, inv core.Invocation) (string, error) {
		for _, s := range steps {
			if inv.Step == s {
				return "", core.ErrStepExecution.WithMessage("agent crashed")
			}
		}
		return "out:" + inv.Step, nil
	}
}

const threeSteps = `
workflow:
  - step: one
    agent: a
    prompt: first
    output_variable: first
  - step: two
    agent: b
    prompt: second after {{first}}
    output_variable: second
    on_error: %s
  - step: three
    agent: c
    prompt: third after {{second}}
`

func threeStepDoc(t *testing.T, policy string) *command.Definition {
	return parseDoc(t, strings.Replace(threeSteps, "%s", policy, 1))
}

func TestRunner_Run_AllCompleted(t *testing.T) {
	inv := &fakeInvoker{}
	runner := New(inv, testConfig())

	result, err := runner.Run(context.Background(), threeStepDoc(t, "stop"), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !result.Success() {
		t.Fatalf("expected success, got %s (%v)", result.Status, result.Err)
	}
	if result.RunID != "run-1" || result.Name != "test" {
		t.Errorf("RunID/Name = %q/%q", result.RunID, result.Name)
	}
	if len(result.Steps) != 3 || result.CompletedSteps != 3 {
		t.Fatalf("steps = %d completed = %d", len(result.Steps), result.CompletedSteps)
	}
	if got := inv.calls[1].Prompt; got != "second after out:one" {
		t.Errorf("step two prompt = %q", got)
	}
	if got := inv.calls[2].Prompt; got != "third after out:two" {
		t.Errorf("step three prompt = %q", got)
	}
	if result.Context.Get("second") != "out:two" {
		t.Errorf("context second = %q", result.Context.Get("second"))
	}
	if result.Steps[0].Output() != "out:one" || result.Steps[0].Agent != "a" {
		t.Errorf("first result = %+v", result.Steps[0])
	}
	if result.Steps[0].Timestamp != core.FormatTimestamp(fixedStart) {
		t.Errorf("timestamp = %q", result.Steps[0].Timestamp)
	}
}

func TestRunner_Run_StopAbortsRun(t *testing.T) {
	inv := &fakeInvoker{invokeFunc: failWith("two")}

	result, err := New(inv, testConfig()).Run(context.Background(), threeStepDoc(t, "stop"), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Success() {
		t.Fatal("expected failure")
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(result.Steps))
	}
	if got := inv.stepsCalled(); strings.Join(got, ",") != "one,two" {
		t.Errorf("invoked = %v, step three must not run", got)
	}
	failed := result.Steps[1]
	if failed.Status != core.StatusFailed || failed.Result != nil || failed.Error == "" {
		t.Errorf("failed result = %+v", failed)
	}
	if _, ok := result.Context.Lookup("second"); ok {
		t.Error("output variable bound for failed step")
	}
	if !errors.Is(result.Err, core.ErrStepExecution) {
		t.Errorf("Err = %v, want ErrStepExecution", result.Err)
	}
}

func TestRunner_Run_DefaultPolicyIsStop(t *testing.T) {
	def := parseDoc(t, `
workflow:
  - step: one
    agent: a
    prompt: p
  - step: two
    agent: b
    prompt: p
`)
	inv := &fakeInvoker{invokeFunc: failWith("one")}

	result, _ := New(inv, testConfig()).Run(context.Background(), def, nil)
	if result.Success() || len(result.Steps) != 1 {
		t.Errorf("status = %s steps = %d, want failure after 1", result.Status, len(result.Steps))
	}
}

func TestRunner_Run_ContinueProceeds(t *testing.T) {
	inv := &fakeInvoker{invokeFunc: failWith("two")}

	result, err := New(inv, testConfig()).Run(context.Background(), threeStepDoc(t, "continue"), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !result.Success() {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("expected 3 step results, got %d", len(result.Steps))
	}
	if result.Steps[1].Result != nil {
		t.Errorf("failed step result = %v, want absent", *result.Steps[1].Result)
	}
	if got := inv.calls[2].Prompt; got != "third after {{UNDEFINED:second}}" {
		t.Errorf("step three prompt = %q", got)
	}
	if result.FailedSteps != 1 || result.CompletedSteps != 2 {
		t.Errorf("summary completed=%d failed=%d", result.CompletedSteps, result.FailedSteps)
	}
}

func retryDoc(t *testing.T, retries int) *command.Definition {
	return parseDoc(t, `
workflow:
  - step: flaky
    agent: a
    prompt: p
    output_variable: v
    on_error: retry
    retry_count: `+strconv.Itoa(retries)+`
  - step: after
    agent: b
    prompt: "{{v}}"
`)
}

func TestRunner_Run_RetrySucceeds(t *testing.T) {
	failures := 2
	inv := &fakeInvoker{invokeFunc: func(ctx context.Context, inv core.Invocation) (string, error) {
		if inv.Step == "flaky" && failures > 0 {
			failures--
			return "", errors.New("transient")
		}
		return "ok", nil
	}}
	var retries []int
	cfg := testConfig()
	cfg.OnRetry = func(idx int, step command.Step, attempt int, err error) {
		retries = append(retries, attempt)
	}

	result, _ := New(inv, cfg).Run(context.Background(), retryDoc(t, 2), nil)

	if !result.Success() {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if result.Steps[0].Attempts != 3 || result.Steps[0].Status != core.StatusCompleted {
		t.Errorf("flaky result = %+v", result.Steps[0])
	}
	if len(retries) != 2 || retries[0] != 2 || retries[1] != 3 {
		t.Errorf("retry callbacks = %v", retries)
	}
	if result.Context.Get("v") != "ok" {
		t.Errorf("v = %q", result.Context.Get("v"))
	}
}

func TestRunner_Run_RetryExhaustedStops(t *testing.T) {
	inv := &fakeInvoker{invokeFunc: failWith("flaky")}

	result, _ := New(inv, testConfig()).Run(context.Background(), retryDoc(t, 2), nil)

	if result.Success() {
		t.Fatal("expected failure after retries")
	}
	if len(inv.calls) != 3 {
		t.Errorf("attempts = %d, want 1 + retry_count = 3", len(inv.calls))
	}
	if len(result.Steps) != 1 || result.Steps[0].Attempts != 3 {
		t.Errorf("steps = %+v", result.Steps)
	}
}

func TestRunner_Run_RetryCountTwoDigits(t *testing.T) {
	inv := &fakeInvoker{invokeFunc: failWith("flaky")}

	result, _ := New(inv, testConfig()).Run(context.Background(), retryDoc(t, 12), nil)
	if result.Success() || len(inv.calls) != 13 {
		t.Errorf("success=%v calls=%d, want 13", result.Success(), len(inv.calls))
	}
}

func TestRunner_Run_RetryZeroBehavesLikeStop(t *testing.T) {
	inv := &fakeInvoker{invokeFunc: failWith("flaky")}

	result, _ := New(inv, testConfig()).Run(context.Background(), retryDoc(t, 0), nil)
	if result.Success() || len(inv.calls) != 1 {
		t.Errorf("success=%v calls=%d", result.Success(), len(inv.calls))
	}
}

func TestRunner_Run_AgentNotFoundNotRetried(t *testing.T) {
	inv := &fakeInvoker{invokeFunc: func(ctx context.Context, inv core.Invocation) (string, error) {
		return "", core.ErrAgentNotFound.WithMessage("Agent file not found: a.md")
	}}

	result, _ := New(inv, testConfig()).Run(context.Background(), retryDoc(t, 3), nil)

	if len(inv.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(inv.calls))
	}
	if !errors.Is(result.Err, core.ErrAgentNotFound) {
		t.Errorf("Err = %v, want ErrAgentNotFound", result.Err)
	}
}

func TestRunner_Run_AgentNotFoundWithContinue(t *testing.T) {
	def := parseDoc(t, `
workflow:
  - step: missing
    agent: ghost
    prompt: p
    on_error: continue
  - step: next
    agent: real
    prompt: p
`)
	inv := &fakeInvoker{invokeFunc: func(ctx context.Context, inv core.Invocation) (string, error) {
		if inv.Agent == "ghost" {
			return "", core.ErrAgentNotFound
		}
		return "fine", nil
	}}

	result, _ := New(inv, testConfig()).Run(context.Background(), def, nil)
	if !result.Success() || len(result.Steps) != 2 {
		t.Errorf("success=%v steps=%d", result.Success(), len(result.Steps))
	}
}

func TestRunner_Run_Conditions(t *testing.T) {
	def := parseDoc(t, `
parameters:
  - name: mode
workflow:
  - step: analyze
    agent: a
    prompt: p
    output_variable: analysis
  - step: fix
    agent: b
    prompt: p
    condition: "analysis contains 'ERROR'"
  - step: deploy
    agent: c
    prompt: p
    condition: "mode equals 'prod'"
  - step: audit
    agent: d
    prompt: p
    condition: "mode equals 'Prod'"
`)
	inv := &fakeInvoker{invokeFunc: func(ctx context.Context, inv core.Invocation) (string, error) {
		if inv.Step == "analyze" {
			return "found an error in line 3", nil
		}
		return "done", nil
	}}
	params := []core.Binding{{Name: "mode", Value: "prod"}}

	result, err := New(inv, testConfig()).Run(context.Background(), def, params)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	statuses := make([]string, len(result.Steps))
	for i, s := range result.Steps {
		statuses[i] = s.Status.String()
	}
	want := "completed,completed,completed,skipped"
	if strings.Join(statuses, ",") != want {
		t.Errorf("statuses = %v, want %s", statuses, want)
	}
	if got := inv.stepsCalled(); strings.Join(got, ",") != "analyze,fix,deploy" {
		t.Errorf("invoked = %v", got)
	}
	if skipped := result.Steps[3]; skipped.Result != nil || skipped.Agent != "d" {
		t.Errorf("skipped result = %+v", skipped)
	}
}

func TestRunner_Run_UnboundConditionVariable(t *testing.T) {
	def := parseDoc(t, `
workflow:
  - step: only
    agent: a
    prompt: p
    condition: "nothing equals 'x'"
`)
	inv := &fakeInvoker{}
	result, _ := New(inv, testConfig()).Run(context.Background(), def, nil)
	if len(inv.calls) != 0 || result.SkippedSteps != 1 || !result.Success() {
		t.Errorf("calls=%d skipped=%d success=%v", len(inv.calls), result.SkippedSteps, result.Success())
	}
}

const unrecognizedDoc = `
workflow:
  - step: maybe
    agent: a
    prompt: p
    condition: "score > 5"
`

func TestRunner_Run_UnrecognizedConditionFailsOpen(t *testing.T) {
	var warnings []string
	cfg := testConfig()
	cfg.OnWarning = func(msg string) { warnings = append(warnings, msg) }
	inv := &fakeInvoker{}

	result, _ := New(inv, cfg).Run(context.Background(), parseDoc(t, unrecognizedDoc), nil)

	if len(inv.calls) != 1 {
		t.Errorf("step should run, calls = %d", len(inv.calls))
	}
	want := "Unsupported condition format: score > 5"
	if len(warnings) != 1 || warnings[0] != want {
		t.Errorf("warnings = %v", warnings)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != want {
		t.Errorf("result warnings = %v", result.Warnings)
	}
}

func TestRunner_Run_StrictConditions(t *testing.T) {
	cfg := testConfig()
	cfg.StrictConditions = true
	inv := &fakeInvoker{}

	result, _ := New(inv, cfg).Run(context.Background(), parseDoc(t, unrecognizedDoc), nil)

	if len(inv.calls) != 0 || result.Steps[0].Status != core.StatusSkipped {
		t.Errorf("strict mode should skip, calls = %d", len(inv.calls))
	}
	if len(result.Warnings) != 1 {
		t.Errorf("warning should still be emitted, got %v", result.Warnings)
	}
}

func TestRunner_Run_StepTimeout(t *testing.T) {
	def := parseDoc(t, `
workflow:
  - step: slow
    agent: a
    prompt: p
    timeout: 20ms
    on_error: continue
  - step: fast
    agent: b
    prompt: p
`)
	inv := &fakeInvoker{invokeFunc: func(ctx context.Context, inv core.Invocation) (string, error) {
		if inv.Step == "slow" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}}

	result, _ := New(inv, testConfig()).Run(context.Background(), def, nil)

	if !result.Success() || len(result.Steps) != 2 {
		t.Fatalf("success=%v steps=%d", result.Success(), len(result.Steps))
	}
	if !strings.Contains(result.Steps[0].Error, "timed out") {
		t.Errorf("slow error = %q", result.Steps[0].Error)
	}
}

func TestRunner_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := testConfig()
	cfg.OnStepEnd = func(idx int, step command.Step, result core.StepResult) {
		if idx == 0 {
			cancel()
		}
	}
	inv := &fakeInvoker{}

	result, err := New(inv, cfg).Run(ctx, threeStepDoc(t, "continue"), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !errors.Is(result.Err, core.ErrRunCancelled) {
		t.Errorf("Err = %v, want ErrRunCancelled", result.Err)
	}
	if len(result.Steps) != 1 || len(inv.calls) != 1 {
		t.Errorf("steps = %d calls = %d", len(result.Steps), len(inv.calls))
	}
}

func TestRunner_Run_CancelledDuringInvocation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inv := &fakeInvoker{invokeFunc: func(ctx context.Context, inv core.Invocation) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}}

	result, _ := New(inv, testConfig()).Run(ctx, threeStepDoc(t, "continue"), nil)

	if !errors.Is(result.Err, core.ErrRunCancelled) || len(result.Steps) != 1 {
		t.Errorf("Err = %v steps = %d", result.Err, len(result.Steps))
	}
}

func TestRunner_Run_SeedsContext(t *testing.T) {
	def := parseDoc(t, `
workflow:
  - step: echo
    agent: a
    prompt: "{{file}} at {{timestamp}} {{missing}}"
`)
	inv := &fakeInvoker{}
	params := []core.Binding{{Name: "file", Value: "main.go"}, {Name: "timestamp", Value: "user-supplied"}}

	result, _ := New(inv, testConfig()).Run(context.Background(), def, params)

	want := "main.go at " + core.FormatTimestamp(fixedStart) + " {{UNDEFINED:missing}}"
	if got := inv.calls[0].Prompt; got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}
	if keys := result.Context.Keys(); strings.Join(keys, ",") != "file,timestamp" {
		t.Errorf("context keys = %v", keys)
	}
}

func TestRunner_Run_EmptyResultNotBound(t *testing.T) {
	def := parseDoc(t, `
workflow:
  - step: quiet
    agent: a
    prompt: p
    output_variable: v
`)
	inv := &fakeInvoker{invokeFunc: func(ctx context.Context, inv core.Invocation) (string, error) { return "", nil }}

	result, _ := New(inv, testConfig()).Run(context.Background(), def, nil)

	if _, ok := result.Context.Lookup("v"); ok {
		t.Error("empty result should not be bound")
	}
	if result.Steps[0].Result == nil || *result.Steps[0].Result != "" {
		t.Errorf("result = %v, want present empty string", result.Steps[0].Result)
	}
}

func TestRunner_Run_NotReady(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"missing description", "---\nname: x\n---\nworkflow:\n  - step: a\n    agent: b\n    prompt: c\n", core.ErrMissingField},
		{"empty workflow", "---\nname: x\ndescription: y\n---\nworkflow: []\n", core.ErrMissingField},
		{"step without agent", "---\nname: x\ndescription: y\n---\nworkflow:\n  - step: a\n    prompt: c\n", core.ErrMissingField},
		{"workflow not a list", "---\nname: x\ndescription: y\n---\nworkflow: nope\n", core.ErrDocumentFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := command.Parse([]byte(tt.doc), "x.yaml")
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			inv := &fakeInvoker{}
			result, err := New(inv, testConfig()).Run(context.Background(), def, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("Run() error = %v, want %v", err, tt.want)
			}
			if result != nil || len(inv.calls) != 0 {
				t.Errorf("no step may run: result=%v calls=%d", result, len(inv.calls))
			}
		})
	}
}

func TestRunner_Run_SavesOutput(t *testing.T) {
	dir := t.TempDir()
	def := parseDoc(t, `
workflow:
  - step: one
    agent: a
    prompt: p
    output_variable: answer
output:
  format: text
  variables: [answer]
  save_to: `+filepath.ToSlash(dir)+`/{{name}}/result.txt
`)
	params := []core.Binding{{Name: "name", Value: "demo"}}

	result, err := New(&fakeInvoker{}, testConfig()).Run(context.Background(), def, params)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := filepath.Join(dir, "demo", "result.txt")
	if filepath.Clean(result.OutputPath) != want {
		t.Errorf("OutputPath = %q, want %q", result.OutputPath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if string(data) != "answer:\nout:one\n" {
		t.Errorf("output = %q", data)
	}
}

func TestRunner_Run_NoOutputOnAbort(t *testing.T) {
	dir := t.TempDir()
	def := parseDoc(t, `
workflow:
  - step: one
    agent: a
    prompt: p
output:
  format: text
  save_to: `+filepath.ToSlash(dir)+`/out.txt
`)

	result, _ := New(&fakeInvoker{invokeFunc: failWith("one")}, testConfig()).Run(context.Background(), def, nil)

	if result.OutputPath != "" {
		t.Errorf("OutputPath = %q", result.OutputPath)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.txt")); !os.IsNotExist(err) {
		t.Errorf("output should not be written after abort, stat err = %v", err)
	}
}

func TestRunner_Run_OutputWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	def := parseDoc(t, `
workflow:
  - step: one
    agent: a
    prompt: p
output:
  save_to: `+filepath.ToSlash(blocker)+`/out.md
`)

	result, err := New(&fakeInvoker{}, testConfig()).Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Success() || !errors.Is(result.Err, core.ErrOutputWrite) {
		t.Errorf("Err = %v, want ErrOutputWrite", result.Err)
	}
	if len(result.Steps) != 1 || result.Steps[0].Status != core.StatusCompleted {
		t.Errorf("step results should be kept: %+v", result.Steps)
	}
}

func TestRunner_Run_Callbacks(t *testing.T) {
	var events []string
	cfg := testConfig()
	cfg.OnRunStart = func(runID string, def *command.Definition) { events = append(events, "start:"+runID) }
	cfg.OnStepStart = func(idx, total int, step command.Step) {
		events = append(events, "step:"+step.Name)
	}
	cfg.OnStepEnd = func(idx int, step command.Step, result core.StepResult) {
		events = append(events, "end:"+result.Status.String())
	}
	cfg.OnRunEnd = func(result *core.RunResult) { events = append(events, "done") }

	_, err := New(&fakeInvoker{invokeFunc: failWith("two")}, cfg).Run(context.Background(), threeStepDoc(t, "continue"), nil)
	if err != nil {
		t.Fatal(err)
	}

	want := "start:run-1,step:one,end:completed,step:two,end:failed,step:three,end:completed,done"
	if got := strings.Join(events, ","); got != want {
		t.Errorf("events = %s\nwant     %s", got, want)
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(&fakeInvoker{}, RunnerConfig{})
	if r.config.Now == nil || r.config.NewRunID == nil {
		t.Fatal("defaults not applied")
	}
	if id := r.config.NewRunID(); len(id) != 36 {
		t.Errorf("run id %q is not a UUID", id)
	}
}
