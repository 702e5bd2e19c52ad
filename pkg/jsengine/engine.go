// Package jsengine runs JavaScript agent scripts on an embedded goja runtime.
package jsengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/command-runner/pkg/logger"
)

// Engine wraps a goja runtime with console, json, http and output builtins.
// An Engine is not safe for concurrent script execution; calls are
// serialized by an internal mutex.
type Engine struct {
	runtime    *goja.Runtime
	variables  map[string]interface{}
	output     map[string]interface{}
	logs       []string
	httpClient *http.Client
	ctx        context.Context
	mu         sync.Mutex
}

// New creates a new JS engine instance
func New() *Engine {
	e := &Engine{
		runtime:    goja.New(),
		variables:  make(map[string]interface{}),
		output:     make(map[string]interface{}),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ctx:        context.Background(),
	}

	e.setupBuiltins()
	return e
}

// setupBuiltins registers all built-in functions and objects
func (e *Engine) setupBuiltins() {
	e.setupConsole()

	e.runtime.Set("json", e.jsonFunc())
	e.runtime.Set("http", e.httpModule())

	// Values stored here are readable by the host after a run
	e.runtime.Set("output", e.output)
}

// setupConsole routes console.log/warn/error to the process log and keeps a
// copy for Logs.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprint(arg.Export())
			}
			line := strings.Join(parts, " ")
			e.logs = append(e.logs, line)
			switch level {
			case "error":
				logger.Error("script: %s", line)
			case "warn":
				logger.Warn("script: %s", line)
			default:
				logger.Debug("script: %s", line)
			}
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc("log"))
	console.Set("error", makeConsoleFunc("error"))
	console.Set("warn", makeConsoleFunc("warn"))
	e.runtime.Set("console", console)
}

// jsonFunc returns the json() helper function
func (e *Engine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}

		parse, _ := goja.AssertFunction(e.runtime.Get("JSON").ToObject(e.runtime).Get("parse"))
		result, err := parse(goja.Undefined(), call.Arguments[0])
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}
		return result
	}
}

// SetVariable sets a variable accessible in JS as a global
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// Output returns a copy of the output object (values set by scripts)
func (e *Engine) Output() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	source := e.output
	if v := e.runtime.Get("output"); v != nil && !goja.IsUndefined(v) {
		if m, ok := v.Export().(map[string]interface{}); ok {
			source = m
		}
	}

	result := make(map[string]interface{}, len(source))
	for k, v := range source {
		result[k] = v
	}
	return result
}

// Logs returns console output captured so far.
func (e *Engine) Logs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.logs...)
}

// Eval evaluates a JavaScript expression and returns the result
func (e *Engine) Eval(script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}

	return result.Export(), nil
}

// EvalString evaluates a JavaScript expression and returns string result
func (e *Engine) EvalString(script string) (string, error) {
	result, err := e.Eval(script)
	if err != nil {
		return "", err
	}

	if result == nil {
		return "", nil
	}

	return fmt.Sprintf("%v", result), nil
}

// RunScript compiles and runs a script. name is used in stack traces.
func (e *Engine) RunScript(ctx context.Context, name, src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	stop := e.watch(ctx)
	defer stop()

	if _, err := e.runtime.RunScript(name, src); err != nil {
		return e.runtimeError(ctx, err)
	}
	return nil
}

// Call invokes the global function fn with args and returns its exported
// result. A returned promise must settle before Call returns. Cancelling
// ctx interrupts the script.
func (e *Engine) Call(ctx context.Context, fn string, args ...interface{}) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	callable, ok := goja.AssertFunction(e.runtime.Get(fn))
	if !ok {
		return nil, fmt.Errorf("script does not define function %s", fn)
	}

	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = e.runtime.ToValue(a)
	}

	stop := e.watch(ctx)
	defer stop()

	value, err := callable(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, e.runtimeError(ctx, err)
	}

	if p, ok := value.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			value = p.Result()
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("JS runtime error: promise rejected: %v", p.Result())
		default:
			return nil, errors.New("JS runtime error: promise did not settle")
		}
	}

	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}
	return value.Export(), nil
}

// watch interrupts the runtime when ctx is done. The returned func must be
// called once the script returns.
func (e *Engine) watch(ctx context.Context) func() {
	e.ctx = ctx
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			e.runtime.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		e.runtime.ClearInterrupt()
		e.ctx = context.Background()
	}
}

func (e *Engine) runtimeError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("JS runtime interrupted: %w", ctxErr)
		}
	}
	return fmt.Errorf("JS runtime error: %w", err)
}

// Close releases the runtime. Safe to call multiple times.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtime.ClearInterrupt()
	e.httpClient.CloseIdleConnections()
}
