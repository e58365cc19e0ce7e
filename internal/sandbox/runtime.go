package sandbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/remote/internal/infrastructure/logging"
)

var (
	ErrClosed  = errors.New("sandbox runtime is closed")
	ErrTimeout = errors.New("execution timeout exceeded")
)

// Runtime wraps a goja VM with execution limits.
//
// A goja runtime is not safe for concurrent use; every entry point takes the
// runtime lock, so callers that drive the VM from Do must not call Execute
// from inside fn.
type Runtime struct {
	vm     *goja.Runtime
	config Config
	logger *zap.Logger
	mu     sync.Mutex

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex
}

// New creates a new sandboxed runtime
func New(config Config, logger *zap.Logger) (*Runtime, error) {
	r := &Runtime{
		config: config,
		logger: logging.OrNop(logger),
	}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) init() error {
	r.vm = goja.New()
	if r.config.MaxCallStack > 0 {
		r.vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}
	r.console = nil
	return r.setupGlobals()
}

// VM exposes the underlying runtime. Use it only on the goroutine that owns
// the sandbox, typically from inside Do.
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

// Do runs fn against the VM under the configured timeout. Script code started
// by fn is interrupted when the timeout fires or ctx is cancelled.
func (r *Runtime) Do(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return ErrClosed
	}
	return r.guard(ctx, r.config.Timeout, func() error { return fn(r.vm) })
}

// Guard is Do without a timeout; only ctx can interrupt. Long-lived sessions
// that drive the VM for their whole lifetime use it.
func (r *Runtime) Guard(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return ErrClosed
	}
	return r.guard(ctx, 0, func() error { return fn(r.vm) })
}

func (r *Runtime) guard(ctx context.Context, timeout time.Duration, fn func() error) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	stop := make(chan struct{})
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-expired:
			r.vm.Interrupt(ErrTimeout)
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	defer func() {
		close(stop)
		<-watcher
		r.vm.ClearInterrupt()
	}()
	return unwrapInterrupt(fn())
}

// Execute runs JavaScript code with timeout and resource limits
func (r *Runtime) Execute(ctx context.Context, script string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	r.resetConsole()
	var val goja.Value
	err := r.Do(ctx, func(vm *goja.Runtime) error {
		var err error
		val, err = vm.RunString(script)
		return err
	})

	result.Duration = time.Since(start)
	result.Console = r.Console()
	if err != nil {
		result.Error = err
		return result, err
	}

	result.Value = exportValue(val)
	return result, nil
}

// Console returns a copy of the output captured since the last Execute.
func (r *Runtime) Console() []LogEntry {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	return append([]LogEntry{}, r.console...)
}

func (r *Runtime) resetConsole() {
	r.consoleMu.Lock()
	r.console = nil
	r.consoleMu.Unlock()
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() error {
	// Remove module loading globals
	for _, name := range []string{"require", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info"} {
			if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		if err := r.vm.Set("console", console); err != nil {
			return err
		}
	}

	// Timers are no-ops: nothing drives an event loop between requests
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	if err := r.vm.Set("setTimeout", noop); err != nil {
		return err
	}
	return r.vm.Set("setInterval", noop)
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: msg,
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()

		switch level {
		case "error":
			r.logger.Error(msg, zap.String("source", "console"))
		case "warn":
			r.logger.Warn(msg, zap.String("source", "console"))
		default:
			r.logger.Info(msg, zap.String("source", "console"))
		}
		return goja.Undefined()
	}
}

// exportValue converts goja value to Go value
func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// unwrapInterrupt surfaces the reason passed to Interrupt so callers can
// match it with errors.Is.
func unwrapInterrupt(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if reason, ok := interrupted.Value().(error); ok {
			return reason
		}
	}
	return err
}

// Reset replaces the VM with a fresh one
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return ErrClosed
	}
	return r.init()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.resetConsole()
	return nil
}
