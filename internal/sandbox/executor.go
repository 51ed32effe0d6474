// Package sandbox executes untrusted program variants in a disposable yaegi
// interpreter. Interpreting instead of compiling avoids go-build hangs and
// keeps candidate code away from the host process: each call gets a fresh
// interpreter with stdlib symbols only, and a hard wall-clock deadline.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"
)

// Executor runs entry functions of fully-materialized programs. It holds no
// state across calls beyond the injected logger, which receives a full trace
// for every failed execution.
type Executor struct {
	logger *zap.Logger
}

// New returns an Executor logging failures through logger.
func New(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger}
}

// Callable is a function resolved from a program that was loaded once and is
// reused across calls. It is how score transforms stay compiled against the
// original, unsubstituted template.
type Callable func(input any) (any, error)

type outcome struct {
	value any
	err   error
}

// Run loads program into a fresh interpreter and invokes entry with zero
// (input == nil) or one positional argument. Any load or call error,
// including panics, is logged and reported as (nil, false); Run never
// propagates failures and never blocks past timeout. On deadline expiry the
// interpreter goroutine is abandoned: EvalWithContext stops interpretation at
// instruction boundaries, but a call stuck in native code cannot be killed.
func (e *Executor) Run(program, entry string, input any, timeout time.Duration) (any, bool) {
	execID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		value, err := evalProgram(ctx, program, entry, input)
		ch <- outcome{value: value, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			e.logger.Error("sandbox execution failed",
				zap.String("exec_id", execID),
				zap.String("entry", entry),
				zap.Error(r.err))
			return nil, false
		}
		return r.value, true
	case <-ctx.Done():
		e.logger.Error("sandbox execution timed out",
			zap.String("exec_id", execID),
			zap.String("entry", entry),
			zap.Duration("timeout", timeout))
		return nil, false
	}
}

// Compile loads program once and returns a Callable bound to entry. Errors
// here are construction-time failures and are returned, not swallowed.
func (e *Executor) Compile(program, entry string) (Callable, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loading stdlib symbols: %w", err)
	}
	if _, err := i.Eval(program); err != nil {
		return nil, fmt.Errorf("program did not compile: %w", err)
	}
	fn, err := resolve(i, program, entry)
	if err != nil {
		return nil, err
	}
	return func(input any) (value any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %q: %v\n%s", entry, r, debug.Stack())
			}
		}()
		args, err := buildArgs(fn.Type(), input)
		if err != nil {
			return nil, err
		}
		return unpack(fn.Call(args))
	}, nil
}

func evalProgram(ctx context.Context, program, entry string, input any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in sandboxed code: %v\n%s", r, debug.Stack())
		}
	}()

	i := interp.New(interp.Options{})
	if uerr := i.Use(stdlib.Symbols); uerr != nil {
		return nil, fmt.Errorf("loading stdlib symbols: %w", uerr)
	}
	if _, lerr := i.EvalWithContext(ctx, program); lerr != nil {
		return nil, fmt.Errorf("loading program: %w", lerr)
	}
	fn, rerr := resolve(i, program, entry)
	if rerr != nil {
		return nil, rerr
	}
	args, aerr := buildArgs(fn.Type(), input)
	if aerr != nil {
		return nil, aerr
	}
	return unpack(fn.Call(args))
}

var pkgClauseRe = regexp.MustCompile(`(?m)^package\s+(\w+)`)

// resolve looks the entry function up in the interpreter, preferring the
// package-qualified name from the program's package clause.
func resolve(i *interp.Interpreter, program, entry string) (reflect.Value, error) {
	candidates := []string{entry}
	if m := pkgClauseRe.FindStringSubmatch(program); m != nil {
		candidates = []string{m[1] + "." + entry, entry}
	}
	var lastErr error
	for _, name := range candidates {
		v, err := i.Eval(name)
		if err != nil {
			lastErr = err
			continue
		}
		if v.Kind() != reflect.Func {
			return reflect.Value{}, fmt.Errorf("%q is not a function", entry)
		}
		return v, nil
	}
	return reflect.Value{}, fmt.Errorf("resolving %q: %w", entry, lastErr)
}

// buildArgs adapts the caller's input to the entry function's parameter list.
// JSON-shaped inputs (numbers arrive as float64) go through a direct
// conversion when possible, otherwise a marshal/unmarshal round trip.
func buildArgs(fn reflect.Type, input any) ([]reflect.Value, error) {
	if input == nil {
		if fn.NumIn() != 0 {
			return nil, fmt.Errorf("function takes %d parameters, called with none", fn.NumIn())
		}
		return nil, nil
	}
	if fn.NumIn() != 1 {
		return nil, fmt.Errorf("function takes %d parameters, want exactly 1", fn.NumIn())
	}
	t := fn.In(0)
	v := reflect.ValueOf(input)
	if v.Type() == t {
		return []reflect.Value{v}, nil
	}
	if v.Type().ConvertibleTo(t) && isScalar(t) {
		return []reflect.Value{v.Convert(t)}, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("input %T not adaptable to %s: %w", input, t, err)
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("input %T not adaptable to %s: %w", input, t, err)
	}
	return []reflect.Value{ptr.Elem()}, nil
}

func isScalar(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// unpack flattens the return values: a trailing non-nil error fails the call,
// a trailing nil error is dropped, and the first remaining value (if any) is
// the output.
func unpack(rets []reflect.Value) (any, error) {
	if n := len(rets); n > 0 && rets[n-1].Type().Implements(errType) {
		if !rets[n-1].IsNil() {
			return nil, rets[n-1].Interface().(error)
		}
		rets = rets[:n-1]
	}
	if len(rets) == 0 {
		return nil, nil
	}
	return rets[0].Interface(), nil
}
