package evaluator

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/sillyDaibo/funch/internal/parse"
	"github.com/sillyDaibo/funch/internal/sandbox"
)

// StructuralError reports a template whose role bindings violate the
// evolve/run/validate/score contract. Structural errors are fatal at
// construction and never retried.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error in template: %s", e.Reason)
}

// UnknownTagError reports a score-evaluator request for a tag with no run
// binding.
type UnknownTagError struct {
	Tag string
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("no function marked //funch:run %s found", e.Tag)
}

// DefaultTimeout bounds a single sandboxed execution.
const DefaultTimeout = 30 * time.Second

// Template wraps a parsed role-annotated program and builds evaluators
// against it. The underlying program is never mutated: substitution always
// works on a deep copy.
type Template struct {
	source  string
	program *parse.Program
	roles   parse.RoleTable
	target  string
	exec    *sandbox.Executor
	logger  *zap.Logger
}

// NewTemplate parses src, extracts the role table and verifies the
// evolve-target invariant: exactly one //funch:evolve function, unique among
// top-level functions.
func NewTemplate(src string, exec *sandbox.Executor, logger *zap.Logger) (*Template, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	program, err := parse.ParseProgram(src)
	if err != nil {
		return nil, err
	}
	roles, err := parse.ExtractRoles(program)
	if err != nil {
		return nil, &StructuralError{Reason: err.Error()}
	}
	evolve := roles[parse.RoleEvolve]
	if len(evolve) != 1 {
		return nil, &StructuralError{
			Reason: fmt.Sprintf("expected exactly 1 function marked //funch:evolve, found %d", len(evolve)),
		}
	}
	target := evolve[0].Function
	if _, err := program.Function(target); err != nil {
		return nil, &StructuralError{Reason: err.Error()}
	}
	for _, role := range []string{parse.RoleRun, parse.RoleValidate, parse.RoleScore} {
		for _, b := range roles[role] {
			if _, err := program.Function(b.Function); err != nil {
				return nil, &StructuralError{Reason: err.Error()}
			}
		}
	}
	return &Template{
		source:  src,
		program: program,
		roles:   roles,
		target:  target,
		exec:    exec,
		logger:  logger,
	}, nil
}

// TargetName returns the name of the function to evolve.
func (t *Template) TargetName() string { return t.target }

// TargetHeader returns the target's signature line.
func (t *Template) TargetHeader() string {
	fn, _ := t.program.Function(t.target)
	return fn.Header()
}

// TargetBody returns the target's current body.
func (t *Template) TargetBody() string {
	fn, _ := t.program.Function(t.target)
	return fn.Body
}

// substitute renders the template with body in place of the evolve target.
func (t *Template) substitute(body string) (string, error) {
	program := t.program.Clone()
	fn, err := program.Function(t.target)
	if err != nil {
		return "", err
	}
	fn.SetBody(body)
	return program.Render(), nil
}

// BuildValidityChecker binds every //funch:validate function. With zero
// validators every candidate passes; that relaxed default is surfaced as a
// warning.
func (t *Template) BuildValidityChecker(timeout time.Duration) ValidityChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var funcs []string
	for _, b := range t.roles[parse.RoleValidate] {
		funcs = append(funcs, b.Function)
	}
	if len(funcs) == 0 {
		t.logger.Warn("no validate functions found; all candidates will be treated as valid")
	}
	return &validityChecker{t: t, funcs: funcs, timeout: timeout}
}

type validityChecker struct {
	t       *Template
	funcs   []string
	timeout time.Duration
}

// IsValid substitutes body into the evolve target and runs every validate
// function with no input. True iff all succeed.
func (c *validityChecker) IsValid(body string) bool {
	program, err := c.t.substitute(body)
	if err != nil {
		c.t.logger.Debug("substitution failed", zap.Error(err))
		return false
	}
	for _, name := range c.funcs {
		if _, ok := c.t.exec.Run(program, name, nil, c.timeout); !ok {
			return false
		}
	}
	return true
}

// ScoreOptions tunes a score evaluator.
type ScoreOptions struct {
	// Timeout bounds each sandboxed run; DefaultTimeout when zero.
	Timeout time.Duration
	// FailureScore is reported when the run fails and Complain is unset.
	FailureScore float64
	// Complain turns per-candidate execution failures into errors instead of
	// the failure score.
	Complain bool
}

// DefaultScoreOptions uses negative infinity as the failure score so failing
// candidates can never win a strict-improvement comparison.
func DefaultScoreOptions() ScoreOptions {
	return ScoreOptions{Timeout: DefaultTimeout, FailureScore: math.Inf(-1)}
}

// BuildScoreEvaluator resolves the run binding for tag and the optional score
// transform bound to the same tag. The transform is compiled once from the
// original, unsubstituted template text, so it must not depend on
// evolve-target state.
func (t *Template) BuildScoreEvaluator(tag string, input any, opts ScoreOptions) (ScoreEvaluator, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	runFunc := ""
	for _, b := range t.roles[parse.RoleRun] {
		if b.Tag == tag {
			runFunc = b.Function
		}
	}
	if runFunc == "" {
		return nil, &UnknownTagError{Tag: tag}
	}
	var transform sandbox.Callable
	for _, b := range t.roles[parse.RoleScore] {
		if b.Tag != tag {
			continue
		}
		compiled, err := t.exec.Compile(t.program.Render(), b.Function)
		if err != nil {
			return nil, &StructuralError{Reason: fmt.Sprintf("score function %q: %v", b.Function, err)}
		}
		transform = compiled
	}
	return &scoreEvaluator{
		t:         t,
		runFunc:   runFunc,
		input:     input,
		transform: transform,
		opts:      opts,
	}, nil
}

type scoreEvaluator struct {
	t         *Template
	runFunc   string
	input     any
	transform sandbox.Callable
	opts      ScoreOptions
}

func (s *scoreEvaluator) RawOutput(body string) (any, error) {
	program, err := s.t.substitute(body)
	if err != nil {
		return nil, s.fail(fmt.Errorf("substitution failed: %w", err))
	}
	output, ok := s.t.exec.Run(program, s.runFunc, s.input, s.opts.Timeout)
	if !ok {
		return nil, s.fail(fmt.Errorf("run function %q failed for candidate", s.runFunc))
	}
	return output, nil
}

func (s *scoreEvaluator) Score(body string) (float64, error) {
	output, err := s.RawOutput(body)
	if err != nil {
		return 0, err
	}
	if output == nil {
		return s.opts.FailureScore, nil
	}
	if s.transform != nil {
		transformed, err := s.transform(output)
		if err != nil {
			if s.opts.Complain {
				return 0, fmt.Errorf("score transform failed: %w", err)
			}
			s.t.logger.Debug("score transform failed", zap.Error(err))
			return s.opts.FailureScore, nil
		}
		output = transformed
	}
	score, ok := toFloat(output)
	if !ok {
		if s.opts.Complain {
			return 0, fmt.Errorf("output %T is not numeric", output)
		}
		return s.opts.FailureScore, nil
	}
	return score, nil
}

// fail maps a per-candidate failure to nil output or an error, per the
// Complain flag.
func (s *scoreEvaluator) fail(err error) error {
	if s.opts.Complain {
		return err
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
