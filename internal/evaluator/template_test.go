package evaluator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sillyDaibo/funch/internal/sandbox"
)

const scoringTemplate = `package template

import (
	"errors"
	"time"
)

//funch:evolve
func Target(x int) int {
	return 0
}

//funch:run basic
func RunBasic(x int) int {
	return Target(x)
}

//funch:run plain
func RunPlain(x int) int {
	return Target(x)
}

//funch:score basic
func Negate(o int) float64 {
	return float64(-o)
}

//funch:validate
func CheckShape() error {
	_ = time.Now()
	if Target(0) != 0 {
		return errors.New("must map zero to zero")
	}
	return nil
}
`

func newTestTemplate(t *testing.T) *Template {
	t.Helper()
	tmpl, err := NewTemplate(scoringTemplate, sandbox.New(zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	return tmpl
}

func TestNewTemplateStructuralErrors(t *testing.T) {
	exec := sandbox.New(zap.NewNop())
	tests := []struct {
		name string
		src  string
	}{
		{
			"no evolve target",
			"package template\n\nfunc Target(x int) int {\n\treturn 0\n}\n",
		},
		{
			"two evolve targets",
			"package template\n\n//funch:evolve\nfunc A(x int) int {\n\treturn 0\n}\n\n//funch:evolve\nfunc B(x int) int {\n\treturn 0\n}\n",
		},
		{
			"ambiguous target name",
			"package template\n\n//funch:evolve\nfunc Target(x int) int {\n\treturn 0\n}\n\nfunc Target(y int) int {\n\treturn y\n}\n",
		},
		{
			"score directive without tag",
			"package template\n\n//funch:evolve\nfunc Target(x int) int {\n\treturn 0\n}\n\n//funch:score\nfunc Negate(o int) float64 {\n\treturn float64(-o)\n}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTemplate(tt.src, exec, zap.NewNop())
			var serr *StructuralError
			require.True(t, errors.As(err, &serr), "want StructuralError, got %v", err)
		})
	}
}

func TestTargetAccessors(t *testing.T) {
	tmpl := newTestTemplate(t)
	assert.Equal(t, "Target", tmpl.TargetName())
	assert.Equal(t, "func Target(x int) int {", tmpl.TargetHeader())
	assert.Equal(t, "\treturn 0", tmpl.TargetBody())
}

func TestScoreEvaluatorWithoutTransform(t *testing.T) {
	tmpl := newTestTemplate(t)
	scorer, err := tmpl.BuildScoreEvaluator("plain", float64(16), DefaultScoreOptions())
	require.NoError(t, err)

	raw, err := scorer.RawOutput("\treturn 0")
	require.NoError(t, err)
	assert.Equal(t, 0, raw)

	score, err := scorer.Score("\treturn 0")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	score, err = scorer.Score("\treturn x * x")
	require.NoError(t, err)
	assert.Equal(t, 256.0, score)
}

func TestScoreEvaluatorWithTransform(t *testing.T) {
	tmpl := newTestTemplate(t)
	scorer, err := tmpl.BuildScoreEvaluator("basic", float64(16), DefaultScoreOptions())
	require.NoError(t, err)

	score, err := scorer.Score("\treturn x * x")
	require.NoError(t, err)
	assert.Equal(t, -256.0, score)
}

func TestScoreEvaluatorUnknownTag(t *testing.T) {
	tmpl := newTestTemplate(t)
	_, err := tmpl.BuildScoreEvaluator("nonexistent", nil, DefaultScoreOptions())
	var ute *UnknownTagError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "nonexistent", ute.Tag)
}

func TestScoreEvaluatorFailureScore(t *testing.T) {
	tmpl := newTestTemplate(t)
	scorer, err := tmpl.BuildScoreEvaluator("plain", float64(8), DefaultScoreOptions())
	require.NoError(t, err)

	score, err := scorer.Score("\tpanic(\"broken candidate\")")
	require.NoError(t, err)
	assert.True(t, math.IsInf(score, -1), "failing candidates score -Inf, got %g", score)
}

func TestScoreEvaluatorComplain(t *testing.T) {
	tmpl := newTestTemplate(t)
	opts := DefaultScoreOptions()
	opts.Complain = true
	scorer, err := tmpl.BuildScoreEvaluator("plain", float64(8), opts)
	require.NoError(t, err)

	_, err = scorer.Score("\tpanic(\"broken candidate\")")
	require.Error(t, err)
}

func TestValidityChecker(t *testing.T) {
	tmpl := newTestTemplate(t)
	checker := tmpl.BuildValidityChecker(5 * time.Second)

	assert.True(t, checker.IsValid("\treturn x * x"))
	assert.False(t, checker.IsValid("\treturn 1"), "validator requires Target(0) == 0")

	// Same body, same verdict.
	assert.True(t, checker.IsValid("\treturn x * x"))
}

func TestValidityCheckerNoValidators(t *testing.T) {
	src := "package template\n\n//funch:evolve\nfunc Target(x int) int {\n\treturn 0\n}\n"
	tmpl, err := NewTemplate(src, sandbox.New(zap.NewNop()), zap.NewNop())
	require.NoError(t, err)

	checker := tmpl.BuildValidityChecker(time.Second)
	assert.True(t, checker.IsValid("\treturn x"))
}

func TestValidityCheckerTimeoutBound(t *testing.T) {
	tmpl := newTestTemplate(t)
	checker := tmpl.BuildValidityChecker(300 * time.Millisecond)

	start := time.Now()
	valid := checker.IsValid("\tfor {\n\t\ttime.Sleep(time.Millisecond)\n\t}")
	elapsed := time.Since(start)

	assert.False(t, valid)
	assert.Less(t, elapsed, 3*time.Second)
}
