// Package evaluator composes the program model, role extractor and sandbox
// into validity judgments and numeric scores for candidate bodies.
package evaluator

// ValidityChecker judges whether a candidate body produces a program whose
// validate functions all succeed.
type ValidityChecker interface {
	IsValid(body string) bool
}

// ScoreEvaluator turns a candidate body into a numeric score by running the
// bound run-function and applying the optional score transform.
type ScoreEvaluator interface {
	// RawOutput runs the substituted program's run-function with the
	// configured input. A nil output signals a non-fatal execution failure
	// unless the evaluator was built with Complain set.
	RawOutput(body string) (any, error)
	// Score is the transform applied to RawOutput, or the failure score when
	// the run failed.
	Score(body string) (float64, error)
}
