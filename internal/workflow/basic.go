// Package workflow drives the generate→parse→validate→score→record search
// loop, per island and across islands.
package workflow

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sillyDaibo/funch/internal/evaluator"
	"github.com/sillyDaibo/funch/internal/llm"
	"github.com/sillyDaibo/funch/internal/parse"
	"github.com/sillyDaibo/funch/internal/sandbox"
	"github.com/sillyDaibo/funch/internal/storage"
)

// ConfigError reports an invalid loop configuration. Fatal, never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

const defaultPromptHeader = "Improve the following Go function. " +
	"Keep the exact same signature and doc comment. " +
	"Respond with a single complete function definition in a Go code block."

// exemplarLimit caps how many prior high scorers are embedded in a prompt.
const exemplarLimit = 3

// Options configures one search line.
type Options struct {
	// RunTag selects the //funch:run binding used for scoring. Empty
	// disables scoring; candidates are then judged on validity only.
	RunTag string
	// ScoreInput is passed to the run function.
	ScoreInput any
	// Timeout bounds each sandboxed execution.
	Timeout time.Duration
	// Store receives candidate records; defaults to an in-memory item store.
	Store storage.Collection
	// PromptHeader overrides the instruction prefix.
	PromptHeader string
	Logger       *zap.Logger
}

// Result is the best candidate found by a search.
type Result struct {
	Body  string
	Valid bool
	// Score is meaningful only when Scored; it is -Inf when no candidate was
	// ever recorded.
	Score  float64
	Scored bool
	// Failures counts candidates that failed extraction, validation or
	// execution across the whole run.
	Failures int
}

// BasicWorkflow is one island's search line: sequential rounds of batched
// generation against a single template.
type BasicWorkflow struct {
	tmpl     *evaluator.Template
	gen      llm.Generator
	store    storage.Collection
	validity evaluator.ValidityChecker
	scorer   evaluator.ScoreEvaluator
	header   string
	logger   *zap.Logger
}

// NewBasic parses the template, binds the evaluators and wires the store.
// Structural and configuration problems are fatal here.
func NewBasic(templateSrc string, gen llm.Generator, exec *sandbox.Executor, opts Options) (*BasicWorkflow, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl, err := evaluator.NewTemplate(templateSrc, exec, logger)
	if err != nil {
		return nil, err
	}
	validity := tmpl.BuildValidityChecker(opts.Timeout)
	var scorer evaluator.ScoreEvaluator
	if opts.RunTag != "" {
		scoreOpts := evaluator.DefaultScoreOptions()
		if opts.Timeout > 0 {
			scoreOpts.Timeout = opts.Timeout
		}
		scorer, err = tmpl.BuildScoreEvaluator(opts.RunTag, opts.ScoreInput, scoreOpts)
		if err != nil {
			return nil, err
		}
	}
	store := opts.Store
	if store == nil {
		store = storage.NewItemStore(storage.NewMemoryStore())
	}
	header := opts.PromptHeader
	if header == "" {
		header = defaultPromptHeader
	}
	return &BasicWorkflow{
		tmpl:     tmpl,
		gen:      gen,
		store:    store,
		validity: validity,
		scorer:   scorer,
		header:   header,
		logger:   logger,
	}, nil
}

// Generate runs `iterations` rounds of batchSize candidates each and returns
// the best-ever candidate. Within a round all prompts are dispatched
// concurrently and the responses are processed in array order; a candidate is
// recorded only when its score strictly exceeds the round's running best.
func (w *BasicWorkflow) Generate(ctx context.Context, batchSize, iterations int) (Result, error) {
	if batchSize < 1 {
		return Result{}, &ConfigError{Reason: "batch size must be at least 1"}
	}
	if iterations < 1 {
		return Result{}, &ConfigError{Reason: "iterations must be at least 1"}
	}

	best := Result{Score: math.Inf(-1), Scored: w.scorer != nil}
	for round := 0; round < iterations; round++ {
		prompt := w.buildPrompt()
		responses := make([]string, batchSize)
		errs := make([]error, batchSize)

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < batchSize; i++ {
			g.Go(func() error {
				responses[i], errs[i] = w.gen.Invoke(gctx, prompt)
				return nil
			})
		}
		// Generator errors are per-candidate failures, never batch failures.
		_ = g.Wait()

		generated, valid, failed := 0, 0, 0
		roundBest := math.Inf(-1)
		for i := 0; i < batchSize; i++ {
			if errs[i] != nil {
				failed++
				w.logger.Warn("generator invocation failed", zap.Int("round", round+1), zap.Error(errs[i]))
				continue
			}
			body, err := parse.ExtractBody(responses[i], w.tmpl.TargetName())
			if err != nil {
				failed++
				w.logger.Debug("candidate extraction failed", zap.Int("round", round+1), zap.Error(err))
				continue
			}
			generated++
			if !w.validity.IsValid(body) {
				failed++
				continue
			}
			valid++
			score := 0.0
			if w.scorer != nil {
				score, err = w.scorer.Score(body)
				if err != nil {
					return Result{}, err
				}
			}
			if score > roundBest {
				roundBest = score
				if err := w.record(body, score); err != nil {
					return Result{}, err
				}
				if score > best.Score {
					best.Body = body
					best.Valid = true
					best.Score = score
				}
			}
		}
		best.Failures += failed
		w.logger.Info("round complete",
			zap.Int("round", round+1),
			zap.Int("generated", generated),
			zap.Int("valid", valid),
			zap.Int("failed", failed),
			zap.Float64("best_score", best.Score))
	}

	if best.Failures > 0 {
		w.logger.Warn("some candidates failed; check the execution failure log",
			zap.Int("failed", best.Failures))
	}
	return best, nil
}

func (w *BasicWorkflow) record(body string, score float64) error {
	item, err := w.store.New()
	if err != nil {
		return fmt.Errorf("recording candidate: %w", err)
	}
	if err := item.Set("body", body); err != nil {
		return err
	}
	if err := item.Set("score", score); err != nil {
		return err
	}
	return item.Set("valid", true)
}

// buildPrompt embeds the target's header and body plus up to three
// highest-scoring previously-recorded candidates from this island.
func (w *BasicWorkflow) buildPrompt() string {
	var b strings.Builder
	b.WriteString(w.header)
	b.WriteString("\n\nCurrent implementation:\n```go\n")
	b.WriteString(w.tmpl.TargetHeader())
	b.WriteString("\n")
	if body := w.tmpl.TargetBody(); body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	b.WriteString("}\n```\n")
	for _, ex := range w.topExemplars(exemplarLimit) {
		b.WriteString(fmt.Sprintf("\nPrevious attempt (score %g):\n```go\n%s\n%s\n}\n```\n",
			ex.score, w.tmpl.TargetHeader(), ex.body))
	}
	return b.String()
}

type exemplar struct {
	body  string
	score float64
}

func (w *BasicWorkflow) topExemplars(n int) []exemplar {
	items, err := w.store.Items()
	if err != nil {
		w.logger.Warn("scanning prior candidates failed", zap.Error(err))
		return nil
	}
	var found []exemplar
	for _, item := range items {
		body, ok := item.Get("body").(string)
		if !ok {
			continue
		}
		score, ok := asFloat(item.Get("score"))
		if !ok {
			continue
		}
		found = append(found, exemplar{body: body, score: score})
	}
	// Stable sort keeps discovery order on ties.
	sort.SliceStable(found, func(i, j int) bool { return found[i].score > found[j].score })
	if len(found) > n {
		found = found[:n]
	}
	return found
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
