package workflow

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/sillyDaibo/funch/internal/llm"
	"github.com/sillyDaibo/funch/internal/sandbox"
	"github.com/sillyDaibo/funch/internal/storage"
)

// IslandWorkflow runs numIslands independent search lines over one shared
// store, each against its own disjoint partition, and selects the strict
// maximum across islands. Islands are causally independent; the reference
// design runs them sequentially.
type IslandWorkflow struct {
	islands []*BasicWorkflow
	logger  *zap.Logger
}

// NewIsland splits shared (in-memory when nil) into per-island views and
// builds one BasicWorkflow per island.
func NewIsland(templateSrc string, gen llm.Generator, exec *sandbox.Executor, shared *storage.ItemStore, numIslands int, opts Options) (*IslandWorkflow, error) {
	if numIslands < 1 {
		return nil, &ConfigError{Reason: "number of islands must be at least 1"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if shared == nil {
		shared = storage.NewItemStore(storage.NewMemoryStore())
	}
	views := storage.Split(shared, numIslands, storage.DefaultSplitField)

	islands := make([]*BasicWorkflow, 0, numIslands)
	for i := 0; i < numIslands; i++ {
		islandOpts := opts
		islandOpts.Store = views[i]
		islandOpts.Logger = logger.With(zap.Int("island", i+1))
		island, err := NewBasic(templateSrc, gen, exec, islandOpts)
		if err != nil {
			return nil, err
		}
		islands = append(islands, island)
	}
	return &IslandWorkflow{islands: islands, logger: logger}, nil
}

// Generate runs every island and returns the strict maximum by score, so
// ties keep the earliest island's result.
func (w *IslandWorkflow) Generate(ctx context.Context, batchSize, iterations int) (Result, error) {
	best := Result{Score: math.Inf(-1)}
	for i, island := range w.islands {
		w.logger.Info("running island", zap.Int("island", i+1), zap.Int("total", len(w.islands)))
		res, err := island.Generate(ctx, batchSize, iterations)
		if err != nil {
			return Result{}, err
		}
		w.logger.Info("island finished", zap.Int("island", i+1), zap.Float64("best_score", res.Score))
		if res.Score > best.Score {
			failures := best.Failures
			best = res
			best.Failures = failures
		}
		best.Failures += res.Failures
	}
	if len(w.islands) > 1 {
		w.logger.Info("best overall", zap.Float64("score", best.Score))
	}
	return best, nil
}
