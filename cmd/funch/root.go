package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sillyDaibo/funch/internal/config"
	"github.com/sillyDaibo/funch/internal/llm"
	"github.com/sillyDaibo/funch/internal/sandbox"
	"github.com/sillyDaibo/funch/internal/storage"
	"github.com/sillyDaibo/funch/internal/workflow"
)

const defaultFailureLog = "funch_failures.log"

type rootFlags struct {
	verbosity  int
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "funch",
		Short:         "Evolutionary improvement of a marked Go function",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", "increase verbosity (repeatable)")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to YAML config")
	cmd.AddCommand(newAskCmd(flags))
	cmd.AddCommand(newEvolveCmd(flags))
	return cmd
}

func buildLogger(verbosity int) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	switch {
	case verbosity <= 0:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case verbosity == 1:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// buildFailureLogger writes sandbox execution traces to a dedicated file so
// invalid candidates can be diagnosed after a run.
func buildFailureLogger(path string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

func newGenerator(ctx context.Context, cfg config.Config) (llm.Generator, error) {
	switch cfg.Provider {
	case "gemini":
		return llm.NewGeminiGenerator(ctx, cfg.GeneratorOptions())
	case "openai", "":
		return llm.NewOpenAIGenerator(cfg.GeneratorOptions())
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newAskCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <prompt>",
		Short: "One-shot generation without a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			gen, err := newGenerator(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			text, err := gen.Invoke(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

type evolveFlags struct {
	workflowName string
	batchSize    int
	iterations   int
	numIslands   int
	scoreInput   string
	runTag       string
	dbPath       string
	failureLog   string
}

func newEvolveCmd(flags *rootFlags) *cobra.Command {
	ef := &evolveFlags{}
	cmd := &cobra.Command{
		Use:   "evolve <template-file>",
		Short: "Evolve the //funch:evolve function of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvolve(cmd, flags, ef, args[0])
		},
	}
	cmd.Flags().StringVar(&ef.workflowName, "workflow", "basic", "search workflow: basic or island")
	cmd.Flags().IntVar(&ef.batchSize, "batch-size", 1, "candidates per round")
	cmd.Flags().IntVar(&ef.iterations, "iterations", 1, "rounds per island")
	cmd.Flags().IntVar(&ef.numIslands, "num-islands", 1, "independent islands (island workflow)")
	cmd.Flags().StringVar(&ef.scoreInput, "score-input", "", "JSON input for the run function")
	cmd.Flags().StringVar(&ef.runTag, "run-tag", "", "//funch:run tag used for scoring")
	cmd.Flags().StringVar(&ef.dbPath, "db", "", "SQLite path for persistent records (default in-memory)")
	cmd.Flags().StringVar(&ef.failureLog, "failure-log", defaultFailureLog, "file receiving sandbox failure traces")
	return cmd
}

func runEvolve(cmd *cobra.Command, flags *rootFlags, ef *evolveFlags, templatePath string) error {
	template, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("template file not found: %w", err)
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if ef.dbPath == "" {
		ef.dbPath = cfg.DBPath
	}

	logger := buildLogger(flags.verbosity)
	defer logger.Sync()
	failLogger, err := buildFailureLogger(ef.failureLog)
	if err != nil {
		return fmt.Errorf("opening failure log: %w", err)
	}
	defer failLogger.Sync()

	gen, err := newGenerator(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	exec := sandbox.New(failLogger)

	var scoreInput any
	if ef.scoreInput != "" {
		if err := json.Unmarshal([]byte(ef.scoreInput), &scoreInput); err != nil {
			return fmt.Errorf("parsing --score-input: %w", err)
		}
	}

	var backend storage.StringStore = storage.NewMemoryStore()
	if ef.dbPath != "" {
		sq, err := storage.NewSQLiteStore(ef.dbPath)
		if err != nil {
			return err
		}
		defer sq.Close()
		backend = sq
	}
	store := storage.NewLazyItemStore(backend, ef.batchSize)
	defer store.Close()

	opts := workflow.Options{
		RunTag:     ef.runTag,
		ScoreInput: scoreInput,
		Logger:     logger,
	}

	var result workflow.Result
	switch ef.workflowName {
	case "basic":
		opts.Store = store.ItemStore
		basic, err := workflow.NewBasic(string(template), gen, exec, opts)
		if err != nil {
			return err
		}
		result, err = basic.Generate(cmd.Context(), ef.batchSize, ef.iterations)
		if err != nil {
			return err
		}
	case "island":
		island, err := workflow.NewIsland(string(template), gen, exec, store.ItemStore, ef.numIslands, opts)
		if err != nil {
			return err
		}
		result, err = island.Generate(cmd.Context(), ef.batchSize, ef.iterations)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown workflow %q", ef.workflowName)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Body)
	if result.Valid {
		fmt.Fprintln(out, "valid: yes")
	} else {
		fmt.Fprintln(out, "valid: no")
	}
	if result.Scored && result.Valid {
		fmt.Fprintf(out, "score: %g\n", result.Score)
	}
	if result.Failures > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(),
			"%d candidate(s) failed; check %s for execution traces\n",
			result.Failures, ef.failureLog)
	}
	return nil
}
