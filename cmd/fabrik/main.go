// Package main implements the fabrik CLI: a thin collaborator over the
// generator.Generator contract (§6). It never reaches into
// lexer/parser/evaluator internals directly — every subcommand parses
// a source file and hands the resulting *ast.Program to generator.Generator.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"fabrik/cmd/fabrik/config"
	"fabrik/pkg/gencontext"
	"fabrik/pkg/generator"
	"fabrik/pkg/lexer"
	"fabrik/pkg/parser"
	"fabrik/pkg/plugin"
)

var (
	verbose    bool
	configPath string
	timeout    time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fabrik",
	Short: "fabrik generates constraint-aware synthetic test data from a schema DSL",
	Long: `fabrik compiles a small declarative DSL describing structured test data -
schemas, typed fields, weighted choice, ranges, collections, cross-field
constraints, computed fields, and datasets - and generates data that
satisfies it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to run configuration YAML (default: ./.fabrik/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "generation timeout")

	rootCmd.AddCommand(generateCmd, checkCmd)
}

var generateCmd = &cobra.Command{
	Use:   "generate <file.fab> [more.fab...]",
	Short: "Generate data for one or more schema/dataset files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

var checkCmd = &cobra.Command{
	Use:   "check <file.fab>",
	Short: "Parse and compile a schema/dataset file without generating data",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func loadRunConfig() (config.Config, error) {
	return config.Load(configPath)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		logger.Warn("using default run configuration", zap.Error(err))
		cfg = config.DefaultConfig()
	}

	runCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	// Independent files generate concurrently, bounded by errgroup,
	// mirroring the teacher's fan-out pattern for independent unit-of-work
	// batches rather than a manual WaitGroup.
	group, groupCtx := errgroup.WithContext(runCtx)
	results := make([]*generator.Result, len(args))
	for i, path := range args {
		i, path := i, path
		group.Go(func() error {
			res, err := generateFile(groupCtx, path, cfg)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i, path := range args {
		res := results[i]
		total := 0
		for name, recs := range res.Collections {
			total += len(recs)
			logger.Info("collection materialized",
				zap.String("file", path), zap.String("collection", name), zap.Int("count", len(recs)))
		}
		for _, w := range res.Warnings {
			logger.Warn(w.String(), zap.String("file", path))
		}
		if res.Validation != nil && !res.Validation.Passed() {
			for _, f := range res.Validation.Failures {
				logger.Warn("validation failure", zap.String("file", path), zap.String("predicate", f.Expr), zap.String("detail", f.Detail))
			}
		}
		fmt.Fprintf(os.Stdout, "%s: %d records across %d collections\n", path, total, len(res.Collections))
	}
	return nil
}

func generateFile(ctx context.Context, path string, cfg config.Config) (*generator.Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := parser.Parse(string(src), lexer.Hooks{}, parser.Hooks{})
	if err != nil {
		return nil, err
	}
	gen := generator.New(plugin.New())
	opts := gencontext.Options{
		Strict:                   cfg.Strict,
		OptionalFieldProbability: cfg.OptionalFieldProbability,
		RetryLimits: gencontext.RetryLimits{
			Instance: cfg.RetryLimits.Instance,
			Unique:   cfg.RetryLimits.Unique,
		},
	}
	return gen.Generate(ctx, prog, cfg.Seed, opts)
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := args[0]
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := parser.Parse(string(src), lexer.Hooks{}, parser.Hooks{})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s: OK, %d top-level statements\n", path, len(prog.Statements))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
