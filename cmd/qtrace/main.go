// Package main provides the qtrace command, which fetches and prints the
// execution trace of a slow GraphQL query.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"qtrace/internal/analyzer"
	"qtrace/internal/clients/graphnode"
	"qtrace/internal/clients/loki"
	"qtrace/internal/config"
	"qtrace/internal/db"
	"qtrace/internal/orchestrator"
	"qtrace/internal/output"
	"qtrace/pkg/llm"
)

var (
	configPath string
	queryID    string
	minTime    uint64
	verbose    bool
	dataPath   string
	tracePath  string
	explain    bool
)

var rootCmd = &cobra.Command{
	Use:   "qtrace [flags] <deployment>",
	Short: "Print the execution trace of a GraphQL query",
	Long: `Find a GraphQL query in the query-node logs of a deployment, replay it
against graph-node with tracing enabled and print where the time went.

Examples:
  qtrace QmDeployment                  # most recent logged query
  qtrace -q 2f1e... QmDeployment       # a specific query id
  qtrace -m 500 -v QmDeployment        # a query that took over 500ms
  qtrace history QmDeployment          # traces recorded earlier
`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrace(cmd.Context(), args[0], filterFromFlags(cmd), cmd.OutOrStdout())
	},
}

func init() {
	defaultConfig := os.Getenv("QTRACE_CONFIG")
	if defaultConfig == "" {
		defaultConfig = config.DefaultPath
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "config file (env QTRACE_CONFIG)")
	rootCmd.Flags().StringVarP(&queryID, "qid", "q", "", "only consider the query with this query id")
	rootCmd.Flags().Uint64VarP(&minTime, "min-time", "m", 0, "only consider queries that took longer than this many milliseconds")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print progress and rule-based hints")
	rootCmd.Flags().StringVarP(&dataPath, "data", "d", "", "save the query result data to this file")
	rootCmd.Flags().StringVarP(&tracePath, "trace", "t", "", "save the raw trace to this file")
	rootCmd.Flags().BoolVar(&explain, "explain", false, "ask the configured LLM to explain the trace")

	rootCmd.AddCommand(historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// filterFromFlags builds the log filter. --min-time only applies when given,
// so -m 0 still filters.
func filterFromFlags(cmd *cobra.Command) loki.Filter {
	f := loki.Filter{QueryID: queryID}
	if cmd.Flags().Changed("min-time") {
		m := minTime
		f.MinTimeMs = &m
	}
	return f
}

// setup loads the config with load and installs the process logger.
func setup(load func(string) (*config.Config, error)) (*config.Config, *slog.Logger, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger = logger.With("run_id", uuid.New().String())
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

func runTrace(ctx context.Context, deployment string, f loki.Filter, stdout io.Writer) error {
	cfg, logger, err := setup(config.Load)
	if err != nil {
		return err
	}

	if dataPath != "" {
		cfg.Output.Data = dataPath
	}
	if tracePath != "" {
		cfg.Output.Trace = tracePath
	}

	opts := orchestrator.Options{
		MetricsPath: cfg.Output.Metrics,
		Logger:      logger,
	}
	if verbose {
		opts.Progress = stdout
	}

	if cfg.History.Enabled {
		history, err := openHistory(cfg.History.Path)
		if err != nil {
			return err
		}
		defer history.Close()
		opts.History = history
	}

	if explain {
		provider, err := llm.NewProvider(cfg.LLM)
		if err != nil {
			return fmt.Errorf("failed to create LLM provider: %w", err)
		}
		logger.Debug("Using LLM provider", "provider", provider.Name(), "model", cfg.LLM.Model)
		opts.Analyzer = analyzer.New(provider, nil)
	}

	orch := orchestrator.New(
		loki.NewClient(cfg.Loki, logger),
		graphnode.NewClient(cfg.GraphNode, logger),
		output.NewWriter(cfg.Output, logger),
		opts,
	)

	_, err = orch.Run(ctx, deployment, f, stdout)
	return err
}

func openHistory(path string) (*db.DB, error) {
	history, err := db.New(path)
	if err != nil {
		return nil, err
	}
	if err := history.Migrate(); err != nil {
		history.Close()
		return nil, err
	}
	return history, nil
}
