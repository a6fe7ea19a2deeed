// Package orchestrator runs one trace retrieval from log lookup to report.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"qtrace/internal/analyzer"
	"qtrace/internal/clients/graphnode"
	"qtrace/internal/clients/loki"
	"qtrace/internal/db"
	"qtrace/internal/metrics"
	"qtrace/internal/output"
	"qtrace/internal/remediation"
	"qtrace/internal/trace"
)

// Options holds the optional parts of a run. Nil fields are skipped.
type Options struct {
	History     *db.DB
	Analyzer    *analyzer.Analyzer
	MetricsPath string
	// Progress receives human-readable progress lines; nil discards them.
	Progress io.Writer
	Logger   *slog.Logger
}

// Orchestrator coordinates the collaborators of a trace run. Each step runs
// once, in order.
type Orchestrator struct {
	lokiClient  *loki.Client
	graphClient *graphnode.Client
	out         *output.Writer
	rules       *remediation.Engine
	opts        Options
	logger      *slog.Logger
	progress    io.Writer
}

// Result is what a run produced.
type Result struct {
	Root        *trace.Root
	Summary     trace.Summary
	Explanation *analyzer.Explanation
}

// New creates a new orchestrator
func New(lokiClient *loki.Client, graphClient *graphnode.Client, out *output.Writer, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	return &Orchestrator{
		lokiClient:  lokiClient,
		graphClient: graphClient,
		out:         out,
		rules:       remediation.NewEngine(),
		opts:        opts,
		logger:      logger,
		progress:    progress,
	}
}

// Run finds the query matching f in the deployment's logs, replays it with
// tracing on, saves the raw artifacts and writes the report to report.
func (o *Orchestrator) Run(ctx context.Context, deployment string, f loki.Filter, report io.Writer) (*Result, error) {
	logger := o.logger.With("deployment", deployment)

	fmt.Fprintln(o.progress, "Querying Loki for query log entry")
	entry, err := o.lokiClient.FindQuery(ctx, deployment, f)
	if err != nil {
		return nil, fmt.Errorf("failed to find query log entry: %w", err)
	}
	if err := o.out.SaveQuery(entry.Query, entry.Variables); err != nil {
		return nil, err
	}

	fmt.Fprintln(o.progress, "Querying graph-node for query trace")
	resp, err := o.graphClient.Query(ctx, deployment, entry.Query, entry.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to get query trace: %w", err)
	}
	var data []byte
	if d := resp.Data(); d != nil {
		data = d.MarshalTo(nil)
	}
	if err := o.out.SaveData(data); err != nil {
		return nil, err
	}

	raw, err := resp.Trace()
	if err != nil {
		return nil, err
	}
	if err := o.out.SaveTrace(raw.MarshalTo(nil)); err != nil {
		return nil, err
	}

	root, err := trace.Parse(raw)
	if err != nil {
		return nil, err
	}
	result := &Result{Root: root, Summary: trace.Summarize(root)}
	logger = logger.With("query_id", root.QueryID)

	if result.Summary.Inconsistent {
		logger.Warn("Sub-queries took longer than the whole request; other time clamped to zero",
			"query_ms", result.Summary.Query.Milliseconds(),
			"elapsed_ms", result.Summary.Total.Milliseconds())
	}

	if _, err := fmt.Fprintf(report, "Trace for qid %s\n deployment %s\n\n", trace.QueryID(root), deployment); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	if err := trace.Write(report, "root", root); err != nil {
		return nil, err
	}

	if suggestions := o.rules.GetSuggestions(root); len(suggestions) > 0 {
		fmt.Fprintln(o.progress, "\nSuggestions:")
		for _, sg := range suggestions {
			fmt.Fprintf(o.progress, "- %s: %s\n  %s\n", sg.Title, sg.Description, sg.Action)
		}
	}

	if o.opts.MetricsPath != "" {
		if err := metrics.WriteTextfile(o.opts.MetricsPath, deployment, root); err != nil {
			return nil, err
		}
		logger.Debug("Wrote metrics", "path", o.opts.MetricsPath)
	}

	if o.opts.History != nil {
		rec := &db.TraceRecord{
			Deployment:   deployment,
			QueryID:      root.QueryID,
			Block:        root.Block,
			Elapsed:      result.Summary.Total,
			QueryTime:    result.Summary.Query,
			OtherTime:    result.Summary.Other,
			Inconsistent: result.Summary.Inconsistent,
		}
		if err := o.opts.History.RecordTrace(ctx, rec); err != nil {
			return nil, err
		}
		logger.Debug("Recorded trace", "id", rec.ID)
	}

	if o.opts.Analyzer != nil {
		fmt.Fprintln(o.progress, "Asking the LLM to explain the trace")
		exp, err := o.opts.Analyzer.Explain(ctx, deployment, root)
		if err != nil {
			return nil, err
		}
		result.Explanation = exp
		if _, err := fmt.Fprintf(report, "\n%s\n", exp.Summary); err != nil {
			return nil, fmt.Errorf("failed to write report: %w", err)
		}
	}

	return result, nil
}
