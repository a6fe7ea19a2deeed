// Package analyzer asks an LLM to explain where a query trace spends its time.
package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"qtrace/internal/remediation"
	"qtrace/internal/trace"
	"qtrace/pkg/llm"
)

const slowestNodes = 5

// Explanation is the LLM's reading of one trace.
type Explanation struct {
	ID         string
	Deployment string
	QueryID    string
	Summary    string
	AnalyzedAt time.Time
}

// Analyzer utilizes an underlying LLM provider to explain query traces.
type Analyzer struct {
	provider llm.Provider
	rules    *remediation.Engine
}

// New initializes a new Analyzer with the given LLM provider and rule engine.
func New(provider llm.Provider, rules *remediation.Engine) *Analyzer {
	if rules == nil {
		rules = remediation.NewEngine()
	}
	return &Analyzer{
		provider: provider,
		rules:    rules,
	}
}

// Explain sends the rendered trace, its slowest nodes and the rule engine's
// findings to the LLM.
func (a *Analyzer) Explain(ctx context.Context, deployment string, root *trace.Root) (*Explanation, error) {
	prompt := a.buildPrompt(deployment, root)

	response, err := a.provider.Analyze(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("LLM analysis failed: %w", err)
	}

	return &Explanation{
		ID:         uuid.New().String(),
		Deployment: deployment,
		QueryID:    root.QueryID,
		Summary:    strings.TrimSpace(response),
		AnalyzedAt: time.Now(),
	}, nil
}

func (a *Analyzer) buildPrompt(deployment string, root *trace.Root) string {
	s := trace.Summarize(root)
	return fmt.Sprintf(`
A GraphQL query against subgraph deployment %s was slow. Explain where the time went
and what would make it faster.

QUERY (block %d, query_id %s):
%s

VARIABLES:
%s

TIMINGS:
- Total: %dms
- Store queries: %dms
- Other: %dms
- Connection wait: %dms
- Permit wait: %dms

TRACE:
%s

SLOWEST NODES:
%s
RULE-BASED FINDINGS:
%s
Answer with 2-3 sentences on the bottleneck followed by up to 3 bullet points of next steps.
`,
		deployment,
		root.Block,
		root.QueryID,
		truncate(root.Query, 2000),
		string(root.Variables),
		s.Total.Milliseconds(),
		s.Query.Milliseconds(),
		s.Other.Milliseconds(),
		root.ConnWait.Milliseconds(),
		root.PermitWait.Milliseconds(),
		strings.Join(trace.Render("root", root, 0), "\n"),
		formatSlowest(root),
		formatSuggestions(a.rules.GetSuggestions(root)),
	)
}

// formatSlowest lists the nodes with the highest own elapsed time
func formatSlowest(root *trace.Root) string {
	type node struct {
		path string
		q    *trace.Query
	}
	var nodes []node
	trace.Walk(root, "root", func(path string, q *trace.Query) {
		nodes = append(nodes, node{path, q})
	})
	if len(nodes) == 0 {
		return "No sub-queries were recorded.\n"
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].q.Elapsed > nodes[j].q.Elapsed })

	var b strings.Builder
	for i, n := range nodes {
		if i >= slowestNodes {
			break
		}
		fmt.Fprintf(&b, "- %s: %dms, %d entities\n  %s\n", n.path, n.q.Elapsed.Milliseconds(), n.q.EntityCount, truncate(n.q.Query, 300))
	}
	return b.String()
}

func formatSuggestions(suggestions []remediation.Suggestion) string {
	if len(suggestions) == 0 {
		return "None.\n"
	}
	var b strings.Builder
	for _, s := range suggestions {
		fmt.Fprintf(&b, "- %s: %s\n", s.Title, s.Description)
	}
	return b.String()
}

// truncate cuts s to at most maxLen bytes without splitting a UTF-8 sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
