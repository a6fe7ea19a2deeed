// Package remediation provides a fast, rule-based engine for suggesting fixes for slow queries.
package remediation

import (
	"fmt"
	"time"

	"qtrace/internal/trace"
)

// Suggestion defines an actionable remediation step for a trace.
type Suggestion struct {
	Title       string
	Description string
	Action      string
}

// Engine evaluates traces against a set of heuristic rules.
type Engine struct {
	// WaitThreshold flags connection and permit waits at or above this duration.
	WaitThreshold time.Duration
	// LargeResult flags nodes returning at least this many entities.
	LargeResult uint64
}

// NewEngine initializes the engine with default thresholds.
func NewEngine() *Engine {
	return &Engine{
		WaitThreshold: 100 * time.Millisecond,
		LargeResult:   1000,
	}
}

// GetSuggestions runs every rule over root and returns the ones that match.
func (e *Engine) GetSuggestions(root *trace.Root) []Suggestion {
	var suggestions []Suggestion
	s := trace.Summarize(root)

	if s.Inconsistent {
		suggestions = append(suggestions, Suggestion{
			Title:       "Inconsistent Trace",
			Description: fmt.Sprintf("Sub-queries add up to %dms but the request took %dms.", s.Query.Milliseconds(), s.Total.Milliseconds()),
			Action:      "Treat the breakdown with care; sub-query timers overlap or clocks drifted.",
		})
	}

	connWait, permitWait := root.ConnWait, root.PermitWait
	var largest string
	var largestCount uint64
	trace.Walk(root, "root", func(path string, q *trace.Query) {
		connWait = trace.SaturatingAdd(connWait, q.ConnWait)
		permitWait = trace.SaturatingAdd(permitWait, q.PermitWait)
		if q.EntityCount > largestCount {
			largest, largestCount = path, q.EntityCount
		}
	})

	if connWait >= e.WaitThreshold {
		suggestions = append(suggestions, Suggestion{
			Title:       "Database Connection Pool Saturated",
			Description: fmt.Sprintf("The request waited %dms for database connections.", connWait.Milliseconds()),
			Action:      "Check the store connection pool size and other load on the shard.",
		})
	}

	if permitWait >= e.WaitThreshold {
		suggestions = append(suggestions, Suggestion{
			Title:       "Query Permits Exhausted",
			Description: fmt.Sprintf("The request waited %dms for query permits.", permitWait.Milliseconds()),
			Action:      "The node is running at its query concurrency limit; add query nodes or reduce traffic.",
		})
	}

	if largestCount >= e.LargeResult {
		suggestions = append(suggestions, Suggestion{
			Title:       "Large Result Set",
			Description: fmt.Sprintf("%s returned %d entities.", largest, largestCount),
			Action:      "Paginate the field with a smaller `first` or narrow it with a `where` filter.",
		})
	}

	if !s.Inconsistent && s.Total > 0 && s.Other > s.Query {
		suggestions = append(suggestions, Suggestion{
			Title:       "Time Spent Outside Queries",
			Description: fmt.Sprintf("%dms of %dms were spent outside store queries.", s.Other.Milliseconds(), s.Total.Milliseconds()),
			Action:      "Look at result serialization and query validation; very wide selections are a common cause.",
		})
	}

	return suggestions
}
