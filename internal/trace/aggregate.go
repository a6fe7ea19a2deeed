package trace

import (
	"math"
	"time"
)

// Summary holds the derived timings of a root trace.
type Summary struct {
	Query time.Duration
	Other time.Duration
	Total time.Duration
	// Inconsistent is set when sub-queries add up to more than the root's
	// elapsed time. Other is clamped to zero in that case.
	Inconsistent bool
}

// QueryTime returns the time attributable to measured sub-queries: a query's
// own elapsed time plus that of its descendants. A root's own elapsed time is
// wall time and does not count.
func QueryTime(t Trace) time.Duration {
	var total time.Duration
	switch n := t.(type) {
	case *Root:
		for _, c := range n.Children {
			total = SaturatingAdd(total, QueryTime(c.Trace))
		}
	case *Query:
		total = n.Elapsed
		for _, c := range n.Children {
			total = SaturatingAdd(total, QueryTime(c.Trace))
		}
	}
	return total
}

// Summarize splits the root's elapsed time into sub-query time and other
// overhead.
func Summarize(root *Root) Summary {
	s := Summary{
		Query: QueryTime(root),
		Total: root.Elapsed,
	}
	if s.Query > root.Elapsed {
		s.Inconsistent = true
		return s
	}
	s.Other = root.Elapsed - s.Query
	return s
}

// SaturatingAdd adds two non-negative durations, stopping at the largest
// representable duration instead of wrapping.
func SaturatingAdd(a, b time.Duration) time.Duration {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
