package loki

import (
	"fmt"
	"strconv"
	"strings"
)

// timingPattern extracts the fields of graph-node's "Query timing (GraphQL)"
// log line. It has to follow graph-node's log format.
const timingPattern = `pattern "<_>INFO Query timing (GraphQL), block: <block>, query_time_ms: <query_time>, variables: <variables>, query: <query> , query_id: <query_id>,"`

// Filter narrows down which query log entry is picked.
type Filter struct {
	// QueryID selects one specific query.
	QueryID string
	// MinTimeMs only considers queries slower than this many milliseconds.
	// Nil disables it; zero still filters.
	MinTimeMs *uint64
}

// BuildTimingQuery constructs the LogQL query for GraphQL timing lines of a deployment.
// Label and filter values are quoted as LogQL string literals.
func BuildTimingQuery(cluster, deployment string, f Filter) string {
	var b strings.Builder
	fmt.Fprintf(&b, `{cluster=%s,app=~"query-node.*",deployment=%s,container="query-node"} | %s`,
		strconv.Quote(cluster), strconv.Quote(deployment), timingPattern)
	if f.QueryID != "" {
		fmt.Fprintf(&b, ` | query_id=%s`, strconv.Quote(f.QueryID))
	}
	if f.MinTimeMs != nil {
		fmt.Fprintf(&b, ` | query_time > %d`, *f.MinTimeMs)
	}
	return b.String()
}
