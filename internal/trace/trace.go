// Package trace turns graph-node query traces into a typed tree, aggregates
// their timings and renders them as an aligned text report.
package trace

import (
	"encoding/json"
	"time"
)

// NoQueryID is reported for nodes that do not carry a query id.
const NoQueryID = "none"

// Trace is either a *Root or a *Query. Traversals switch on the concrete type.
type Trace interface {
	isTrace()
}

// Child is a named sub-trace, kept in document order.
type Child struct {
	Name  string
	Trace Trace
}

// Root is the top-level invocation of a GraphQL request.
type Root struct {
	Query      string
	Variables  json.RawMessage
	QueryID    string
	Block      uint64
	Elapsed    time.Duration
	ConnWait   time.Duration
	PermitWait time.Duration
	Children   []Child
}

// Query is a nested resolver or store query.
type Query struct {
	Query       string
	Elapsed     time.Duration
	ConnWait    time.Duration
	PermitWait  time.Duration
	EntityCount uint64
	Children    []Child
}

func (*Root) isTrace()  {}
func (*Query) isTrace() {}

// QueryID returns the query id of a root, or NoQueryID for anything else.
func QueryID(t Trace) string {
	if r, ok := t.(*Root); ok {
		return r.QueryID
	}
	return NoQueryID
}

// Walk calls fn for every Query below t in depth-first order. path joins the
// child names from t down to the node with dots, starting with prefix.
func Walk(t Trace, prefix string, fn func(path string, q *Query)) {
	for _, c := range ChildrenOf(t) {
		path := prefix + "." + c.Name
		if q, ok := c.Trace.(*Query); ok {
			fn(path, q)
		}
		Walk(c.Trace, path, fn)
	}
}

// ChildrenOf returns the children of t.
func ChildrenOf(t Trace) []Child {
	switch n := t.(type) {
	case *Root:
		return n.Children
	case *Query:
		return n.Children
	}
	return nil
}
