// Package graphnode replays GraphQL queries against a graph-node subgraph endpoint with query tracing enabled.
package graphnode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/valyala/fastjson"

	"qtrace/internal/config"
)

// TraceHeader carries the trace token that makes graph-node return a query trace.
const TraceHeader = "X-GraphTraceQuery"

// ErrNoTrace is returned when a response does not contain a trace.
var ErrNoTrace = errors.New("graph-node response has no trace")

// Client implements HTTP interaction with graph-node's subgraph query endpoint.
type Client struct {
	baseURL    string
	traceToken string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new graph-node client
func NewClient(cfg config.GraphNodeConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    cfg.URL,
		traceToken: cfg.TraceToken,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeoutDuration(),
		},
		logger: logger,
	}
}

type queryRequest struct {
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables"`
}

// Query posts query and variables to the deployment's endpoint and returns the
// parsed response. GraphQL level errors do not fail the call; see Response.Errors.
func (c *Client) Query(ctx context.Context, deployment, query string, variables json.RawMessage) (*Response, error) {
	body, err := json.Marshal(queryRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := c.doRequest(ctx, "/subgraphs/id/"+deployment, body)
	if err != nil {
		c.logger.Error("Failed to query graph-node", "deployment", deployment, "error", err)
		return nil, err
	}

	v, err := fastjson.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse graph-node response: %w", err)
	}
	return &Response{raw: raw, value: v}, nil
}

// doRequest posts body to graph-node and returns the response body
func (c *Client) doRequest(ctx context.Context, apiPath string, body []byte) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = apiPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(TraceHeader, c.traceToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send graph-node query: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to get graph-node response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from graph-node: %d", resp.StatusCode)
	}

	return respBody, nil
}

// Response is a graph-node reply. Its parts are handed out untransformed.
type Response struct {
	raw   []byte
	value *fastjson.Value
}

// Raw returns the response body as received.
func (r *Response) Raw() []byte {
	return r.raw
}

// Data returns the GraphQL result data, or nil if there is none.
func (r *Response) Data() *fastjson.Value {
	return r.value.Get("data")
}

// Trace returns the query trace. When graph-node did not produce one, the
// error wraps ErrNoTrace and names any GraphQL errors it reported instead.
func (r *Response) Trace() (*fastjson.Value, error) {
	t := r.value.Get("trace")
	if t != nil && t.Type() != fastjson.TypeNull {
		return t, nil
	}
	if errs := r.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTrace, strings.Join(errs, "; "))
	}
	return nil, ErrNoTrace
}

// Errors returns the messages of any GraphQL errors in the response.
func (r *Response) Errors() []string {
	var msgs []string
	for _, e := range r.value.GetArray("errors") {
		if m := e.GetStringBytes("message"); m != nil {
			msgs = append(msgs, string(m))
		} else {
			msgs = append(msgs, e.String())
		}
	}
	return msgs
}
