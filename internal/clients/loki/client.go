// Package loki provides a client to interface with Grafana Loki for finding query-node log entries.
package loki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"qtrace/internal/config"
)

// ErrNoLogEntry is returned when Loki has no log line matching the query.
var ErrNoLogEntry = errors.New("no matching query log entry")

// Client handles authenticated LogQL queries against a specified Loki instance.
type Client struct {
	baseURL  string
	cluster  string
	username string
	password string
	client   *http.Client
	logger   *slog.Logger
}

// NewClient creates a new Loki client
func NewClient(cfg config.LokiConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = "http://localhost:3100"
	}
	return &Client{
		baseURL:  baseURL,
		cluster:  cfg.Cluster,
		username: cfg.Username,
		password: cfg.Password,
		client: &http.Client{
			Timeout: cfg.GetTimeoutDuration(),
		},
		logger: logger,
	}
}

// LogEntry is a GraphQL request recovered from a query-node log line.
type LogEntry struct {
	Query     string
	Variables json.RawMessage
}

// LogResponse represents Loki query response
type LogResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][]string        `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// FindQuery looks up the most recent GraphQL timing log line for deployment
// and returns the query and variables it records.
func (c *Client) FindQuery(ctx context.Context, deployment string, f Filter) (*LogEntry, error) {
	query := BuildTimingQuery(c.cluster, deployment, f)
	c.logger.Debug("Querying Loki", "query", query)

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", "1")

	req, err := c.newRequest(ctx, http.MethodGet, "/loki/api/v1/query", params)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send Loki query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from loki: %d", resp.StatusCode)
	}

	var result LogResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse Loki response: %w", err)
	}

	if len(result.Data.Result) == 0 || result.Data.Result[0].Stream == nil {
		return nil, fmt.Errorf("invalid Loki response: could not find stream: %w", ErrNoLogEntry)
	}
	stream := result.Data.Result[0].Stream

	q, ok := stream["query"]
	if !ok {
		return nil, errors.New("invalid Loki response: could not find query")
	}
	vars, ok := stream["variables"]
	if !ok {
		return nil, errors.New("invalid Loki response: could not find variables")
	}
	var variables json.RawMessage
	if err := json.Unmarshal([]byte(vars), &variables); err != nil {
		return nil, fmt.Errorf("invalid Loki response: variables are not JSON: %w", err)
	}

	c.logger.Debug("Found query log entry", "query_id", stream["query_id"], "query_time_ms", stream["query_time"])
	return &LogEntry{Query: q, Variables: variables}, nil
}

// newRequest creates a new HTTP request with basic auth
func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	u.Path = path
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	return req, nil
}
