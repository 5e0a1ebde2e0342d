package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rmax-ai/osmon/pkg/api"
	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/engine"
	"github.com/rmax-ai/osmon/pkg/store"
)

// DefaultEndpoint is where osmon-d listens by default.
const DefaultEndpoint = "http://127.0.0.1:8091"

// Client talks to the osmon daemon API. Reads are retried with backoff on
// network errors and 5xx answers; actions are sent once.
type Client struct {
	endpoint   string
	http       *http.Client
	backoff    BackoffStrategy
	maxRetries int
}

// NewClient creates a new daemon client.
// endpoint defaults to DefaultEndpoint if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		http:       &http.Client{Timeout: 10 * time.Second},
		backoff:    DefaultBackoff(),
		maxRetries: 3,
	}
}

// WithRetries overrides the read retry policy. n = 1 disables retries.
func (c *Client) WithRetries(n int, b BackoffStrategy) *Client {
	if n < 1 {
		n = 1
	}
	c.maxRetries = n
	if b != nil {
		c.backoff = b
	}
	return c
}

// Endpoint returns the daemon base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (api.HealthResponse, error) {
	var h api.HealthResponse
	err := c.get(ctx, "/v1/health", &h)
	return h, err
}

// View fetches the full latest View.
func (c *Client) View(ctx context.Context) (engine.View, error) {
	var v engine.View
	err := c.get(ctx, "/v1/view", &v)
	return v, err
}

// Graphs fetches the positioned RAG and WFG.
func (c *Client) Graphs(ctx context.Context) (api.GraphsResponse, error) {
	var g api.GraphsResponse
	err := c.get(ctx, "/v1/graphs", &g)
	return g, err
}

// Timeline fetches the Gantt chart and schedule summary.
func (c *Client) Timeline(ctx context.Context) (api.TimelineResponse, error) {
	var tl api.TimelineResponse
	err := c.get(ctx, "/v1/timeline", &tl)
	return tl, err
}

// Export fetches one graph as DOT or Mermaid text.
func (c *Client) Export(ctx context.Context, graphKind, format string) (string, error) {
	q := url.Values{"graph": {graphKind}, "format": {format}}
	body, err := c.getRaw(ctx, "/v1/graphs/export?"+q.Encode())
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetEvents fetches stored events, newest first.
func (c *Client) GetEvents(ctx context.Context, opts EventsOptions) ([]store.Event, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if len(opts.Types) > 0 {
		q.Set("types", strings.Join(opts.Types, ","))
	}
	if !opts.From.IsZero() {
		q.Set("from", opts.From.Format(time.RFC3339))
	}
	if !opts.To.IsZero() {
		q.Set("to", opts.To.Format(time.RFC3339))
	}
	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	events := make([]store.Event, 0)
	err := c.get(ctx, path, &events)
	return events, err
}

// Snapshot rebuilds the View of a stored snapshot.
func (c *Client) Snapshot(ctx context.Context, id string) (engine.View, error) {
	var v engine.View
	err := c.get(ctx, "/v1/snapshots/"+url.PathEscape(id), &v)
	return v, err
}

// Report downloads a CSV report.
func (c *Client) Report(ctx context.Context, reportType string) ([]byte, error) {
	return c.getRaw(ctx, "/v1/reports?"+url.Values{"type": {reportType}}.Encode())
}

// Archives lists the snapshot archive keys.
func (c *Client) Archives(ctx context.Context) ([]string, error) {
	var resp api.ArchivesResponse
	err := c.get(ctx, "/v1/archives", &resp)
	return resp.Keys, err
}

// Refresh asks the daemon to poll now.
func (c *Client) Refresh(ctx context.Context) (engine.View, error) {
	var v engine.View
	err := c.post(ctx, "/v1/refresh", nil, &v)
	return v, err
}

// Schedule runs a scheduling algorithm through the daemon.
func (c *Client) Schedule(ctx context.Context, req backend.ScheduleRequest) (api.TimelineResponse, error) {
	var tl api.TimelineResponse
	err := c.post(ctx, "/v1/actions/schedule", req, &tl)
	return tl, err
}

// ResumeScheduling lifts the schedule freeze.
func (c *Client) ResumeScheduling(ctx context.Context) error {
	return c.post(ctx, "/v1/actions/schedule/resume", nil, nil)
}

// SimulateDeadlock asks the backend, via the daemon, to create a deadlock.
func (c *Client) SimulateDeadlock(ctx context.Context) (api.SimulateResponse, error) {
	var resp api.SimulateResponse
	err := c.post(ctx, "/v1/actions/deadlock/simulate", nil, &resp)
	return resp, err
}

// RecoverDeadlock asks the backend, via the daemon, to break the deadlock.
func (c *Client) RecoverDeadlock(ctx context.Context) (api.RecoverResponse, error) {
	var resp api.RecoverResponse
	err := c.post(ctx, "/v1/actions/deadlock/recover", nil, &resp)
	return resp, err
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff.Next(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		body, err := c.do(ctx, http.MethodGet, path, nil)
		if err == nil {
			return body, nil
		}
		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return nil, err
		}
		if errors.Is(err, ErrNoSnapshot) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	var payload io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		payload = bytes.NewReader(data)
	}
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, payload)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil {
			apiErr.Code = e.Error
		}
		return nil, apiErr
	}
	return body, nil
}
