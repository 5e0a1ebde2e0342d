package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is where the OS simulator serves its API by default.
const DefaultBaseURL = "http://127.0.0.1:8080/api"

// ErrUnexpectedStatus is returned when the simulator answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected status from backend")

// Client talks to the OS simulator backend. Every call is a plain
// request/response; retries belong to the caller.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client. baseURL defaults to DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Visualize fetches the RAG/WFG payload.
func (c *Client) Visualize(ctx context.Context) (DeadlockView, error) {
	body, err := c.do(ctx, http.MethodGet, "/os/deadlock/visualize", nil)
	if err != nil {
		return DeadlockView{}, err
	}
	defer body.Close()
	return DecodeDeadlockView(body)
}

// DeadlockStats fetches the deadlock verdict summary.
func (c *Client) DeadlockStats(ctx context.Context) (DeadlockStats, error) {
	var stats DeadlockStats
	if err := c.getJSON(ctx, "/os/deadlock", &stats); err != nil {
		return DeadlockStats{}, err
	}
	return stats, nil
}

// ProcessStats fetches the most recent scheduling result.
func (c *Client) ProcessStats(ctx context.Context) (ScheduleResult, error) {
	body, err := c.do(ctx, http.MethodGet, "/os/processes", nil)
	if err != nil {
		return ScheduleResult{}, err
	}
	defer body.Close()
	return DecodeScheduleResult(body)
}

// Schedule runs a scheduling algorithm on the simulator.
func (c *Client) Schedule(ctx context.Context, req ScheduleRequest) (ScheduleResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/os/processes/schedule", req)
	if err != nil {
		return ScheduleResult{}, err
	}
	defer body.Close()
	return DecodeScheduleResult(body)
}

// SimulateDeadlock asks the simulator to construct a deadlock.
func (c *Client) SimulateDeadlock(ctx context.Context) (SimulateResult, error) {
	var res SimulateResult
	if err := c.postJSON(ctx, "/os/deadlock/simulate", nil, &res); err != nil {
		return SimulateResult{}, err
	}
	return res, nil
}

// RecoverDeadlock asks the simulator to terminate deadlocked processes.
func (c *Client) RecoverDeadlock(ctx context.Context) (RecoverResult, error) {
	var res RecoverResult
	if err := c.postJSON(ctx, "/os/deadlock/recover", nil, &res); err != nil {
		return RecoverResult{}, err
	}
	return res, nil
}

// Health checks that the simulator is up.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return Health{}, err
	}
	return h, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := c.do(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in interface{}) (io.ReadCloser, error) {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request for %s: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %w: %d", method, path, ErrUnexpectedStatus, resp.StatusCode)
	}
	return resp.Body, nil
}
