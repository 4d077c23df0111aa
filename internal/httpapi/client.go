package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/retracehq/retrace/internal/models"
)

// DefaultPollInterval is how often WaitForRun re-reads the run snapshot.
const DefaultPollInterval = time.Second

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// Client drives a remote retrace instance. It is the one implementation of
// the status poll loop; everything that waits on a run goes through
// WaitForRun rather than rolling its own polling.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval sets the WaitForRun polling interval.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartRun launches a regression run for an agent and returns the initial
// snapshot. The run proceeds server-side; poll with WaitForRun or GetRun.
func (c *Client) StartRun(ctx context.Context, agentID string, overrides models.Overrides) (models.RegressionRun, error) {
	var run models.RegressionRun
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/agents/%s/regressions", url.PathEscape(agentID)),
		StartRunRequest{Overrides: overrides}, &run)
	return run, err
}

// GetRun reads the current run snapshot.
func (c *Client) GetRun(ctx context.Context, runID string) (models.RegressionRun, error) {
	var run models.RegressionRun
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/api/regressions/%s", url.PathEscape(runID)), nil, &run)
	return run, err
}

// ExecuteCase replays one test case and returns its persisted log.
func (c *Client) ExecuteCase(ctx context.Context, testCaseID string, overrides models.Overrides) (models.TestLog, error) {
	var log models.TestLog
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/test-cases/%s/executions", url.PathEscape(testCaseID)),
		StartRunRequest{Overrides: overrides}, &log)
	return log, err
}

// ListRunLogs reads every test log written for a run.
func (c *Client) ListRunLogs(ctx context.Context, runID string) ([]models.TestLog, error) {
	var logs []models.TestLog
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/api/regressions/%s/logs", url.PathEscape(runID)), nil, &logs)
	return logs, err
}

// ListAgents reads all registered agents.
func (c *Client) ListAgents(ctx context.Context) ([]models.Agent, error) {
	var agents []models.Agent
	err := c.do(ctx, http.MethodGet, "/api/agents", nil, &agents)
	return agents, err
}

// WaitForRun polls the run at a fixed interval until it reaches a terminal
// status or ctx is cancelled. onUpdate, when non-nil, receives every
// snapshot read, including the terminal one.
func (c *Client) WaitForRun(ctx context.Context, runID string, onUpdate func(models.RegressionRun)) (models.RegressionRun, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		run, err := c.GetRun(ctx, runID)
		if err != nil {
			return run, err
		}
		if onUpdate != nil {
			onUpdate(run)
		}
		if run.Status.Terminal() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error == "" {
			envelope.Error = resp.Status
		}
		return &APIError{Code: resp.StatusCode, Message: envelope.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
