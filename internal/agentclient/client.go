// Package agentclient is the HTTP client for the agent process contract:
// GET /health for readiness and POST /process for message handling.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProcessRequest is the payload forwarded to an agent's /process endpoint.
type ProcessRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// ProcessResponse is the structured reply from an agent's /process endpoint.
type ProcessResponse struct {
	Response  string   `json:"response"`
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	ToolsUsed []string `json:"tools_used,omitempty"`
}

// StatusError reports a probe or proxy call that reached the agent but got
// a non-success HTTP status. Transport failures are returned as plain
// wrapped errors, so callers can tell unreachable from unhealthy.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("agent returned status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("agent returned status %d", e.Code)
}

// Client talks to deployed agent processes.
type Client struct {
	httpClient *http.Client
}

// New creates a Client with the given per-request timeout.
func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Health probes GET <baseURL>/health. Returns nil when the agent answers
// with a success status; any non-2xx status, timeout, or connection error
// is returned as a non-nil error.
func (c *Client) Health(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(baseURL, "/health"), nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Process forwards a message to POST <baseURL>/process and relays the
// structured response. A pure proxy: no retries, failures surface directly.
func (c *Client) Process(ctx context.Context, baseURL string, req ProcessRequest) (*ProcessResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling process request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(baseURL, "/process"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building process request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var out ProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding agent response: %w", err)
	}
	return &out, nil
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}
