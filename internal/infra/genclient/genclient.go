// Package genclient talks to the remote generation endpoint. The endpoint is
// an opaque, potentially slow remote procedure: request in, artifact out, no
// streaming and no progress channel. Transient failures are safe to retry.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ideaforge/ideaforge/internal/app/retry"
	"github.com/ideaforge/ideaforge/internal/domain"
)

// Client invokes the generation endpoint over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the per-request timeout (default 90s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a generation endpoint client.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type invokeRequest struct {
	Feature string         `json:"feature"`
	Params  map[string]any `json:"params"`
}

type invokeError struct {
	Message string `json:"message"`
}

type invokeResponse struct {
	Result map[string]any `json:"result"`
	Error  *invokeError   `json:"error,omitempty"`
}

// apiError carries the HTTP status so callers can tell transient failures
// from semantic rejections.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("generation endpoint: HTTP %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether the failure class is worth another attempt:
// rate limits, timeouts, and server errors are; 4xx rejections are not.
func (e *apiError) retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// Invoke calls the generation endpoint once. Validation-class rejections are
// wrapped with retry.Permanent so the retry executor stops immediately;
// everything else propagates as-is and gets the bounded retry treatment.
func (c *Client) Invoke(ctx context.Context, req domain.GenerationRequest) (map[string]any, error) {
	body, err := json.Marshal(invokeRequest{Feature: req.Feature, Params: req.Payload})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err // network/timeout class — retryable
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		ae := &apiError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 200)}
		if !ae.retryable() {
			return nil, retry.Permanent(ae)
		}
		return nil, ae
	}

	var parsed invokeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		// The remote explicitly reports a semantic failure — retrying the
		// same request will not help.
		return nil, retry.Permanent(fmt.Errorf("generation endpoint: %s", parsed.Error.Message))
	}
	if parsed.Result == nil {
		return nil, domain.ErrEmptyArtifact
	}
	return parsed.Result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
