// Package render talks to the external asynchronous render service: one POST
// to submit a composition, then repeated GETs until the vendor reports a
// terminal state or the attempt ceiling is hit.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"videoforge/internal/infra"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 60
)

var (
	// ErrRenderTimeout is returned when the vendor never reaches a terminal
	// state within the poll budget. No cancellation is sent to the vendor;
	// the caller simply stops waiting.
	ErrRenderTimeout = errors.New("render: poll attempts exhausted")
	// ErrMissingRenderURL is returned when the vendor reports done without a
	// url, which is a protocol violation.
	ErrMissingRenderURL = errors.New("render: done response missing url")
)

// SubmissionError reports a non-2xx submit response.
type SubmissionError struct {
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("render: submission rejected (status %d): %s", e.StatusCode, e.Body)
}

// VendorError carries the vendor's own failure message from a failed render.
type VendorError struct {
	Message string
}

func (e *VendorError) Error() string {
	return "render: vendor failed: " + e.Message
}

// Options configures the render client.
type Options struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	PollInterval time.Duration
	MaxAttempts  int
	// Sleep is injectable so tests can simulate the poll budget without
	// wall-clock delay.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client submits compositions and polls them to completion.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	logger       *infra.Logger
	pollInterval time.Duration
	maxAttempts  int
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewClient constructs a render client with the fixed 5s/60-attempt poll
// budget unless overridden.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("render: base url is required")
	}
	c := &Client{
		baseURL:      opts.BaseURL,
		apiKey:       opts.APIKey,
		httpClient:   opts.HTTPClient,
		logger:       opts.Logger,
		pollInterval: opts.PollInterval,
		maxAttempts:  opts.MaxAttempts,
		sleep:        opts.Sleep,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	return c, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type submitRequest struct {
	Timeline Timeline `json:"timeline"`
	Output   Output   `json:"output"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type pollResponse struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Submit posts the composition and returns the vendor's render id.
func (c *Client) Submit(ctx context.Context, timeline Timeline, output Output) (string, error) {
	body, err := json.Marshal(submitRequest{Timeline: timeline, Output: output})
	if err != nil {
		return "", fmt.Errorf("render: encode submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("render: build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("render: submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("render: decode submit response: %w", err)
	}
	if parsed.ID == "" {
		return "", errors.New("render: submit response missing id")
	}
	if c.logger != nil {
		c.logger.Info().Str("render_id", parsed.ID).Msg("render: submitted")
	}
	return parsed.ID, nil
}

// poll queries the render once.
func (c *Client) poll(ctx context.Context, renderID string) (*pollResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/render/"+renderID, nil)
	if err != nil {
		return nil, fmt.Errorf("render: build poll request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render: poll: %w", err)
	}
	defer resp.Body.Close()
	var parsed pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("render: decode poll response: %w", err)
	}
	return &parsed, nil
}

// WaitForURL polls until the render is done or failed. Terminal states are
// exactly "done" (must carry a url) and "failed"; everything else counts as
// still in progress against the attempt ceiling.
func (c *Client) WaitForURL(ctx context.Context, renderID string) (string, error) {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return "", err
		}
		status, err := c.poll(ctx, renderID)
		if err != nil {
			return "", err
		}
		switch status.Status {
		case "done":
			if status.URL == "" {
				return "", ErrMissingRenderURL
			}
			return status.URL, nil
		case "failed":
			return "", &VendorError{Message: status.Error}
		}
		if c.logger != nil {
			c.logger.Debug().Str("render_id", renderID).Str("status", status.Status).Int("attempt", attempt+1).Msg("render: in progress")
		}
	}
	return "", ErrRenderTimeout
}

// Render submits the composition and waits for the final video URL.
func (c *Client) Render(ctx context.Context, timeline Timeline, output Output) (string, error) {
	renderID, err := c.Submit(ctx, timeline, output)
	if err != nil {
		return "", err
	}
	return c.WaitForURL(ctx, renderID)
}
