package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"PaperTriage/internal/config"
	"PaperTriage/internal/review"
)

const responseLimit = 1 << 20

// Client talks to a self-hosted inference service that serves a relevance
// model behind a single /review endpoint.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
}

var _ review.Backend = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.ReviewerConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		http:     httpClient,
	}
}

func (c *Client) Name() string  { return "inference" }
func (c *Client) Model() string { return c.model }

// Complete sends the rendered prompt and returns the service output verbatim.
// The service may answer with {"output": "..."} or with the judgment object itself.
func (c *Client) Complete(ctx context.Context, prompt review.Prompt) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("%w: inference endpoint is empty", review.ErrMisconfigured)
	}

	payload := map[string]any{
		"model":          c.model,
		"prompt_version": prompt.Version,
		"system":         prompt.System,
		"prompt":         prompt.User,
	}

	raw, err := c.post(ctx, "/review", payload)
	if err != nil {
		return "", err
	}

	var wrapped struct {
		Output *string `json:"output"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Output != nil {
		return *wrapped.Output, nil
	}
	return string(raw), nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %v", review.ErrMisconfigured, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if closeErr := resp.Body.Close(); closeErr != nil {
			return nil, fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return nil, &review.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return nil, fmt.Errorf("close response body: %w", err)
	}

	return raw, nil
}
