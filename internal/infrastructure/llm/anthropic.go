package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"PaperTriage/internal/config"
	"PaperTriage/internal/review"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient implements review.Backend on the Messages API.
type AnthropicClient struct {
	endpoint    string
	model       string
	apiKey      string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

var _ review.Backend = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration.
func NewAnthropicClient(cfg config.ReviewerConfig, httpClient *http.Client) *AnthropicClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AnthropicClient{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		maxTokens:   maxTokens(cfg.MaxTokens),
		temperature: cfg.Temperature,
		httpClient:  httpClient,
	}
}

func (c *AnthropicClient) Name() string  { return "claude" }
func (c *AnthropicClient) Model() string { return c.model }

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete concatenates the text blocks of the model's reply.
func (c *AnthropicClient) Complete(ctx context.Context, prompt review.Prompt) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("%w: anthropic client needs endpoint, model and api key", review.ErrMisconfigured)
	}

	payload := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"system":      prompt.System,
		"messages": []map[string]string{
			{"role": "user", "content": prompt.User},
		},
	}

	var resp anthropicResponse
	err := postJSON(ctx, c.httpClient, c.endpoint, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}, payload, &resp)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%w: anthropic returned no text (stop_reason=%s)", review.ErrMalformed, resp.StopReason)
	}
	return b.String(), nil
}
