package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"PaperTriage/internal/config"
	"PaperTriage/internal/review"
)

// OpenAIClient implements review.Backend backed by OpenAI-compatible chat completion APIs.
type OpenAIClient struct {
	endpoint    string
	model       string
	apiKey      string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

var _ review.Backend = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from configuration. The per-call deadline
// comes from the review policy, not the HTTP client.
func NewOpenAIClient(cfg config.ReviewerConfig, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAIClient{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		maxTokens:   maxTokens(cfg.MaxTokens),
		temperature: cfg.Temperature,
		httpClient:  httpClient,
	}
}

func (c *OpenAIClient) Name() string  { return "openai" }
func (c *OpenAIClient) Model() string { return c.model }

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete posts the prompt as a system and user message pair.
func (c *OpenAIClient) Complete(ctx context.Context, prompt review.Prompt) (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: openai client is nil", review.ErrMisconfigured)
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("%w: openai client needs endpoint, model and api key", review.ErrMisconfigured)
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": orDefault(prompt.System, "You review scientific publications.")},
			{"role": "user", "content": prompt.User},
		},
		"max_tokens":      c.maxTokens,
		"temperature":     c.temperature,
		"response_format": map[string]string{"type": "json_object"},
	}

	var resp openAIResponse
	err := postJSON(ctx, c.httpClient, c.endpoint, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, payload, &resp)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: openai returned no choices", review.ErrMalformed)
	}
	return resp.Choices[0].Message.Content, nil
}
