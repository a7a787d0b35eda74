package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"PaperTriage/internal/config"
	"PaperTriage/internal/review"
)

// GeminiClient implements review.Backend on the generateContent API.
type GeminiClient struct {
	baseURL     string
	model       string
	apiKey      string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

var _ review.Backend = (*GeminiClient)(nil)

// NewGeminiClient builds a client from configuration. Endpoint is the API
// base, e.g. https://generativelanguage.googleapis.com/v1beta.
func NewGeminiClient(cfg config.ReviewerConfig, httpClient *http.Client) *GeminiClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GeminiClient{
		baseURL:     strings.TrimRight(cfg.Endpoint, "/"),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		maxTokens:   maxTokens(cfg.MaxTokens),
		temperature: cfg.Temperature,
		httpClient:  httpClient,
	}
}

func (c *GeminiClient) Name() string  { return "gemini" }
func (c *GeminiClient) Model() string { return c.model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// Complete asks for a JSON response and joins the first candidate's parts.
func (c *GeminiClient) Complete(ctx context.Context, prompt review.Prompt) (string, error) {
	if c.apiKey == "" || c.baseURL == "" || c.model == "" {
		return "", fmt.Errorf("%w: gemini client needs endpoint, model and api key", review.ErrMisconfigured)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	payload := map[string]any{
		"systemInstruction": geminiContent{Parts: []geminiPart{{Text: prompt.System}}},
		"contents": []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt.User}}},
		},
		"generationConfig": map[string]any{
			"temperature":      c.temperature,
			"maxOutputTokens":  c.maxTokens,
			"responseMimeType": "application/json",
		},
	}

	var resp geminiResponse
	err := postJSON(ctx, c.httpClient, endpoint, map[string]string{
		"x-goog-api-key": c.apiKey,
	}, payload, &resp)
	if err != nil {
		return "", fmt.Errorf("gemini generateContent: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", review.ErrMalformed)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%w: gemini returned empty text (finishReason=%s)", review.ErrMalformed, resp.Candidates[0].FinishReason)
	}
	return b.String(), nil
}
