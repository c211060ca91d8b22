package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go-internship-scanner/internal/models"
)

const DefaultBaseURL = "https://api.groq.com/openai/v1/chat/completions"

// GrokClient talks to any OpenAI-compatible chat completions endpoint
// (Groq by default, xAI Grok with a different base URL).
type GrokClient struct {
	apiKey     string
	model      string
	baseURL    string
	terms      PromptTerms
	httpClient *http.Client
	tokens     atomic.Int64
}

func NewGrokClient(apiKey, baseURL, model string, terms PromptTerms) *GrokClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &GrokClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		terms:      terms,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *GrokClient) Classify(ctx context.Context, p models.Posting) (*Classification, error) {
	answer, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt(c.terms)},
			{Role: "user", Content: buildUserPrompt(p)},
		},
		Temperature:    0.1,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return nil, err
	}

	var out Classification
	cleaned := cleanMarkdownJSON(answer)
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("decode classification (%d bytes): %w", len(cleaned), err)
	}
	if err := out.normalize(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Complete sends a free-form system/user exchange and returns the raw answer.
func (c *GrokClient) Complete(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: 4096,
	})
}

// complete posts one chat request and returns the first choice's content.
func (c *GrokClient) complete(ctx context.Context, body chatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LLM API returned status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("LLM API error: %s", decoded.Error.Message)
	}
	c.tokens.Add(decoded.Usage.TotalTokens)
	if len(decoded.Choices) == 0 {
		return "", ErrNoChoices
	}
	return decoded.Choices[0].Message.Content, nil
}

// TokensUsed is the running total reported by the provider.
func (c *GrokClient) TokensUsed() int64 { return c.tokens.Load() }

// cleanMarkdownJSON strips a ``` or ```json fence some models put around
// their answer.
func cleanMarkdownJSON(content string) string {
	content = strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(content, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		content = strings.TrimSuffix(rest, "```")
	}
	return strings.TrimSpace(content)
}
