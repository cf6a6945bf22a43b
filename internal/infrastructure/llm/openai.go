package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ProductScout/internal/config"
	"ProductScout/internal/ports"
	"ProductScout/internal/resilience"
)

// LimiterKey is the token-bucket name every completion waits on.
const LimiterKey = "llm"

// Client implements ports.LLM backed by OpenAI-compatible chat completion APIs.
type Client struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	temperature  float64
	httpClient   *http.Client
	limiters     *resilience.Limiters
}

var _ ports.LLM = (*Client)(nil)

// NewClient builds a client from configuration; limiters may be nil.
func NewClient(cfg config.LLMConfig, limiters *resilience.Limiters) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		httpClient:   &http.Client{Timeout: timeout},
		limiters:     limiters,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateJSON sends prompt as a user message and decodes the JSON reply into out.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, out any) error {
	if c == nil {
		return fmt.Errorf("llm client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return fmt.Errorf("llm client misconfigured")
	}

	if c.limiters != nil {
		if err := c.limiters.Wait(ctx, LimiterKey); err != nil {
			return fmt.Errorf("wait for llm token: %w", err)
		}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: prompt},
		},
		Temperature:    c.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return fmt.Errorf("marshal llm payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return fmt.Errorf("%w: no choices in completion", ErrMalformedResponse)
	}

	return DecodeJSON(completion.Choices[0].Message.Content, out)
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a product research analyst. Always answer with a single valid JSON document and nothing else."
	}
	return prompt
}
