package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ProductScout/internal/config"
)

func TestClientGenerateJSON(t *testing.T) {
	t.Parallel()

	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("unexpected auth header: %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		var resp chatResponse
		resp.Choices = make([]struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}, 1)
		resp.Choices[0].Message.Content = "```json\n{\"seedTerms\":[\"a\"]}\n```"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{
		Endpoint: server.URL,
		Model:    "test-model",
		APIKey:   "secret",
		Timeout:  time.Second,
	}, nil)

	var out struct {
		SeedTerms []string `json:"seedTerms"`
	}
	if err := client.GenerateJSON(context.Background(), "find headphones", &out); err != nil {
		t.Fatalf("GenerateJSON error: %v", err)
	}

	if len(out.SeedTerms) != 1 || out.SeedTerms[0] != "a" {
		t.Fatalf("unexpected decode: %+v", out)
	}
	if got.Model != "test-model" || len(got.Messages) != 2 || got.Messages[1].Content != "find headphones" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("expected json_object response format")
	}
	if strings.TrimSpace(got.Messages[0].Content) == "" {
		t.Fatalf("expected default system prompt")
	}
}

func TestClientErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{Endpoint: server.URL, Model: "m", APIKey: "k"}, nil)
	var out map[string]any
	err := client.GenerateJSON(context.Background(), "p", &out)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestClientMisconfigured(t *testing.T) {
	t.Parallel()

	client := NewClient(config.LLMConfig{}, nil)
	var out map[string]any
	if err := client.GenerateJSON(context.Background(), "p", &out); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}
