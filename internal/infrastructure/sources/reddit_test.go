package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"ProductScout/internal/domain"
	"ProductScout/internal/source"
)

const redditFixture = `{
  "data": {
    "children": [
      {"data": {"title": "Best earbuds for sleeping?", "selftext": "My <b>Sony WF-1000XM5</b> work great &amp; stay in", "permalink": "/r/headphones/comments/abc/best/", "author": "sleepy", "created_utc": 1735689600}},
      {"data": {"title": "Sleepbuds", "selftext": "", "permalink": "/r/sleep/comments/def/sleepbuds/", "author": "[deleted]", "created_utc": 0}},
      {"data": {"title": "", "selftext": "", "permalink": "/r/sleep/comments/empty/"}}
    ]
  }
}`

func TestRedditRetrieve(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		queries []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		mu.Unlock()
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected limit: %s", r.URL.Query().Get("limit"))
		}
		_, _ = w.Write([]byte(redditFixture))
	}))
	defer server.Close()

	adapter := NewReddit(server.Client(), nil, server.URL+"/search.json", 25, nil)
	mentions, err := adapter.Retrieve(context.Background(), []string{"sleep earbuds", "sleep headphones"}, source.Options{Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}

	mu.Lock()
	requests := len(queries)
	mu.Unlock()
	if requests != 2 {
		t.Fatalf("expected one request per term, got %d", requests)
	}
	if len(mentions) != 2 {
		t.Fatalf("expected 2 deduplicated mentions, got %d", len(mentions))
	}

	first := mentions[0]
	if first.Platform != domain.PlatformReddit {
		t.Fatalf("unexpected platform: %s", first.Platform)
	}
	if first.URL != "https://www.reddit.com/r/headphones/comments/abc/best/" {
		t.Fatalf("unexpected url: %s", first.URL)
	}
	if first.Text != "My Sony WF-1000XM5 work great & stay in" {
		t.Fatalf("unexpected text: %q", first.Text)
	}
	if first.AuthorHandle != "u/sleepy" || first.CreatedAt == nil {
		t.Fatalf("unexpected provenance: %+v", first)
	}

	second := mentions[1]
	if second.Text != "Sleepbuds" || second.AuthorHandle != "" || second.CreatedAt != nil {
		t.Fatalf("unexpected second mention: %+v", second)
	}
}

func TestRedditRetrieveFailsOnlyWhenAllTermsFail(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data": {"children": []}}`))
	}))
	defer server.Close()

	adapter := NewReddit(server.Client(), nil, server.URL, 0, nil)
	mentions, err := adapter.Retrieve(context.Background(), []string{"a", "b"}, source.Options{})
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if mentions == nil || len(mentions) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", mentions)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	adapter = NewReddit(down.Client(), nil, down.URL, 0, nil)
	if _, err := adapter.Retrieve(context.Background(), []string{"a"}, source.Options{}); err == nil {
		t.Fatalf("expected error when every term fails")
	}
}
