// Package sources holds the concrete retrieval adapters.
package sources

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"ProductScout/internal/resilience"
)

const userAgent = "ProductScout/1.0"

var strictPolicy = bluemonday.StrictPolicy()

// sanitize strips markup from retrieved text and collapses whitespace.
func sanitize(raw string) string {
	clean := html.UnescapeString(strictPolicy.Sanitize(raw))
	return strings.Join(strings.Fields(clean), " ")
}

type fetcher struct {
	client   *http.Client
	limiters *resilience.Limiters
}

func newFetcher(client *http.Client, limiters *resilience.Limiters) fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return fetcher{client: client, limiters: limiters}
}

// get waits on the bucket of the target host and returns the response body.
// The caller must close it.
func (f fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %s: %w", rawURL, err)
	}
	if f.limiters != nil {
		if err := f.limiters.Wait(ctx, parsed.Hostname()); err != nil {
			return nil, fmt.Errorf("wait for %s: %w", parsed.Hostname(), err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", parsed.Hostname(), err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s returned %s", parsed.Hostname(), resp.Status)
	}
	return resp.Body, nil
}

func withQuery(base string, params map[string]string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %s: %w", base, err)
	}
	query := parsed.Query()
	for k, v := range params {
		query.Set(k, v)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
