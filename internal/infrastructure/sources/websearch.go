package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ProductScout/internal/domain"
	"ProductScout/internal/resilience"
	"ProductScout/internal/source"
)

const duckDuckGoHTMLURL = "https://html.duckduckgo.com/html/"

// WebSearch scrapes result snippets from the DuckDuckGo HTML endpoint.
type WebSearch struct {
	fetcher  fetcher
	endpoint string
	limit    int
	logger   *slog.Logger
}

var _ source.Adapter = (*WebSearch)(nil)

// NewWebSearch builds the adapter; limit defaults to 20 results per term.
func NewWebSearch(client *http.Client, limiters *resilience.Limiters, endpoint string, limit int, log *slog.Logger) *WebSearch {
	if endpoint == "" {
		endpoint = duckDuckGoHTMLURL
	}
	if limit <= 0 {
		limit = 20
	}
	return &WebSearch{fetcher: newFetcher(client, limiters), endpoint: endpoint, limit: limit, logger: log}
}

// Name identifies the adapter inside the registry.
func (w *WebSearch) Name() string {
	return "websearch"
}

// Retrieve runs one search per term. It fails only when every term fails.
func (w *WebSearch) Retrieve(ctx context.Context, terms []string, opts source.Options) ([]domain.Mention, error) {
	limit := w.limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	mentions := make([]domain.Mention, 0)
	seen := map[string]struct{}{}
	var errs []error

	for _, term := range terms {
		found, err := w.search(ctx, term, limit)
		if err != nil {
			w.debug("web search failed", "term", term, "error", err)
			errs = append(errs, fmt.Errorf("term %q: %w", term, err))
			continue
		}
		for _, m := range found {
			if _, dup := seen[m.URL]; dup {
				continue
			}
			seen[m.URL] = struct{}{}
			mentions = append(mentions, m)
		}
	}

	if len(terms) > 0 && len(errs) == len(terms) {
		return nil, errors.Join(errs...)
	}
	return mentions, nil
}

func (w *WebSearch) search(ctx context.Context, term string, limit int) ([]domain.Mention, error) {
	searchURL, err := withQuery(w.endpoint, map[string]string{"q": term})
	if err != nil {
		return nil, err
	}

	body, err := w.fetcher.get(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return extractResults(doc, limit), nil
}

func extractResults(doc *goquery.Document, limit int) []domain.Mention {
	var out []domain.Mention
	doc.Find(".result").EachWithBreak(func(_ int, result *goquery.Selection) bool {
		if len(out) >= limit {
			return false
		}
		m, ok := parseResult(result)
		if ok {
			out = append(out, m)
		}
		return true
	})
	return out
}

func parseResult(result *goquery.Selection) (domain.Mention, bool) {
	link := result.Find("a.result__a").First()
	href, _ := link.Attr("href")
	target := resolveRedirect(href)
	if target == "" {
		return domain.Mention{}, false
	}

	title := sanitize(link.Text())
	snippet, _ := result.Find(".result__snippet").First().Html()
	text := sanitize(snippet)
	if text == "" {
		return domain.Mention{}, false
	}

	return domain.Mention{
		Platform: domain.PlatformWeb,
		URL:      target,
		Title:    title,
		Text:     text,
	}, true
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := parsed.Query().Get("uddg"); target != "" && strings.HasPrefix(parsed.Path, "/l/") {
		return target
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return parsed.String()
}

func (w *WebSearch) debug(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Debug(msg, args...)
	}
}
