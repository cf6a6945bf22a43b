package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ProductScout/internal/domain"
	"ProductScout/internal/resilience"
	"ProductScout/internal/source"
)

const (
	redditSearchURL = "https://www.reddit.com/search.json"
	redditBaseURL   = "https://www.reddit.com"
)

// Reddit searches posts through the public search.json listing.
type Reddit struct {
	fetcher  fetcher
	endpoint string
	baseURL  string
	limit    int
	logger   *slog.Logger
}

var _ source.Adapter = (*Reddit)(nil)

// NewReddit builds the adapter; an empty endpoint uses reddit.com and limit defaults to 25 per term.
func NewReddit(client *http.Client, limiters *resilience.Limiters, endpoint string, limit int, log *slog.Logger) *Reddit {
	if endpoint == "" {
		endpoint = redditSearchURL
	}
	if limit <= 0 {
		limit = 25
	}
	return &Reddit{
		fetcher:  newFetcher(client, limiters),
		endpoint: endpoint,
		baseURL:  redditBaseURL,
		limit:    limit,
		logger:   log,
	}
}

// Name identifies the adapter inside the registry.
func (r *Reddit) Name() string {
	return "reddit"
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	Permalink  string  `json:"permalink"`
	Author     string  `json:"author"`
	CreatedUTC float64 `json:"created_utc"`
	Subreddit  string  `json:"subreddit"`
}

// Retrieve runs one search per term. It fails only when every term fails.
func (r *Reddit) Retrieve(ctx context.Context, terms []string, opts source.Options) ([]domain.Mention, error) {
	limit := r.limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	mentions := make([]domain.Mention, 0)
	seen := map[string]struct{}{}
	var errs []error

	for _, term := range terms {
		posts, err := r.search(ctx, term, limit)
		if err != nil {
			r.debug("reddit search failed", "term", term, "error", err)
			errs = append(errs, fmt.Errorf("term %q: %w", term, err))
			continue
		}
		for _, post := range posts {
			m, ok := r.toMention(post)
			if !ok {
				continue
			}
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

func (r *Reddit) search(ctx context.Context, term string, limit int) ([]redditPost, error) {
	searchURL, err := withQuery(r.endpoint, map[string]string{
		"q":     term,
		"limit": strconv.Itoa(limit),
		"sort":  "relevance",
		"t":     "year",
		"type":  "link",
	})
	if err != nil {
		return nil, err
	}

	body, err := r.fetcher.get(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var listing redditListing
	if err := json.NewDecoder(body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}

func (r *Reddit) toMention(post redditPost) (domain.Mention, bool) {
	if post.Permalink == "" {
		return domain.Mention{}, false
	}
	title := sanitize(post.Title)
	text := sanitize(post.SelfText)
	if text == "" {
		text = title
	}
	if text == "" {
		return domain.Mention{}, false
	}

	link := post.Permalink
	if !strings.HasPrefix(link, "http") {
		link = strings.TrimSuffix(r.baseURL, "/") + link
	}

	m := domain.Mention{
		Platform: domain.PlatformReddit,
		URL:      link,
		Title:    title,
		Text:     text,
	}
	if post.Author != "" && post.Author != "[deleted]" {
		m.AuthorHandle = "u/" + post.Author
	}
	if post.CreatedUTC > 0 {
		created := time.Unix(int64(post.CreatedUTC), 0).UTC()
		m.CreatedAt = &created
	}
	return m, true
}

func (r *Reddit) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
