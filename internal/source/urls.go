package source

import (
	"net/url"
	"strings"

	"ProductScout/internal/domain"
)

var trackingParams = map[string]struct{}{
	"ref":     {},
	"ref_src": {},
	"fbclid":  {},
	"gclid":   {},
}

// NormalizeURL canonicalizes a mention URL for deduplication.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return strings.TrimSuffix(strings.ToLower(raw), "/")
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme == "http" {
		parsed.Scheme = "https"
	}
	parsed.Host = strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	parsed.Fragment = ""
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	query := parsed.Query()
	for key := range query {
		lower := strings.ToLower(key)
		if _, ok := trackingParams[lower]; ok || strings.HasPrefix(lower, "utm_") {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()

	return parsed.String()
}

// DedupeMentions keeps the first mention per normalized URL; mentions without a
// URL are kept as-is.
func DedupeMentions(mentions []domain.Mention) []domain.Mention {
	seen := make(map[string]struct{}, len(mentions))
	out := make([]domain.Mention, 0, len(mentions))
	for _, m := range mentions {
		if m.URL != "" {
			key := NormalizeURL(m.URL)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}
