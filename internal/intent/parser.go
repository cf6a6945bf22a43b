// Package intent turns a free-text product query into a structured intent and
// a set of search phrasings used by retrieval.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
	"ProductScout/internal/resilience"
)

// MinSeedTerms is the smallest usable set of LLM seed terms; fewer triggers the fallback.
const MinSeedTerms = 5

// DefaultCategory is used when the LLM does not infer one.
const DefaultCategory = "general"

// Parser calls the LLM and repairs whatever it returns.
type Parser struct {
	llm    ports.LLM
	retry  resilience.RetryPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewParser builds a parser; now may be nil.
func NewParser(llm ports.LLM, retry resilience.RetryPolicy, log *slog.Logger, now func() time.Time) *Parser {
	if now == nil {
		now = time.Now
	}
	return &Parser{llm: llm, retry: retry, logger: log, now: now}
}

type response struct {
	Intent           *domain.ParsedIntent `json:"intent"`
	SeedTerms        []string             `json:"seedTerms"`
	InferredCategory *string              `json:"inferredCategory"`
}

// Parse never fails: LLM errors and incomplete answers are repaired into a usable result.
func (p *Parser) Parse(ctx context.Context, raw string) domain.IntentResult {
	query := strings.TrimSpace(raw)

	var resp response
	var err error
	if p.llm == nil {
		err = fmt.Errorf("llm not configured")
	} else {
		policy := p.retry
		policy.OnRetry = func(attempt int, err error) {
			p.warn("intent parse retry", "attempt", attempt, "error", err)
		}
		err = resilience.Do(ctx, policy, func(ctx context.Context) error {
			resp = response{}
			return p.llm.GenerateJSON(ctx, buildPrompt(query), &resp)
		})
	}
	if err != nil {
		p.warn("intent parse failed, using fallback", "error", err)
		return Fallback(query, p.now())
	}

	return p.repair(query, resp)
}

func (p *Parser) repair(query string, resp response) domain.IntentResult {
	result := domain.IntentResult{InferredCategory: DefaultCategory}

	if resp.Intent != nil {
		result.Intent = *resp.Intent
		if strings.TrimSpace(result.Intent.UseCase) == "" {
			result.Intent.UseCase = query
		}
		result.Intent.Constraints = cleanTerms(result.Intent.Constraints)
		result.Intent.MustHaves = cleanTerms(result.Intent.MustHaves)
		result.Intent.NiceToHaves = cleanTerms(result.Intent.NiceToHaves)
	} else {
		result.Intent = defaultIntent(query)
	}

	if resp.InferredCategory != nil && strings.TrimSpace(*resp.InferredCategory) != "" {
		result.InferredCategory = strings.TrimSpace(*resp.InferredCategory)
	}

	seeds := cleanTerms(resp.SeedTerms)
	if len(seeds) < MinSeedTerms {
		p.debug("too few seed terms, synthesizing", "got", len(seeds))
		seeds = FallbackTerms(query, p.now())
		result.Fallback = true
	}
	result.SeedTerms = seeds

	return result
}

// Fallback is the full result used when the LLM cannot be reached.
func Fallback(query string, now time.Time) domain.IntentResult {
	return domain.IntentResult{
		Intent:           defaultIntent(query),
		SeedTerms:        FallbackTerms(query, now),
		InferredCategory: DefaultCategory,
		Fallback:         true,
	}
}

// FallbackTerms synthesizes search phrasings from the raw query.
func FallbackTerms(query string, now time.Time) []string {
	q := strings.TrimSpace(query)
	return []string{
		"best " + q,
		q + " reddit",
		q + " review",
		q + " recommendation",
		fmt.Sprintf("top %s %d", q, now.Year()),
		q + " vs",
		q + " buying guide",
	}
}

func defaultIntent(query string) domain.ParsedIntent {
	return domain.ParsedIntent{
		UseCase:     query,
		Constraints: []string{},
		MustHaves:   []string{},
		NiceToHaves: []string{},
	}
}

// cleanTerms trims, drops blanks and removes case-insensitive duplicates.
func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		term = strings.Join(strings.Fields(term), " ")
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, term)
	}
	return out
}

func buildPrompt(query string) string {
	return fmt.Sprintf(`Analyze this product search query and return a JSON object.

Query: %q

Return exactly this shape:
{
  "intent": {
    "useCase": "what the user wants to do with the product",
    "constraints": ["hard limits such as budget, size or platform"],
    "mustHaves": ["features the product must have"],
    "niceToHaves": ["features that would be a bonus"]
  },
  "seedTerms": ["10 to 15 diverse search phrasings a person would type on Reddit or a search engine"],
  "inferredCategory": "short product category, e.g. headphones"
}

Keep terms short. Do not invent brand names that are not in the query.`, query)
}

func (p *Parser) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Parser) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
