// Package evidence extracts sentiment- and theme-tagged quotes that tie
// mentions to resolved candidates.
package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
	"ProductScout/internal/resilience"
)

// MaxItemsPerMention caps the evidence items kept for one mention.
const MaxItemsPerMention = 3

// Config bounds the extraction cost.
type Config struct {
	MaxCandidates int
	MaxMentions   int
	Workers       int
	MaxTextRunes  int
}

func (c Config) withDefaults() Config {
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 30
	}
	if c.MaxMentions <= 0 {
		c.MaxMentions = 20
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxTextRunes <= 0 {
		c.MaxTextRunes = 800
	}
	return c
}

// Extractor asks the LLM for evidence per candidate.
type Extractor struct {
	llm    ports.LLM
	retry  resilience.RetryPolicy
	cfg    Config
	logger *slog.Logger
}

// NewExtractor builds an extractor.
func NewExtractor(llm ports.LLM, retry resilience.RetryPolicy, cfg Config, log *slog.Logger) *Extractor {
	return &Extractor{llm: llm, retry: retry, cfg: cfg.withDefaults(), logger: log}
}

// Extract returns one entry per candidate, in candidate order. Only the first
// MaxCandidates candidates are examined; the rest, and any candidate whose
// extraction fails, carry an empty evidence list.
func (e *Extractor) Extract(ctx context.Context, candidates []domain.CandidateProduct, mentions []domain.Mention, intent domain.IntentResult) []domain.CandidateEvidence {
	out := make([]domain.CandidateEvidence, len(candidates))
	for i, c := range candidates {
		out[i] = domain.CandidateEvidence{Candidate: c, Evidence: []domain.Evidence{}}
	}

	limit := min(e.cfg.MaxCandidates, len(candidates))
	var pool errgroup.Group
	pool.SetLimit(e.cfg.Workers)
	for i := 0; i < limit; i++ {
		pool.Go(func() error {
			candidate := candidates[i]
			relevant := RelevantMentions(candidate, mentions)
			if len(relevant) == 0 {
				return nil
			}
			if len(relevant) > e.cfg.MaxMentions {
				relevant = relevant[:e.cfg.MaxMentions]
			}

			items, err := e.extractOne(ctx, candidate, relevant, intent)
			if err != nil {
				e.warn("evidence extraction failed", "product", candidate.DisplayName(), "error", err)
				return nil
			}
			out[i].Evidence = items
			return nil
		})
	}
	_ = pool.Wait()

	return out
}

// RelevantMentions keeps mentions whose text names the brand or any model token longer than one character.
func RelevantMentions(candidate domain.CandidateProduct, mentions []domain.Mention) []domain.Mention {
	brand := strings.ToLower(strings.TrimSpace(candidate.Brand))
	var tokens []string
	for _, tok := range strings.FieldsFunc(strings.ToLower(candidate.Model), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '-' || r == '_'
	}) {
		if len([]rune(tok)) > 1 {
			tokens = append(tokens, tok)
		}
	}

	var out []domain.Mention
	for _, m := range mentions {
		text := strings.ToLower(m.Title + "\n" + m.Text)
		if brand != "" && strings.Contains(text, brand) {
			out = append(out, m)
			continue
		}
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

type item struct {
	SourceIndex *int     `json:"sourceIndex"`
	Sentiment   string   `json:"sentiment"`
	Themes      []string `json:"themes"`
	ClaimTags   []string `json:"claimTags"`
	Quote       string   `json:"quote"`
}

// itemList accepts {"evidence": [...]} or a bare array.
type itemList []item

func (l *itemList) UnmarshalJSON(data []byte) error {
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		var items []item
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var wrapped struct {
		Evidence []item `json:"evidence"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Evidence
	return nil
}

func (e *Extractor) extractOne(ctx context.Context, candidate domain.CandidateProduct, relevant []domain.Mention, intent domain.IntentResult) ([]domain.Evidence, error) {
	if e.llm == nil {
		return nil, fmt.Errorf("llm not configured")
	}
	prompt := buildPrompt(candidate, relevant, intent, e.cfg.MaxTextRunes)

	policy := e.retry
	policy.OnRetry = func(attempt int, err error) {
		e.warn("evidence extraction retry", "product", candidate.DisplayName(), "attempt", attempt, "error", err)
	}
	items, err := resilience.Retry(ctx, policy, func(ctx context.Context) (itemList, error) {
		var out itemList
		err := e.llm.GenerateJSON(ctx, prompt, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}

	ref := candidate.DisplayName()
	perMention := make(map[int]int)
	evidence := make([]domain.Evidence, 0, len(items))
	for _, it := range items {
		if it.SourceIndex == nil || *it.SourceIndex < 0 || *it.SourceIndex >= len(relevant) {
			continue
		}
		idx := *it.SourceIndex
		if perMention[idx] >= MaxItemsPerMention {
			continue
		}
		quote := domain.TruncateQuote(it.Quote)
		if quote == "" {
			continue
		}
		perMention[idx]++

		m := relevant[idx]
		evidence = append(evidence, domain.Evidence{
			ProductRef: ref,
			Sentiment:  domain.ParseSentiment(it.Sentiment),
			Themes:     cleanTags(it.Themes),
			ClaimTags:  cleanTags(it.ClaimTags),
			Quote:      quote,
			SourceURL:  m.URL,
			Platform:   m.Platform,
		})
	}
	return evidence, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func buildPrompt(candidate domain.CandidateProduct, mentions []domain.Mention, intent domain.IntentResult, maxRunes int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s", candidate.DisplayName())
	if candidate.Variant != "" {
		fmt.Fprintf(&b, " (%s)", candidate.Variant)
	}
	fmt.Fprintf(&b, "\nUser need: %s\n", intent.Intent.UseCase)
	if terms := intent.Intent.Terms(); len(terms) > 0 {
		fmt.Fprintf(&b, "Relevant criteria: %s\n", strings.Join(terms, ", "))
	}
	b.WriteString("\nFor each numbered mention below, extract zero to three pieces of evidence about THIS product only.\n")
	b.WriteString("Each piece has a sentiment (positive, neutral or negative), short lowercase themes (e.g. \"comfort\", \"battery life\"), ")
	b.WriteString("claimTags for concrete claims (e.g. \"fits side sleepers\"), a verbatim quote of at most 150 characters, ")
	b.WriteString("and the sourceIndex of the mention it came from.\n")
	b.WriteString(`Return {"evidence": [{"sourceIndex": 0, "sentiment": "positive", "themes": [], "claimTags": [], "quote": ""}]}.`)
	b.WriteString("\n\nMentions:\n")
	for i, m := range mentions {
		text := strings.Join(strings.Fields(m.Title+" "+m.Text), " ")
		if runes := []rune(text); len(runes) > maxRunes {
			text = string(runes[:maxRunes]) + "..."
		}
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i, m.Platform, text)
	}
	return b.String()
}

func (e *Extractor) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
