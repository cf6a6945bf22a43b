// Package candidate discovers product candidates by fanning out to retrieval
// adapters and extracting brand/model references from the mentions with the LLM.
package candidate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
	"ProductScout/internal/resilience"
	"ProductScout/internal/source"
)

// Config bounds a single generation.
type Config struct {
	SeedTermCap  int
	BatchSize    int
	Workers      int
	SourceLimit  int
	MaxTextRunes int
}

func (c Config) withDefaults() Config {
	if c.SeedTermCap <= 0 {
		c.SeedTermCap = 5
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 30
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxTextRunes <= 0 {
		c.MaxTextRunes = 600
	}
	return c
}

// Stats describes what one generation did.
type Stats struct {
	Terms         []string       `json:"terms"`
	MentionsBySrc map[string]int `json:"mentionsBySource"`
	FailedSources []string       `json:"failedSources,omitempty"`
	Mentions      int            `json:"mentions"`
	Duplicates    int            `json:"duplicates"`
	Batches       int            `json:"batches"`
	FailedBatches int            `json:"failedBatches"`
	References    int            `json:"references"`
	Candidates    int            `json:"candidates"`
}

// Result carries the aggregated candidates and the mentions they came from.
type Result struct {
	Candidates []domain.CandidateProduct
	Mentions   []domain.Mention
	Stats      Stats
}

// Generator runs retrieval and reference extraction.
type Generator struct {
	registry *source.Registry
	guard    *source.Guard
	llm      ports.LLM
	retry    resilience.RetryPolicy
	cfg      Config
	logger   *slog.Logger
}

// NewGenerator wires the generator; guard may be nil to call adapters unprotected.
func NewGenerator(registry *source.Registry, guard *source.Guard, llm ports.LLM, retry resilience.RetryPolicy, cfg Config, log *slog.Logger) *Generator {
	if guard == nil {
		guard = source.NewGuard(nil, nil, log)
	}
	return &Generator{
		registry: registry,
		guard:    guard,
		llm:      llm,
		retry:    retry,
		cfg:      cfg.withDefaults(),
		logger:   log,
	}
}

// Generate never fails: adapter and batch failures degrade to empty partial results.
func (g *Generator) Generate(ctx context.Context, intent domain.IntentResult) Result {
	terms := intent.SeedTerms
	if len(terms) > g.cfg.SeedTermCap {
		terms = terms[:g.cfg.SeedTermCap]
	}
	stats := Stats{Terms: append([]string(nil), terms...), MentionsBySrc: map[string]int{}}

	mentions := g.retrieve(ctx, terms, intent.InferredCategory, &stats)
	deduped := source.DedupeMentions(mentions)
	stats.Duplicates = len(mentions) - len(deduped)
	stats.Mentions = len(deduped)

	if len(deduped) == 0 {
		g.info("no mentions retrieved", "terms", len(terms))
		return Result{Candidates: []domain.CandidateProduct{}, Mentions: []domain.Mention{}, Stats: stats}
	}

	batches := chunk(deduped, g.cfg.BatchSize)
	stats.Batches = len(batches)
	refs := g.extract(ctx, batches, &stats)

	candidates := aggregate(refs, intent.InferredCategory)
	stats.Candidates = len(candidates)

	g.info("candidates generated",
		"mentions", stats.Mentions,
		"batches", stats.Batches,
		"failed_batches", stats.FailedBatches,
		"references", stats.References,
		"candidates", stats.Candidates,
	)
	return Result{Candidates: candidates, Mentions: deduped, Stats: stats}
}

func (g *Generator) retrieve(ctx context.Context, terms []string, category string, stats *Stats) []domain.Mention {
	if g.registry == nil {
		return nil
	}
	adapters := g.registry.All()
	slots := make([][]domain.Mention, len(adapters))
	failed := make([]bool, len(adapters))
	opts := source.Options{Limit: g.cfg.SourceLimit, Category: category}

	var wg errgroup.Group
	for i, adapter := range adapters {
		wg.Go(func() error {
			found, err := g.guard.Retrieve(ctx, adapter, terms, opts)
			if err != nil {
				g.warn("source failed, continuing without it", "source", adapter.Name(), "error", err)
				failed[i] = true
				return nil
			}
			slots[i] = found
			return nil
		})
	}
	_ = wg.Wait()

	var all []domain.Mention
	for i, adapter := range adapters {
		stats.MentionsBySrc[adapter.Name()] = len(slots[i])
		if failed[i] {
			stats.FailedSources = append(stats.FailedSources, adapter.Name())
		}
		all = append(all, slots[i]...)
	}
	return all
}

type productRef struct {
	Brand       string `json:"brand"`
	Model       string `json:"model"`
	Variant     string `json:"variant"`
	Category    string `json:"category"`
	SourceIndex *int   `json:"sourceIndex"`
}

// refList accepts either a bare array or an object wrapping it under "products".
type refList []productRef

func (l *refList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []productRef
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var wrapped struct {
		Products []productRef `json:"products"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Products
	return nil
}

type sourcedRef struct {
	productRef
	url string
}

func (g *Generator) extract(ctx context.Context, batches [][]domain.Mention, stats *Stats) []sourcedRef {
	slots := make([][]sourcedRef, len(batches))
	var failures int
	var mu sync.Mutex

	var pool errgroup.Group
	pool.SetLimit(g.cfg.Workers)
	for i, batch := range batches {
		pool.Go(func() error {
			refs, err := g.extractBatch(ctx, batch)
			if err != nil {
				g.warn("reference extraction failed for batch", "batch", i, "size", len(batch), "error", err)
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			slots[i] = refs
			return nil
		})
	}
	_ = pool.Wait()

	stats.FailedBatches = failures
	var out []sourcedRef
	for _, refs := range slots {
		out = append(out, refs...)
	}
	stats.References = len(out)
	return out
}

func (g *Generator) extractBatch(ctx context.Context, batch []domain.Mention) ([]sourcedRef, error) {
	if g.llm == nil {
		return nil, fmt.Errorf("llm not configured")
	}
	prompt := buildExtractionPrompt(batch, g.cfg.MaxTextRunes)

	policy := g.retry
	policy.OnRetry = func(attempt int, err error) {
		g.warn("reference extraction retry", "attempt", attempt, "error", err)
	}
	refs, err := resilience.Retry(ctx, policy, func(ctx context.Context) (refList, error) {
		var out refList
		err := g.llm.GenerateJSON(ctx, prompt, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]sourcedRef, 0, len(refs))
	for _, ref := range refs {
		ref.Brand = strings.TrimSpace(ref.Brand)
		ref.Model = strings.TrimSpace(ref.Model)
		if isGeneric(ref.Brand, ref.Model) {
			continue
		}
		sr := sourcedRef{productRef: ref}
		if ref.SourceIndex != nil && *ref.SourceIndex >= 0 && *ref.SourceIndex < len(batch) {
			sr.url = batch[*ref.SourceIndex].URL
		}
		out = append(out, sr)
	}
	return out, nil
}

var genericBrands = map[string]struct{}{
	"":          {},
	"generic":   {},
	"unknown":   {},
	"unbranded": {},
	"no brand":  {},
	"various":   {},
	"n/a":       {},
	"none":      {},
	"other":     {},
}

func isGeneric(brand, model string) bool {
	if strings.TrimSpace(model) == "" {
		return true
	}
	_, ok := genericBrands[strings.ToLower(strings.TrimSpace(brand))]
	return ok
}

// aggregate merges references by brand|model key; the result is ordered by
// mention count descending, ties keeping first-seen order.
func aggregate(refs []sourcedRef, defaultCategory string) []domain.CandidateProduct {
	index := make(map[string]int)
	candidates := make([]domain.CandidateProduct, 0)
	seenSources := make([]map[string]struct{}, 0)

	for _, ref := range refs {
		key := domain.ProductKey(ref.Brand, ref.Model)
		pos, ok := index[key]
		if !ok {
			category := strings.TrimSpace(ref.Category)
			if category == "" {
				category = defaultCategory
			}
			candidates = append(candidates, domain.CandidateProduct{
				Brand:    ref.Brand,
				Model:    ref.Model,
				Variant:  strings.TrimSpace(ref.Variant),
				Category: category,
				Sources:  []string{},
			})
			seenSources = append(seenSources, map[string]struct{}{})
			pos = len(candidates) - 1
			index[key] = pos
		}

		c := &candidates[pos]
		c.MentionCount++
		if c.Variant == "" {
			c.Variant = strings.TrimSpace(ref.Variant)
		}
		if ref.url != "" {
			if _, dup := seenSources[pos][ref.url]; !dup {
				seenSources[pos][ref.url] = struct{}{}
				c.Sources = append(c.Sources, ref.url)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].MentionCount > candidates[j].MentionCount
	})
	return candidates
}

func chunk(mentions []domain.Mention, size int) [][]domain.Mention {
	var out [][]domain.Mention
	for start := 0; start < len(mentions); start += size {
		end := min(start+size, len(mentions))
		out = append(out, mentions[start:end])
	}
	return out
}

func buildExtractionPrompt(batch []domain.Mention, maxRunes int) string {
	var b strings.Builder
	b.WriteString("Extract every specific product referenced in the numbered mentions below.\n")
	b.WriteString("Only include products with a real brand and a concrete model name. ")
	b.WriteString("Skip generic references such as \"cheap earbuds\" or \"a foam pillow\".\n\n")
	b.WriteString(`Return {"products": [{"brand": "", "model": "", "variant": "", "category": "", "sourceIndex": 0}]} `)
	b.WriteString("where sourceIndex is the number of the mention the product appears in. ")
	b.WriteString("List a product once per mention it appears in.\n\nMentions:\n")
	for i, m := range batch {
		text := m.Text
		if m.Title != "" {
			text = m.Title + "\n" + text
		}
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i, m.Platform, truncate(text, maxRunes))
	}
	return b.String()
}

func truncate(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

func (g *Generator) info(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Info(msg, args...)
	}
}

func (g *Generator) warn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
