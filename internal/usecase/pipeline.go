package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ProductScout/internal/candidate"
	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

// IntentParser turns raw query text into a parsed intent; it never fails.
type IntentParser interface {
	Parse(ctx context.Context, raw string) domain.IntentResult
}

// CandidateGenerator discovers candidates and the mentions they came from.
type CandidateGenerator interface {
	Generate(ctx context.Context, intent domain.IntentResult) candidate.Result
}

// EntityResolver merges duplicate candidates.
type EntityResolver interface {
	Resolve(ctx context.Context, candidates []domain.CandidateProduct) []domain.CandidateProduct
}

// EvidenceExtractor links mentions to candidates.
type EvidenceExtractor interface {
	Extract(ctx context.Context, candidates []domain.CandidateProduct, mentions []domain.Mention, intent domain.IntentResult) []domain.CandidateEvidence
}

// Ranker scores candidates and keeps the top ten.
type Ranker interface {
	Rank(ctx context.Context, items []domain.CandidateEvidence, intent domain.IntentResult) domain.RankingResult
}

// PipelineDeps wires all stages and driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Store     ports.QueryStore
	Intent    IntentParser
	Generator CandidateGenerator
	Resolver  EntityResolver
	Extractor EvidenceExtractor
	Ranker    Ranker
	Notifiers []ports.Notifier
	Logger    *slog.Logger
	Now       func() time.Time
}

// Pipeline runs one query through intent parsing, discovery, resolution,
// evidence extraction and ranking, tracking the query status as it goes.
type Pipeline struct {
	store     ports.QueryStore
	intent    IntentParser
	generator CandidateGenerator
	resolver  EntityResolver
	extractor EvidenceExtractor
	ranker    Ranker
	notifiers []ports.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		store:     deps.Store,
		intent:    deps.Intent,
		generator: deps.Generator,
		resolver:  deps.Resolver,
		extractor: deps.Extractor,
		ranker:    deps.Ranker,
		notifiers: deps.Notifiers,
		logger:    deps.Logger,
		now:       now,
	}
}

// run holds the state of one execution.
type run struct {
	queryID  string
	query    domain.Query
	claimed  bool
	result   domain.PipelineResult
	products []domain.RankedProduct
}

// failWriteTimeout bounds the best-effort FAILED status write.
const failWriteTimeout = 5 * time.Second

// Run executes the pipeline for queryID. It never panics or returns an error:
// failures are reported in the result and, once the query has been claimed,
// written back as FAILED on a best-effort basis. Cancelling ctx does not abort
// a run; a claimed query always reaches COMPLETED or FAILED.
func (p *Pipeline) Run(ctx context.Context, queryID string) domain.PipelineResult {
	ctx = context.WithoutCancel(ctx)
	start := p.now()
	r := &run{queryID: queryID, result: domain.PipelineResult{QueryID: queryID}}

	err := p.safeExecute(ctx, r)
	r.result.DurationMs = p.now().Sub(start).Milliseconds()

	if err != nil {
		r.result.Success = false
		r.result.Error = err.Error()
		if r.claimed {
			failCtx, cancel := context.WithTimeout(ctx, failWriteTimeout)
			ferr := p.store.UpdateQueryStatus(failCtx, queryID, domain.StatusProcessing, domain.StatusFailed, err.Error())
			cancel()
			if ferr != nil {
				p.warn("cannot mark query failed", "query_id", queryID, "error", ferr)
			}
			r.query.Status = domain.StatusFailed
			r.query.Error = err.Error()
		}
		p.logError("pipeline failed", "query_id", queryID, "status", "failed", "error", err, "duration_ms", r.result.DurationMs)
	} else {
		r.result.Success = true
		p.info("pipeline finished",
			"query_id", queryID,
			"candidates", r.result.CandidateCount,
			"top10", r.result.Top10Count,
			"duration_ms", r.result.DurationMs,
		)
	}

	if r.claimed {
		p.notify(ctx, domain.RunReport{Query: r.query, Result: r.result, Products: r.products})
	}
	return r.result
}

func (p *Pipeline) safeExecute(ctx context.Context, r *run) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.execute(ctx, r)
}

func (p *Pipeline) execute(ctx context.Context, r *run) error {
	if p.store == nil {
		return fmt.Errorf("query store not configured")
	}

	query, err := p.store.GetQuery(ctx, r.queryID)
	if err != nil {
		return fmt.Errorf("load query: %w", err)
	}
	r.query = query

	if err := p.store.UpdateQueryStatus(ctx, r.queryID, domain.StatusPending, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("claim query: %w", err)
	}
	r.claimed = true
	r.query.Status = domain.StatusProcessing
	p.info("query status", "query_id", r.queryID, "status", "processing")

	intent := p.intent.Parse(ctx, query.Text)
	if err := p.store.SaveIntent(ctx, r.queryID, intent); err != nil {
		return fmt.Errorf("persist intent: %w", err)
	}
	r.query.Intent = &intent
	p.debug("intent parsed", "query_id", r.queryID, "seed_terms", len(intent.SeedTerms), "category", intent.InferredCategory, "fallback", intent.Fallback)

	generated := p.generator.Generate(ctx, intent)
	if len(generated.Candidates) == 0 {
		if err := p.complete(ctx, r); err != nil {
			return err
		}
		p.info("query status", "query_id", r.queryID, "status", "completed_empty", "mentions", len(generated.Mentions))
		return nil
	}

	resolved := p.resolver.Resolve(ctx, generated.Candidates)
	p.debug("candidates resolved", "query_id", r.queryID, "before", len(generated.Candidates), "after", len(resolved))

	withEvidence := p.extractor.Extract(ctx, resolved, generated.Mentions, intent)
	ranking := p.ranker.Rank(ctx, withEvidence, intent)

	products, err := p.persist(ctx, r.queryID, ranking, generated.Mentions)
	if err != nil {
		return err
	}

	r.result.CandidateCount = ranking.CandidateCount
	if err := p.complete(ctx, r); err != nil {
		return err
	}
	r.products = products
	r.result.Top10Count = len(products)
	p.info("query status", "query_id", r.queryID, "status", "completed")
	return nil
}

func (p *Pipeline) complete(ctx context.Context, r *run) error {
	if err := p.store.UpdateQueryStatus(ctx, r.queryID, domain.StatusProcessing, domain.StatusCompleted, ""); err != nil {
		return fmt.Errorf("complete query: %w", err)
	}
	r.query.Status = domain.StatusCompleted
	return nil
}

// persist writes products, one source per distinct URL, evidence rows and the
// ranking record. Products sharing a slug are folded into the first one and
// ranks are renumbered densely. It returns the kept products with their stored ids.
func (p *Pipeline) persist(ctx context.Context, queryID string, ranking domain.RankingResult, mentions []domain.Mention) ([]domain.RankedProduct, error) {
	byURL := make(map[string]domain.Mention, len(mentions))
	for _, m := range mentions {
		if _, ok := byURL[m.URL]; !ok {
			byURL[m.URL] = m
		}
	}
	sourceIDs := make(map[string]string)

	products := make([]domain.RankedProduct, 0, len(ranking.Products))
	entries := make([]domain.RankingEntry, 0, len(ranking.Products))
	idsBySlug := make(map[string]string, len(ranking.Products))

	for _, product := range ranking.Products {
		slug := product.Product.Slug()
		// Spellings the resolver kept apart can still share a slug; the
		// lower-ranked one only contributes evidence to the earlier row.
		id, folded := idsBySlug[slug]
		if !folded {
			var err error
			id, err = p.store.UpsertProductBySlug(ctx, domain.ProductRecord{
				Slug:     slug,
				Brand:    product.Product.Brand,
				Model:    product.Product.Model,
				Variant:  product.Product.Variant,
				Category: product.Product.Category,
			})
			if err != nil {
				return nil, fmt.Errorf("upsert product %s: %w", slug, err)
			}
			idsBySlug[slug] = id
		}
		product.ProductID = id

		for _, ev := range product.Evidence {
			sourceID, err := p.sourceFor(ctx, queryID, ev, byURL, sourceIDs)
			if err != nil {
				return nil, err
			}
			_, err = p.store.CreateEvidence(ctx, domain.EvidenceRecord{
				QueryID:   queryID,
				ProductID: id,
				SourceID:  sourceID,
				Sentiment: ev.Sentiment,
				Themes:    ev.Themes,
				ClaimTags: ev.ClaimTags,
				Quote:     ev.Quote,
			})
			if err != nil {
				return nil, fmt.Errorf("create evidence for %s: %w", slug, err)
			}
		}

		if folded {
			p.debug("product folded into earlier rank", "query_id", queryID, "slug", slug, "rank", product.Rank)
			continue
		}
		product.Rank = len(products) + 1
		products = append(products, product)
		entries = append(entries, domain.RankingEntry{
			ProductID: id,
			Slug:      slug,
			Name:      product.Product.DisplayName(),
			Rank:      product.Rank,
			Scores:    product.Scores,
			Rationale: product.Rationale,
			Citations: product.Citations,
		})
	}

	_, err := p.store.CreateRankingResult(ctx, domain.RankingRecord{
		QueryID:        queryID,
		CandidateCount: ranking.CandidateCount,
		Entries:        entries,
		CreatedAt:      p.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create ranking result: %w", err)
	}
	return products, nil
}

func (p *Pipeline) sourceFor(ctx context.Context, queryID string, ev domain.Evidence, byURL map[string]domain.Mention, ids map[string]string) (string, error) {
	if ev.SourceURL == "" {
		return "", nil
	}
	if id, ok := ids[ev.SourceURL]; ok {
		return id, nil
	}

	record := domain.SourceRecord{QueryID: queryID, Platform: ev.Platform, URL: ev.SourceURL}
	if m, ok := byURL[ev.SourceURL]; ok {
		record.Title = m.Title
		record.AuthorHandle = m.AuthorHandle
		record.PostedAt = m.CreatedAt
	}
	id, err := p.store.CreateSource(ctx, record)
	if err != nil {
		return "", fmt.Errorf("create source %s: %w", ev.SourceURL, err)
	}
	ids[ev.SourceURL] = id
	return id, nil
}

func (p *Pipeline) notify(ctx context.Context, report domain.RunReport) {
	for _, n := range p.notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, report); err != nil {
			p.warn("notification failed", "query_id", report.Result.QueryID, "error", err)
		}
	}
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Pipeline) logError(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Error(msg, args...)
	}
}
