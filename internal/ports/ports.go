package ports

import (
	"context"
	"time"

	"ProductScout/internal/domain"
)

// LLM completes a prompt into a JSON document decoded into out.
// Implementations do not retry; callers wrap calls with resilience.Retry.
type LLM interface {
	GenerateJSON(ctx context.Context, prompt string, out any) error
}

// QueryStore persists queries, products, provenance and rankings.
type QueryStore interface {
	CreateQuery(ctx context.Context, text string) (domain.Query, error)
	GetQuery(ctx context.Context, id string) (domain.Query, error)
	ListPending(ctx context.Context, limit int) ([]domain.Query, error)
	// UpdateQueryStatus moves a query from -> to; it fails with domain.ErrInvalidTransition
	// when the stored status is not from or the edge is not allowed.
	UpdateQueryStatus(ctx context.Context, id string, from, to domain.QueryStatus, reason string) error
	SaveIntent(ctx context.Context, id string, intent domain.IntentResult) error
	UpsertProductBySlug(ctx context.Context, product domain.ProductRecord) (string, error)
	CreateSource(ctx context.Context, source domain.SourceRecord) (string, error)
	CreateEvidence(ctx context.Context, evidence domain.EvidenceRecord) (string, error)
	CreateRankingResult(ctx context.Context, ranking domain.RankingRecord) (string, error)
	GetRankingResult(ctx context.Context, queryID string) (domain.RankingRecord, error)
}

// Notifier streams finished run reports to Telegram, NATS or other channels.
type Notifier interface {
	Notify(ctx context.Context, report domain.RunReport) error
}

// Scheduler controls when pending queries are picked up.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
