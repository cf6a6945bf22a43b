package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

// MemoryStore is a process-local QueryStore for one-shot CLI runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	seq      int
	queries  map[string]*memQuery
	products map[string]domain.ProductRecord
	slugs    map[string]string
	sources  map[string]domain.SourceRecord
	evidence map[string]domain.EvidenceRecord
	rankings map[string]domain.RankingRecord
	now      func() time.Time
}

type memQuery struct {
	query domain.Query
	seq   int
}

var _ ports.QueryStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queries:  map[string]*memQuery{},
		products: map[string]domain.ProductRecord{},
		slugs:    map[string]string{},
		sources:  map[string]domain.SourceRecord{},
		evidence: map[string]domain.EvidenceRecord{},
		rankings: map[string]domain.RankingRecord{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) CreateQuery(_ context.Context, text string) (domain.Query, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.seq++
	q := domain.Query{ID: uuid.NewString(), Text: text, Status: domain.StatusPending, CreatedAt: now, UpdatedAt: now}
	m.queries[q.ID] = &memQuery{query: q, seq: m.seq}
	return q, nil
}

func (m *MemoryStore) GetQuery(_ context.Context, id string) (domain.Query, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.queries[id]
	if !ok {
		return domain.Query{}, fmt.Errorf("query %s: %w", id, domain.ErrNotFound)
	}
	return copyQuery(stored.query), nil
}

func (m *MemoryStore) ListPending(_ context.Context, limit int) ([]domain.Query, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []*memQuery
	for _, q := range m.queries {
		if q.query.Status == domain.StatusPending {
			pending = append(pending, q)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]domain.Query, 0, len(pending))
	for _, q := range pending {
		out = append(out, copyQuery(q.query))
	}
	return out, nil
}

func (m *MemoryStore) UpdateQueryStatus(_ context.Context, id string, from, to domain.QueryStatus, reason string) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.queries[id]
	if !ok {
		return fmt.Errorf("query %s: %w", id, domain.ErrNotFound)
	}
	if stored.query.Status != from {
		return fmt.Errorf("query %s is %s, not %s: %w", id, stored.query.Status, from, domain.ErrInvalidTransition)
	}
	stored.query.Status = to
	stored.query.Error = reason
	stored.query.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) SaveIntent(_ context.Context, id string, intent domain.IntentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.queries[id]
	if !ok {
		return fmt.Errorf("query %s: %w", id, domain.ErrNotFound)
	}
	stored.query.Intent = &intent
	stored.query.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) UpsertProductBySlug(_ context.Context, product domain.ProductRecord) (string, error) {
	if product.Slug == "" {
		return "", fmt.Errorf("upsert product: empty slug")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.slugs[product.Slug]
	if !ok {
		id = uuid.NewString()
		m.slugs[product.Slug] = id
	} else if product.Variant == "" {
		product.Variant = m.products[id].Variant
	}
	m.products[id] = product
	return id, nil
}

func (m *MemoryStore) CreateSource(_ context.Context, source domain.SourceRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.sources[id] = source
	return id, nil
}

func (m *MemoryStore) CreateEvidence(_ context.Context, evidence domain.EvidenceRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.evidence[id] = evidence
	return id, nil
}

func (m *MemoryStore) CreateRankingResult(_ context.Context, ranking domain.RankingRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rankings[ranking.QueryID]; exists {
		return "", fmt.Errorf("ranking for %s already exists", ranking.QueryID)
	}
	ranking.ID = uuid.NewString()
	if ranking.CreatedAt.IsZero() {
		ranking.CreatedAt = m.now()
	}
	m.rankings[ranking.QueryID] = ranking
	return ranking.ID, nil
}

func (m *MemoryStore) GetRankingResult(_ context.Context, queryID string) (domain.RankingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.rankings[queryID]
	if !ok {
		return domain.RankingRecord{}, fmt.Errorf("ranking for %s: %w", queryID, domain.ErrNotFound)
	}
	return rec, nil
}

// Counts reports stored row counts by kind.
func (m *MemoryStore) Counts() (products, sources, evidence int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products), len(m.sources), len(m.evidence)
}

func copyQuery(q domain.Query) domain.Query {
	if q.Intent != nil {
		intent := *q.Intent
		q.Intent = &intent
	}
	return q
}
