package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

// SQLStore persists queries and pipeline output through database/sql.
// Postgres (lib/pq) and SQLite (modernc) are supported.
type SQLStore struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	now    func() time.Time
}

var _ ports.QueryStore = (*SQLStore)(nil)

// NewSQLStore wires an open sql.DB of the given driver.
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	var placeholder sq.PlaceholderFormat = sq.Question
	switch driver {
	case DriverPostgres:
		placeholder = sq.Dollar
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	return &SQLStore{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Open connects to the database and makes sure the schema exists.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// Shared in-memory databases vanish with their last connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	store, err := NewSQLStore(db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

var queryColumns = []string{"id", "text", "status", "intent", "error", "created_at", "updated_at"}

// CreateQuery inserts a new PENDING query.
func (s *SQLStore) CreateQuery(ctx context.Context, text string) (domain.Query, error) {
	now := s.now()
	q := domain.Query{ID: uuid.NewString(), Text: text, Status: domain.StatusPending, CreatedAt: now, UpdatedAt: now}

	stmt, args, err := s.sb.Insert("queries").
		Columns("id", "text", "status", "error", "created_at", "updated_at").
		Values(q.ID, q.Text, string(q.Status), "", now, now).
		ToSql()
	if err != nil {
		return domain.Query{}, fmt.Errorf("build insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return domain.Query{}, fmt.Errorf("insert query: %w", err)
	}
	return q, nil
}

// GetQuery loads a query by id.
func (s *SQLStore) GetQuery(ctx context.Context, id string) (domain.Query, error) {
	stmt, args, err := s.sb.Select(queryColumns...).From("queries").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Query{}, fmt.Errorf("build select query: %w", err)
	}
	q, err := scanQuery(s.db.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Query{}, fmt.Errorf("query %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Query{}, fmt.Errorf("select query: %w", err)
	}
	return q, nil
}

// ListPending returns the oldest PENDING queries first.
func (s *SQLStore) ListPending(ctx context.Context, limit int) ([]domain.Query, error) {
	builder := s.sb.Select(queryColumns...).From("queries").
		Where(sq.Eq{"status": string(domain.StatusPending)}).
		OrderBy("created_at ASC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list pending: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []domain.Query
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuery(row rowScanner) (domain.Query, error) {
	var (
		q         domain.Query
		status    string
		intentRaw sql.NullString
	)
	if err := row.Scan(&q.ID, &q.Text, &status, &intentRaw, &q.Error, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return domain.Query{}, err
	}
	q.Status = domain.QueryStatus(status)
	if intentRaw.Valid && intentRaw.String != "" {
		var intent domain.IntentResult
		if err := json.Unmarshal([]byte(intentRaw.String), &intent); err != nil {
			return domain.Query{}, fmt.Errorf("decode intent: %w", err)
		}
		q.Intent = &intent
	}
	return q, nil
}

// UpdateQueryStatus performs a compare-and-set on the status column.
func (s *SQLStore) UpdateQueryStatus(ctx context.Context, id string, from, to domain.QueryStatus, reason string) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}

	stmt, args, err := s.sb.Update("queries").
		Set("status", string(to)).
		Set("error", reason).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id, "status": string(from)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update status: %w", err)
	}
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	current, err := s.GetQuery(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("query %s is %s, not %s: %w", id, current.Status, from, domain.ErrInvalidTransition)
}

// SaveIntent stores the parsed intent as JSON.
func (s *SQLStore) SaveIntent(ctx context.Context, id string, intent domain.IntentResult) error {
	raw, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	stmt, args, err := s.sb.Update("queries").
		Set("intent", string(raw)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save intent: %w", err)
	}
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("save intent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("query %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpsertProductBySlug inserts or refreshes a product and returns its stable id.
func (s *SQLStore) UpsertProductBySlug(ctx context.Context, product domain.ProductRecord) (string, error) {
	if product.Slug == "" {
		return "", fmt.Errorf("upsert product: empty slug")
	}
	now := s.now()
	stmt, args, err := s.sb.Insert("products").
		Columns("id", "slug", "brand", "model", "variant", "category", "created_at", "updated_at").
		Values(uuid.NewString(), product.Slug, product.Brand, product.Model, product.Variant, product.Category, now, now).
		Suffix(`ON CONFLICT (slug) DO UPDATE SET
			brand = EXCLUDED.brand,
			model = EXCLUDED.model,
			variant = CASE WHEN EXCLUDED.variant <> '' THEN EXCLUDED.variant ELSE products.variant END,
			category = EXCLUDED.category,
			updated_at = EXCLUDED.updated_at
			RETURNING id`).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build upsert product: %w", err)
	}

	var id string
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert product: %w", err)
	}
	return id, nil
}

// CreateSource stores one mention used as provenance.
func (s *SQLStore) CreateSource(ctx context.Context, source domain.SourceRecord) (string, error) {
	id := uuid.NewString()
	var postedAt sql.NullTime
	if source.PostedAt != nil {
		postedAt = sql.NullTime{Time: source.PostedAt.UTC(), Valid: true}
	}
	stmt, args, err := s.sb.Insert("sources").
		Columns("id", "query_id", "platform", "url", "title", "author_handle", "posted_at", "created_at").
		Values(id, source.QueryID, string(source.Platform), source.URL, source.Title, source.AuthorHandle, postedAt, s.now()).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert source: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("insert source: %w", err)
	}
	return id, nil
}

// CreateEvidence stores one evidence item.
func (s *SQLStore) CreateEvidence(ctx context.Context, evidence domain.EvidenceRecord) (string, error) {
	id := uuid.NewString()
	themes, err := s.listValue(evidence.Themes)
	if err != nil {
		return "", err
	}
	claims, err := s.listValue(evidence.ClaimTags)
	if err != nil {
		return "", err
	}
	var sourceID sql.NullString
	if evidence.SourceID != "" {
		sourceID = sql.NullString{String: evidence.SourceID, Valid: true}
	}

	stmt, args, err := s.sb.Insert("evidence").
		Columns("id", "query_id", "product_id", "source_id", "sentiment", "themes", "claim_tags", "quote", "created_at").
		Values(id, evidence.QueryID, evidence.ProductID, sourceID, string(evidence.Sentiment), themes, claims, evidence.Quote, s.now()).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert evidence: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("insert evidence: %w", err)
	}
	return id, nil
}

// listValue encodes string lists as TEXT[] on Postgres and JSON text elsewhere.
func (s *SQLStore) listValue(values []string) (any, error) {
	if values == nil {
		values = []string{}
	}
	if s.driver == DriverPostgres {
		return pq.StringArray(values), nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return string(raw), nil
}

// CreateRankingResult stores the ordered entries of a ranking as JSON.
func (s *SQLStore) CreateRankingResult(ctx context.Context, ranking domain.RankingRecord) (string, error) {
	id := uuid.NewString()
	createdAt := ranking.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	entries := ranking.Entries
	if entries == nil {
		entries = []domain.RankingEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode ranking entries: %w", err)
	}

	stmt, args, err := s.sb.Insert("ranking_results").
		Columns("id", "query_id", "candidate_count", "entries", "created_at").
		Values(id, ranking.QueryID, ranking.CandidateCount, string(raw), createdAt.UTC()).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert ranking: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("insert ranking: %w", err)
	}
	return id, nil
}

// GetRankingResult loads the ranking of a query.
func (s *SQLStore) GetRankingResult(ctx context.Context, queryID string) (domain.RankingRecord, error) {
	stmt, args, err := s.sb.Select("id", "query_id", "candidate_count", "entries", "created_at").
		From("ranking_results").
		Where(sq.Eq{"query_id": queryID}).
		ToSql()
	if err != nil {
		return domain.RankingRecord{}, fmt.Errorf("build select ranking: %w", err)
	}

	var (
		rec domain.RankingRecord
		raw string
	)
	err = s.db.QueryRowContext(ctx, stmt, args...).Scan(&rec.ID, &rec.QueryID, &rec.CandidateCount, &raw, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RankingRecord{}, fmt.Errorf("ranking for %s: %w", queryID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RankingRecord{}, fmt.Errorf("select ranking: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &rec.Entries); err != nil {
		return domain.RankingRecord{}, fmt.Errorf("decode ranking entries: %w", err)
	}
	return rec, nil
}
