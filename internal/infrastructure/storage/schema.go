package storage

import (
	"context"
	"fmt"
)

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func schema(driver string) []string {
	listType := "TEXT"
	if driver == DriverPostgres {
		listType = "TEXT[]"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS queries (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			status TEXT NOT NULL,
			intent TEXT,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS queries_status_created_idx ON queries (status, created_at)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			brand TEXT NOT NULL,
			model TEXT NOT NULL,
			variant TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			query_id TEXT NOT NULL REFERENCES queries (id),
			platform TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			author_handle TEXT NOT NULL DEFAULT '',
			posted_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS evidence (
			id TEXT PRIMARY KEY,
			query_id TEXT NOT NULL REFERENCES queries (id),
			product_id TEXT NOT NULL REFERENCES products (id),
			source_id TEXT REFERENCES sources (id),
			sentiment TEXT NOT NULL,
			themes %[1]s,
			claim_tags %[1]s,
			quote TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`, listType),
		`CREATE TABLE IF NOT EXISTS ranking_results (
			id TEXT PRIMARY KEY,
			query_id TEXT NOT NULL UNIQUE REFERENCES queries (id),
			candidate_count INTEGER NOT NULL,
			entries TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	}
}

// EnsureSchema creates the tables used by SQLStore if they do not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
