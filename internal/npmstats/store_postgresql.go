package npmstats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore keeps the stats cache in a PostgreSQL table with a JSONB series.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the npm_stats table if needed.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS npm_stats (
			package_name TEXT PRIMARY KEY,
			stats_data JSONB NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create npm_stats table: %w", err)
	}

	return &PostgreSQLStore{pool: pool}, nil
}

// Get returns the cached entry for pkg.
func (s *PostgreSQLStore) Get(ctx context.Context, pkg string) (*CacheEntry, error) {
	var (
		payload     []byte
		lastUpdated time.Time
	)
	err := s.pool.QueryRow(ctx,
		"SELECT stats_data, last_updated FROM npm_stats WHERE package_name = $1", pkg,
	).Scan(&payload, &lastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("query npm stats: %w", err)
	}

	series, err := decodeSeries(payload)
	if err != nil {
		return nil, fmt.Errorf("decode npm stats for %s: %w", pkg, err)
	}
	return &CacheEntry{PackageName: pkg, Series: series, LastUpdated: lastUpdated.UTC()}, nil
}

// Upsert writes the entry, replacing any existing row for the package.
func (s *PostgreSQLStore) Upsert(ctx context.Context, entry *CacheEntry) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	payload, err := encodeSeries(entry.Series)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO npm_stats (package_name, stats_data, last_updated)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (package_name) DO UPDATE SET
			stats_data = EXCLUDED.stats_data,
			last_updated = EXCLUDED.last_updated
	`, entry.PackageName, payload, entry.LastUpdated.UTC())
	if err != nil {
		return fmt.Errorf("upsert npm stats: %w", err)
	}
	return nil
}

// List returns every cached package name.
func (s *PostgreSQLStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT package_name FROM npm_stats ORDER BY package_name")
	if err != nil {
		return nil, fmt.Errorf("list npm stats: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect npm stats: %w", err)
	}
	return names, nil
}

// Close is a no-op; the shared storage owns the pool.
func (s *PostgreSQLStore) Close() error {
	return nil
}
