package npmstats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps the stats cache in a SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the npm_stats table if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS npm_stats (
			package_name TEXT PRIMARY KEY,
			stats_data TEXT NOT NULL,
			last_updated INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create npm_stats table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the cached entry for pkg.
func (s *SQLiteStore) Get(ctx context.Context, pkg string) (*CacheEntry, error) {
	var (
		payload     string
		lastUpdated int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT stats_data, last_updated FROM npm_stats WHERE package_name = ?", pkg,
	).Scan(&payload, &lastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("query npm stats: %w", err)
	}

	series, err := decodeSeries([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode npm stats for %s: %w", pkg, err)
	}
	return &CacheEntry{
		PackageName: pkg,
		Series:      series,
		LastUpdated: time.UnixMilli(lastUpdated).UTC(),
	}, nil
}

// Upsert writes the entry, replacing any existing row for the package.
func (s *SQLiteStore) Upsert(ctx context.Context, entry *CacheEntry) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	payload, err := encodeSeries(entry.Series)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO npm_stats (package_name, stats_data, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(package_name) DO UPDATE SET
			stats_data = excluded.stats_data,
			last_updated = excluded.last_updated
	`, entry.PackageName, string(payload), entry.LastUpdated.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert npm stats: %w", err)
	}
	return nil
}

// List returns every cached package name.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT package_name FROM npm_stats ORDER BY package_name")
	if err != nil {
		return nil, fmt.Errorf("list npm stats: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan npm stats: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate npm stats: %w", err)
	}
	return names, nil
}

// Close is a no-op; the shared storage owns the connection.
func (s *SQLiteStore) Close() error {
	return nil
}
