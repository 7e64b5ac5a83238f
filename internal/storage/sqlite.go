package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type sqliteStorage struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite database in WAL mode.
// The special path ":memory:" opens a private in-memory database.
func NewSQLite(cfg SQLiteConfig) (Storage, error) {
	path := cfg.Path
	if path == "" {
		path = "data/uikits.db"
	}

	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// One writer at a time; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &sqliteStorage{db: db}, nil
}

func (s *sqliteStorage) Type() string        { return TypeSQLite }
func (s *sqliteStorage) SQLiteDB() *sql.DB   { return s.db }
func (s *sqliteStorage) PostgreSQLPool() any { return nil }
func (s *sqliteStorage) MongoDatabase() any  { return nil }

func (s *sqliteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
