// Package storage owns the database connection shared by the catalog and the
// download statistics cache.
package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Backend names accepted in configuration.
const (
	TypeSQLite     = "sqlite"
	TypePostgreSQL = "postgresql"
	TypeMongoDB    = "mongodb"
)

// Config selects and configures the storage backend.
type Config struct {
	// Type is one of "sqlite", "postgresql" or "mongodb".
	Type string

	SQLite     SQLiteConfig
	PostgreSQL PostgreSQLConfig
	MongoDB    MongoDBConfig
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	// Path is the database file (default: data/uikits.db).
	Path string
}

// PostgreSQLConfig holds PostgreSQL settings.
type PostgreSQLConfig struct {
	URL      string
	MaxConns int
}

// MongoDBConfig holds MongoDB settings.
type MongoDBConfig struct {
	URL      string
	Database string
}

// Storage is an open database connection.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Type returns the backend name.
	Type() string

	// SQLiteDB returns the *sql.DB, or nil when not on SQLite.
	SQLiteDB() *sql.DB

	// PostgreSQLPool returns the *pgxpool.Pool, or nil when not on PostgreSQL.
	// Typed as any so callers that never touch PostgreSQL do not import pgx.
	PostgreSQLPool() any

	// MongoDatabase returns the *mongo.Database, or nil when not on MongoDB.
	MongoDatabase() any

	// Ping verifies the connection is alive. Used by the health endpoint.
	Ping(ctx context.Context) error

	Close() error
}

// New opens the backend named by cfg.Type.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case TypeSQLite, "":
		return NewSQLite(cfg.SQLite)
	case TypePostgreSQL:
		return NewPostgreSQL(ctx, cfg.PostgreSQL)
	case TypeMongoDB:
		return NewMongoDB(ctx, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unknown storage type: %s (valid: sqlite, postgresql, mongodb)", cfg.Type)
	}
}

// DefaultConfig returns a SQLite configuration under data/.
func DefaultConfig() Config {
	return Config{
		Type:       TypeSQLite,
		SQLite:     SQLiteConfig{Path: "data/uikits.db"},
		PostgreSQL: PostgreSQLConfig{MaxConns: 10},
		MongoDB:    MongoDBConfig{Database: "uikits"},
	}
}
