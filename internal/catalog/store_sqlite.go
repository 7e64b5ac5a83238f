package catalog

import (
	"context"
	"database/sql"
)

// NewSQLiteStore creates the catalog tables on db if needed.
// The connection is owned by the storage layer.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (Store, error) {
	return newSQLStore(ctx, db, sqliteDialect, false)
}
