package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// NewPostgreSQLStore creates the catalog tables on pool if needed.
// Queries go through a database/sql handle over the shared pool; closing the
// store releases the handle but leaves the pool to the storage layer.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return newSQLStore(ctx, stdlib.OpenDBFromPool(pool), postgresDialect, true)
}
