package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"uikits/internal/storage"
)

// NewStore creates the catalog store on the shared storage connection.
func NewStore(ctx context.Context, shared storage.Storage) (Store, error) {
	if shared == nil {
		return nil, fmt.Errorf("storage is required")
	}

	switch shared.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(ctx, shared.SQLiteDB())
	case storage.TypePostgreSQL:
		pool, ok := shared.PostgreSQLPool().(*pgxpool.Pool)
		if !ok || pool == nil {
			return nil, fmt.Errorf("invalid PostgreSQL pool type: %T", shared.PostgreSQLPool())
		}
		return NewPostgreSQLStore(ctx, pool)
	case storage.TypeMongoDB:
		db, ok := shared.MongoDatabase().(*mongo.Database)
		if !ok || db == nil {
			return nil, fmt.Errorf("invalid MongoDB database type: %T", shared.MongoDatabase())
		}
		return NewMongoDBStore(db)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", shared.Type())
	}
}
