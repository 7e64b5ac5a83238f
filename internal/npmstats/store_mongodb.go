package npmstats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoStatsDocument struct {
	PackageName string           `bson:"_id"`
	StatsData   []DownloadSample `bson:"stats_data"`
	LastUpdated time.Time        `bson:"last_updated"`
}

// MongoDBStore keeps the stats cache in the npm_stats collection.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates collection indexes if needed.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	coll := database.Collection("npm_stats")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "last_updated", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create npm_stats indexes: %w", err)
	}

	return &MongoDBStore{collection: coll}, nil
}

// Get returns the cached entry for pkg.
func (s *MongoDBStore) Get(ctx context.Context, pkg string) (*CacheEntry, error) {
	var doc mongoStatsDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": pkg}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("query npm stats: %w", err)
	}

	var series DownloadSeries
	if len(doc.StatsData) > 0 {
		series = DownloadSeries(doc.StatsData)
	}
	return &CacheEntry{PackageName: pkg, Series: series, LastUpdated: doc.LastUpdated.UTC()}, nil
}

// Upsert writes the entry, replacing any existing document for the package.
func (s *MongoDBStore) Upsert(ctx context.Context, entry *CacheEntry) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	doc := mongoStatsDocument{
		PackageName: entry.PackageName,
		StatsData:   []DownloadSample(entry.Series),
		LastUpdated: entry.LastUpdated.UTC(),
	}
	if doc.StatsData == nil {
		doc.StatsData = []DownloadSample{}
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": entry.PackageName}, doc, opts); err != nil {
		return fmt.Errorf("upsert npm stats: %w", err)
	}
	return nil
}

// List returns every cached package name.
func (s *MongoDBStore) List(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list npm stats: %w", err)
	}
	defer cursor.Close(ctx)

	var names []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode npm stats: %w", err)
		}
		names = append(names, doc.ID)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate npm stats: %w", err)
	}
	return names, nil
}

// Close is a no-op; the shared storage owns the client.
func (s *MongoDBStore) Close() error {
	return nil
}
