//go:build integration

// Package dbassert reads persisted rows directly so integration tests can
// check what the application stored.
package dbassert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// StatsRow mirrors one npm_stats row or document.
type StatsRow struct {
	Package     string
	Days        []string
	Total       int64
	LastUpdated time.Time
}

type sample struct {
	Day       string `json:"day" bson:"day"`
	Downloads int64  `json:"downloads" bson:"downloads"`
}

func rowFrom(pkg string, samples []sample, lastUpdated time.Time) *StatsRow {
	row := &StatsRow{Package: pkg, LastUpdated: lastUpdated}
	for _, s := range samples {
		row.Days = append(row.Days, s.Day)
		row.Total += s.Downloads
	}
	return row
}

// QueryStats returns the persisted entry for pkg from PostgreSQL, or nil.
func QueryStats(t *testing.T, pool *pgxpool.Pool, pkg string) *StatsRow {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		payload     []byte
		lastUpdated time.Time
	)
	err := pool.QueryRow(ctx,
		"SELECT stats_data, last_updated FROM npm_stats WHERE package_name = $1", pkg,
	).Scan(&payload, &lastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	require.NoError(t, err, "failed to query npm_stats")

	var samples []sample
	require.NoError(t, json.Unmarshal(payload, &samples), "failed to decode stats_data")
	return rowFrom(pkg, samples, lastUpdated)
}

// QueryStatsMongo returns the persisted entry for pkg from MongoDB, or nil.
func QueryStatsMongo(t *testing.T, db *mongo.Database, pkg string) *StatsRow {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var doc struct {
		StatsData   []sample  `bson:"stats_data"`
		LastUpdated time.Time `bson:"last_updated"`
	}
	err := db.Collection("npm_stats").FindOne(ctx, bson.M{"_id": pkg}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	require.NoError(t, err, "failed to query npm_stats collection")
	return rowFrom(pkg, doc.StatsData, doc.LastUpdated)
}

// AgeStats moves last_updated back by age so the entry becomes stale.
func AgeStats(t *testing.T, pool *pgxpool.Pool, pkg string, age time.Duration) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		"UPDATE npm_stats SET last_updated = last_updated - $2::interval WHERE package_name = $1",
		pkg, age.String())
	require.NoError(t, err, "failed to age npm_stats row")
}

// AgeStatsMongo moves last_updated back by age so the entry becomes stale.
func AgeStatsMongo(t *testing.T, db *mongo.Database, pkg string, age time.Duration) {
	t.Helper()
	_, err := db.Collection("npm_stats").UpdateOne(context.Background(),
		bson.M{"_id": pkg},
		bson.M{"$set": bson.M{"last_updated": time.Now().Add(-age)}})
	require.NoError(t, err, "failed to age npm_stats document")
}

// ResetStats empties the npm_stats table.
func ResetStats(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), "DELETE FROM npm_stats")
	require.NoError(t, err, "failed to reset npm_stats")
}

// ResetStatsMongo empties the npm_stats collection.
func ResetStatsMongo(t *testing.T, db *mongo.Database) {
	t.Helper()
	_, err := db.Collection("npm_stats").DeleteMany(context.Background(), bson.M{})
	require.NoError(t, err, "failed to reset npm_stats collection")
}
