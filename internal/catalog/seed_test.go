package catalog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uikits/internal/storage"
)

func newEmptySQLiteStore(t *testing.T) Store {
	t.Helper()
	db, err := storage.NewSQLite(storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "seed.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(context.Background(), db.SQLiteDB())
	require.NoError(t, err)
	return store
}

func TestLoadSeed_Counts(t *testing.T) {
	res, err := LoadSeed(context.Background(), newEmptySQLiteStore(t), strings.NewReader(testSeed))
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Tags: 3, Labels: 2, Frameworks: 2, Libraries: 4, Pages: 1}, res)
}

func TestLoadSeed_Empty(t *testing.T) {
	res, err := LoadSeed(context.Background(), newEmptySQLiteStore(t), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, res)
}

func TestLoadSeed_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown framework",
			doc:  "libraries:\n  - {slug: x, name: X, framework: qwik}\n",
			want: `unknown framework "qwik"`,
		},
		{
			name: "unknown tag on framework",
			doc:  "frameworks:\n  - {slug: react, name: React, tags: [nope]}\n",
			want: `unknown tag "nope"`,
		},
		{
			name: "unknown label",
			doc:  "libraries:\n  - {slug: x, name: X, labels: [Hot]}\n",
			want: `unknown label "Hot"`,
		},
		{
			name: "bad date",
			doc:  "libraries:\n  - {slug: x, name: X, last_update: yesterday}\n",
			want: "invalid last_update",
		},
		{
			name: "unknown field",
			doc:  "libaries: []\n",
			want: "failed to parse seed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSeed(context.Background(), newEmptySQLiteStore(t), strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
