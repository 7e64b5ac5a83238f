package npmstats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEntryNotFound indicates the cache table has no row for a package.
var ErrEntryNotFound = errors.New("npm stats entry not found")

// Store persists CacheEntry rows keyed by package name.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the entry for pkg or ErrEntryNotFound.
	Get(ctx context.Context, pkg string) (*CacheEntry, error)

	// Upsert inserts or overwrites the entry for entry.PackageName.
	Upsert(ctx context.Context, entry *CacheEntry) error

	// List returns all package names with a cached entry, ascending.
	List(ctx context.Context) ([]string, error)

	Close() error
}

func encodeSeries(s DownloadSeries) ([]byte, error) {
	if s == nil {
		s = DownloadSeries{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal series: %w", err)
	}
	return b, nil
}

func decodeSeries(raw []byte) (DownloadSeries, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty stats_data")
	}
	var s DownloadSeries
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal series: %w", err)
	}
	if len(s) == 0 {
		return nil, nil
	}
	return s, nil
}

func checkEntry(entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}
	if entry.PackageName == "" {
		return fmt.Errorf("package name is required")
	}
	return nil
}
