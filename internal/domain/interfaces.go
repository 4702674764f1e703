package domain

import (
	"context"
	"errors"
)

// Source fetches the current article corpus from the knowledge base.
type Source interface {
	// Fetch returns all published articles, deduplicated by id.
	Fetch(ctx context.Context) ([]Article, error)
}

// Converter normalizes a raw article into a Document.
type Converter interface {
	Convert(article Article) (*Document, error)
}

// Indexer applies a SyncPlan against the remote search index.
type Indexer interface {
	// Apply deletes index entries for plan deletions and replaces all
	// segments for each upserted document as a per-document unit.
	Apply(ctx context.Context, plan *SyncPlan) error
	// Close releases resources
	Close() error
}

// Cache defines the interface for fetched-page caching
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// ErrCacheMiss indicates a cache miss
var ErrCacheMiss = errors.New("cache miss")
