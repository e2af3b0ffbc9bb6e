// Package db defines the typed storage facade the service depends on.
// All persisted state (records, batch status, the ingest queue, cached
// embeddings) lives behind these interfaces.
package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	HashStore
	KVStore
	QueueStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// HashUpsertOutcome reports the per-key result of a pipelined HSET.
type HashUpsertOutcome struct {
	Key string
	Err error
}

// HashStore provides hash-based key-value operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	// HSetMulti stores multiple hashes in one round-trip. Partial failure is
	// allowed: the returned outcomes are positionally aligned with items.
	HSetMulti(ctx context.Context, items []HashSetItem) ([]HashUpsertOutcome, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// QueueStore provides the list-based task-queue transport used to dispatch
// ingestion batches to background workers.
type QueueStore interface {
	QueuePush(ctx context.Context, queue, value string) error
	// QueuePop blocks up to timeout for the next value. Returns
	// ErrQueueEmpty when the wait expires without a value.
	QueuePop(ctx context.Context, queue string, timeout time.Duration) (string, error)
	QueueLen(ctx context.Context, queue string) (int64, error)
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher provides search operations over FT indexes.
type Searcher interface {
	SearchLexical(ctx context.Context, q *LexicalQuery) (*SearchResult, error)
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}
