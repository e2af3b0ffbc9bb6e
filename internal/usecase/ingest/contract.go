package ingest

import (
	"context"
	"time"

	"github.com/caelum-cloud/geosearch/internal/domain"
	dombatch "github.com/caelum-cloud/geosearch/internal/domain/batch"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
)

// BatchStore persists batch state and carries the worker queue.
type BatchStore interface {
	Save(ctx context.Context, b *dombatch.Batch) error
	Get(ctx context.Context, id string) (dombatch.Batch, error)
	SaveDocuments(ctx context.Context, id string, docs []map[string]any) error
	Documents(ctx context.Context, id string) ([]map[string]any, error)
	DeleteDocuments(ctx context.Context, id string) error
	Enqueue(ctx context.Context, id string) error
	Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error)
	QueueDepth(ctx context.Context) (int64, error)
}

// Indexer writes embedded records into the search index.
type Indexer interface {
	Upsert(ctx context.Context, recs []record.Record) ([]error, error)
}

// Embedder vectorizes document text.
type Embedder interface {
	Embed(ctx context.Context, text string, kind domain.Kind) (domain.EmbeddingResult, error)
}
