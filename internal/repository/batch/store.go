// Package batch persists ingestion batch state and carries the queue
// transport that hands batches to the background workers.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caelum-cloud/geosearch/internal/db"
	"github.com/caelum-cloud/geosearch/internal/domain"
	dombatch "github.com/caelum-cloud/geosearch/internal/domain/batch"
)

// store is the consumer interface for batch persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	QueuePush(ctx context.Context, queue, value string) error
	QueuePop(ctx context.Context, queue string, timeout time.Duration) (string, error)
	QueueLen(ctx context.Context, queue string) (int64, error)
}

// Store implements usecase/ingest.BatchStore.
type Store struct {
	store     store
	keyPrefix string
}

// New creates a batch store.
func New(s store, keyPrefix string) *Store {
	return &Store{store: s, keyPrefix: keyPrefix}
}

// Save persists the full batch state. Called on every status transition so
// pollers always see the current pipeline stage.
func (s *Store) Save(ctx context.Context, b *dombatch.Batch) error {
	items, err := json.Marshal(b.Items)
	if err != nil {
		return fmt.Errorf("marshal batch items: %w", err)
	}

	fields := map[string]string{
		"status":    string(b.Status),
		"submitted": b.Submitted.UTC().Format(time.RFC3339Nano),
		"items":     string(items),
	}
	if !b.Finished.IsZero() {
		fields["finished"] = b.Finished.UTC().Format(time.RFC3339Nano)
	}
	if b.Error != "" {
		fields["error"] = b.Error
	}

	if err := s.store.HSet(ctx, s.batchKey(b.ID), fields); err != nil {
		return fmt.Errorf("save batch %s: %w", b.ID, err)
	}
	return nil
}

// Get returns a batch by ID.
func (s *Store) Get(ctx context.Context, id string) (dombatch.Batch, error) {
	fields, err := s.store.HGetAll(ctx, s.batchKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return dombatch.Batch{}, domain.ErrBatchNotFound
		}
		return dombatch.Batch{}, fmt.Errorf("get batch %s: %w", id, err)
	}
	if len(fields) == 0 {
		return dombatch.Batch{}, domain.ErrBatchNotFound
	}
	return parseBatchFields(id, fields)
}

// SaveDocuments stores the raw submitted documents so workers can pick them
// up out of band.
func (s *Store) SaveDocuments(ctx context.Context, id string, docs []map[string]any) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal batch documents: %w", err)
	}
	if err := s.store.Set(ctx, s.docsKey(id), data); err != nil {
		return fmt.Errorf("save batch %s documents: %w", id, err)
	}
	return nil
}

// Documents returns the raw submitted documents of a batch.
func (s *Store) Documents(ctx context.Context, id string) ([]map[string]any, error) {
	raw, err := s.store.Get(ctx, s.docsKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrBatchNotFound
		}
		return nil, fmt.Errorf("get batch %s documents: %w", id, err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("unmarshal batch %s documents: %w", id, err)
	}
	return docs, nil
}

// DeleteDocuments drops the raw document payload once a batch is terminal.
func (s *Store) DeleteDocuments(ctx context.Context, id string) error {
	if err := s.store.Del(ctx, s.docsKey(id)); err != nil {
		return fmt.Errorf("delete batch %s documents: %w", id, err)
	}
	return nil
}

// Enqueue hands a batch ID to the worker queue.
func (s *Store) Enqueue(ctx context.Context, id string) error {
	if err := s.store.QueuePush(ctx, s.queueKey(), id); err != nil {
		return fmt.Errorf("enqueue batch %s: %w", id, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next batch ID. ok is false when the
// wait expired with an empty queue.
func (s *Store) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	id, err := s.store.QueuePop(ctx, s.queueKey(), timeout)
	if err != nil {
		if errors.Is(err, db.ErrQueueEmpty) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("dequeue batch: %w", err)
	}
	return id, true, nil
}

// QueueDepth returns the number of batches waiting in the queue.
func (s *Store) QueueDepth(ctx context.Context) (int64, error) {
	n, err := s.store.QueueLen(ctx, s.queueKey())
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

func (s *Store) batchKey(id string) string {
	return s.keyPrefix + "batch:" + id
}

func (s *Store) docsKey(id string) string {
	return s.keyPrefix + "batch:" + id + ":docs"
}

func (s *Store) queueKey() string {
	return s.keyPrefix + "ingest:queue"
}

func parseBatchFields(id string, fields map[string]string) (dombatch.Batch, error) {
	b := dombatch.Batch{
		ID:     id,
		Status: dombatch.Status(fields["status"]),
		Error:  fields["error"],
	}
	if v := fields["submitted"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return dombatch.Batch{}, fmt.Errorf("batch %s: parse submitted: %w", id, err)
		}
		b.Submitted = t
	}
	if v := fields["finished"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return dombatch.Batch{}, fmt.Errorf("batch %s: parse finished: %w", id, err)
		}
		b.Finished = t
	}
	if v := fields["items"]; v != "" {
		if err := json.Unmarshal([]byte(v), &b.Items); err != nil {
			return dombatch.Batch{}, fmt.Errorf("batch %s: unmarshal items: %w", id, err)
		}
	}
	return b, nil
}
