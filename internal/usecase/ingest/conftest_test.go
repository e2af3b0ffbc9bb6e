package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caelum-cloud/geosearch/internal/domain"
	dombatch "github.com/caelum-cloud/geosearch/internal/domain/batch"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
	"github.com/caelum-cloud/geosearch/internal/domain/schema"
)

const testSchemaYAML = `
fields:
  id:
    type: keyword
    indexed: true
  title:
    type: text
    indexed: true
  description:
    type: text
    indexed: true
  keyword:
    type: keyword
    indexed: true
  organisationName:
    type: keyword
    indexed: true
  geometry:
    type: geo_shape
    indexed: true
  temporal:
    type: nested
  temporal.start:
    type: date
    indexed: true
  temporal.end:
    type: date
    indexed: true
  online:
    type: nested
  online.url:
    type: keyword
  online.protocol:
    type: keyword
    indexed: true
`

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(testSchemaYAML))
	if err != nil {
		t.Fatalf("schema.Parse: %v", err)
	}
	return s
}

// mockBatchStore is an in-memory BatchStore. Mutex-guarded because worker
// tests touch it from multiple goroutines.
type mockBatchStore struct {
	mu      sync.Mutex
	batches map[string]dombatch.Batch
	docs    map[string][]map[string]any
	queue   []string
	saveErr error
}

func newMockBatchStore() *mockBatchStore {
	return &mockBatchStore{
		batches: make(map[string]dombatch.Batch),
		docs:    make(map[string][]map[string]any),
	}
}

func (m *mockBatchStore) Save(_ context.Context, b *dombatch.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *b
	cp.Items = append([]dombatch.Item(nil), b.Items...)
	m.batches[b.ID] = cp
	return nil
}

func (m *mockBatchStore) Get(_ context.Context, id string) (dombatch.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return dombatch.Batch{}, domain.ErrBatchNotFound
	}
	return b, nil
}

func (m *mockBatchStore) SaveDocuments(_ context.Context, id string, docs []map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = docs
	return nil
}

func (m *mockBatchStore) Documents(_ context.Context, id string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return docs, nil
}

func (m *mockBatchStore) DeleteDocuments(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *mockBatchStore) Enqueue(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, id)
	return nil
}

func (m *mockBatchStore) Dequeue(_ context.Context, _ time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return "", false, nil
	}
	id := m.queue[0]
	m.queue = m.queue[1:]
	return id, true, nil
}

func (m *mockBatchStore) QueueDepth(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queue)), nil
}

// mockIndexer records upserted batches.
type mockIndexer struct {
	upsertFn func(ctx context.Context, recs []record.Record) ([]error, error)
	upserted [][]record.Record
}

func (m *mockIndexer) Upsert(ctx context.Context, recs []record.Record) ([]error, error) {
	m.upserted = append(m.upserted, recs)
	if m.upsertFn != nil {
		return m.upsertFn(ctx, recs)
	}
	return make([]error, len(recs)), nil
}

// mockEmbedder counts calls and can fail the first n of them.
type mockEmbedder struct {
	failFirst int
	err       error
	calls     int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string, _ domain.Kind) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil && (m.failFirst == 0 || m.calls <= m.failFirst) {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}, TotalTokens: 4}, nil
}

func testIngestConfig() Config {
	return Config{
		Workers:        2,
		MaxBatchSize:   100,
		MaxRetries:     3,
		RetryBase:      time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func newTestService(t *testing.T, store *mockBatchStore, idx *mockIndexer, emb *mockEmbedder) *Service {
	t.Helper()
	return New(store, idx, emb, testSchema(t), testIngestConfig(), zap.NewNop())
}

func validDoc(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"title":       "Sea surface temperature",
		"description": "Daily SST grids.",
		"keyword":     []any{"ocean", "temperature"},
		"geometry": map[string]any{
			"west": -10.0, "south": 30.0, "east": 10.0, "north": 50.0,
		},
		"temporal": map[string]any{
			"start": "2020-01-01",
			"end":   "2021-01-01",
		},
		"online": []any{
			map[string]any{"url": "https://example.org/sst.nc", "protocol": "HTTP"},
		},
	}
}
