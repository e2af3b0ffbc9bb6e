package index

import (
	"context"
	"testing"
	"time"

	"github.com/caelum-cloud/geosearch/internal/db"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
	"github.com/caelum-cloud/geosearch/internal/domain/search"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hSetMultiFn     func(ctx context.Context, items []db.HashSetItem) ([]db.HashUpsertOutcome, error)
	hGetAllFn       func(ctx context.Context, key string) (map[string]string, error)
	delFn           func(ctx context.Context, key string) error
	getFn           func(ctx context.Context, key string) ([]byte, error)
	setFn           func(ctx context.Context, key string, value []byte) error
	createIndexFn   func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn   func(ctx context.Context, name string) (bool, error)
	searchLexicalFn func(ctx context.Context, q *db.LexicalQuery) (*db.SearchResult, error)
	searchKNNFn     func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchCountFn   func(ctx context.Context, index, query string) (int, error)
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) ([]db.HashUpsertOutcome, error) {
	if m.hSetMultiFn != nil {
		return m.hSetMultiFn(ctx, items)
	}
	out := make([]db.HashUpsertOutcome, len(items))
	for i, it := range items {
		out[i] = db.HashUpsertOutcome{Key: it.Key}
	}
	return out, nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hGetAllFn != nil {
		return m.hGetAllFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchLexical(ctx context.Context, q *db.LexicalQuery) (*db.SearchResult, error) {
	if m.searchLexicalFn != nil {
		return m.searchLexicalFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index, query string) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index, query)
	}
	return 0, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, Config{
		IndexName:       "test-idx",
		KeyPrefix:       "test:",
		HNSWM:           16,
		HNSWEFConstruct: 200,
	})
	return repo, ms
}

func testRecord(t *testing.T, id string) record.Record {
	t.Helper()
	rec, err := record.New(
		id, "Sea surface temperature", "Daily SST grids.",
		[]string{"ocean", "temperature"}, []string{"NetCDF"},
		record.Source{ID: "src-1", Title: "Copernicus"}, "ESA",
		&record.BoundingBox{West: -10, South: 30, East: 10, North: 50},
		&record.TimeExtent{
			Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		[]record.OnlineResource{{URL: "https://example.org/sst.nc", Protocol: "HTTP"}},
		nil,
	)
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}
	return rec
}

func testQuery(t *testing.T, text string, filters search.Filters) search.Query {
	t.Helper()
	q, err := search.NewQuery(text, filters, 10, 0, 0.6, 0.7)
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}
	return q
}
