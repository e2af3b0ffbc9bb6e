package search

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caelum-cloud/geosearch/internal/domain"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
	domsearch "github.com/caelum-cloud/geosearch/internal/domain/search"
)

// mockRepo implements Repository for tests.
type mockRepo struct {
	searchLexicalFn  func(ctx context.Context, q domsearch.Query, limit int) ([]domsearch.Candidate, error)
	searchSemanticFn func(ctx context.Context, q domsearch.Query, vector []float32, k int) ([]domsearch.Candidate, error)
	getFn            func(ctx context.Context, id string) (record.Record, error)
}

func (m *mockRepo) SearchLexical(ctx context.Context, q domsearch.Query, limit int) ([]domsearch.Candidate, error) {
	if m.searchLexicalFn != nil {
		return m.searchLexicalFn(ctx, q, limit)
	}
	return nil, nil
}

func (m *mockRepo) SearchSemantic(ctx context.Context, q domsearch.Query, vector []float32, k int) ([]domsearch.Candidate, error) {
	if m.searchSemanticFn != nil {
		return m.searchSemanticFn(ctx, q, vector, k)
	}
	return nil, nil
}

func (m *mockRepo) Get(ctx context.Context, id string) (record.Record, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return record.Record{}, domain.ErrRecordNotFound
}

// mockEmbedder implements Embedder for tests.
type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string, _ domain.Kind) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

func testConfig() Config {
	return Config{
		PageSize:           10,
		MaxPageSize:        100,
		SearchThreshold:    0.6,
		ConfidentThreshold: 0.7,
		LexicalWeight:      0.5,
		OverfetchFactor:    4,
		QueryTimeout:       5 * time.Second,
	}
}

func newTestService(t *testing.T, repo *mockRepo, embed *mockEmbedder) *Service {
	t.Helper()
	return New(repo, embed, testConfig(), zap.NewNop())
}

func mustQuery(t *testing.T, text string) domsearch.Query {
	t.Helper()
	q, err := domsearch.NewQuery(text, domsearch.Filters{}, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}
	return q
}
