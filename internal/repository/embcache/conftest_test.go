package embcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caelum-cloud/geosearch/internal/domain"
)

// mockKV implements the consumer interface for tests.
type mockKV struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	return m.getFn(ctx, key)
}

func (m *mockKV) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

// mockEmbedder is a canned inner embedder.
type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
	kinds  []domain.Kind
}

func (m *mockEmbedder) Embed(_ context.Context, _ string, kind domain.Kind) (domain.EmbeddingResult, error) {
	m.calls++
	m.kinds = append(m.kinds, kind)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

func newTestCachedEmbedder(t *testing.T, inner domain.Embedder) (*CachedEmbedder, *mockKV) {
	t.Helper()
	ms := &mockKV{}
	ce := New(inner, ms, "test:", time.Hour, nil, zap.NewNop())
	return ce, ms
}
