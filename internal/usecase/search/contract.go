package search

import (
	"context"

	"github.com/caelum-cloud/geosearch/internal/domain"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
	domsearch "github.com/caelum-cloud/geosearch/internal/domain/search"
)

// Repository defines the index contract for search operations.
type Repository interface {
	SearchLexical(ctx context.Context, q domsearch.Query, limit int) ([]domsearch.Candidate, error)
	SearchSemantic(ctx context.Context, q domsearch.Query, vector []float32, k int) ([]domsearch.Candidate, error)
	Get(ctx context.Context, id string) (record.Record, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string, kind domain.Kind) (domain.EmbeddingResult, error)
}
