package domain

import "context"

// Kind selects the embedding input role. Queries and documents share one
// model configuration so their cosine similarity is meaningful.
type Kind string

// Embedding input kinds.
const (
	KindQuery    Kind = "query"
	KindDocument Kind = "document"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string, kind Kind) (EmbeddingResult, error)
}

// HealthChecker verifies embedding backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}
