// Package openai adapts an OpenAI-compatible embeddings endpoint to the
// domain.Embedder interface. Any server speaking /v1/embeddings works,
// including local text-embeddings-inference deployments.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/caelum-cloud/geosearch/internal/domain"
	"github.com/caelum-cloud/geosearch/internal/metrics"
)

// Embedder is an embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	maxTokens  int
	normalize  bool
	logger     *zap.Logger
}

// Config holds the embedding provider settings. Pooling and Quantized
// describe the serving profile of the backend; they are validated at startup
// because the wire protocol cannot carry them per request.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	MaxTokens  int
	Pooling    string
	Normalize  bool
	Quantized  bool
	Logger     *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	switch cfg.Pooling {
	case "", "mean", "cls":
	default:
		return nil, fmt.Errorf("unsupported pooling mode %q", cfg.Pooling)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		maxTokens:  cfg.MaxTokens,
		normalize:  cfg.Normalize,
		logger:     cfg.Logger,
	}, nil
}

// Embed implements domain.Embedder. The text is sanitized and truncated
// before the call; the returned vector is dimension-checked and optionally
// L2-normalized.
func (e *Embedder) Embed(ctx context.Context, text string, kind domain.Kind) (domain.EmbeddingResult, error) {
	input := Sanitize(text)
	if input == "" {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: no embeddable text after sanitation", domain.ErrInputRejected)
	}
	input = truncateTokens(input, e.maxTokens)

	req := openai.EmbeddingRequest{
		Input:          []string{input},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), string(kind), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(string(e.model), "api_error").Inc()
		return domain.EmbeddingResult{}, parseAPIError(err)
	}

	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), string(kind), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(string(e.model), "empty_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrInferenceUnavailable)
	}

	vec, err := e.shapeVector(resp.Data[0].Embedding)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), string(kind), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(string(e.model), "bad_dimensions").Inc()
		return domain.EmbeddingResult{}, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), string(kind), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(string(e.model), string(kind)).Observe(duration.Seconds())

	totalTokens := resp.Usage.TotalTokens
	promptTokens := resp.Usage.PromptTokens
	if totalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(string(e.model), "prompt").Add(float64(promptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(string(e.model), "total").Add(float64(totalTokens))
	}

	return domain.EmbeddingResult{
		Embedding:    vec,
		PromptTokens: promptTokens,
		TotalTokens:  totalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// shapeVector enforces the configured dimensionality. A longer vector is
// head-truncated (matryoshka-style serving returns the full width); a
// shorter one means the backend serves a different model.
func (e *Embedder) shapeVector(vec []float32) ([]float32, error) {
	if e.dimensions > 0 {
		if len(vec) < e.dimensions {
			return nil, fmt.Errorf("embedding has %d dims, want %d: %w",
				len(vec), e.dimensions, domain.ErrInferenceUnavailable)
		}
		vec = vec[:e.dimensions]
	}
	if e.normalize {
		vec = l2Normalize(vec)
	}
	return vec, nil
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, f := range vec {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, f := range vec {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

// Sanitize strips markup artifacts commonly found in harvested metadata:
// underscores used as separators, control characters, and repeated
// whitespace. Punctuation that carries sentence structure is kept.
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '_':
			b.WriteRune(' ')
		case unicode.IsControl(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// truncateTokens bounds the input to maxTokens whitespace-separated tokens.
// An approximation of the model's real tokenizer, erring on the generous
// side since the backend truncates at its own limit anyway.
func truncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	fields := strings.Fields(text)
	if len(fields) <= maxTokens {
		return text
	}
	return strings.Join(fields[:maxTokens], " ")
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrInferenceUnavailable for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrInferenceUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("embedding API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("embedding request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
