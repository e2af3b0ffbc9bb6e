// Package ingest implements the asynchronous ingestion pipeline: batch
// submission on the request path, and the validate/embed/commit stages run
// by background workers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caelum-cloud/geosearch/internal/domain"
	dombatch "github.com/caelum-cloud/geosearch/internal/domain/batch"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
	"github.com/caelum-cloud/geosearch/internal/domain/schema"
	"github.com/caelum-cloud/geosearch/internal/metrics"
)

// Config holds the ingestion pipeline settings.
type Config struct {
	Workers        int
	MaxBatchSize   int
	MaxRetries     int
	RetryBase      time.Duration
	AttemptTimeout time.Duration
}

// Service handles batch submission, status polling, and pipeline execution.
type Service struct {
	batches BatchStore
	index   Indexer
	embed   Embedder
	schema  *schema.Schema
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an ingestion service.
func New(
	batches BatchStore, index Indexer, embed Embedder,
	s *schema.Schema, cfg Config, logger *zap.Logger,
) *Service {
	return &Service{
		batches: batches,
		index:   index,
		embed:   embed,
		schema:  s,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit accepts a batch of raw documents, persists it as pending, and hands
// it to the worker queue. Returns the batch ID for status polling. The call
// returns before any document is processed.
func (s *Service) Submit(ctx context.Context, docs []map[string]any) (string, error) {
	if len(docs) == 0 {
		return "", fmt.Errorf("%w: batch is empty", domain.ErrInputRejected)
	}
	if len(docs) > s.cfg.MaxBatchSize {
		return "", fmt.Errorf("%w: batch of %d exceeds the %d document limit",
			domain.ErrInputRejected, len(docs), s.cfg.MaxBatchSize)
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		// Missing or non-string IDs stay empty here; validation rejects the
		// item once the pipeline runs.
		if id, ok := doc["id"].(string); ok {
			ids[i] = id
		}
	}

	b := dombatch.New(uuid.NewString(), ids, s.now())

	if err := s.batches.SaveDocuments(ctx, b.ID, docs); err != nil {
		return "", fmt.Errorf("persist batch documents: %w", err)
	}
	if err := s.batches.Save(ctx, &b); err != nil {
		return "", fmt.Errorf("persist batch: %w", err)
	}
	if err := s.batches.Enqueue(ctx, b.ID); err != nil {
		return "", fmt.Errorf("enqueue batch: %w", err)
	}

	s.logger.Info("Batch submitted",
		zap.String("batch_id", b.ID),
		zap.Int("documents", len(docs)))
	return b.ID, nil
}

// GetBatch returns the current state of a batch for status polling.
func (s *Service) GetBatch(ctx context.Context, id string) (dombatch.Batch, error) {
	if id == "" {
		return dombatch.Batch{}, fmt.Errorf("%w: batch ID is required", domain.ErrInputRejected)
	}
	return s.batches.Get(ctx, id)
}

// ProcessBatch runs the full pipeline for one queued batch. Item failures
// are recorded per item and never abort the siblings; only infrastructure
// failures (storage unreachable) fail the whole batch.
func (s *Service) ProcessBatch(ctx context.Context, id string) error {
	b, err := s.batches.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load batch %s: %w", id, err)
	}
	docs, err := s.batches.Documents(ctx, id)
	if err != nil {
		return s.failBatch(ctx, &b, fmt.Errorf("load batch documents: %w", err))
	}
	if len(docs) != len(b.Items) {
		return s.failBatch(ctx, &b, fmt.Errorf("batch has %d items but %d documents", len(b.Items), len(docs)))
	}

	recs, err := s.validateStage(ctx, &b, docs)
	if err != nil {
		return s.failBatch(ctx, &b, err)
	}
	if err := s.embedStage(ctx, &b, recs); err != nil {
		return s.failBatch(ctx, &b, err)
	}
	if err := s.commitStage(ctx, &b, recs); err != nil {
		return s.failBatch(ctx, &b, err)
	}

	b.Finished = s.now()
	if err := s.advance(ctx, &b, dombatch.StatusDone); err != nil {
		return err
	}
	if err := s.batches.DeleteDocuments(ctx, id); err != nil {
		s.logger.Warn("Failed to drop batch documents", zap.String("batch_id", id), zap.Error(err))
	}

	s.recordItemMetrics(&b)
	metrics.IngestBatchesTotal.WithLabelValues(string(dombatch.StatusDone)).Inc()
	s.logger.Info("Batch processed",
		zap.String("batch_id", id),
		zap.String("progress", b.Progress()))
	return nil
}

// validateStage checks every document against the schema and builds the
// record aggregates. Returns records keyed by item index.
func (s *Service) validateStage(
	ctx context.Context, b *dombatch.Batch, docs []map[string]any,
) (map[int]record.Record, error) {
	if err := s.advance(ctx, b, dombatch.StatusValidating); err != nil {
		return nil, err
	}

	recs := make(map[int]record.Record, len(docs))
	for i, doc := range docs {
		if err := s.schema.ValidateDocument(doc); err != nil {
			b.Reject(i, dombatch.ReasonValidationFailed, err.Error())
			continue
		}
		rec, err := buildRecord(doc, s.schema)
		if err != nil {
			b.Reject(i, dombatch.ReasonValidationFailed, err.Error())
			continue
		}
		recs[i] = rec
	}

	if err := s.batches.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save batch after validation: %w", err)
	}
	return recs, nil
}

// embedStage vectorizes every surviving record, retrying transient
// inference failures per item with exponential backoff.
func (s *Service) embedStage(ctx context.Context, b *dombatch.Batch, recs map[int]record.Record) error {
	if err := s.advance(ctx, b, dombatch.StatusEmbedding); err != nil {
		return err
	}

	for _, i := range b.Pending() {
		rec, ok := recs[i]
		if !ok {
			continue
		}

		var result domain.EmbeddingResult
		err := retryWithBackoff(ctx, func() error {
			attemptCtx := ctx
			if s.cfg.AttemptTimeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, s.cfg.AttemptTimeout)
				defer cancel()
			}
			var embErr error
			result, embErr = s.embed.Embed(attemptCtx, rec.SearchText(), domain.KindDocument)
			// A rejected input never succeeds on retry.
			if errors.Is(embErr, domain.ErrInputRejected) {
				return permanent(embErr)
			}
			return embErr
		}, s.cfg.MaxRetries, s.cfg.RetryBase, func(attempt int, err error) {
			metrics.IngestRetriesTotal.Inc()
			s.logger.Warn("Embedding attempt failed, retrying",
				zap.String("batch_id", b.ID),
				zap.String("record_id", rec.ID()),
				zap.Int("attempt", attempt),
				zap.Error(err))
		})
		if err != nil {
			reason := dombatch.ReasonEmbeddingFailed
			if errors.Is(err, domain.ErrInputRejected) {
				reason = dombatch.ReasonValidationFailed
			}
			b.Reject(i, reason, err.Error())
			delete(recs, i)
			continue
		}

		rec = rec.WithVector(result.Embedding)
		rec = rec.WithExtraction(
			record.ExtractKeywords(rec.Keywords()),
			record.ExtractFiletypes(rec.Online()),
		)
		recs[i] = rec
	}

	if err := s.batches.Save(ctx, b); err != nil {
		return fmt.Errorf("save batch after embedding: %w", err)
	}
	return nil
}

// commitStage bulk-upserts the embedded records and settles every item.
func (s *Service) commitStage(ctx context.Context, b *dombatch.Batch, recs map[int]record.Record) error {
	if err := s.advance(ctx, b, dombatch.StatusCommitting); err != nil {
		return err
	}

	indexes := b.Pending()
	toCommit := make([]record.Record, 0, len(indexes))
	committed := make([]int, 0, len(indexes))
	for _, i := range indexes {
		if rec, ok := recs[i]; ok {
			toCommit = append(toCommit, rec)
			committed = append(committed, i)
		}
	}

	if len(toCommit) > 0 {
		outcomes, err := s.index.Upsert(ctx, toCommit)
		if err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		for pos, i := range committed {
			if outcomes[pos] != nil {
				b.Reject(i, dombatch.ReasonCommitFailed, outcomes[pos].Error())
			} else {
				b.Accept(i)
			}
		}
	}

	if err := s.batches.Save(ctx, b); err != nil {
		return fmt.Errorf("save batch after commit: %w", err)
	}
	return nil
}

func (s *Service) advance(ctx context.Context, b *dombatch.Batch, to dombatch.Status) error {
	if err := b.Advance(to); err != nil {
		return err
	}
	if err := s.batches.Save(ctx, b); err != nil {
		return fmt.Errorf("save batch at %s: %w", to, err)
	}
	return nil
}

// failBatch marks the whole batch failed. Used for infrastructure errors,
// never for per-item ones.
func (s *Service) failBatch(ctx context.Context, b *dombatch.Batch, cause error) error {
	s.logger.Error("Batch failed",
		zap.String("batch_id", b.ID),
		zap.Error(cause))

	b.Error = cause.Error()
	b.Finished = s.now()
	if !b.Status.Terminal() {
		if err := b.Advance(dombatch.StatusFailed); err == nil {
			if err := s.batches.Save(ctx, b); err != nil {
				s.logger.Error("Failed to persist failed batch state",
					zap.String("batch_id", b.ID), zap.Error(err))
			}
		}
	}
	metrics.IngestBatchesTotal.WithLabelValues(string(dombatch.StatusFailed)).Inc()
	return cause
}

func (s *Service) recordItemMetrics(b *dombatch.Batch) {
	for _, item := range b.Items {
		metrics.IngestItemsTotal.WithLabelValues(string(item.Outcome), item.Reason).Inc()
	}
}
