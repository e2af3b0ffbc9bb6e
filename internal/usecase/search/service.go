// Package search orchestrates the hybrid query path: query embedding, the
// parallel lexical and semantic legs, and score fusion into a ranked page.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/caelum-cloud/geosearch/internal/domain"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
	domsearch "github.com/caelum-cloud/geosearch/internal/domain/search"
	"github.com/caelum-cloud/geosearch/internal/metrics"
)

// Config holds the ranking and paging parameters of the search service.
type Config struct {
	PageSize           int
	MaxPageSize        int
	SearchThreshold    float64
	ConfidentThreshold float64
	LexicalWeight      float64
	OverfetchFactor    int
	QueryTimeout       time.Duration
}

// Service handles hybrid record search.
type Service struct {
	repo   Repository
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

// New creates a search service.
func New(repo Repository, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	return &Service{repo: repo, embed: embed, cfg: cfg, logger: logger}
}

// Search runs the hybrid pipeline for a validated query. When the inference
// backend is down the semantic leg is skipped and the page is served from
// the lexical leg alone, marked Degraded. A lexical failure is fatal.
func (s *Service) Search(ctx context.Context, q domsearch.Query) (domsearch.Page, error) {
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	q = q.WithDefaults(s.cfg.PageSize, s.cfg.MaxPageSize, s.cfg.SearchThreshold, s.cfg.ConfidentThreshold)

	vector, degraded, err := s.embedQuery(ctx, q.Text())
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return domsearch.Page{}, err
	}

	fetch := (q.Offset() + q.Limit()) * s.cfg.OverfetchFactor

	lexical, semantic, err := s.retrieve(ctx, q, vector, fetch)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return domsearch.Page{}, err
	}
	if vector != nil && semantic == nil {
		// Semantic leg failed after a successful embedding.
		degraded = true
	}

	start := time.Now()
	fused := fuse(lexical, semantic, s.cfg.LexicalWeight,
		q.SearchThreshold(), q.ConfidentThreshold(), degraded)
	metrics.SearchStageDuration.WithLabelValues("fusion").Observe(time.Since(start).Seconds())

	page := buildPage(fused, q, degraded)

	if degraded {
		metrics.SearchRequestsTotal.WithLabelValues("degraded").Inc()
	} else {
		metrics.SearchRequestsTotal.WithLabelValues("hybrid").Inc()
	}
	return page, nil
}

// GetRecord returns a stored record by ID.
func (s *Service) GetRecord(ctx context.Context, id string) (record.Record, error) {
	if id == "" {
		return record.Record{}, fmt.Errorf("%w: record ID is required", domain.ErrInputRejected)
	}
	return s.repo.Get(ctx, id)
}

// embedQuery vectorizes the query text. An unavailable backend degrades the
// request instead of failing it; a rejected input is the caller's error.
func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, bool, error) {
	start := time.Now()
	res, err := s.embed.Embed(ctx, text, domain.KindQuery)
	metrics.SearchStageDuration.WithLabelValues("embedding").Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, domain.ErrInputRejected) {
			return nil, false, err
		}
		s.logger.Warn("Query embedding unavailable, degrading to lexical-only", zap.Error(err))
		return nil, true, nil
	}
	return res.Embedding, false, nil
}

// retrieve runs both legs concurrently. The semantic leg is skipped when
// vector is nil.
func (s *Service) retrieve(
	ctx context.Context, q domsearch.Query, vector []float32, fetch int,
) (lexical, semantic []domsearch.Candidate, err error) {
	start := time.Now()
	defer func() {
		metrics.SearchStageDuration.WithLabelValues("retrieval").Observe(time.Since(start).Seconds())
	}()

	var wg sync.WaitGroup
	var lexErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		lexical, lexErr = s.repo.SearchLexical(ctx, q, fetch)
	}()

	if vector != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem, semErr := s.repo.SearchSemantic(ctx, q, vector, fetch)
			if semErr != nil {
				s.logger.Warn("Semantic retrieval failed, degrading to lexical-only", zap.Error(semErr))
				return
			}
			semantic = sem
		}()
	}

	wg.Wait()

	if lexErr != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrRetrievalFailed, lexErr)
	}
	return lexical, semantic, nil
}

// buildPage converts the fused candidate list into the response page.
func buildPage(fused []domsearch.Candidate, q domsearch.Query, degraded bool) domsearch.Page {
	page := domsearch.Page{
		Total:    len(fused),
		Degraded: degraded,
		Hits:     []domsearch.Hit{},
	}
	if len(fused) > 0 {
		page.MaxScore = fused[0].Fused
		for _, c := range fused {
			if c.Fused > page.MaxScore {
				page.MaxScore = c.Fused
			}
		}
	}

	for _, c := range paginate(fused, q.Offset(), q.Limit()) {
		page.Hits = append(page.Hits, domsearch.Hit{
			ID:          c.ID,
			Title:       c.Fields["title"],
			Description: c.Fields["description"],
			Score:       c.Fused,
			Confident:   !degraded && c.Fused >= q.ConfidentThreshold(),
		})
	}
	return page
}
