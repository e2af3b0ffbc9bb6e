package chi

import (
	"context"

	"go.uber.org/zap"

	dombatch "github.com/caelum-cloud/geosearch/internal/domain/batch"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
	domsearch "github.com/caelum-cloud/geosearch/internal/domain/search"
	healthuc "github.com/caelum-cloud/geosearch/internal/usecase/health"
)

type mockSearcher struct {
	searchFn    func(ctx context.Context, q domsearch.Query) (domsearch.Page, error)
	getRecordFn func(ctx context.Context, id string) (record.Record, error)
	lastQuery   domsearch.Query
}

func (m *mockSearcher) Search(ctx context.Context, q domsearch.Query) (domsearch.Page, error) {
	m.lastQuery = q
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return domsearch.Page{Hits: []domsearch.Hit{}}, nil
}

func (m *mockSearcher) GetRecord(ctx context.Context, id string) (record.Record, error) {
	if m.getRecordFn != nil {
		return m.getRecordFn(ctx, id)
	}
	return record.Record{}, nil
}

type mockIngester struct {
	submitFn   func(ctx context.Context, docs []map[string]any) (string, error)
	getBatchFn func(ctx context.Context, id string) (dombatch.Batch, error)
}

func (m *mockIngester) Submit(ctx context.Context, docs []map[string]any) (string, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, docs)
	}
	return "batch-1", nil
}

func (m *mockIngester) GetBatch(ctx context.Context, id string) (dombatch.Batch, error) {
	if m.getBatchFn != nil {
		return m.getBatchFn(ctx, id)
	}
	return dombatch.Batch{}, nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report {
	return m.report
}

func newTestServer(search *mockSearcher, ingest *mockIngester, health *mockHealth) *Server {
	if search == nil {
		search = &mockSearcher{}
	}
	if ingest == nil {
		ingest = &mockIngester{}
	}
	if health == nil {
		health = &mockHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
		}}
	}
	return NewServer(search, ingest, health, zap.NewNop())
}
