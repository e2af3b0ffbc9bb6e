package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/caelum-cloud/geosearch/internal/domain"
	dombatch "github.com/caelum-cloud/geosearch/internal/domain/batch"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
)

func TestSubmit_PersistsAndEnqueues(t *testing.T) {
	store := newMockBatchStore()
	svc := newTestService(t, store, &mockIndexer{}, &mockEmbedder{})

	id, err := svc.Submit(context.Background(), []map[string]any{validDoc("rec-1"), validDoc("rec-2")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Fatal("expected a batch ID")
	}

	b, err := svc.GetBatch(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if b.Status != dombatch.StatusPending {
		t.Errorf("status = %s, want pending", b.Status)
	}
	if len(b.Items) != 2 || b.Items[0].RecordID != "rec-1" {
		t.Errorf("items = %+v", b.Items)
	}
	if len(store.queue) != 1 || store.queue[0] != id {
		t.Errorf("queue = %v", store.queue)
	}
	if len(store.docs[id]) != 2 {
		t.Errorf("stored documents = %d", len(store.docs[id]))
	}
}

func TestSubmit_RejectsEmptyAndOversized(t *testing.T) {
	svc := newTestService(t, newMockBatchStore(), &mockIndexer{}, &mockEmbedder{})

	if _, err := svc.Submit(context.Background(), nil); !errors.Is(err, domain.ErrInputRejected) {
		t.Errorf("empty batch: expected ErrInputRejected, got %v", err)
	}

	docs := make([]map[string]any, 101)
	for i := range docs {
		docs[i] = validDoc(fmt.Sprintf("rec-%d", i))
	}
	if _, err := svc.Submit(context.Background(), docs); !errors.Is(err, domain.ErrInputRejected) {
		t.Errorf("oversized batch: expected ErrInputRejected, got %v", err)
	}
}

func TestProcessBatch_HappyPath(t *testing.T) {
	store := newMockBatchStore()
	idx := &mockIndexer{}
	emb := &mockEmbedder{}
	svc := newTestService(t, store, idx, emb)
	ctx := context.Background()

	id, err := svc.Submit(ctx, []map[string]any{validDoc("rec-1"), validDoc("rec-2")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := svc.ProcessBatch(ctx, id); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	b, _ := svc.GetBatch(ctx, id)
	if b.Status != dombatch.StatusDone {
		t.Errorf("status = %s, want done", b.Status)
	}
	if b.Finished.IsZero() {
		t.Error("expected a finished timestamp")
	}
	for i, item := range b.Items {
		if item.Outcome != dombatch.ItemAccepted {
			t.Errorf("item %d = %+v, want accepted", i, item)
		}
	}
	if b.Progress() != "2/2" {
		t.Errorf("progress = %s", b.Progress())
	}

	if len(idx.upserted) != 1 || len(idx.upserted[0]) != 2 {
		t.Fatalf("upserted = %+v", idx.upserted)
	}
	rec := idx.upserted[0][0]
	if len(rec.Vector()) != 2 {
		t.Errorf("record vector = %v", rec.Vector())
	}
	if len(rec.ExtractedFiletypes()) != 1 || rec.ExtractedFiletypes()[0] != "nc" {
		t.Errorf("extracted filetypes = %v", rec.ExtractedFiletypes())
	}
	if len(rec.ExtractedKeywords()) != 2 {
		t.Errorf("extracted keywords = %v", rec.ExtractedKeywords())
	}

	if _, ok := store.docs[id]; ok {
		t.Error("expected raw documents to be dropped after processing")
	}
}

func TestProcessBatch_InvalidItemNeverAbortsSiblings(t *testing.T) {
	store := newMockBatchStore()
	idx := &mockIndexer{}
	svc := newTestService(t, store, idx, &mockEmbedder{})
	ctx := context.Background()

	bad := validDoc("rec-2")
	bad["undeclared_field"] = "boom"

	id, err := svc.Submit(ctx, []map[string]any{validDoc("rec-1"), bad, validDoc("rec-3")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := svc.ProcessBatch(ctx, id); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	b, _ := svc.GetBatch(ctx, id)
	if b.Status != dombatch.StatusDone {
		t.Fatalf("status = %s, want done (never whole-batch failure)", b.Status)
	}
	if b.Items[0].Outcome != dombatch.ItemAccepted || b.Items[2].Outcome != dombatch.ItemAccepted {
		t.Errorf("siblings = %+v / %+v, want accepted", b.Items[0], b.Items[2])
	}
	if b.Items[1].Outcome != dombatch.ItemRejected || b.Items[1].Reason != dombatch.ReasonValidationFailed {
		t.Errorf("item 1 = %+v, want rejected/validation_failed", b.Items[1])
	}
	if !strings.Contains(b.Items[1].Detail, "undeclared_field") {
		t.Errorf("detail = %q", b.Items[1].Detail)
	}
	if len(idx.upserted[0]) != 2 {
		t.Errorf("upserted %d records, want 2", len(idx.upserted[0]))
	}
}

func TestProcessBatch_EmbeddingRetriesThenSucceeds(t *testing.T) {
	store := newMockBatchStore()
	emb := &mockEmbedder{failFirst: 2, err: errors.New("inference timeout")}
	svc := newTestService(t, store, &mockIndexer{}, emb)
	ctx := context.Background()

	id, _ := svc.Submit(ctx, []map[string]any{validDoc("rec-1")})
	if err := svc.ProcessBatch(ctx, id); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	b, _ := svc.GetBatch(ctx, id)
	if b.Items[0].Outcome != dombatch.ItemAccepted {
		t.Errorf("item = %+v, want accepted after retries", b.Items[0])
	}
	if emb.calls != 3 {
		t.Errorf("embedder calls = %d, want 3 (two failures, one success)", emb.calls)
	}
}

func TestProcessBatch_EmbeddingExhaustionRejectsItemOnly(t *testing.T) {
	store := newMockBatchStore()
	emb := &mockEmbedder{err: errors.New("inference down")}
	idx := &mockIndexer{}
	svc := newTestService(t, store, idx, emb)
	ctx := context.Background()

	id, _ := svc.Submit(ctx, []map[string]any{validDoc("rec-1")})
	if err := svc.ProcessBatch(ctx, id); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	b, _ := svc.GetBatch(ctx, id)
	if b.Status != dombatch.StatusDone {
		t.Errorf("status = %s, want done", b.Status)
	}
	if b.Items[0].Outcome != dombatch.ItemRejected || b.Items[0].Reason != dombatch.ReasonEmbeddingFailed {
		t.Errorf("item = %+v", b.Items[0])
	}
	if len(idx.upserted) != 0 {
		t.Errorf("nothing should be upserted, got %+v", idx.upserted)
	}
}

func TestProcessBatch_RejectedInputIsNotRetried(t *testing.T) {
	store := newMockBatchStore()
	emb := &mockEmbedder{err: fmt.Errorf("%w: no embeddable text after sanitation", domain.ErrInputRejected)}
	idx := &mockIndexer{}
	svc := newTestService(t, store, idx, emb)
	ctx := context.Background()

	id, _ := svc.Submit(ctx, []map[string]any{validDoc("rec-1")})
	if err := svc.ProcessBatch(ctx, id); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if emb.calls != 1 {
		t.Errorf("embedder calls = %d, want 1 (rejected input never succeeds on retry)", emb.calls)
	}

	b, _ := svc.GetBatch(ctx, id)
	if b.Status != dombatch.StatusDone {
		t.Errorf("status = %s, want done", b.Status)
	}
	if b.Items[0].Outcome != dombatch.ItemRejected || b.Items[0].Reason != dombatch.ReasonValidationFailed {
		t.Errorf("item = %+v, want rejected/validation_failed", b.Items[0])
	}
	if len(idx.upserted) != 0 {
		t.Errorf("nothing should be upserted, got %+v", idx.upserted)
	}
}

func TestProcessBatch_CommitOutcomePerItem(t *testing.T) {
	store := newMockBatchStore()
	idx := &mockIndexer{
		upsertFn: func(_ context.Context, recs []record.Record) ([]error, error) {
			out := make([]error, len(recs))
			out[1] = errors.New("write refused")
			return out, nil
		},
	}
	svc := newTestService(t, store, idx, &mockEmbedder{})
	ctx := context.Background()

	id, _ := svc.Submit(ctx, []map[string]any{validDoc("rec-1"), validDoc("rec-2")})
	if err := svc.ProcessBatch(ctx, id); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	b, _ := svc.GetBatch(ctx, id)
	if b.Items[0].Outcome != dombatch.ItemAccepted {
		t.Errorf("item 0 = %+v", b.Items[0])
	}
	if b.Items[1].Outcome != dombatch.ItemRejected || b.Items[1].Reason != dombatch.ReasonCommitFailed {
		t.Errorf("item 1 = %+v", b.Items[1])
	}
}

func TestProcessBatch_MissingDocumentsFailsBatch(t *testing.T) {
	store := newMockBatchStore()
	svc := newTestService(t, store, &mockIndexer{}, &mockEmbedder{})
	ctx := context.Background()

	id, _ := svc.Submit(ctx, []map[string]any{validDoc("rec-1")})
	delete(store.docs, id)

	if err := svc.ProcessBatch(ctx, id); err == nil {
		t.Fatal("expected an error")
	}

	b, _ := svc.GetBatch(ctx, id)
	if b.Status != dombatch.StatusFailed {
		t.Errorf("status = %s, want failed", b.Status)
	}
	if b.Error == "" {
		t.Error("expected a batch-level error message")
	}
}

func TestGetBatch_Unknown(t *testing.T) {
	svc := newTestService(t, newMockBatchStore(), &mockIndexer{}, &mockEmbedder{})

	if _, err := svc.GetBatch(context.Background(), "nope"); !errors.Is(err, domain.ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		retries := 0
		err := retryWithBackoff(ctx, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, 5, 0, func(int, error) { retries++ })
		if err != nil || calls != 3 || retries != 2 {
			t.Fatalf("err=%v calls=%d retries=%d", err, calls, retries)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(ctx, func() error {
			calls++
			return errors.New("permanent")
		}, 3, 0, nil)
		if err == nil || calls != 3 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("invalid attempts", func(t *testing.T) {
		if err := retryWithBackoff(ctx, func() error { return nil }, 0, 0, nil); !errors.Is(err, ErrInvalidMaxAttempts) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		cause := errors.New("malformed input")
		err := retryWithBackoff(ctx, func() error {
			calls++
			return permanent(cause)
		}, 5, 0, nil)
		if !errors.Is(err, cause) || calls != 1 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})
}
