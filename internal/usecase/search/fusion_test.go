package search

import (
	"testing"

	domsearch "github.com/caelum-cloud/geosearch/internal/domain/search"
)

func TestFuse_ThresholdAndConfidenceTiers(t *testing.T) {
	// Five candidates with pure semantic scores (no lexical leg): three below
	// the search threshold, one between the thresholds, one confident.
	semantic := []domsearch.Candidate{
		{ID: "low-1", Semantic: 0.30},
		{ID: "low-2", Semantic: 0.45},
		{ID: "low-3", Semantic: 0.55},
		{ID: "mid", Semantic: 0.65},
		{ID: "high", Semantic: 0.75},
	}

	got := fuse(nil, semantic, 0.0, 0.6, 0.7, false)

	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2: %+v", len(got), got)
	}
	if got[0].ID != "high" || got[0].Fused != 0.75 {
		t.Errorf("first = %+v, want the confident candidate", got[0])
	}
	if got[1].ID != "mid" || got[1].Fused != 0.65 {
		t.Errorf("second = %+v, want the non-confident candidate", got[1])
	}
}

func TestFuse_ConvexCombination(t *testing.T) {
	lexical := []domsearch.Candidate{
		{ID: "a", Lexical: 4.0},
		{ID: "b", Lexical: 2.0},
	}
	semantic := []domsearch.Candidate{
		{ID: "b", Semantic: 0.9},
		{ID: "c", Semantic: 0.8},
	}

	got := fuse(lexical, semantic, 0.5, 0.0, 0.95, false)

	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	want := map[string]float64{
		"a": 0.5*1.0 + 0.5*0.0, // lexical max, no semantic
		"b": 0.5*0.5 + 0.5*0.9,
		"c": 0.5*0.0 + 0.5*0.8,
	}
	for _, c := range got {
		if diff := c.Fused - want[c.ID]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("candidate %s fused = %v, want %v", c.ID, c.Fused, want[c.ID])
		}
	}
	// b (0.7) > a (0.5) > c (0.4)
	if got[0].ID != "b" || got[1].ID != "a" || got[2].ID != "c" {
		t.Errorf("order = %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestFuse_ConfidentTierOrdersBeforeHigherLexical(t *testing.T) {
	// A candidate in the confident tier sorts before a non-confident one
	// even when their fused scores are close.
	semantic := []domsearch.Candidate{
		{ID: "confident", Semantic: 0.71},
		{ID: "almost", Semantic: 0.69},
	}

	got := fuse(nil, semantic, 0.0, 0.6, 0.7, false)

	if len(got) != 2 || got[0].ID != "confident" {
		t.Fatalf("order = %+v", got)
	}
}

func TestFuse_TieBreakByID(t *testing.T) {
	semantic := []domsearch.Candidate{
		{ID: "zeta", Semantic: 0.8},
		{ID: "alpha", Semantic: 0.8},
	}

	got := fuse(nil, semantic, 0.0, 0.6, 0.7, false)

	if len(got) != 2 || got[0].ID != "alpha" || got[1].ID != "zeta" {
		t.Fatalf("tie-break order = %+v", got)
	}
}

func TestFuse_NegativeSemanticClampsToZero(t *testing.T) {
	lexical := []domsearch.Candidate{{ID: "a", Lexical: 3.0}}
	semantic := []domsearch.Candidate{{ID: "a", Semantic: -0.2}}

	got := fuse(lexical, semantic, 0.5, 0.0, 0.7, false)

	if len(got) != 1 {
		t.Fatalf("got %d candidates", len(got))
	}
	if got[0].Fused != 0.5 {
		t.Errorf("fused = %v, want 0.5 (clamped semantic)", got[0].Fused)
	}
}

func TestFuse_DegradedSkipsThresholds(t *testing.T) {
	lexical := []domsearch.Candidate{
		{ID: "a", Lexical: 10.0},
		{ID: "b", Lexical: 1.0},
	}

	got := fuse(lexical, nil, 0.5, 0.6, 0.7, true)

	// Normalized lexical 0.1 would be cut by the 0.6 threshold in hybrid
	// mode, but degraded pages keep every lexical hit.
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Fused != 1.0 || got[1].Fused != 0.1 {
		t.Errorf("fused scores = %v, %v", got[0].Fused, got[1].Fused)
	}
}

func TestFuse_MergesFieldsAcrossLegs(t *testing.T) {
	lexical := []domsearch.Candidate{{ID: "a", Lexical: 2.0}}
	semantic := []domsearch.Candidate{
		{ID: "a", Semantic: 0.9, Fields: map[string]string{"title": "From KNN"}},
	}

	got := fuse(lexical, semantic, 0.5, 0.0, 0.7, false)

	if len(got) != 1 || got[0].Fields["title"] != "From KNN" {
		t.Fatalf("fields not merged: %+v", got)
	}
}

func TestPaginate(t *testing.T) {
	in := []domsearch.Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	if got := paginate(in, 0, 2); len(got) != 2 || got[1].ID != "b" {
		t.Errorf("first page = %+v", got)
	}
	if got := paginate(in, 2, 2); len(got) != 1 || got[0].ID != "c" {
		t.Errorf("last page = %+v", got)
	}
	if got := paginate(in, 5, 2); got != nil {
		t.Errorf("past-the-end page = %+v", got)
	}
}
