package record

import (
	"strings"
	"testing"
	"time"
)

func TestNew_Valid(t *testing.T) {
	bbox := &BoundingBox{West: -10, South: 30, East: 10, North: 50}
	temporal := &TimeExtent{
		Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	rec, err := New(
		"rec-1", "Sea surface temperature", "Monthly SST grids",
		[]string{"ocean", "temperature"}, []string{"NetCDF"},
		Source{ID: "src-1", Title: "Test catalogue"}, "NOAA",
		bbox, temporal,
		[]OnlineResource{{URL: "https://example.org/sst.nc", Protocol: "HTTPS"}},
		[]OntologyTag{{Ontology: "sweet", Concept: "temperature"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID() != "rec-1" {
		t.Errorf("ID() = %q", rec.ID())
	}
	if rec.Title() != "Sea surface temperature" {
		t.Errorf("Title() = %q", rec.Title())
	}
	if len(rec.Keywords()) != 2 || rec.Keywords()[0] != "ocean" {
		t.Errorf("Keywords() = %v", rec.Keywords())
	}
	if rec.Organisation() != "NOAA" {
		t.Errorf("Organisation() = %q", rec.Organisation())
	}
	if rec.Geometry() == nil || rec.Geometry().West != -10 {
		t.Errorf("Geometry() = %+v", rec.Geometry())
	}
	if rec.Vector() != nil {
		t.Error("Vector() should be nil before embedding")
	}
}

func TestNew_ClonesSlices(t *testing.T) {
	keywords := []string{"ocean"}

	rec, _ := New("rec-1", "title", "", keywords, nil, Source{}, "", nil, nil, nil, nil)

	// Mutating the original slice must not affect the record
	keywords[0] = "mutated"

	if rec.Keywords()[0] != "ocean" {
		t.Error("keyword mutation leaked into record")
	}
}

func TestNew_IDValidation(t *testing.T) {
	tests := []struct {
		name string
		id   string
		ok   bool
	}{
		{"empty", "", false},
		{"simple", "rec-1", true},
		{"namespaced", "geoss:dataset.v2_1", true},
		{"spaces", "rec 1", false},
		{"slash", "rec/1", false},
		{"too long", strings.Repeat("a", 257), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.id, "title", "", nil, nil, Source{}, "", nil, nil, nil, nil)
			if (err == nil) != tt.ok {
				t.Errorf("id %q: err = %v, want ok=%v", tt.id, err, tt.ok)
			}
		})
	}
}

func TestNew_RequiresTitleOrDescription(t *testing.T) {
	if _, err := New("rec-1", "  ", "\t", nil, nil, Source{}, "", nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for blank title and description")
	}
	if _, err := New("rec-1", "", "has a description", nil, nil, Source{}, "", nil, nil, nil, nil); err != nil {
		t.Fatalf("description alone should suffice: %v", err)
	}
}

func TestNew_InvalidBBox(t *testing.T) {
	bad := []BoundingBox{
		{West: 10, South: 30, East: -10, North: 50},  // west > east
		{West: -10, South: 50, East: 10, North: 30},  // south > north
		{West: -200, South: 30, East: 10, North: 50}, // out of range
	}
	for _, bbox := range bad {
		b := bbox
		if _, err := New("rec-1", "title", "", nil, nil, Source{}, "", &b, nil, nil, nil); err == nil {
			t.Errorf("bbox %+v: expected error", bbox)
		}
	}
}

func TestNew_TemporalEndBeforeStart(t *testing.T) {
	temporal := &TimeExtent{
		Start: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if _, err := New("rec-1", "title", "", nil, nil, Source{}, "", nil, temporal, nil, nil); err == nil {
		t.Fatal("expected error for inverted temporal extent")
	}
}

func TestNew_OpenEndedTemporal(t *testing.T) {
	temporal := &TimeExtent{Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	if _, err := New("rec-1", "title", "", nil, nil, Source{}, "", nil, temporal, nil, nil); err != nil {
		t.Fatalf("open-ended extent should be valid: %v", err)
	}
}

func TestWithVector(t *testing.T) {
	rec, _ := New("rec-1", "title", "", nil, nil, Source{}, "", nil, nil, nil, nil)

	embedded := rec.WithVector([]float32{0.1, 0.2})

	if rec.Vector() != nil {
		t.Error("WithVector mutated the receiver")
	}
	if len(embedded.Vector()) != 2 {
		t.Errorf("Vector() = %v", embedded.Vector())
	}
}

func TestSearchText(t *testing.T) {
	rec, _ := New("rec-1", "Sea surface temperature", "Monthly grids",
		[]string{"ocean", "sst"}, nil, Source{}, "", nil, nil, nil, nil)

	got := rec.SearchText()
	want := "Sea surface temperature. Monthly grids. ocean. sst"
	if got != want {
		t.Errorf("SearchText() = %q, want %q", got, want)
	}
}

func TestSearchText_SkipsEmptyParts(t *testing.T) {
	rec, _ := New("rec-1", "Only a title", "", nil, nil, Source{}, "", nil, nil, nil, nil)

	if got := rec.SearchText(); got != "Only a title" {
		t.Errorf("SearchText() = %q", got)
	}
}

func TestBoundingBox_Valid(t *testing.T) {
	good := BoundingBox{West: -180, South: -90, East: 180, North: 90}
	if !good.Valid() {
		t.Error("full-globe box should be valid")
	}

	point := BoundingBox{West: 5, South: 5, East: 5, North: 5}
	if !point.Valid() {
		t.Error("degenerate point box should be valid")
	}
}
