// Package record holds the metadata record aggregate: one catalogued
// geospatial/scientific dataset description plus its system-computed fields.
package record

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9:._-]+$`)

// Source identifies the harvesting origin of a record.
type Source struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// BoundingBox is a WGS84 spatial extent.
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Valid reports whether the box coordinates are within WGS84 bounds and ordered.
func (b BoundingBox) Valid() bool {
	return b.West >= -180 && b.East <= 180 && b.West <= b.East &&
		b.South >= -90 && b.North <= 90 && b.South <= b.North
}

// TimeExtent is the temporal coverage of a dataset.
type TimeExtent struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// OnlineResource is a downloadable or browsable endpoint attached to a record.
type OnlineResource struct {
	URL      string `json:"url"`
	Protocol string `json:"protocol"`
	Name     string `json:"name"`
}

// OntologyTag links a record to a concept of a controlled vocabulary.
type OntologyTag struct {
	Ontology   string `json:"ontology"`
	Concept    string `json:"concept"`
	Individual string `json:"individual"`
}

// Record is the metadata record aggregate (immutable value object).
type Record struct {
	id           string
	title        string
	description  string
	keywords     []string
	formats      []string
	source       Source
	organisation string
	geometry     *BoundingBox
	temporal     *TimeExtent
	online       []OnlineResource
	ontology     []OntologyTag

	// System-computed fields, set by the ingestion pipeline.
	vector             []float32
	extractedKeywords  []string
	extractedFiletypes []string
}

// New validates and creates a Record.
// ID is required and must match ^[a-zA-Z0-9:._-]+$; at least one of
// title/description must be non-empty so the record is searchable.
func New(
	id, title, description string,
	keywords, formats []string,
	source Source, organisation string,
	geometry *BoundingBox, temporal *TimeExtent,
	online []OnlineResource, ontology []OntologyTag,
) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("record ID is required")
	}
	if len(id) > 256 {
		return Record{}, fmt.Errorf("record ID too long (max 256)")
	}
	if !idRegex.MatchString(id) {
		return Record{}, fmt.Errorf("record ID %q contains invalid characters", id)
	}
	if strings.TrimSpace(title) == "" && strings.TrimSpace(description) == "" {
		return Record{}, fmt.Errorf("record %s: title or description is required", id)
	}
	if geometry != nil && !geometry.Valid() {
		return Record{}, fmt.Errorf("record %s: invalid bounding box", id)
	}
	if temporal != nil && !temporal.End.IsZero() && temporal.End.Before(temporal.Start) {
		return Record{}, fmt.Errorf("record %s: temporal extent ends before it starts", id)
	}

	return Record{
		id:           id,
		title:        title,
		description:  description,
		keywords:     cloneStrings(keywords),
		formats:      cloneStrings(formats),
		source:       source,
		organisation: organisation,
		geometry:     geometry,
		temporal:     temporal,
		online:       append([]OnlineResource(nil), online...),
		ontology:     append([]OntologyTag(nil), ontology...),
	}, nil
}

// Reconstruct creates a Record without validation (storage hydration).
func Reconstruct(
	id, title, description string,
	keywords, formats []string,
	source Source, organisation string,
	geometry *BoundingBox, temporal *TimeExtent,
	online []OnlineResource, ontology []OntologyTag,
	vector []float32, extractedKeywords, extractedFiletypes []string,
) Record {
	return Record{
		id: id, title: title, description: description,
		keywords: keywords, formats: formats,
		source: source, organisation: organisation,
		geometry: geometry, temporal: temporal,
		online: online, ontology: ontology,
		vector:             vector,
		extractedKeywords:  extractedKeywords,
		extractedFiletypes: extractedFiletypes,
	}
}

// ID returns the record identifier.
func (r *Record) ID() string { return r.id }

// Title returns the record title.
func (r *Record) Title() string { return r.title }

// Description returns the record abstract.
func (r *Record) Description() string { return r.description }

// Keywords returns the declared keyword list.
func (r *Record) Keywords() []string { return r.keywords }

// Formats returns the declared dataset formats.
func (r *Record) Formats() []string { return r.formats }

// Source returns the harvesting origin.
func (r *Record) Source() Source { return r.source }

// Organisation returns the originator organisation name.
func (r *Record) Organisation() string { return r.organisation }

// Geometry returns the spatial extent, or nil.
func (r *Record) Geometry() *BoundingBox { return r.geometry }

// Temporal returns the temporal extent, or nil.
func (r *Record) Temporal() *TimeExtent { return r.temporal }

// Online returns the attached online resources.
func (r *Record) Online() []OnlineResource { return r.online }

// Ontology returns the ontology tags.
func (r *Record) Ontology() []OntologyTag { return r.ontology }

// Vector returns the embedding vector, or nil before embedding.
func (r *Record) Vector() []float32 { return r.vector }

// ExtractedKeywords returns the system-derived keyword tags.
func (r *Record) ExtractedKeywords() []string { return r.extractedKeywords }

// ExtractedFiletypes returns the system-derived file-type tags.
func (r *Record) ExtractedFiletypes() []string { return r.extractedFiletypes }

// WithVector returns a copy with the embedding vector set.
func (r *Record) WithVector(v []float32) Record {
	out := *r
	out.vector = v
	return out
}

// WithExtraction returns a copy with the system-derived tag fields set.
func (r *Record) WithExtraction(keywords, filetypes []string) Record {
	out := *r
	out.extractedKeywords = keywords
	out.extractedFiletypes = filetypes
	return out
}

// SearchText concatenates title, description, and keywords into the text
// used for both lexical indexing and embedding input.
func (r *Record) SearchText() string {
	parts := make([]string, 0, 2+len(r.keywords))
	if r.title != "" {
		parts = append(parts, r.title)
	}
	if r.description != "" {
		parts = append(parts, r.description)
	}
	parts = append(parts, r.keywords...)
	return strings.Join(parts, ". ")
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
