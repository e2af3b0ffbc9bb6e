// Package search holds the query-path value objects: the parsed query with
// its filters and thresholds, and the transient ranking candidates.
package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/caelum-cloud/geosearch/internal/domain"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
)

// MaxQueryLength bounds the free-text query size.
const MaxQueryLength = 1024

// Filters are the structured constraints applied alongside the free-text query.
type Filters struct {
	TimeStart *time.Time
	TimeEnd   *time.Time
	BBox      *record.BoundingBox
	// Terms maps a tag field path to its accepted values (OR within a field,
	// AND across fields).
	Terms map[string][]string
}

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool {
	return f.TimeStart == nil && f.TimeEnd == nil && f.BBox == nil && len(f.Terms) == 0
}

// Query is a validated search request.
type Query struct {
	text               string
	filters            Filters
	limit              int
	offset             int
	searchThreshold    float64
	confidentThreshold float64
}

// NewQuery validates and creates a Query. Text must be non-empty; thresholds
// are cosine-scale values in [0,1] with the confident threshold at or above
// the search threshold. Zero limit means "use the service default".
func NewQuery(
	text string, filters Filters,
	limit, offset int,
	searchThreshold, confidentThreshold float64,
) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, fmt.Errorf("%w: query text is required", domain.ErrInputRejected)
	}
	if len(text) > MaxQueryLength {
		return Query{}, fmt.Errorf("%w: query text too long (max %d)", domain.ErrInputRejected, MaxQueryLength)
	}
	if offset < 0 {
		return Query{}, fmt.Errorf("%w: offset must be non-negative", domain.ErrInputRejected)
	}
	if limit < 0 {
		return Query{}, fmt.Errorf("%w: limit must be non-negative", domain.ErrInputRejected)
	}
	if searchThreshold < 0 || searchThreshold > 1 {
		return Query{}, fmt.Errorf("%w: search threshold must be in [0,1]", domain.ErrInputRejected)
	}
	if confidentThreshold < 0 || confidentThreshold > 1 {
		return Query{}, fmt.Errorf("%w: confident threshold must be in [0,1]", domain.ErrInputRejected)
	}
	if confidentThreshold > 0 && confidentThreshold < searchThreshold {
		return Query{}, fmt.Errorf("%w: confident threshold below search threshold", domain.ErrInputRejected)
	}
	if filters.BBox != nil && !filters.BBox.Valid() {
		return Query{}, fmt.Errorf("%w: invalid bounding box filter", domain.ErrInputRejected)
	}
	if filters.TimeStart != nil && filters.TimeEnd != nil && filters.TimeEnd.Before(*filters.TimeStart) {
		return Query{}, fmt.Errorf("%w: time filter ends before it starts", domain.ErrInputRejected)
	}

	return Query{
		text:               text,
		filters:            filters,
		limit:              limit,
		offset:             offset,
		searchThreshold:    searchThreshold,
		confidentThreshold: confidentThreshold,
	}, nil
}

// WithDefaults returns a copy with unset paging and thresholds filled from
// the service configuration and the limit clamped to maxLimit.
func (q Query) WithDefaults(defaultLimit, maxLimit int, searchThreshold, confidentThreshold float64) Query {
	if q.limit == 0 {
		q.limit = defaultLimit
	}
	if q.limit > maxLimit {
		q.limit = maxLimit
	}
	if q.searchThreshold == 0 {
		q.searchThreshold = searchThreshold
	}
	if q.confidentThreshold == 0 {
		q.confidentThreshold = confidentThreshold
	}
	return q
}

// Text returns the free-text query.
func (q Query) Text() string { return q.text }

// Filters returns the structured filters.
func (q Query) Filters() Filters { return q.filters }

// Limit returns the requested page size.
func (q Query) Limit() int { return q.limit }

// Offset returns the requested page offset.
func (q Query) Offset() int { return q.offset }

// SearchThreshold returns the minimum fused score for inclusion.
func (q Query) SearchThreshold() float64 { return q.searchThreshold }

// ConfidentThreshold returns the confidence tier boundary.
func (q Query) ConfidentThreshold() float64 { return q.confidentThreshold }
