package chi

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caelum-cloud/geosearch/internal/domain"
	dombatch "github.com/caelum-cloud/geosearch/internal/domain/batch"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
	domsearch "github.com/caelum-cloud/geosearch/internal/domain/search"
)

// errorCode identifies an API error class.
type errorCode string

const (
	codeBadRequest           errorCode = "bad_request"
	codeUnauthorized         errorCode = "unauthorized"
	codeValidationFailed     errorCode = "validation_failed"
	codeRecordNotFound       errorCode = "record_not_found"
	codeBatchNotFound        errorCode = "batch_not_found"
	codeInferenceUnavailable errorCode = "inference_unavailable"
	codeRetrievalFailed      errorCode = "retrieval_failed"
	codeIndexNotReady        errorCode = "index_not_ready"
	codeSchemaConflict       errorCode = "schema_conflict"
	codeInternalError        errorCode = "internal_error"
)

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// allowedTermFields are the tag fields accepted in term filters.
var allowedTermFields = map[string]struct{}{
	"keyword":          {},
	"format":           {},
	"source.id":        {},
	"organisationName": {},
}

// searchRequest is the POST /search body.
type searchRequest struct {
	Query              string         `json:"query"`
	Limit              int            `json:"limit,omitempty"`
	Offset             int            `json:"offset,omitempty"`
	SearchThreshold    float64        `json:"searchThreshold,omitempty"`
	ConfidentThreshold float64        `json:"confidentThreshold,omitempty"`
	Filters            *searchFilters `json:"filters,omitempty"`
}

type searchFilters struct {
	TimeStart *time.Time          `json:"timeStart,omitempty"`
	TimeEnd   *time.Time          `json:"timeEnd,omitempty"`
	BBox      *bboxFilter         `json:"bbox,omitempty"`
	Terms     map[string][]string `json:"terms,omitempty"`
}

type bboxFilter struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

func (r searchRequest) toQuery() (domsearch.Query, error) {
	var filters domsearch.Filters
	if r.Filters != nil {
		filters.TimeStart = r.Filters.TimeStart
		filters.TimeEnd = r.Filters.TimeEnd
		if r.Filters.BBox != nil {
			filters.BBox = &record.BoundingBox{
				West:  r.Filters.BBox.West,
				South: r.Filters.BBox.South,
				East:  r.Filters.BBox.East,
				North: r.Filters.BBox.North,
			}
		}
		if len(r.Filters.Terms) > 0 {
			filters.Terms = make(map[string][]string, len(r.Filters.Terms))
			for field, values := range r.Filters.Terms {
				if _, ok := allowedTermFields[field]; !ok {
					return domsearch.Query{}, fmt.Errorf("%w: unknown filter field %q", domain.ErrInputRejected, field)
				}
				filters.Terms[field] = values
			}
		}
	}

	return domsearch.NewQuery(
		r.Query, filters,
		r.Limit, r.Offset,
		r.SearchThreshold, r.ConfidentThreshold,
	)
}

// termParams maps GET /search parameter names to their indexed tag fields.
var termParams = map[string]string{
	"keyword":      "keyword",
	"format":       "format",
	"source":       "source.id",
	"organisation": "organisationName",
}

// queryFromParams builds a query from GET /search URL parameters.
func queryFromParams(params url.Values) (domsearch.Query, error) {
	limit, err := intParam(params, "limit")
	if err != nil {
		return domsearch.Query{}, err
	}
	offset, err := intParam(params, "offset")
	if err != nil {
		return domsearch.Query{}, err
	}

	var filters domsearch.Filters
	if filters.TimeStart, err = timeParam(params, "from"); err != nil {
		return domsearch.Query{}, err
	}
	if filters.TimeEnd, err = timeParam(params, "to"); err != nil {
		return domsearch.Query{}, err
	}
	if filters.BBox, err = bboxParam(params); err != nil {
		return domsearch.Query{}, err
	}

	for param, field := range termParams {
		if values := params[param]; len(values) > 0 {
			if filters.Terms == nil {
				filters.Terms = make(map[string][]string)
			}
			filters.Terms[field] = values
		}
	}

	return domsearch.NewQuery(params.Get("q"), filters, limit, offset, 0, 0)
}

func intParam(params url.Values, name string) (int, error) {
	raw := params.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInputRejected, name)
	}
	return v, nil
}

func timeParam(params url.Values, name string) (*time.Time, error) {
	raw := params.Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", domain.ErrInputRejected, name)
	}
	return &t, nil
}

// bboxParam parses bbox=west,south,east,north.
func bboxParam(params url.Values) (*record.BoundingBox, error) {
	raw := params.Get("bbox")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: bbox must be west,south,east,north", domain.ErrInputRejected)
	}
	coords := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bbox coordinate %q is not a number", domain.ErrInputRejected, p)
		}
		coords[i] = v
	}
	return &record.BoundingBox{West: coords[0], South: coords[1], East: coords[2], North: coords[3]}, nil
}

// ingestRequest is the POST /ingest body.
type ingestRequest struct {
	Records []map[string]any `json:"records"`
}

// ingestResponse acknowledges an accepted batch.
type ingestResponse struct {
	BatchID string `json:"batchId"`
	Status  string `json:"status"`
}

// batchResponse is the GET /ingest/{id} body.
type batchResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Progress  string          `json:"progress"`
	Submitted time.Time       `json:"submitted"`
	Finished  *time.Time      `json:"finished,omitempty"`
	Items     []dombatch.Item `json:"items"`
	Error     string          `json:"error,omitempty"`
}

func batchToResponse(b *dombatch.Batch) batchResponse {
	resp := batchResponse{
		ID:        b.ID,
		Status:    string(b.Status),
		Progress:  b.Progress(),
		Submitted: b.Submitted,
		Items:     b.Items,
		Error:     b.Error,
	}
	if !b.Finished.IsZero() {
		f := b.Finished
		resp.Finished = &f
	}
	return resp
}

// recordResponse is the GET /records/{id} body. Field names follow the
// indexed document layout.
type recordResponse struct {
	ID           string                  `json:"id"`
	Title        string                  `json:"title,omitempty"`
	Description  string                  `json:"description,omitempty"`
	Keyword      []string                `json:"keyword,omitempty"`
	Format       []string                `json:"format,omitempty"`
	Source       *record.Source          `json:"source,omitempty"`
	Organisation string                  `json:"organisationName,omitempty"`
	Geometry     *record.BoundingBox     `json:"geometry,omitempty"`
	Temporal     *record.TimeExtent      `json:"temporal,omitempty"`
	Online       []record.OnlineResource `json:"online,omitempty"`
	Ontology     []record.OntologyTag    `json:"ontology,omitempty"`
}

func recordToResponse(rec *record.Record) recordResponse {
	resp := recordResponse{
		ID:           rec.ID(),
		Title:        rec.Title(),
		Description:  rec.Description(),
		Keyword:      rec.Keywords(),
		Format:       rec.Formats(),
		Organisation: rec.Organisation(),
		Geometry:     rec.Geometry(),
		Temporal:     rec.Temporal(),
		Online:       rec.Online(),
		Ontology:     rec.Ontology(),
	}
	if src := rec.Source(); src.ID != "" || src.Title != "" {
		resp.Source = &src
	}
	return resp
}
