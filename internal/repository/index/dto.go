package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/caelum-cloud/geosearch/internal/domain/record"
	"github.com/caelum-cloud/geosearch/internal/domain/schema"
)

// Hash field paths written by flattenRecord. These mirror the declared
// schema paths, so the derived mapping indexes them directly.
const (
	fieldID            = "id"
	fieldTitle         = "title"
	fieldDescription   = "description"
	fieldKeyword       = "keyword"
	fieldFormat        = "format"
	fieldSourceID      = "source.id"
	fieldSourceTitle   = "source.title"
	fieldOrganisation  = "organisationName"
	fieldGeometry      = "geometry"
	fieldTemporalStart = "temporal.start"
	fieldTemporalEnd   = "temporal.end"

	// fieldPayload holds the full record JSON for lossless hydration;
	// the underscore keeps it out of the declared schema namespace.
	fieldPayload = "_payload"
)

const tagSeparator = ","

// recordDoc is the JSON persistence shape stored in fieldPayload.
type recordDoc struct {
	ID           string                  `json:"id"`
	Title        string                  `json:"title,omitempty"`
	Description  string                  `json:"description,omitempty"`
	Keywords     []string                `json:"keyword,omitempty"`
	Formats      []string                `json:"format,omitempty"`
	Source       record.Source           `json:"source"`
	Organisation string                  `json:"organisationName,omitempty"`
	Geometry     *record.BoundingBox     `json:"geometry,omitempty"`
	Temporal     *record.TimeExtent      `json:"temporal,omitempty"`
	Online       []record.OnlineResource `json:"online,omitempty"`
	Ontology     []record.OntologyTag    `json:"ontology,omitempty"`
}

// flattenRecord converts a record into the flat hash fields the FT index
// consumes: declared fields under their schema paths, system fields under
// their underscore names, and the full JSON payload for hydration.
func flattenRecord(r *record.Record) map[string]string {
	fields := map[string]string{
		fieldID: r.ID(),
	}
	if r.Title() != "" {
		fields[fieldTitle] = r.Title()
	}
	if r.Description() != "" {
		fields[fieldDescription] = r.Description()
	}
	if kw := r.Keywords(); len(kw) > 0 {
		fields[fieldKeyword] = strings.Join(kw, tagSeparator)
	}
	if f := r.Formats(); len(f) > 0 {
		fields[fieldFormat] = strings.Join(f, tagSeparator)
	}
	if r.Source().ID != "" {
		fields[fieldSourceID] = r.Source().ID
		fields[fieldSourceTitle] = r.Source().Title
	}
	if r.Organisation() != "" {
		fields[fieldOrganisation] = r.Organisation()
	}
	if g := r.Geometry(); g != nil {
		fields[fieldGeometry+".west"] = formatCoord(g.West)
		fields[fieldGeometry+".south"] = formatCoord(g.South)
		fields[fieldGeometry+".east"] = formatCoord(g.East)
		fields[fieldGeometry+".north"] = formatCoord(g.North)
	}
	if t := r.Temporal(); t != nil {
		if !t.Start.IsZero() {
			fields[fieldTemporalStart] = formatEpoch(t.Start)
		}
		if !t.End.IsZero() {
			fields[fieldTemporalEnd] = formatEpoch(t.End)
		}
	}

	fields[schema.FieldSearchText] = r.SearchText()
	if v := r.Vector(); len(v) > 0 {
		fields[schema.FieldEmbedding] = string(vectorToBytes(v))
	}
	if kw := r.ExtractedKeywords(); len(kw) > 0 {
		fields[schema.FieldExtractedKeyword] = strings.Join(kw, tagSeparator)
	}
	if ft := r.ExtractedFiletypes(); len(ft) > 0 {
		fields[schema.FieldExtractedFiletype] = strings.Join(ft, tagSeparator)
	}

	doc := recordDoc{
		ID:           r.ID(),
		Title:        r.Title(),
		Description:  r.Description(),
		Keywords:     r.Keywords(),
		Formats:      r.Formats(),
		Source:       r.Source(),
		Organisation: r.Organisation(),
		Geometry:     r.Geometry(),
		Temporal:     r.Temporal(),
		Online:       r.Online(),
		Ontology:     r.Ontology(),
	}
	if data, err := json.Marshal(doc); err == nil {
		fields[fieldPayload] = string(data)
	}

	return fields
}

// parseRecordFields hydrates a record from its stored hash fields.
func parseRecordFields(id string, fields map[string]string) (record.Record, error) {
	raw, ok := fields[fieldPayload]
	if !ok {
		return record.Record{}, fmt.Errorf("record %s: missing payload field", id)
	}
	var doc recordDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return record.Record{}, fmt.Errorf("record %s: unmarshal payload: %w", id, err)
	}

	var vector []float32
	if blob, ok := fields[schema.FieldEmbedding]; ok {
		vector = bytesToVector(blob)
	}
	var extractedKw, extractedFt []string
	if v := fields[schema.FieldExtractedKeyword]; v != "" {
		extractedKw = strings.Split(v, tagSeparator)
	}
	if v := fields[schema.FieldExtractedFiletype]; v != "" {
		extractedFt = strings.Split(v, tagSeparator)
	}

	return record.Reconstruct(
		doc.ID, doc.Title, doc.Description,
		doc.Keywords, doc.Formats,
		doc.Source, doc.Organisation,
		doc.Geometry, doc.Temporal,
		doc.Online, doc.Ontology,
		vector, extractedKw, extractedFt,
	), nil
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatEpoch(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// vectorToBytes serializes []float32 to the little-endian blob format the
// vector index stores.
func vectorToBytes(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// bytesToVector deserializes a binary string to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
