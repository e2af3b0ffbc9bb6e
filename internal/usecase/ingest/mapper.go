package ingest

import (
	"github.com/caelum-cloud/geosearch/internal/domain/record"
	"github.com/caelum-cloud/geosearch/internal/domain/schema"
)

// buildRecord converts a schema-validated raw document into the record
// aggregate. Types are already checked by schema validation, so the
// assertions here only guard shape, not correctness.
func buildRecord(doc map[string]any, s *schema.Schema) (record.Record, error) {
	var geometry *record.BoundingBox
	if g, ok := doc["geometry"].(map[string]any); ok {
		geometry = &record.BoundingBox{
			West:  asFloat(g["west"]),
			South: asFloat(g["south"]),
			East:  asFloat(g["east"]),
			North: asFloat(g["north"]),
		}
	}

	var temporal *record.TimeExtent
	if tm, ok := doc["temporal"].(map[string]any); ok {
		ext := record.TimeExtent{}
		if v, ok := tm["start"].(string); ok {
			ext.Start, _ = schema.ParseDate(v, formatAt(s, "temporal.start"))
		}
		if v, ok := tm["end"].(string); ok {
			ext.End, _ = schema.ParseDate(v, formatAt(s, "temporal.end"))
		}
		temporal = &ext
	}

	var source record.Source
	if src, ok := doc["source"].(map[string]any); ok {
		source.ID = asString(src["id"])
		source.Title = asString(src["title"])
	}

	var online []record.OnlineResource
	for _, item := range asObjects(doc["online"]) {
		online = append(online, record.OnlineResource{
			URL:      asString(item["url"]),
			Protocol: asString(item["protocol"]),
			Name:     asString(item["name"]),
		})
	}

	var ontology []record.OntologyTag
	for _, item := range asObjects(doc["ontology"]) {
		ontology = append(ontology, record.OntologyTag{
			Ontology:   asString(item["ontology"]),
			Concept:    asString(item["concept"]),
			Individual: asString(item["individual"]),
		})
	}

	return record.New(
		asString(doc["id"]),
		asString(doc["title"]),
		asString(doc["description"]),
		asStrings(doc["keyword"]),
		asStrings(doc["format"]),
		source,
		asString(doc["organisationName"]),
		geometry,
		temporal,
		online,
		ontology,
	)
}

func formatAt(s *schema.Schema, path string) string {
	if fld, ok := s.FieldAt(path); ok {
		return fld.Format
	}
	return ""
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asStrings accepts a single string or an array of strings.
func asStrings(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// asObjects accepts a single object or an array of objects.
func asObjects(v any) []map[string]any {
	switch val := v.(type) {
	case map[string]any:
		return []map[string]any{val}
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	default:
		return nil
	}
}

func asFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	default:
		return 0
	}
}
