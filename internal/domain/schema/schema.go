// Package schema implements the declarative field-type schema that drives
// both index-mapping creation and ingestion-time document validation.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/caelum-cloud/geosearch/internal/domain"
)

// FieldType is the declared type of a schema field.
type FieldType string

// Schema field types.
const (
	TypeText     FieldType = "text"
	TypeKeyword  FieldType = "keyword"
	TypeDate     FieldType = "date"
	TypeDouble   FieldType = "double"
	TypeLong     FieldType = "long"
	TypeBool     FieldType = "bool"
	TypeGeoShape FieldType = "geo_shape"
	TypeNested   FieldType = "nested"
)

var validTypes = map[FieldType]bool{
	TypeText: true, TypeKeyword: true, TypeDate: true,
	TypeDouble: true, TypeLong: true, TypeBool: true,
	TypeGeoShape: true, TypeNested: true,
}

// Field describes one declared field.
type Field struct {
	Type    FieldType `yaml:"type"`
	Indexed bool      `yaml:"indexed"`
	Format  string    `yaml:"format,omitempty"`
}

// Schema maps field paths (dot-separated for nested objects) to field declarations.
// Resolved once at load time; never re-parsed per document.
type Schema struct {
	fields map[string]Field
	// paths sorted for deterministic iteration
	paths []string
}

type schemaFile struct {
	Fields map[string]Field `yaml:"fields"`
}

// Parse reads a YAML schema definition. Malformed input or unknown field
// types fail with domain.ErrSchemaParse.
func Parse(data []byte) (*Schema, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSchemaParse, err)
	}
	if len(f.Fields) == 0 {
		return nil, fmt.Errorf("%w: schema declares no fields", domain.ErrSchemaParse)
	}

	for path, fld := range f.Fields {
		if path == "" {
			return nil, fmt.Errorf("%w: empty field path", domain.ErrSchemaParse)
		}
		if strings.HasPrefix(path, "_") {
			return nil, fmt.Errorf("%w: field %q: leading underscore is reserved for system fields",
				domain.ErrSchemaParse, path)
		}
		if !validTypes[fld.Type] {
			return nil, fmt.Errorf("%w: field %q: unknown type %q", domain.ErrSchemaParse, path, fld.Type)
		}
		// A nested leaf requires its parent to be declared nested.
		if parent, _, ok := strings.Cut(path, "."); ok {
			p, declared := f.Fields[parent]
			if !declared || p.Type != TypeNested {
				return nil, fmt.Errorf("%w: field %q: parent %q is not declared as nested",
					domain.ErrSchemaParse, path, parent)
			}
		}
	}

	paths := make([]string, 0, len(f.Fields))
	for path := range f.Fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return &Schema{fields: f.Fields, paths: paths}, nil
}

// FieldAt returns the declaration for a field path.
func (s *Schema) FieldAt(path string) (Field, bool) {
	f, ok := s.fields[path]
	return f, ok
}

// Paths returns all declared field paths in sorted order.
func (s *Schema) Paths() []string { return s.paths }

// Len returns the number of declared fields.
func (s *Schema) Len() int { return len(s.fields) }

// ValidateDocument checks a raw document against the schema: every present
// field must be declared and type-compatible; nested objects must have the
// declared structural shape. Returns a domain.ValidationError on the first
// offending field.
func (s *Schema) ValidateDocument(doc map[string]any) error {
	if _, ok := doc["id"]; !ok {
		return domain.NewValidationError("id", "missing required field")
	}
	return s.validateObject("", doc)
}

func (s *Schema) validateObject(prefix string, obj map[string]any) error {
	for key, val := range obj {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if strings.HasPrefix(key, "_") {
			return domain.NewValidationError(path, "system fields cannot be supplied by clients")
		}
		fld, declared := s.fields[path]
		if !declared {
			return domain.NewValidationError(path, "field not declared in schema")
		}
		if err := s.validateValue(path, fld, val); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) validateValue(path string, fld Field, val any) error {
	if val == nil {
		return nil
	}

	switch fld.Type {
	case TypeText, TypeKeyword:
		return validateStringLike(path, val)
	case TypeDate:
		return validateDate(path, fld, val)
	case TypeDouble, TypeLong:
		return validateNumber(path, val)
	case TypeBool:
		if _, ok := val.(bool); !ok {
			return domain.NewValidationError(path, fmt.Sprintf("expected bool, got %T", val))
		}
	case TypeGeoShape:
		return validateGeoShape(path, val)
	case TypeNested:
		return s.validateNested(path, val)
	}
	return nil
}

// validateNested accepts an object or an array of objects and descends into each.
func (s *Schema) validateNested(path string, val any) error {
	switch v := val.(type) {
	case map[string]any:
		return s.validateObject(path, v)
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return domain.NewValidationError(path, fmt.Sprintf("nested array element must be an object, got %T", item))
			}
			if err := s.validateObject(path, obj); err != nil {
				return err
			}
		}
		return nil
	default:
		return domain.NewValidationError(path, fmt.Sprintf("expected object or array of objects, got %T", val))
	}
}

func validateStringLike(path string, val any) error {
	switch v := val.(type) {
	case string:
		return nil
	case []any:
		for _, item := range v {
			if _, ok := item.(string); !ok {
				return domain.NewValidationError(path, fmt.Sprintf("expected string element, got %T", item))
			}
		}
		return nil
	default:
		return domain.NewValidationError(path, fmt.Sprintf("expected string or string array, got %T", val))
	}
}

func validateDate(path string, fld Field, val any) error {
	str, ok := val.(string)
	if !ok {
		return domain.NewValidationError(path, fmt.Sprintf("expected date string, got %T", val))
	}
	if _, err := ParseDate(str, fld.Format); err != nil {
		return domain.NewValidationError(path, err.Error())
	}
	return nil
}

func validateNumber(path string, val any) error {
	switch val.(type) {
	case float64, float32, int, int64, int32:
		return nil
	default:
		return domain.NewValidationError(path, fmt.Sprintf("expected number, got %T", val))
	}
}

func validateGeoShape(path string, val any) error {
	obj, ok := val.(map[string]any)
	if !ok {
		return domain.NewValidationError(path, fmt.Sprintf("expected bounding box object, got %T", val))
	}
	for _, corner := range []string{"west", "south", "east", "north"} {
		v, present := obj[corner]
		if !present {
			return domain.NewValidationError(path, "bounding box missing corner "+corner)
		}
		if err := validateNumber(path+"."+corner, v); err != nil {
			return err
		}
	}
	return nil
}

// dateLayouts tried in order when no explicit format is declared.
var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"}

// ParseDate parses a date string using the declared format, falling back to
// ISO8601 layouts.
func ParseDate(s, format string) (time.Time, error) {
	if format != "" {
		t, err := time.Parse(format, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q does not match format %q", s, format)
		}
		return t, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q is not ISO8601", s)
}
