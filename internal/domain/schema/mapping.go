package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// System field names added to every mapping. The leading underscore keeps
// them out of the client-declared namespace.
const (
	FieldSearchText        = "_search_text"
	FieldEmbedding         = "_embedding"
	FieldExtractedKeyword  = "_extracted_keyword"
	FieldExtractedFiletype = "_extracted_filetype"
)

// MappingType is the index-native type of a mapped field.
type MappingType string

// Index field types.
const (
	MappingText    MappingType = "text"
	MappingTag     MappingType = "tag"
	MappingNumeric MappingType = "numeric"
	MappingVector  MappingType = "vector"
)

// MappingField is one indexed field of the derived mapping.
type MappingField struct {
	Path string
	Type MappingType
}

// Mapping is the index mapping derived from a schema: the user-declared
// indexed fields plus the fixed system fields.
type Mapping struct {
	Dims   int
	Fields []MappingField
}

// DeriveMapping converts the schema into an index mapping with embedding
// dimensionality dims. Date fields become numerics (epoch seconds),
// geo_shape fields expand into four corner numerics, nested containers are
// flattened into their leaf paths.
func (s *Schema) DeriveMapping(dims int) Mapping {
	m := Mapping{Dims: dims}

	for _, path := range s.paths {
		fld := s.fields[path]
		if !fld.Indexed || fld.Type == TypeNested {
			continue
		}
		switch fld.Type {
		case TypeText:
			m.Fields = append(m.Fields, MappingField{Path: path, Type: MappingText})
		case TypeKeyword, TypeBool:
			m.Fields = append(m.Fields, MappingField{Path: path, Type: MappingTag})
		case TypeDate, TypeDouble, TypeLong:
			m.Fields = append(m.Fields, MappingField{Path: path, Type: MappingNumeric})
		case TypeGeoShape:
			for _, corner := range []string{"west", "south", "east", "north"} {
				m.Fields = append(m.Fields, MappingField{Path: path + "." + corner, Type: MappingNumeric})
			}
		}
	}

	m.Fields = append(m.Fields,
		MappingField{Path: FieldSearchText, Type: MappingText},
		MappingField{Path: FieldExtractedKeyword, Type: MappingTag},
		MappingField{Path: FieldExtractedFiletype, Type: MappingTag},
		MappingField{Path: FieldEmbedding, Type: MappingVector},
	)

	return m
}

// Fingerprint returns a stable digest of the mapping, used to detect an
// existing index created from an incompatible schema.
func (m Mapping) Fingerprint() string {
	var b strings.Builder
	for _, f := range m.Fields {
		b.WriteString(f.Path)
		b.WriteByte('=')
		b.WriteString(string(f.Type))
		b.WriteByte(';')
	}
	if m.Dims > 0 {
		b.WriteString("dims=")
		b.WriteString(strconv.Itoa(m.Dims))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
