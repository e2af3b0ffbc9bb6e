package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/caelum-cloud/geosearch/internal/domain/search"
)

// buildFilter renders the structured filters into a RediSearch boolean
// expression: OR within a term field, AND across clauses. An empty result
// means "no pre-filter".
func buildFilter(f search.Filters) string {
	if f.IsEmpty() {
		return ""
	}

	var clauses []string

	// Deterministic clause order for testability.
	paths := make([]string, 0, len(f.Terms))
	for path := range f.Terms {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		values := f.Terms[path]
		if len(values) == 0 {
			continue
		}
		escaped := make([]string, len(values))
		for i, v := range values {
			escaped[i] = escapeTag(v)
		}
		clauses = append(clauses, fmt.Sprintf("@%s:{%s}", escapeAttr(path), strings.Join(escaped, "|")))
	}

	// A record matches the time filter when its extent overlaps the queried
	// range: start before the range ends and end after it starts.
	if f.TimeEnd != nil {
		clauses = append(clauses, fmt.Sprintf("@%s:[-inf %d]", escapeAttr(fieldTemporalStart), f.TimeEnd.Unix()))
	}
	if f.TimeStart != nil {
		clauses = append(clauses, fmt.Sprintf("@%s:[%d +inf]", escapeAttr(fieldTemporalEnd), f.TimeStart.Unix()))
	}

	// Box intersection: each record edge constrained against the opposite
	// query edge.
	if b := f.BBox; b != nil {
		clauses = append(clauses,
			fmt.Sprintf("@%s:[-inf %s]", escapeAttr(fieldGeometry+".west"), formatCoord(b.East)),
			fmt.Sprintf("@%s:[%s +inf]", escapeAttr(fieldGeometry+".east"), formatCoord(b.West)),
			fmt.Sprintf("@%s:[-inf %s]", escapeAttr(fieldGeometry+".south"), formatCoord(b.North)),
			fmt.Sprintf("@%s:[%s +inf]", escapeAttr(fieldGeometry+".north"), formatCoord(b.South)),
		)
	}

	return strings.Join(clauses, " ")
}

// escapeAttr escapes dots in attribute names so flattened paths like
// temporal.start parse as a single attribute reference.
func escapeAttr(path string) string {
	return strings.ReplaceAll(path, ".", "\\.")
}

var tagEscaper = strings.NewReplacer(
	" ", "\\ ", ",", "\\,", ".", "\\.", "<", "\\<", ">", "\\>", "{", "\\{", "}", "\\}",
	"[", "\\[", "]", "\\]", "\"", "\\\"", "'", "\\'", ":", "\\:", ";", "\\;",
	"!", "\\!", "@", "\\@", "#", "\\#", "$", "\\$", "%", "\\%", "^", "\\^",
	"&", "\\&", "*", "\\*", "(", "\\(", ")", "\\)", "-", "\\-", "+", "\\+",
	"=", "\\=", "~", "\\~", "|", "\\|", "/", "\\/",
)

// escapeTag escapes RediSearch special characters inside a TAG value.
func escapeTag(v string) string {
	return tagEscaper.Replace(v)
}
