package record

import (
	"net/url"
	"path"
	"strings"
)

// knownFiletypes limits file-type extraction to extensions that actually
// designate dataset payloads; everything else (html, php, cgi) is noise.
var knownFiletypes = map[string]bool{
	"csv": true, "json": true, "geojson": true, "xml": true,
	"nc": true, "netcdf": true, "hdf": true, "hdf5": true, "h5": true,
	"tif": true, "tiff": true, "geotiff": true, "grib": true, "grib2": true,
	"zip": true, "gz": true, "tar": true, "parquet": true,
	"shp": true, "kml": true, "kmz": true, "txt": true, "pdf": true,
}

// ExtractKeywords derives normalized keyword tags from the declared keywords:
// lowercased, trimmed, underscores replaced, duplicates removed.
func ExtractKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		norm := strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(kw, "_", " "))), " ")
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}

// ExtractFiletypes derives file-type tags from online resource URLs.
func ExtractFiletypes(online []OnlineResource) []string {
	seen := make(map[string]bool)
	var out []string
	for _, res := range online {
		ft := filetypeFromURL(res.URL)
		if ft == "" || seen[ft] {
			continue
		}
		seen[ft] = true
		out = append(out, ft)
	}
	return out
}

func filetypeFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	if !knownFiletypes[ext] {
		return ""
	}
	return ext
}
