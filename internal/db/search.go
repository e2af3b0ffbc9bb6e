package db

// LexicalQuery is the input for BM25 full-text search.
type LexicalQuery struct {
	IndexName    string
	TextField    string // field holding the searchable text
	Query        string // raw query terms (escaped by the store)
	Filter       string // prebuilt filter expression, may be empty
	Limit        int
	ReturnFields []string
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string
	Vector       []float32
	K            int
	Filter       string // prebuilt filter expression, may be empty
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// IndexFieldType enumerates FT index field types.
type IndexFieldType string

// Index field types.
const (
	IndexFieldText    IndexFieldType = "TEXT"
	IndexFieldTag     IndexFieldType = "TAG"
	IndexFieldNumeric IndexFieldType = "NUMERIC"
	IndexFieldVector  IndexFieldType = "VECTOR"
)

// IndexField describes one field of an FT index definition.
type IndexField struct {
	Name         string
	Type         IndexFieldType
	TagSeparator string
	// Vector parameters (Type == IndexFieldVector).
	VectorDims      int
	HNSWM           int
	HNSWEFConstruct int
}

// IndexDefinition is the input for CreateIndex.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}
