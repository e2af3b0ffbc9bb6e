package search

// Candidate is a transient per-query ranking entry. It lives only for one
// query's fusion pass and is never persisted.
type Candidate struct {
	ID       string
	Lexical  float64 // engine-native relevance, unbounded >= 0
	Semantic float64 // cosine similarity
	Fused    float64
	// Fields carries the stored summary fields returned by retrieval
	// (title, description, source) for building the final page.
	Fields map[string]string
}

// Hit is one entry of the final ranked page.
type Hit struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Confident   bool    `json:"confident"`
}

// Page is the ranked result page returned to callers.
type Page struct {
	Total    int     `json:"numberOfResults"`
	MaxScore float64 `json:"maxScore"`
	Degraded bool    `json:"degraded"` // true when semantic retrieval was unavailable
	Hits     []Hit   `json:"data"`
}
