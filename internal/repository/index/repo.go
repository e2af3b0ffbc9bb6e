// Package index is the gateway to the record index: mapping lifecycle,
// record upserts, and the two retrieval legs (lexical and vector).
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/caelum-cloud/geosearch/internal/db"
	"github.com/caelum-cloud/geosearch/internal/domain"
	"github.com/caelum-cloud/geosearch/internal/domain/record"
	"github.com/caelum-cloud/geosearch/internal/domain/schema"
	"github.com/caelum-cloud/geosearch/internal/domain/search"
)

// store is the consumer interface for index operations (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) ([]db.HashUpsertOutcome, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchLexical(ctx context.Context, q *db.LexicalQuery) (*db.SearchResult, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Config carries the index naming and HNSW tuning parameters.
type Config struct {
	IndexName       string
	KeyPrefix       string
	HNSWM           int
	HNSWEFConstruct int
}

// Repo implements usecase/search.Repository and the index side of
// usecase/ingest.
type Repo struct {
	store store
	cfg   Config
}

// New creates an index repository.
func New(s store, cfg Config) *Repo {
	return &Repo{store: s, cfg: cfg}
}

// EnsureMapping creates the FT index for the derived mapping if it does not
// exist. A stored fingerprint detects an index created from an incompatible
// schema, which surfaces as domain.ErrSchemaConflict rather than silently
// serving wrong results.
func (r *Repo) EnsureMapping(ctx context.Context, m schema.Mapping) error {
	fp := m.Fingerprint()

	stored, err := r.store.Get(ctx, r.fingerprintKey())
	switch {
	case err == nil:
		if string(stored) != fp {
			return fmt.Errorf("index %s: %w", r.cfg.IndexName, domain.ErrSchemaConflict)
		}
		exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
		if err != nil {
			return fmt.Errorf("check index %s: %w", r.cfg.IndexName, err)
		}
		if exists {
			return nil
		}
		// Fingerprint survived but the index did not; recreate it.
	case errors.Is(err, db.ErrKeyNotFound):
		exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
		if err != nil {
			return fmt.Errorf("check index %s: %w", r.cfg.IndexName, err)
		}
		if exists {
			// An index of unknown provenance is indistinguishable from an
			// incompatible one.
			return fmt.Errorf("index %s exists without a mapping fingerprint: %w",
				r.cfg.IndexName, domain.ErrSchemaConflict)
		}
	default:
		return fmt.Errorf("get mapping fingerprint: %w", err)
	}

	def := r.buildIndexDefinition(m)
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.cfg.IndexName, err)
	}
	if err := r.store.Set(ctx, r.fingerprintKey(), []byte(fp)); err != nil {
		return fmt.Errorf("store mapping fingerprint: %w", err)
	}
	return nil
}

// Ready reports whether the index has been created.
func (r *Repo) Ready(ctx context.Context) (bool, error) {
	return r.store.IndexExists(ctx, r.cfg.IndexName)
}

// Upsert stores records as index hashes in one pipelined round-trip.
// The returned slice is positionally aligned with recs; a nil entry means
// the record was persisted.
func (r *Repo) Upsert(ctx context.Context, recs []record.Record) ([]error, error) {
	items := make([]db.HashSetItem, len(recs))
	for i := range recs {
		items[i] = db.HashSetItem{
			Key:    r.recordKey(recs[i].ID()),
			Fields: flattenRecord(&recs[i]),
		}
	}

	outcomes, err := r.store.HSetMulti(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("upsert %d records: %w", len(recs), err)
	}

	errs := make([]error, len(recs))
	for i, out := range outcomes {
		errs[i] = out.Err
	}
	return errs, nil
}

// Get returns a stored record by ID.
func (r *Repo) Get(ctx context.Context, id string) (record.Record, error) {
	fields, err := r.store.HGetAll(ctx, r.recordKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return record.Record{}, domain.ErrRecordNotFound
		}
		return record.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}
	if len(fields) == 0 {
		return record.Record{}, domain.ErrRecordNotFound
	}
	return parseRecordFields(id, fields)
}

// Delete removes a record from the index.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := r.recordKey(id)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Count returns the number of indexed records.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.cfg.IndexName, "*")
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// SearchLexical runs the BM25 leg over the search text field.
func (r *Repo) SearchLexical(ctx context.Context, q search.Query, limit int) ([]search.Candidate, error) {
	sr, err := r.store.SearchLexical(ctx, &db.LexicalQuery{
		IndexName:    r.cfg.IndexName,
		TextField:    schema.FieldSearchText,
		Query:        q.Text(),
		Filter:       buildFilter(q.Filters()),
		Limit:        limit,
		ReturnFields: candidateFields,
	})
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return parseCandidates(sr, r.keyPrefix(), legLexical), nil
}

// SearchSemantic runs the KNN leg over the embedding field.
func (r *Repo) SearchSemantic(ctx context.Context, q search.Query, vector []float32, k int) ([]search.Candidate, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.cfg.IndexName,
		VectorField:  schema.FieldEmbedding,
		Vector:       vector,
		K:            k,
		Filter:       buildFilter(q.Filters()),
		ReturnFields: candidateFields,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return parseCandidates(sr, r.keyPrefix(), legSemantic), nil
}

type leg int

const (
	legLexical leg = iota
	legSemantic
)

// candidateFields is fetched for every hit so the fused page can be built
// without a second round-trip.
var candidateFields = []string{fieldTitle, fieldDescription}

func parseCandidates(sr *db.SearchResult, prefix string, l leg) []search.Candidate {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	out := make([]search.Candidate, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		c := search.Candidate{
			ID:     strings.TrimPrefix(entry.Key, prefix),
			Fields: entry.Fields,
		}
		if l == legLexical {
			c.Lexical = entry.Score
		} else {
			c.Semantic = entry.Score
		}
		out = append(out, c)
	}
	return out
}

func (r *Repo) keyPrefix() string {
	return r.cfg.KeyPrefix + "record:"
}

func (r *Repo) recordKey(id string) string {
	return r.keyPrefix() + id
}

func (r *Repo) fingerprintKey() string {
	return r.cfg.KeyPrefix + "mapping:" + r.cfg.IndexName
}

func (r *Repo) buildIndexDefinition(m schema.Mapping) *db.IndexDefinition {
	def := &db.IndexDefinition{
		Name:     r.cfg.IndexName,
		Prefixes: []string{r.keyPrefix()},
	}
	for _, f := range m.Fields {
		fld := db.IndexField{Name: f.Path}
		switch f.Type {
		case schema.MappingText:
			fld.Type = db.IndexFieldText
		case schema.MappingTag:
			fld.Type = db.IndexFieldTag
			fld.TagSeparator = tagSeparator
		case schema.MappingNumeric:
			fld.Type = db.IndexFieldNumeric
		case schema.MappingVector:
			fld.Type = db.IndexFieldVector
			fld.VectorDims = m.Dims
			fld.HNSWM = r.cfg.HNSWM
			fld.HNSWEFConstruct = r.cfg.HNSWEFConstruct
		}
		def.Fields = append(def.Fields, fld)
	}
	return def
}
