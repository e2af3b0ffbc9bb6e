// Package bootstrap prepares the index before the service takes traffic:
// it loads the declarative schema, derives the index mapping, and ensures
// the index exists and is compatible.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/caelum-cloud/geosearch/internal/domain/schema"
)

// MappingEnsurer creates or verifies the index for a derived mapping.
type MappingEnsurer interface {
	EnsureMapping(ctx context.Context, m schema.Mapping) error
}

// Run loads the schema from schemaPath and ensures the index mapping with
// the given embedding dimensionality. Any failure here is startup-fatal:
// serving queries against a missing or incompatible index would return
// silently wrong results.
func Run(
	ctx context.Context,
	schemaPath string,
	dims int,
	ensurer MappingEnsurer,
	logger *zap.Logger,
) (*schema.Schema, error) {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", schemaPath, err)
	}

	s, err := schema.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", schemaPath, err)
	}

	mapping := s.DeriveMapping(dims)
	if err := ensurer.EnsureMapping(ctx, mapping); err != nil {
		return nil, fmt.Errorf("ensure index mapping: %w", err)
	}

	logger.Info("Index mapping ensured",
		zap.String("schema", schemaPath),
		zap.Int("declared_fields", s.Len()),
		zap.Int("mapped_fields", len(mapping.Fields)),
		zap.Int("dims", dims))
	return s, nil
}
