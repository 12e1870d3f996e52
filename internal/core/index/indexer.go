// Package index embeds chunk text and maintains named vector
// collections through a pluggable VectorIndex backend.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memora-ai/memora/internal/core"
	"github.com/memora-ai/memora/internal/models"
)

// Indexer pairs an embedding provider with a vector index backend.
// Collections are created lazily with a fixed dimensionality and
// distance metric.
type Indexer struct {
	index    core.VectorIndex
	embedder core.EmbeddingProvider
	dims     int
	distance core.Distance
	log      zerolog.Logger
}

func New(idx core.VectorIndex, emb core.EmbeddingProvider, dims int, distance core.Distance, log zerolog.Logger) *Indexer {
	return &Indexer{
		index:    idx,
		embedder: emb,
		dims:     dims,
		distance: distance,
		log:      log.With().Str("component", "indexer").Logger(),
	}
}

// Model reports the embedding model identifier stamped into payloads.
func (ix *Indexer) Model() string {
	return ix.embedder.Model()
}

// EnsureCollection creates the named collection if absent. Concurrent
// callers racing on the same name all succeed: a lost check-then-create
// race surfaces as ErrCollectionExists from the backend and is treated
// as success.
func (ix *Indexer) EnsureCollection(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("index: collection name is empty")
	}
	exists, err := ix.index.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("index: check collection %q: %w", name, err)
	}
	if exists {
		return nil
	}
	if err := ix.index.CreateCollection(ctx, name, ix.dims, ix.distance); err != nil {
		if errors.Is(err, core.ErrCollectionExists) {
			return nil
		}
		return fmt.Errorf("index: create collection %q: %w", name, err)
	}
	ix.log.Info().Str("collection", name).Int("dims", ix.dims).Msg("collection created")
	return nil
}

// Add embeds the point's payload text and upserts it into the named
// collection, creating the collection on first use. The upsert is an
// overwrite-by-id; since point ids are fresh UUIDs, re-ingesting the
// same file adds new points instead of replacing earlier ones.
func (ix *Indexer) Add(ctx context.Context, collection string, point *models.IndexedPoint) error {
	if point == nil {
		return fmt.Errorf("index: nil point")
	}
	if point.Payload.Text == "" {
		return fmt.Errorf("index: point payload has no text")
	}
	if point.ID == uuid.Nil {
		point.ID = uuid.New()
	}
	if point.Payload.EmbeddingModel == "" {
		point.Payload.EmbeddingModel = ix.embedder.Model()
	}

	if err := ix.EnsureCollection(ctx, collection); err != nil {
		return err
	}

	vecs, err := ix.embedder.EmbedTexts(ctx, []string{point.Payload.Text}, ix.dims)
	if err != nil {
		return fmt.Errorf("index: embed point text: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("index: embed returned %d vectors, want 1", len(vecs))
	}
	point.Vector = vecs[0]

	if err := ix.index.Upsert(ctx, collection, []models.IndexedPoint{*point}); err != nil {
		return fmt.Errorf("index: upsert point %s: %w", point.ID, err)
	}
	return nil
}

// Search embeds each query independently and runs one nearest-neighbor
// search per query. filter keys are exact-match and AND-combined.
// Results keep the backend's descending-score order within a query and
// are concatenated in query order with no global re-ranking. An unknown
// collection yields an empty result set.
func (ix *Indexer) Search(ctx context.Context, collection string, queries []string, filter map[string]string, limit int) ([]models.ScoredPoint, error) {
	if limit < 1 {
		return nil, fmt.Errorf("index: limit must be >= 1, got %d", limit)
	}
	if len(queries) == 0 {
		return nil, nil
	}

	vecs, err := ix.embedder.EmbedTexts(ctx, queries, ix.dims)
	if err != nil {
		return nil, fmt.Errorf("index: embed queries: %w", err)
	}
	if len(vecs) != len(queries) {
		return nil, fmt.Errorf("index: embed returned %d vectors, want %d", len(vecs), len(queries))
	}

	var out []models.ScoredPoint
	for i, vec := range vecs {
		hits, err := ix.index.Search(ctx, collection, vec, filter, limit)
		if err != nil {
			return nil, fmt.Errorf("index: search query %d: %w", i, err)
		}
		out = append(out, hits...)
	}
	return out, nil
}

// DeleteCollection removes a collection and all of its points.
func (ix *Indexer) DeleteCollection(ctx context.Context, name string) error {
	return ix.index.DeleteCollection(ctx, name)
}
