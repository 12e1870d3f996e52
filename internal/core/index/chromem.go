package index

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/memora-ai/memora/internal/core"
	"github.com/memora-ai/memora/internal/models"
)

// ChromemIndex is an in-memory VectorIndex backed by chromem-go. It
// serves tests and single-node deployments that don't want Postgres
// (VECTOR_BACKEND=memory).
type ChromemIndex struct {
	db *chromem.DB

	mu       sync.Mutex
	versions map[string]map[string]uint64 // collection -> point id -> upsert count
}

var _ core.VectorIndex = (*ChromemIndex)(nil)

func NewChromemIndex() *ChromemIndex {
	return &ChromemIndex{
		db:       chromem.NewDB(),
		versions: make(map[string]map[string]uint64),
	}
}

// noEmbed satisfies chromem's embedding hook; all documents arrive with
// vectors already computed by the EmbeddingProvider.
func noEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("chromem index: documents must carry precomputed embeddings")
}

func (c *ChromemIndex) CollectionExists(_ context.Context, name string) (bool, error) {
	return c.db.GetCollection(name, noEmbed) != nil, nil
}

// CreateCollection ignores dims and distance: chromem stores vectors of
// any length and always ranks by cosine similarity.
func (c *ChromemIndex) CreateCollection(_ context.Context, name string, _ int, _ core.Distance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db.GetCollection(name, noEmbed) != nil {
		return core.ErrCollectionExists
	}
	if _, err := c.db.CreateCollection(name, nil, noEmbed); err != nil {
		return fmt.Errorf("chromem index: create collection: %w", err)
	}
	c.versions[name] = make(map[string]uint64)
	return nil
}

func (c *ChromemIndex) DeleteCollection(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.versions, name)
	if c.db.GetCollection(name, noEmbed) == nil {
		return nil
	}
	return c.db.DeleteCollection(name)
}

func (c *ChromemIndex) Upsert(ctx context.Context, collection string, points []models.IndexedPoint) error {
	col := c.db.GetCollection(collection, noEmbed)
	if col == nil {
		return fmt.Errorf("chromem index: unknown collection %q", collection)
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, chromem.Document{
			ID:        p.ID.String(),
			Metadata:  p.Payload.ToMap(),
			Embedding: p.Vector,
			Content:   p.Payload.Text,
		})
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem index: add documents: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	vers := c.versions[collection]
	if vers == nil {
		vers = make(map[string]uint64)
		c.versions[collection] = vers
	}
	for _, p := range points {
		vers[p.ID.String()]++
	}
	return nil
}

func (c *ChromemIndex) Search(ctx context.Context, collection string, vector []float32, filter map[string]string, limit int) ([]models.ScoredPoint, error) {
	col := c.db.GetCollection(collection, noEmbed)
	if col == nil {
		// Unknown collection is an empty result set, not an error.
		return nil, nil
	}

	// chromem rejects nResults larger than the collection size.
	n := limit
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem index: query: %w", err)
	}

	c.mu.Lock()
	vers := c.versions[collection]
	c.mu.Unlock()

	out := make([]models.ScoredPoint, 0, len(results))
	for _, r := range results {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("chromem index: bad point id %q: %w", r.ID, err)
		}
		out = append(out, models.ScoredPoint{
			ID:      id,
			Score:   r.Similarity,
			Version: vers[r.ID],
			Payload: models.PayloadFromMap(r.Metadata),
		})
	}
	return out, nil
}
