package index

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memora-ai/memora/internal/core"
	"github.com/memora-ai/memora/internal/models"
)

func chromemPoint(text string, vec []float32, fileID string) models.IndexedPoint {
	return models.IndexedPoint{
		ID:     uuid.New(),
		Vector: vec,
		Payload: models.Payload{
			Text:   text,
			FileID: fileID,
		},
	}
}

func TestChromemCreateCollection(t *testing.T) {
	c := NewChromemIndex()
	ctx := context.Background()

	exists, err := c.CollectionExists(ctx, "conv")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.CreateCollection(ctx, "conv", 2, core.DistanceCosine))

	exists, err = c.CollectionExists(ctx, "conv")
	require.NoError(t, err)
	assert.True(t, exists)

	err = c.CreateCollection(ctx, "conv", 2, core.DistanceCosine)
	require.ErrorIs(t, err, core.ErrCollectionExists)
}

func TestChromemUpsertAndSearchOrdering(t *testing.T) {
	c := NewChromemIndex()
	ctx := context.Background()
	require.NoError(t, c.CreateCollection(ctx, "conv", 2, core.DistanceCosine))

	near := chromemPoint("near", []float32{1, 0}, "f1")
	far := chromemPoint("far", []float32{0, 1}, "f2")
	require.NoError(t, c.Upsert(ctx, "conv", []models.IndexedPoint{near, far}))

	hits, err := c.Search(ctx, "conv", []float32{1, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, near.ID, hits[0].ID)
	assert.Equal(t, "near", hits[0].Payload.Text)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestChromemSearchFilter(t *testing.T) {
	c := NewChromemIndex()
	ctx := context.Background()
	require.NoError(t, c.CreateCollection(ctx, "conv", 2, core.DistanceCosine))

	a := chromemPoint("a", []float32{1, 0}, "f1")
	b := chromemPoint("b", []float32{0.9, 0.1}, "f2")
	require.NoError(t, c.Upsert(ctx, "conv", []models.IndexedPoint{a, b}))

	hits, err := c.Search(ctx, "conv", []float32{1, 0}, map[string]string{"FileId": "f2"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, b.ID, hits[0].ID)
	assert.Equal(t, "f2", hits[0].Payload.FileID)
}

func TestChromemSearchUnknownCollection(t *testing.T) {
	c := NewChromemIndex()
	hits, err := c.Search(context.Background(), "missing", []float32{1, 0}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemSearchLimitExceedsCount(t *testing.T) {
	c := NewChromemIndex()
	ctx := context.Background()
	require.NoError(t, c.CreateCollection(ctx, "conv", 2, core.DistanceCosine))

	p := chromemPoint("only", []float32{1, 0}, "f1")
	require.NoError(t, c.Upsert(ctx, "conv", []models.IndexedPoint{p}))

	hits, err := c.Search(ctx, "conv", []float32{1, 0}, nil, 50)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestChromemUpsertBumpsVersion(t *testing.T) {
	c := NewChromemIndex()
	ctx := context.Background()
	require.NoError(t, c.CreateCollection(ctx, "conv", 2, core.DistanceCosine))

	p := chromemPoint("v", []float32{1, 0}, "f1")
	require.NoError(t, c.Upsert(ctx, "conv", []models.IndexedPoint{p}))
	require.NoError(t, c.Upsert(ctx, "conv", []models.IndexedPoint{p}))

	hits, err := c.Search(ctx, "conv", []float32{1, 0}, nil, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(2), hits[0].Version)
}

func TestChromemDeleteCollection(t *testing.T) {
	c := NewChromemIndex()
	ctx := context.Background()
	require.NoError(t, c.CreateCollection(ctx, "conv", 2, core.DistanceCosine))
	require.NoError(t, c.DeleteCollection(ctx, "conv"))

	exists, err := c.CollectionExists(ctx, "conv")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting an absent collection is a no-op.
	require.NoError(t, c.DeleteCollection(ctx, "conv"))
}
