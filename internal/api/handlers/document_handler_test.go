package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memora-ai/memora/internal/core"
	"github.com/memora-ai/memora/internal/core/index"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedTexts(_ context.Context, texts []string, _ int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (stubEmbedder) Model() string { return "stub-embed" }

func newDeleteRouter(ix *index.Indexer) *chi.Mux {
	h := NewDocumentHandler(nil, ix, zerolog.Nop())
	r := chi.NewRouter()
	r.Delete("/api/documents/{conversationID}", h.DeleteMemory)
	return r
}

func TestDeleteMemoryDropsCollection(t *testing.T) {
	backend := index.NewChromemIndex()
	ix := index.New(backend, stubEmbedder{}, 2, core.DistanceCosine, zerolog.Nop())
	conv := uuid.New()
	require.NoError(t, ix.EnsureCollection(context.Background(), conv.String()))

	r := newDeleteRouter(ix)
	req := httptest.NewRequest(http.MethodDelete, "/api/documents/"+conv.String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	exists, err := backend.CollectionExists(context.Background(), conv.String())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteMemoryRejectsBadID(t *testing.T) {
	backend := index.NewChromemIndex()
	ix := index.New(backend, stubEmbedder{}, 2, core.DistanceCosine, zerolog.Nop())

	r := newDeleteRouter(ix)
	req := httptest.NewRequest(http.MethodDelete, "/api/documents/not-a-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
