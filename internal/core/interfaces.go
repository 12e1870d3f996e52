package core

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/memora-ai/memora/internal/models"
)

// ErrCollectionExists is returned by VectorIndex.CreateCollection when
// the collection is already present. Callers racing on creation treat
// it as success.
var ErrCollectionExists = errors.New("collection already exists")

// Distance selects the similarity metric a collection is created with.
type Distance string

const (
	DistanceCosine    Distance = "cosine"
	DistanceEuclidean Distance = "euclidean"
)

// EmbeddingProvider turns text into fixed-length vectors.
type EmbeddingProvider interface {
	// EmbedTexts embeds all texts in one batch, preserving order.
	// dim is advisory; providers with a fixed model dimension ignore it.
	EmbedTexts(ctx context.Context, texts []string, dim int) ([][]float32, error)
	// Model identifies the embedding model, stamped into point payloads.
	Model() string
}

// LLMProvider generates text completions. Used for both tag generation
// and summarization with different prompts.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteFile(ctx context.Context, bucket, key string) error
}

// DocumentExtractor extracts plain text (plus whatever metadata the
// format carries, e.g. Author) from raw document bytes, dispatched by
// MIME type.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (text string, meta map[string]string, err error)
}

// VectorIndex is the storage seam for embeddings. Implementations:
// Postgres/pgvector (durable) and chromem-go (in-memory).
type VectorIndex interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, dims int, distance Distance) error
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, collection string, points []models.IndexedPoint) error
	// Search returns up to limit points nearest to vector, descending by
	// score. filter keys are exact-match and AND-combined. An unknown
	// collection yields an empty result set.
	Search(ctx context.Context, collection string, vector []float32, filter map[string]string, limit int) ([]models.ScoredPoint, error)
}

// HistoryStore persists audit records. Append-only from the
// application's perspective.
type HistoryStore interface {
	CreateRecord(ctx context.Context, record *models.HistoryRecord) (*models.HistoryRecord, error)
	// QueryByConversationID returns records ascending by creation time.
	QueryByConversationID(ctx context.Context, conversationID uuid.UUID) ([]models.HistoryRecord, error)
}
