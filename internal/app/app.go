package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/memora-ai/memora/internal/config"
	"github.com/memora-ai/memora/internal/core"
	"github.com/memora-ai/memora/internal/core/annotate"
	"github.com/memora-ai/memora/internal/core/chunker"
	db "github.com/memora-ai/memora/internal/core/database"
	"github.com/memora-ai/memora/internal/core/extract"
	"github.com/memora-ai/memora/internal/core/history"
	"github.com/memora-ai/memora/internal/core/index"
	"github.com/memora-ai/memora/internal/core/ingest"
	"github.com/memora-ai/memora/internal/core/llm"
	"github.com/memora-ai/memora/internal/core/objectstore"
)

type App struct {
	DBClient *db.Client
	Embedder *llm.GeminiEmbedder
	LLM      *llm.GeminiLLM
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewClient(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.Info().Msg("database initialized and ready")

	objClient, err := objectstore.NewS3Client(appCtx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	var vectorIndex core.VectorIndex = dbClient
	if cfg.VectorBackend == "memory" {
		vectorIndex = index.NewChromemIndex()
	}
	indexer := index.New(vectorIndex, embedder, cfg.EmbedDim, core.DistanceCosine, log)

	ch := chunker.New()
	if err := ch.Setup(cfg.TokenizerModel); err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}

	annotator := annotate.New(llmProvider, log)
	extractor := extract.NewDocconvExtractor(false)
	recorder := history.NewRecorder(dbClient, log)

	orchestrator := ingest.NewOrchestrator(objClient, cfg.BucketName, extractor, ch, annotator, indexer, log)
	orchestrator.AddHook(history.NewEventRecorder(recorder))

	server := NewServer(cfg, dbClient, orchestrator, indexer, recorder, log)

	return &App{DBClient: dbClient, Embedder: embedder, LLM: llmProvider, Server: server}, nil
}

func (a *App) Close() {
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.LLM != nil {
		_ = a.LLM.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
