package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/memora-ai/memora/internal/api/handlers"
	appMiddleware "github.com/memora-ai/memora/internal/api/middlewares"
	"github.com/memora-ai/memora/internal/config"
	db "github.com/memora-ai/memora/internal/core/database"
	"github.com/memora-ai/memora/internal/core/history"
	"github.com/memora-ai/memora/internal/core/index"
	"github.com/memora-ai/memora/internal/core/ingest"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, dbClient *db.Client, orc *ingest.Orchestrator, ix *index.Indexer, rec *history.Recorder, log zerolog.Logger) *Server {
	authHandler := handlers.NewAuthHandler(dbClient, cfg.JWTSecret)
	docHandler := handlers.NewDocumentHandler(orc, ix, log)
	historyHandler := handlers.NewHistoryHandler(rec)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
			protected.Post("/documents/upload", docHandler.UploadDocument)
			protected.Post("/documents/{conversationID}/search", docHandler.Search)
			protected.Delete("/documents/{conversationID}", docHandler.DeleteMemory)
			protected.Get("/history/{conversationID}", historyHandler.GetHistory)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
