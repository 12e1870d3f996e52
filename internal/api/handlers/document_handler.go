package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memora-ai/memora/internal/core/index"
	"github.com/memora-ai/memora/internal/core/ingest"
	"github.com/memora-ai/memora/internal/core/principal"
)

type DocumentHandler struct {
	orchestrator *ingest.Orchestrator
	indexer      *index.Indexer
	log          zerolog.Logger
}

func NewDocumentHandler(orc *ingest.Orchestrator, ix *index.Indexer, log zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{orchestrator: orc, indexer: ix, log: log}
}

// UploadDocument ingests a multipart file into the conversation's
// memory index and returns the correlating file id.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(52 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	conversationID, err := uuid.Parse(r.FormValue("conversation_id"))
	if err != nil {
		http.Error(w, "conversation_id must be a valid UUID", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "could not read file", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	fileID, err := h.orchestrator.Add(ctx, ingest.UploadedDocument{
		FileName:    filepath.Base(header.Filename),
		ContentType: contentType,
		Data:        data,
	}, conversationID, p, ingest.Options{})
	if err != nil {
		var se *ingest.StageError
		if errors.As(err, &se) {
			h.log.Error().Err(err).Str("stage", string(se.Stage)).Msg("ingestion failed")
			http.Error(w, "ingestion failed at stage "+string(se.Stage), http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"file_id":         fileID.String(),
		"conversation_id": conversationID.String(),
	})
}

// DeleteMemory drops the conversation's memory index along with every
// point in it. The blobs in object storage are untouched.
func (h *DocumentHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "conversation id must be a valid UUID", http.StatusBadRequest)
		return
	}

	if err := h.indexer.DeleteCollection(r.Context(), conversationID.String()); err != nil {
		h.log.Error().Err(err).Str("conversation_id", conversationID.String()).Msg("delete memory failed")
		http.Error(w, "could not delete memory", http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type searchRequest struct {
	Queries []string          `json:"queries"`
	Filter  map[string]string `json:"filter,omitempty"`
	Limit   int               `json:"limit,omitempty"`
}

// Search embeds the query strings and returns ranked points from the
// conversation's collection.
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "conversation id must be a valid UUID", http.StatusBadRequest)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Queries) == 0 {
		http.Error(w, "at least one query is required", http.StatusBadRequest)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}

	points, err := h.indexer.Search(r.Context(), conversationID.String(), req.Queries, req.Filter, req.Limit)
	if err != nil {
		h.log.Error().Err(err).Msg("search failed")
		http.Error(w, "search failed", http.StatusBadGateway)
		return
	}

	type hit struct {
		ID      string  `json:"id"`
		Score   float32 `json:"score"`
		Version uint64  `json:"version"`
		Payload any     `json:"payload"`
	}
	out := make([]hit, 0, len(points))
	for _, pt := range points {
		out = append(out, hit{ID: pt.ID.String(), Score: pt.Score, Version: pt.Version, Payload: pt.Payload})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"results": out})
}
