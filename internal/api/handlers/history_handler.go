package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/memora-ai/memora/internal/core/history"
	"github.com/memora-ai/memora/internal/core/principal"
)

type HistoryHandler struct {
	recorder *history.Recorder
}

func NewHistoryHandler(rec *history.Recorder) *HistoryHandler {
	return &HistoryHandler{recorder: rec}
}

// GetHistory returns the conversation's audit trail, ascending by
// creation time. Non-owners get 403, never an empty list.
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "conversation id must be a valid UUID", http.StatusBadRequest)
		return
	}

	records, err := h.recorder.Load(r.Context(), conversationID, p)
	if err != nil {
		if errors.Is(err, history.ErrAccessDenied) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		http.Error(w, "could not load history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"records": records})
}
