// Package history appends immutable audit records for pipeline events
// and gates reads on record ownership.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memora-ai/memora/internal/core"
	"github.com/memora-ai/memora/internal/core/ingest"
	"github.com/memora-ai/memora/internal/core/principal"
	"github.com/memora-ai/memora/internal/models"
)

// ErrAccessDenied is raised when a caller loads a conversation history
// they do not own. It is a distinct error kind, never flattened into an
// empty result.
var ErrAccessDenied = errors.New("you do not have access to this chat history")

// Recorder appends audit records and enforces the read-side ownership
// check.
type Recorder struct {
	store core.HistoryStore
	log   zerolog.Logger
}

func NewRecorder(store core.HistoryStore, log zerolog.Logger) *Recorder {
	return &Recorder{store: store, log: log.With().Str("component", "history").Logger()}
}

// Save stamps the record with the caller's identity and a creation time
// if unset, persists it and returns the stored record. Identity-bearing
// fields are validated, never defaulted.
func (r *Recorder) Save(ctx context.Context, rec models.HistoryRecord, p principal.Principal) (*models.HistoryRecord, error) {
	if rec.ConversationID == uuid.Nil {
		return nil, fmt.Errorf("history: conversationUuid is required")
	}
	if rec.SessionID == uuid.Nil {
		return nil, fmt.Errorf("history: sessionUuid is required")
	}
	if rec.Action == "" {
		return nil, fmt.Errorf("history: action is required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedBy = p.Identity()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}
	return r.store.CreateRecord(ctx, &rec)
}

// Load returns the conversation's records ascending by creation time.
// A conversation with no records yet is permitted (new conversation).
// Otherwise the first record's owner must match the caller, or be the
// system sentinel. Only the first record is inspected.
func (r *Recorder) Load(ctx context.Context, conversationID uuid.UUID, p principal.Principal) ([]models.HistoryRecord, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("history: conversationUuid is required")
	}
	recs, err := r.store.QueryByConversationID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("history: query conversation %s: %w", conversationID, err)
	}
	if len(recs) == 0 {
		return recs, nil
	}
	owner := recs[0].CreatedBy
	if owner != p.Identity() && owner != principal.System {
		return nil, ErrAccessDenied
	}
	return recs, nil
}

// EventRecorder adapts the Recorder into an ingest.Hook, mapping each
// pipeline event onto one history record.
type EventRecorder struct {
	recorder *Recorder
}

var _ ingest.Hook = (*EventRecorder)(nil)

func NewEventRecorder(r *Recorder) *EventRecorder {
	return &EventRecorder{recorder: r}
}

func (e *EventRecorder) OnEvent(ctx context.Context, ev ingest.Event) error {
	fileID := ev.FileID
	rec := models.HistoryRecord{
		ConversationID: ev.ConversationID,
		SessionID:      ev.SessionID,
		FileID:         &fileID,
		Action:         ev.Action,
		ActionMessage:  ev.Message,
		IsSuccess:      ev.IsSuccess,
		Metadata:       ev.Metadata,
	}
	if _, err := e.recorder.Save(ctx, rec, ev.Principal); err != nil {
		return fmt.Errorf("history: record event %s: %w", ev.Action, err)
	}
	return nil
}
