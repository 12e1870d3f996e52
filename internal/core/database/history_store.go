package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/memora-ai/memora/internal/core"
	"github.com/memora-ai/memora/internal/models"
)

const historyContainer = "history_records"

var _ core.HistoryStore = (*Client)(nil)

// CreateRecord appends one history record. Records are never updated
// or deleted by the application.
func (c *Client) CreateRecord(ctx context.Context, rec *models.HistoryRecord) (*models.HistoryRecord, error) {
	if rec == nil {
		return nil, errors.New("nil history record")
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO ` + historyContainer + `
			(id, conversation_id, session_id, file_id, action, action_message, is_success, created_by, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err = c.db.QueryRowContext(ctx, q,
		rec.ID, rec.ConversationID, rec.SessionID, rec.FileID,
		rec.Action, rec.ActionMessage, rec.IsSuccess, rec.CreatedBy, rec.CreatedAt, meta,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert history record: %w", err)
	}
	return rec, nil
}

// QueryByConversationID returns the conversation's records ascending by
// creation time.
func (c *Client) QueryByConversationID(ctx context.Context, conversationID uuid.UUID) ([]models.HistoryRecord, error) {
	const q = `
		SELECT id, conversation_id, session_id, file_id, action, action_message, is_success, created_by, created_at, metadata
		FROM ` + historyContainer + `
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		var (
			rec  models.HistoryRecord
			meta []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.ConversationID, &rec.SessionID, &rec.FileID,
			&rec.Action, &rec.ActionMessage, &rec.IsSuccess, &rec.CreatedBy, &rec.CreatedAt, &meta,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
