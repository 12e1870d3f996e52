package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Chunk is a contiguous slice of extracted document text.
// EndOffset is always StartOffset + len(Text); offsets across one
// chunking call are contiguous and non-overlapping.
type Chunk struct {
	Text        string
	StartOffset int
	EndOffset   int
}

// AnnotatedChunk is a Chunk plus generated metadata. It only exists
// in pipeline memory; the persisted form is an IndexedPoint.
type AnnotatedChunk struct {
	Chunk
	Tags    []string
	Summary string
}

// DataType classifies the origin of an indexed point.
type DataType string

const DataTypeDocument DataType = "Document"

// Payload is the metadata attached to every vector point and returned
// with search results. Key names are part of the stored format.
type Payload struct {
	Title          string   `json:"Title"`
	Author         string   `json:"Author"`
	Text           string   `json:"Text"`
	CreatedAt      string   `json:"CreatedAt"`
	UploadedBy     string   `json:"UploadedBy"`
	SourceFileName string   `json:"SourceFileName"`
	ConversationID string   `json:"ConversationId"`
	BlobURI        string   `json:"BlobUri"`
	FileID         string   `json:"FileId"`
	MimeType       string   `json:"MimeType"`
	Tags           string   `json:"Tags"`
	Summary        string   `json:"Summary"`
	EmbeddingModel string   `json:"EmbeddingModel"`
	StartPosition  int      `json:"StartPosition"`
	EndPosition    int      `json:"EndPosition"`
	DataType       DataType `json:"DataType"`
}

// ToMap flattens the payload into string keys for index backends that
// only store string metadata.
func (p Payload) ToMap() map[string]string {
	return map[string]string{
		"Title":          p.Title,
		"Author":         p.Author,
		"Text":           p.Text,
		"CreatedAt":      p.CreatedAt,
		"UploadedBy":     p.UploadedBy,
		"SourceFileName": p.SourceFileName,
		"ConversationId": p.ConversationID,
		"BlobUri":        p.BlobURI,
		"FileId":         p.FileID,
		"MimeType":       p.MimeType,
		"Tags":           p.Tags,
		"Summary":        p.Summary,
		"EmbeddingModel": p.EmbeddingModel,
		"StartPosition":  strconv.Itoa(p.StartPosition),
		"EndPosition":    strconv.Itoa(p.EndPosition),
		"DataType":       string(p.DataType),
	}
}

// PayloadFromMap is the inverse of ToMap. Missing numeric keys decode
// to zero.
func PayloadFromMap(m map[string]string) Payload {
	start, _ := strconv.Atoi(m["StartPosition"])
	end, _ := strconv.Atoi(m["EndPosition"])
	return Payload{
		Title:          m["Title"],
		Author:         m["Author"],
		Text:           m["Text"],
		CreatedAt:      m["CreatedAt"],
		UploadedBy:     m["UploadedBy"],
		SourceFileName: m["SourceFileName"],
		ConversationID: m["ConversationId"],
		BlobURI:        m["BlobUri"],
		FileID:         m["FileId"],
		MimeType:       m["MimeType"],
		Tags:           m["Tags"],
		Summary:        m["Summary"],
		EmbeddingModel: m["EmbeddingModel"],
		StartPosition:  start,
		EndPosition:    end,
		DataType:       DataType(m["DataType"]),
	}
}

// IndexedPoint is the unit stored in the vector index. The ID is fresh
// per point; repeated ingestion of the same file adds new points rather
// than replacing old ones.
type IndexedPoint struct {
	ID      uuid.UUID
	Vector  []float32
	Payload Payload
}

// ScoredPoint is one search hit: similarity score, point version and
// the full payload.
type ScoredPoint struct {
	ID      uuid.UUID
	Score   float32
	Version uint64
	Payload Payload
}

// HistoryRecord is an immutable audit entry for one pipeline event.
// Records are only ever appended, never updated.
type HistoryRecord struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	ConversationID uuid.UUID         `db:"conversation_id" json:"conversation_id"`
	SessionID      uuid.UUID         `db:"session_id" json:"session_id"`
	FileID         *uuid.UUID        `db:"file_id" json:"file_id,omitempty"`
	Action         string            `db:"action" json:"action"`
	ActionMessage  string            `db:"action_message" json:"action_message"`
	IsSuccess      bool              `db:"is_success" json:"is_success"`
	CreatedBy      string            `db:"created_by" json:"created_by"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	Metadata       map[string]string `db:"metadata" json:"metadata"`
}
