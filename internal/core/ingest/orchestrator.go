// Package ingest drives the document ingestion pipeline: store the raw
// file, extract text, chunk, annotate and index, with an audit hook
// fired after each side-effecting step.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/memora-ai/memora/internal/core"
	"github.com/memora-ai/memora/internal/core/annotate"
	"github.com/memora-ai/memora/internal/core/chunker"
	"github.com/memora-ai/memora/internal/core/index"
	"github.com/memora-ai/memora/internal/core/principal"
	"github.com/memora-ai/memora/internal/models"
)

// Stage names the pipeline step a failure occurred in.
type Stage string

const (
	StageUpload   Stage = "upload"
	StageExtract  Stage = "extract"
	StageChunk    Stage = "chunk"
	StageAnnotate Stage = "annotate"
	StageIndex    Stage = "index"
)

// StageError identifies which pipeline stage failed. Earlier stages may
// already have taken effect; the pipeline performs no rollback.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Event actions emitted to hooks.
const (
	ActionDocumentUploaded  = "DocumentUploaded"
	ActionEmbeddingsIndexed = "EmbeddingsIndexed"
)

// Event describes one completed (or failed) side-effecting step.
type Event struct {
	Action         string
	Message        string
	IsSuccess      bool
	ConversationID uuid.UUID
	SessionID      uuid.UUID
	FileID         uuid.UUID
	Principal      principal.Principal
	Metadata       map[string]string
}

// Hook receives pipeline events. Hooks run after the step they report
// on; a hook failure is logged and never fails the pipeline.
type Hook interface {
	OnEvent(ctx context.Context, ev Event) error
}

// UploadedDocument is the caller-supplied file to ingest.
type UploadedDocument struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Options tune one Add call. Zero values take the defaults.
type Options struct {
	MaxTokensPerChunk int       // default 200
	MaxSummaryChars   int       // default 100
	SessionID         uuid.UUID // default: fresh UUID per call
}

const (
	defaultMaxTokensPerChunk = 200
	defaultMaxSummaryChars   = 100
)

// Orchestrator sequences the ingestion pipeline. Steps 1-3 (store,
// extract, chunk) are strictly sequential; per-chunk annotate+index
// fans out and joins before Add returns.
type Orchestrator struct {
	storage   core.ObjectClient
	bucket    string
	extractor core.DocumentExtractor
	chunker   *chunker.Chunker
	annotator *annotate.Annotator
	indexer   *index.Indexer
	hooks     []Hook
	log       zerolog.Logger
}

func NewOrchestrator(
	storage core.ObjectClient,
	bucket string,
	extractor core.DocumentExtractor,
	ch *chunker.Chunker,
	an *annotate.Annotator,
	ix *index.Indexer,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		storage:   storage,
		bucket:    bucket,
		extractor: extractor,
		chunker:   ch,
		annotator: an,
		indexer:   ix,
		log:       log.With().Str("component", "ingest").Logger(),
	}
}

// AddHook registers an audit hook. Hooks fire in registration order.
func (o *Orchestrator) AddHook(h Hook) {
	o.hooks = append(o.hooks, h)
}

// Add ingests one document for a conversation and returns the file id
// shared by the blob, every indexed point and every audit record this
// call produces. On failure the returned error is a *StageError naming
// the failing step; state from earlier steps is left as is.
func (o *Orchestrator) Add(ctx context.Context, doc UploadedDocument, conversationID uuid.UUID, p principal.Principal, opts Options) (uuid.UUID, error) {
	if conversationID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("ingest: conversationId is required")
	}
	if len(doc.Data) == 0 {
		return uuid.Nil, fmt.Errorf("ingest: document is empty")
	}
	if opts.MaxTokensPerChunk == 0 {
		opts.MaxTokensPerChunk = defaultMaxTokensPerChunk
	}
	if opts.MaxSummaryChars == 0 {
		opts.MaxSummaryChars = defaultMaxSummaryChars
	}
	if opts.SessionID == uuid.Nil {
		opts.SessionID = uuid.New()
	}
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	fileID := uuid.New()
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	fileName := filepath.Base(doc.FileName)

	// Step 1: persist the raw file.
	key := objectKey(conversationID, fileID, fileName)
	blobURI, err := o.storage.UploadFile(ctx, o.bucket, key, bytes.NewReader(doc.Data), contentType)
	if err != nil {
		o.fire(ctx, Event{
			Action:         ActionDocumentUploaded,
			Message:        fmt.Sprintf("upload of %s failed: %v", fileName, err),
			IsSuccess:      false,
			ConversationID: conversationID,
			SessionID:      opts.SessionID,
			FileID:         fileID,
			Principal:      p,
		})
		return uuid.Nil, &StageError{Stage: StageUpload, Err: err}
	}
	o.fire(ctx, Event{
		Action:         ActionDocumentUploaded,
		Message:        fmt.Sprintf("uploaded %s", fileName),
		IsSuccess:      true,
		ConversationID: conversationID,
		SessionID:      opts.SessionID,
		FileID:         fileID,
		Principal:      p,
		Metadata:       map[string]string{"blobUri": blobURI, "mimeType": contentType},
	})

	// Step 2: read the stored document back and extract plain text.
	// Cancellation between steps must surface even when a collaborator
	// ignores its context.
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	stored, err := o.storage.GetFile(ctx, o.bucket, key)
	if err != nil {
		return uuid.Nil, &StageError{Stage: StageExtract, Err: err}
	}
	text, meta, err := o.extractor.Extract(ctx, stored, contentType)
	if err != nil {
		return uuid.Nil, &StageError{Stage: StageExtract, Err: err}
	}

	// Step 3: chunk.
	chunks, err := o.chunker.ChunkText(opts.MaxTokensPerChunk, text)
	if err != nil {
		return uuid.Nil, &StageError{Stage: StageChunk, Err: err}
	}

	// Step 4: annotate and index every chunk. Fan-out with a hard join;
	// one failing chunk fails the whole call and cancels the rest.
	collection := conversationID.String()
	common := models.Payload{
		Title:          strings.TrimSuffix(fileName, filepath.Ext(fileName)),
		Author:         meta["Author"],
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		UploadedBy:     p.Identity(),
		SourceFileName: fileName,
		ConversationID: conversationID.String(),
		BlobURI:        blobURI,
		FileID:         fileID.String(),
		MimeType:       contentType,
		EmbeddingModel: o.indexer.Model(),
		DataType:       models.DataTypeDocument,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tags, summary, err := o.annotator.Annotate(gctx, ch.Text, opts.MaxSummaryChars)
			if err != nil {
				return &StageError{Stage: StageAnnotate, Err: err}
			}
			ac := models.AnnotatedChunk{Chunk: ch, Tags: tags, Summary: summary}
			payload := common
			payload.Text = ac.Text
			payload.Tags = strings.Join(ac.Tags, ",")
			payload.Summary = ac.Summary
			payload.StartPosition = ac.StartOffset
			payload.EndPosition = ac.EndOffset

			point := models.IndexedPoint{ID: uuid.New(), Payload: payload}
			if err := o.indexer.Add(gctx, collection, &point); err != nil {
				return &StageError{Stage: StageIndex, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.fire(ctx, Event{
			Action:         ActionEmbeddingsIndexed,
			Message:        fmt.Sprintf("indexing %s failed: %v", fileName, err),
			IsSuccess:      false,
			ConversationID: conversationID,
			SessionID:      opts.SessionID,
			FileID:         fileID,
			Principal:      p,
			Metadata:       map[string]string{"memoryIndex": collection},
		})
		var se *StageError
		if errors.As(err, &se) {
			return uuid.Nil, se
		}
		// A bare context error means the call was canceled, not that a
		// stage failed.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return uuid.Nil, err
		}
		return uuid.Nil, &StageError{Stage: StageIndex, Err: err}
	}

	o.fire(ctx, Event{
		Action:         ActionEmbeddingsIndexed,
		Message:        fmt.Sprintf("indexed %d chunks of %s", len(chunks), fileName),
		IsSuccess:      true,
		ConversationID: conversationID,
		SessionID:      opts.SessionID,
		FileID:         fileID,
		Principal:      p,
		Metadata: map[string]string{
			"memoryIndex": collection,
			"chunks":      strconv.Itoa(len(chunks)),
			"status":      "Ended",
		},
	})

	o.log.Info().
		Str("file_id", fileID.String()).
		Str("conversation_id", conversationID.String()).
		Int("chunks", len(chunks)).
		Msg("document ingested")
	return fileID, nil
}

func (o *Orchestrator) fire(ctx context.Context, ev Event) {
	for _, h := range o.hooks {
		if err := h.OnEvent(ctx, ev); err != nil {
			o.log.Warn().Err(err).Str("action", ev.Action).Msg("audit hook failed")
		}
	}
}

// objectKey lays out blobs as conversations/<conv>/files/<file>/<name>.
func objectKey(conversationID, fileID uuid.UUID, fileName string) string {
	fileName = strings.ReplaceAll(strings.TrimSpace(fileName), " ", "_")
	return path.Join("conversations", conversationID.String(), "files", fileID.String(), fileName)
}
