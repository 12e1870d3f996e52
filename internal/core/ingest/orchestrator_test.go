package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memora-ai/memora/internal/core"
	"github.com/memora-ai/memora/internal/core/annotate"
	"github.com/memora-ai/memora/internal/core/chunker"
	"github.com/memora-ai/memora/internal/core/index"
	"github.com/memora-ai/memora/internal/core/principal"
	"github.com/memora-ai/memora/internal/models"
)

// memStorage keeps blobs in a map, keyed by bucket/key.
type memStorage struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	uploadErr error
}

func newMemStorage() *memStorage {
	return &memStorage{blobs: map[string][]byte{}}
}

func (s *memStorage) UploadFile(_ context.Context, bucket, key string, body io.Reader, _ string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[bucket+"/"+key] = data
	return "mem://" + bucket + "/" + key, nil
}

func (s *memStorage) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[bucket+"/"+key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (s *memStorage) DeleteFile(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, bucket+"/"+key)
	return nil
}

func (s *memStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// textExtractor treats the stored bytes as the plain text itself.
type textExtractor struct {
	err error
}

func (e *textExtractor) Extract(_ context.Context, data []byte, _ string) (string, map[string]string, error) {
	if e.err != nil {
		return "", nil, e.err
	}
	return string(data), map[string]string{"Author": "tester"}, nil
}

// stubLLM answers the tag prompt with a fixed list and everything else
// with a fixed summary.
type stubLLM struct {
	summaryErr error
}

func (m *stubLLM) Generate(_ context.Context, systemPrompt, _ string) (string, error) {
	if strings.Contains(systemPrompt, "comma-separated") {
		return "alpha, beta", nil
	}
	if m.summaryErr != nil {
		return "", m.summaryErr
	}
	return "short summary", nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedTexts(_ context.Context, texts []string, _ int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (stubEmbedder) Model() string { return "stub-embed" }

// captureHook records every event it receives.
type captureHook struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (h *captureHook) OnEvent(_ context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return h.err
}

func (h *captureHook) all() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}

type fixture struct {
	orc     *Orchestrator
	storage *memStorage
	backend *index.ChromemIndex
	hook    *captureHook
	llm     *stubLLM
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	storage := newMemStorage()
	backend := index.NewChromemIndex()
	ix := index.New(backend, stubEmbedder{}, 2, core.DistanceCosine, zerolog.Nop())

	ch := chunker.New()
	ch.SetCounter(func(s string) int { return len(strings.Fields(s)) })

	llm := &stubLLM{}
	an := annotate.New(llm, zerolog.Nop())

	orc := NewOrchestrator(storage, "docs", &textExtractor{}, ch, an, ix, zerolog.Nop())
	hook := &captureHook{}
	orc.AddHook(hook)

	return &fixture{orc: orc, storage: storage, backend: backend, hook: hook, llm: llm}
}

func points(t *testing.T, backend *index.ChromemIndex, conversationID uuid.UUID, filter map[string]string) []models.ScoredPoint {
	t.Helper()
	hits, err := backend.Search(context.Background(), conversationID.String(), []float32{1, 1}, filter, 1000)
	require.NoError(t, err)
	return hits
}

func TestAddIndexesEveryChunk(t *testing.T) {
	f := newFixture(t)
	conv := uuid.New()
	p := principal.Principal{Name: "alice"}
	doc := UploadedDocument{
		FileName:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("one two three\nfour five six\nseven eight nine"),
	}

	fileID, err := f.orc.Add(context.Background(), doc, conv, p, Options{MaxTokensPerChunk: 3})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, fileID)

	hits := points(t, f.backend, conv, map[string]string{"FileId": fileID.String()})
	require.Len(t, hits, 3)

	seen := map[uuid.UUID]bool{}
	for _, h := range hits {
		assert.False(t, seen[h.ID], "point ids must be distinct")
		seen[h.ID] = true
		assert.Equal(t, fileID.String(), h.Payload.FileID)
		assert.Equal(t, conv.String(), h.Payload.ConversationID)
		assert.Equal(t, "notes", h.Payload.Title)
		assert.Equal(t, "tester", h.Payload.Author)
		assert.Equal(t, "alice", h.Payload.UploadedBy)
		assert.Equal(t, "alpha,beta", h.Payload.Tags)
		assert.Equal(t, "short summary", h.Payload.Summary)
		assert.Equal(t, "stub-embed", h.Payload.EmbeddingModel)
		assert.Equal(t, models.DataTypeDocument, h.Payload.DataType)
	}
}

func TestAddIsAdditiveAcrossIngestions(t *testing.T) {
	f := newFixture(t)
	conv := uuid.New()
	p := principal.Principal{Name: "alice"}
	doc := UploadedDocument{
		FileName:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("one two three\nfour five six"),
	}

	first, err := f.orc.Add(context.Background(), doc, conv, p, Options{MaxTokensPerChunk: 3})
	require.NoError(t, err)
	second, err := f.orc.Add(context.Background(), doc, conv, p, Options{MaxTokensPerChunk: 3})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// The second ingestion adds points next to the first one's.
	assert.Len(t, points(t, f.backend, conv, map[string]string{"FileId": first.String()}), 2)
	assert.Len(t, points(t, f.backend, conv, map[string]string{"FileId": second.String()}), 2)
	assert.Len(t, points(t, f.backend, conv, nil), 4)
}

func TestAddUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.storage.uploadErr = errors.New("bucket unavailable")
	conv := uuid.New()

	_, err := f.orc.Add(context.Background(), UploadedDocument{
		FileName: "notes.txt",
		Data:     []byte("some text"),
	}, conv, principal.Principal{Name: "alice"}, Options{})

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageUpload, se.Stage)

	events := f.hook.all()
	require.Len(t, events, 1)
	assert.Equal(t, ActionDocumentUploaded, events[0].Action)
	assert.False(t, events[0].IsSuccess)
	assert.Empty(t, points(t, f.backend, conv, nil))
}

func TestAddAnnotateFailureLeavesBlobInPlace(t *testing.T) {
	f := newFixture(t)
	f.llm.summaryErr = errors.New("completion unavailable")
	conv := uuid.New()

	_, err := f.orc.Add(context.Background(), UploadedDocument{
		FileName: "notes.txt",
		Data:     []byte("some text"),
	}, conv, principal.Principal{Name: "alice"}, Options{})

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageAnnotate, se.Stage)

	// No rollback: the blob from step 1 stays.
	assert.Equal(t, 1, f.storage.count())
}

func TestAddValidatesInput(t *testing.T) {
	f := newFixture(t)
	p := principal.Principal{Name: "alice"}

	_, err := f.orc.Add(context.Background(), UploadedDocument{Data: []byte("x")}, uuid.Nil, p, Options{})
	require.Error(t, err)

	_, err = f.orc.Add(context.Background(), UploadedDocument{FileName: "empty.txt"}, uuid.New(), p, Options{})
	require.Error(t, err)
}

func TestAddEmitsEvents(t *testing.T) {
	f := newFixture(t)
	conv := uuid.New()
	session := uuid.New()
	p := principal.Principal{Name: "alice"}

	fileID, err := f.orc.Add(context.Background(), UploadedDocument{
		FileName: "my report.txt",
		Data:     []byte("one two three"),
	}, conv, p, Options{SessionID: session})
	require.NoError(t, err)

	events := f.hook.all()
	require.Len(t, events, 2)

	uploaded := events[0]
	assert.Equal(t, ActionDocumentUploaded, uploaded.Action)
	assert.True(t, uploaded.IsSuccess)
	assert.Equal(t, conv, uploaded.ConversationID)
	assert.Equal(t, session, uploaded.SessionID)
	assert.Equal(t, fileID, uploaded.FileID)
	assert.Equal(t, p, uploaded.Principal)
	assert.Contains(t, uploaded.Metadata["blobUri"], "my_report.txt")

	indexed := events[1]
	assert.Equal(t, ActionEmbeddingsIndexed, indexed.Action)
	assert.True(t, indexed.IsSuccess)
	assert.Equal(t, conv.String(), indexed.Metadata["memoryIndex"])
	assert.Equal(t, "1", indexed.Metadata["chunks"])
	assert.Equal(t, "Ended", indexed.Metadata["status"])
}

func TestAddSurvivesHookFailure(t *testing.T) {
	f := newFixture(t)
	f.hook.err = errors.New("audit store down")
	conv := uuid.New()

	_, err := f.orc.Add(context.Background(), UploadedDocument{
		FileName: "notes.txt",
		Data:     []byte("one two three"),
	}, conv, principal.Principal{Name: "alice"}, Options{})
	require.NoError(t, err)
	assert.Len(t, points(t, f.backend, conv, nil), 1)
}

func TestAddCanceledContext(t *testing.T) {
	f := newFixture(t)
	conv := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orc.Add(ctx, UploadedDocument{
		FileName: "notes.txt",
		Data:     []byte("one two three"),
	}, conv, principal.Principal{Name: "alice"}, Options{})
	require.ErrorIs(t, err, context.Canceled)

	// Nothing ran: no blob, no points, no events.
	assert.Equal(t, 0, f.storage.count())
	assert.Empty(t, points(t, f.backend, conv, nil))
	assert.Empty(t, f.hook.all())
}

// cancelOnUpload cancels the pipeline's context once the upload event
// fires, before extraction starts.
type cancelOnUpload struct {
	cancel context.CancelFunc
}

func (h *cancelOnUpload) OnEvent(_ context.Context, ev Event) error {
	if ev.Action == ActionDocumentUploaded && ev.IsSuccess {
		h.cancel()
	}
	return nil
}

func TestAddCancellationMidPipeline(t *testing.T) {
	f := newFixture(t)
	conv := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orc.AddHook(&cancelOnUpload{cancel: cancel})

	_, err := f.orc.Add(ctx, UploadedDocument{
		FileName: "notes.txt",
		Data:     []byte("one two three"),
	}, conv, principal.Principal{Name: "alice"}, Options{})
	require.ErrorIs(t, err, context.Canceled)

	// The upload from step 1 stays; nothing was indexed.
	assert.Equal(t, 1, f.storage.count())
	assert.Empty(t, points(t, f.backend, conv, nil))
}

func TestObjectKeyLayout(t *testing.T) {
	conv := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	file := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	key := objectKey(conv, file, " annual report.pdf ")
	assert.Equal(t,
		"conversations/11111111-1111-1111-1111-111111111111/files/22222222-2222-2222-2222-222222222222/annual_report.pdf",
		key)
}
