package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/grag/internal/models"
	"github.com/xhad/grag/internal/types"
	"github.com/xhad/grag/pkg/chunker"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

type recordingStore struct {
	mu        sync.Mutex
	writes    map[string][]models.Chunk
	createErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{writes: make(map[string][]models.Chunk)}
}

func (s *recordingStore) CreateDocument(ctx context.Context, doc models.Document, chunks []models.Chunk) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[doc.ID] = chunks
	return nil
}

func (s *recordingStore) DeleteDocument(ctx context.Context, id string) error { return nil }
func (s *recordingStore) VectorSearch(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error) {
	return nil, nil
}
func (s *recordingStore) KeywordSearch(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	return nil, nil
}
func (s *recordingStore) CountDocuments(ctx context.Context) (int64, error) { return 0, nil }
func (s *recordingStore) CountChunks(ctx context.Context) (int64, error)    { return 0, nil }
func (s *recordingStore) Close(ctx context.Context) error                   { return nil }

func newPipeline(store types.GraphStore, embedder types.Embedder) *Pipeline {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 40, ChunkOverlap: 10})
	return NewWithConfig(store, embedder, c, PipelineConfig{})
}

func TestAddDocument(t *testing.T) {
	store := newRecordingStore()
	p := newPipeline(store, &fakeEmbedder{})

	id, err := p.AddDocument(context.Background(), models.Document{
		Content:  "Neo4j is a graph database. It stores nodes and relationships.",
		Source:   "docs/neo4j.md",
		Category: "databases",
		Metadata: map[string]interface{}{"author": "jane", "year": 2024},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	chunks := store.writes[id]
	require.GreaterOrEqual(t, len(chunks), 2)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Len(t, c.Embedding, 3)
	}
}

func TestAddDocument_RejectsNestedMetadata(t *testing.T) {
	store := newRecordingStore()
	p := newPipeline(store, &fakeEmbedder{})

	_, err := p.AddDocument(context.Background(), models.Document{
		Content:  "some content",
		Metadata: map[string]interface{}{"tags": []string{"a", "b"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tags")
	assert.Empty(t, store.writes, "nothing may be written for an invalid document")
}

func TestAddDocument_RejectsNestedMap(t *testing.T) {
	p := newPipeline(newRecordingStore(), &fakeEmbedder{})

	_, err := p.AddDocument(context.Background(), models.Document{
		Content:  "some content",
		Metadata: map[string]interface{}{"inner": map[string]interface{}{"a": 1}},
	})
	assert.Error(t, err)
}

func TestAddDocument_EmptyContentIsValid(t *testing.T) {
	store := newRecordingStore()
	embedder := &fakeEmbedder{}
	p := newPipeline(store, embedder)

	id, err := p.AddDocument(context.Background(), models.Document{Content: "   "})
	require.NoError(t, err)

	assert.Empty(t, store.writes[id])
	assert.Zero(t, embedder.calls, "no embedding request for an empty document")
}

func TestAddDocument_EmbeddingFailureAbortsBeforeWrite(t *testing.T) {
	store := newRecordingStore()
	p := newPipeline(store, &fakeEmbedder{err: types.ErrEmbeddingFailed})

	_, err := p.AddDocument(context.Background(), models.Document{
		Content: "Neo4j is a graph database. It stores nodes and relationships.",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbeddingFailed)
	assert.Empty(t, store.writes)
}

func TestAddDocument_StoreFailurePropagates(t *testing.T) {
	store := newRecordingStore()
	store.createErr = types.ErrIngestionFailed
	p := newPipeline(store, &fakeEmbedder{})

	_, err := p.AddDocument(context.Background(), models.Document{Content: "content"})
	assert.ErrorIs(t, err, types.ErrIngestionFailed)
}

func TestAddDocument_KeepsCallerID(t *testing.T) {
	store := newRecordingStore()
	p := newPipeline(store, &fakeEmbedder{})

	id, err := p.AddDocument(context.Background(), models.Document{
		ID:      "fixed-id",
		Content: "content",
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)
}

func TestAddDocuments(t *testing.T) {
	store := newRecordingStore()
	p := newPipeline(store, &fakeEmbedder{})

	docs := []models.Document{
		{Content: "first document about graphs"},
		{Content: "second document about search"},
		{Content: "third document about caching"},
	}

	ids, err := p.AddDocuments(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	for _, id := range ids {
		assert.NotEmpty(t, id)
		assert.Contains(t, store.writes, id)
	}
}

func TestAddDocuments_FirstErrorWins(t *testing.T) {
	store := newRecordingStore()
	p := newPipeline(store, &fakeEmbedder{err: errors.New("embedder offline")})

	_, err := p.AddDocuments(context.Background(), []models.Document{
		{Content: "one"}, {Content: "two"},
	})
	assert.Error(t, err)
}
