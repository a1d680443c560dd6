package rag

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/grag/internal/models"
	"github.com/xhad/grag/pkg/chunker"
	"github.com/xhad/grag/pkg/ingest"
	"github.com/xhad/grag/pkg/search"
)

// wordEmbedder embeds text as indicator dimensions for a fixed vocabulary,
// so similarity behaves predictably in tests.
type wordEmbedder struct {
	vocab []string
}

func newWordEmbedder() *wordEmbedder {
	return &wordEmbedder{vocab: []string{"neo4j", "graph", "stores"}}
}

func (w *wordEmbedder) embed(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(w.vocab))
	for i, word := range w.vocab {
		if strings.Contains(lower, word) {
			vec[i] = 1
		}
	}
	return vec
}

func (w *wordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return w.embed(text), nil
}

func (w *wordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = w.embed(text)
	}
	return vectors, nil
}

func (w *wordEmbedder) Dimensions() int { return len(w.vocab) }

// memoryStore is an in-memory GraphStore good enough for ranking tests:
// vector search scores by dot product, keyword search by term overlap.
type memoryStore struct {
	mu         sync.Mutex
	docs       map[string][]models.Chunk
	vectorErr  error
	keywordErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: make(map[string][]models.Chunk)}
}

func (s *memoryStore) CreateDocument(ctx context.Context, doc models.Document, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = chunks
	return nil
}

func (s *memoryStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *memoryStore) VectorSearch(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error) {
	if s.vectorErr != nil {
		return nil, s.vectorErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var scored []models.ScoredChunk
	for docID, chunks := range s.docs {
		for _, c := range chunks {
			var dot float64
			for i := range embedding {
				if i < len(c.Embedding) {
					dot += float64(embedding[i]) * float64(c.Embedding[i])
				}
			}
			if dot > 0 {
				scored = append(scored, models.ScoredChunk{
					Text: c.Text, DocumentID: docID, ChunkIndex: c.Index, Score: dot / float64(len(embedding)),
				})
			}
		}
	}
	sortAndTrim(&scored, k)
	return scored, nil
}

func (s *memoryStore) KeywordSearch(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	if s.keywordErr != nil {
		return nil, s.keywordErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	terms := strings.Fields(strings.ToLower(query))
	var scored []models.ScoredChunk
	for docID, chunks := range s.docs {
		for _, c := range chunks {
			lower := strings.ToLower(c.Text)
			var hits float64
			for _, term := range terms {
				if strings.Contains(lower, strings.Trim(term, "?.,!")) {
					hits++
				}
			}
			if hits > 0 {
				scored = append(scored, models.ScoredChunk{
					Text: c.Text, DocumentID: docID, ChunkIndex: c.Index, Score: hits,
				})
			}
		}
	}
	sortAndTrim(&scored, k)
	return scored, nil
}

func sortAndTrim(scored *[]models.ScoredChunk, k int) {
	sort.Slice(*scored, func(i, j int) bool { return (*scored)[i].Score > (*scored)[j].Score })
	if len(*scored) > k {
		*scored = (*scored)[:k]
	}
}

func (s *memoryStore) CountDocuments(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.docs)), nil
}

func (s *memoryStore) CountChunks(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, chunks := range s.docs {
		n += int64(len(chunks))
	}
	return n, nil
}

func (s *memoryStore) Close(ctx context.Context) error { return nil }

type staticGenerator struct {
	answer string
	err    error
	calls  int
}

func (g *staticGenerator) Generate(ctx context.Context, question, contextText string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func newTestEngine(store *memoryStore, generator *staticGenerator) *Engine {
	embedder := newWordEmbedder()
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 40, ChunkOverlap: 10})
	searcher := search.NewWithConfig(store, embedder, search.SearchConfig{AllowDegraded: true})
	pipeline := ingest.NewWithConfig(store, embedder, c, ingest.PipelineConfig{})

	if generator == nil {
		return NewWithConfig(store, searcher, pipeline, nil, EngineConfig{CacheCapacity: 8})
	}
	return NewWithConfig(store, searcher, pipeline, generator, EngineConfig{CacheCapacity: 8})
}

func TestEngine_IngestThenQuery(t *testing.T) {
	store := newMemoryStore()
	generator := &staticGenerator{answer: "Neo4j is a graph database."}
	e := newTestEngine(store, generator)

	ctx := context.Background()
	_, err := e.AddDocument(ctx, models.Document{
		Content: "Neo4j is a graph database. It stores nodes and relationships.",
		Source:  "docs/neo4j.md",
	})
	require.NoError(t, err)

	opts := e.Options()
	opts.K = 1

	result, err := e.Query(ctx, "What is Neo4j?", opts)
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	assert.Contains(t, result.Sources[0].Text, "graph database")
	assert.Equal(t, "Neo4j is a graph database.", result.Answer)
	assert.False(t, result.CacheHit)
	assert.False(t, result.Degraded)
}

func TestEngine_SecondQueryHitsCache(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(store, &staticGenerator{answer: "answer"})

	ctx := context.Background()
	_, err := e.AddDocument(ctx, models.Document{
		Content: "Neo4j is a graph database. It stores nodes and relationships.",
	})
	require.NoError(t, err)

	first, err := e.Query(ctx, "What is Neo4j?", e.Options())
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	// Same question with different whitespace and case folds to the same key.
	second, err := e.Query(ctx, "  what IS neo4j? ", e.Options())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Sources, second.Sources)
}

func TestEngine_DefaultedOptionsShareCacheKey(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(store, nil)

	ctx := context.Background()
	_, err := e.AddDocument(ctx, models.Document{
		Content: "Neo4j is a graph database. It stores nodes and relationships.",
	})
	require.NoError(t, err)

	// Explicit defaults and a request leaving K and Mode to be defaulted
	// are the same question and must share one cache entry.
	explicit, err := e.Query(ctx, "What is Neo4j?", e.Options())
	require.NoError(t, err)
	assert.False(t, explicit.CacheHit)
	assert.Equal(t, search.ModeHybrid, explicit.Mode)

	defaulted, err := e.Query(ctx, "What is Neo4j?", search.Options{Alpha: 0.5})
	require.NoError(t, err)
	assert.True(t, defaulted.CacheHit)
	assert.Equal(t, search.ModeHybrid, defaulted.Mode, "cache hits report the resolved mode")
	assert.Equal(t, explicit.Sources, defaulted.Sources)
}

func TestEngine_GeneratorFailureStillReturnsSources(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(store, &staticGenerator{err: errors.New("model offline")})

	ctx := context.Background()
	_, err := e.AddDocument(ctx, models.Document{
		Content: "Neo4j is a graph database. It stores nodes and relationships.",
	})
	require.NoError(t, err)

	result, err := e.Query(ctx, "What is Neo4j?", e.Options())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Sources)
	assert.Empty(t, result.Answer)
}

func TestEngine_DegradedResultsAreNotCached(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(store, nil)

	ctx := context.Background()
	_, err := e.AddDocument(ctx, models.Document{
		Content: "Neo4j is a graph database. It stores nodes and relationships.",
	})
	require.NoError(t, err)

	store.keywordErr = errors.New("fulltext index offline")
	degraded, err := e.Query(ctx, "What is Neo4j?", e.Options())
	require.NoError(t, err)
	assert.True(t, degraded.Degraded)

	// After the leg recovers the same question runs a fresh search.
	store.keywordErr = nil
	healthy, err := e.Query(ctx, "What is Neo4j?", e.Options())
	require.NoError(t, err)
	assert.False(t, healthy.CacheHit)
	assert.False(t, healthy.Degraded)
}

func TestEngine_DeleteDocumentPurgesCache(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(store, nil)

	ctx := context.Background()
	id, err := e.AddDocument(ctx, models.Document{
		Content: "Neo4j is a graph database. It stores nodes and relationships.",
	})
	require.NoError(t, err)

	_, err = e.Query(ctx, "What is Neo4j?", e.Options())
	require.NoError(t, err)

	require.NoError(t, e.DeleteDocument(ctx, id))

	result, err := e.Query(ctx, "What is Neo4j?", e.Options())
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
	assert.Empty(t, result.Sources)
}

func TestEngine_Stats(t *testing.T) {
	store := newMemoryStore()
	e := newTestEngine(store, nil)

	ctx := context.Background()
	_, err := e.AddDocument(ctx, models.Document{
		Content: "Neo4j is a graph database. It stores nodes and relationships.",
	})
	require.NoError(t, err)

	_, err = e.Query(ctx, "What is Neo4j?", e.Options())
	require.NoError(t, err)
	_, err = e.Query(ctx, "What is Neo4j?", e.Options())
	require.NoError(t, err)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Documents)
	assert.GreaterOrEqual(t, stats.Chunks, int64(2))
	assert.Equal(t, int64(2), stats.Queries)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.InDelta(t, 0.5, stats.CacheHitRate, 1e-9)
	assert.Equal(t, 1, stats.CacheSize)
}
