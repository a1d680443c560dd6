package rag

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xhad/grag/internal/models"
	"github.com/xhad/grag/internal/types"
	"github.com/xhad/grag/pkg/cache"
	"github.com/xhad/grag/pkg/ingest"
	"github.com/xhad/grag/pkg/search"
	"go.uber.org/zap"
)

type EngineConfig struct {
	CacheCapacity int
	Logger        *zap.Logger

	// PoolInUse reports checked-out store sessions for Stats. Optional.
	PoolInUse func() int
}

// Engine is the front door of the retrieval system. It answers questions
// through the cache and the hybrid search engine, feeds documents through
// the ingestion pipeline, and optionally drafts an answer with a generator.
type Engine struct {
	config    EngineConfig
	store     types.GraphStore
	searcher  *search.Engine
	pipeline  *ingest.Pipeline
	generator types.Generator
	cache     *cache.QueryCache
	logger    *zap.Logger

	queries      atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	totalLatency atomic.Int64 // nanoseconds across all queries
}

// NewWithConfig assembles an Engine. The generator may be nil; queries then
// return sources without a drafted answer.
func NewWithConfig(store types.GraphStore, searcher *search.Engine, pipeline *ingest.Pipeline,
	generator types.Generator, config EngineConfig) *Engine {
	if config.CacheCapacity <= 0 {
		config.CacheCapacity = 100
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Engine{
		config:    config,
		store:     store,
		searcher:  searcher,
		pipeline:  pipeline,
		generator: generator,
		cache:     cache.NewWithConfig(cache.CacheConfig{Capacity: config.CacheCapacity}),
		logger:    config.Logger,
	}
}

// QueryResult is the full answer to one question.
type QueryResult struct {
	Sources  []models.ScoredChunk
	Answer   string
	CacheHit bool
	Degraded bool
	Mode     string
	Elapsed  time.Duration
}

// Options returns the default search options for this engine.
func (e *Engine) Options() search.Options {
	return e.searcher.Options()
}

// Query answers a question. Ranked sources are served from the cache when
// an equivalent request was answered before; answer generation runs on
// every call and its failure is logged, not returned, since the sources
// alone are a useful result.
func (e *Engine) Query(ctx context.Context, question string, opts search.Options) (*QueryResult, error) {
	start := time.Now()
	e.queries.Add(1)
	defer func() {
		e.totalLatency.Add(int64(time.Since(start)))
	}()

	// Resolve defaults before keying so a request relying on them and an
	// explicit equivalent fold to the same cache entry.
	defaults := e.searcher.Options()
	if opts.K <= 0 {
		opts.K = defaults.K
	}
	if opts.Mode == "" {
		opts.Mode = defaults.Mode
	}

	key := cache.NewKey(question, opts.K, opts.Mode, opts.Alpha, opts.Threshold)

	result := &QueryResult{Mode: opts.Mode}
	if sources, ok := e.cache.Get(key); ok {
		e.cacheHits.Add(1)
		result.Sources = sources
		result.CacheHit = true
	} else {
		e.cacheMisses.Add(1)

		searched, err := e.searcher.Search(ctx, question, opts)
		if err != nil {
			return nil, err
		}
		result.Sources = searched.Chunks
		result.Degraded = searched.Degraded
		result.Mode = searched.Mode

		// Degraded rankings are transient; caching them would keep
		// serving partial answers after the failed leg recovers.
		if !searched.Degraded {
			e.cache.Put(key, searched.Chunks)
		}
	}

	if e.generator != nil && len(result.Sources) > 0 {
		answer, err := e.generator.Generate(ctx, question, formatContext(result.Sources))
		if err != nil {
			e.logger.Warn("answer generation failed, returning sources only",
				zap.Error(err))
		} else {
			result.Answer = answer
		}
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

// AddDocument ingests one document and returns its assigned id.
func (e *Engine) AddDocument(ctx context.Context, doc models.Document) (string, error) {
	return e.pipeline.AddDocument(ctx, doc)
}

// AddDocuments ingests a batch of documents concurrently.
func (e *Engine) AddDocuments(ctx context.Context, docs []models.Document) ([]string, error) {
	return e.pipeline.AddDocuments(ctx, docs)
}

// DeleteDocument removes a document and its chunks, and drops the cache
// since any cached ranking may reference the deleted chunks.
func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	if err := e.store.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %v", id, err)
	}
	e.cache.Purge()
	return nil
}

// Stats is a point-in-time snapshot of engine activity.
type Stats struct {
	Documents      int64
	Chunks         int64
	Queries        int64
	CacheHits      int64
	CacheMisses    int64
	CacheHitRate   float64
	CacheSize      int
	SessionsInUse  int
	AverageLatency time.Duration
}

// Stats reports corpus size and query counters.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	documents, err := e.store.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %v", err)
	}
	chunks, err := e.store.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %v", err)
	}

	stats := &Stats{
		Documents:   documents,
		Chunks:      chunks,
		Queries:     e.queries.Load(),
		CacheHits:   e.cacheHits.Load(),
		CacheMisses: e.cacheMisses.Load(),
		CacheSize:   e.cache.Len(),
	}
	if stats.Queries > 0 {
		stats.AverageLatency = time.Duration(e.totalLatency.Load() / stats.Queries)
	}
	if lookups := stats.CacheHits + stats.CacheMisses; lookups > 0 {
		stats.CacheHitRate = float64(stats.CacheHits) / float64(lookups)
	}
	if e.config.PoolInUse != nil {
		stats.SessionsInUse = e.config.PoolInUse()
	}
	return stats, nil
}

// formatContext renders ranked chunks as the context block handed to the
// generator, best match first.
func formatContext(sources []models.ScoredChunk) string {
	var b strings.Builder
	for i, s := range sources {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fmt.Sprintf("[%d] %s", i+1, s.Text))
	}
	return b.String()
}
