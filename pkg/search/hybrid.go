package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xhad/grag/internal/models"
	"github.com/xhad/grag/internal/types"
	"go.uber.org/zap"
)

const (
	ModeHybrid  = "hybrid"
	ModeVector  = "vector"
	ModeKeyword = "keyword"
)

type SearchConfig struct {
	DefaultK      int
	DefaultAlpha  float64
	Threshold     float64
	AllowDegraded bool
	LegTimeout    time.Duration
	Logger        *zap.Logger
}

// Options selects how one search request is executed. Obtain a baseline
// from Engine.Options and override fields; a zero Alpha means the fused
// score is keyword-only, so it is never defaulted after that point.
type Options struct {
	K         int
	Alpha     float64
	Threshold float64
	Mode      string
}

// Result is a ranked answer to one search request. Degraded is set when one
// retrieval leg failed and the ranking was built from the surviving leg.
type Result struct {
	Chunks   []models.ScoredChunk
	Degraded bool
	Mode     string
	Elapsed  time.Duration
}

// Engine fuses vector-similarity and keyword retrieval over the graph
// store. The two legs run concurrently; their scores are combined as
// alpha*vector + (1-alpha)*keyword with a chunk missing from one leg
// contributing zero on that side.
type Engine struct {
	config   SearchConfig
	store    types.GraphStore
	embedder types.Embedder
	logger   *zap.Logger
}

func NewWithConfig(store types.GraphStore, embedder types.Embedder, config SearchConfig) *Engine {
	if config.DefaultK <= 0 {
		config.DefaultK = 5
	}
	if config.DefaultAlpha <= 0 {
		config.DefaultAlpha = 0.5
	}
	if config.LegTimeout <= 0 {
		config.LegTimeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Engine{
		config:   config,
		store:    store,
		embedder: embedder,
		logger:   config.Logger,
	}
}

// Options returns the engine's default request options.
func (e *Engine) Options() Options {
	return Options{
		K:         e.config.DefaultK,
		Alpha:     e.config.DefaultAlpha,
		Threshold: e.config.Threshold,
		Mode:      ModeHybrid,
	}
}

type legResult struct {
	chunks []models.ScoredChunk
	err    error
}

// Search executes one retrieval request. An empty question is an error; a
// question that matches nothing returns an empty Result, not an error.
func (e *Engine) Search(ctx context.Context, question string, opts Options) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question must not be empty")
	}

	if opts.K <= 0 {
		opts.K = e.config.DefaultK
	}
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	if opts.Alpha < 0 || opts.Alpha > 1 {
		return nil, fmt.Errorf("alpha must be between 0 and 1, got %g", opts.Alpha)
	}

	start := time.Now()

	var result *Result
	var err error
	switch opts.Mode {
	case ModeHybrid:
		result, err = e.searchHybrid(ctx, question, opts)
	case ModeVector:
		result, err = e.searchVector(ctx, question, opts)
	case ModeKeyword:
		result, err = e.searchKeyword(ctx, question, opts)
	default:
		return nil, fmt.Errorf("unknown search mode %q", opts.Mode)
	}
	if err != nil {
		return nil, err
	}

	result.Mode = opts.Mode
	result.Elapsed = time.Since(start)
	return result, nil
}

func (e *Engine) searchHybrid(ctx context.Context, question string, opts Options) (*Result, error) {
	legCtx, cancel := context.WithTimeout(ctx, e.config.LegTimeout)
	defer cancel()

	vectorCh := make(chan legResult, 1)
	keywordCh := make(chan legResult, 1)

	go func() {
		embedding, err := e.embedder.EmbedQuery(legCtx, question)
		if err != nil {
			vectorCh <- legResult{err: fmt.Errorf("failed to embed question: %w", err)}
			return
		}
		chunks, err := e.store.VectorSearch(legCtx, embedding, opts.K)
		vectorCh <- legResult{chunks: chunks, err: err}
	}()

	go func() {
		chunks, err := e.store.KeywordSearch(legCtx, question, opts.K)
		keywordCh <- legResult{chunks: chunks, err: err}
	}()

	vector := <-vectorCh
	keyword := <-keywordCh

	switch {
	case vector.err != nil && keyword.err != nil:
		e.logger.Error("both retrieval legs failed",
			zap.Error(vector.err), zap.NamedError("keyword_error", keyword.err))
		return nil, fmt.Errorf("vector: %v; keyword: %v: %w",
			vector.err, keyword.err, types.ErrSearchUnavailable)

	case vector.err != nil:
		// Keyword-only answers lose semantic recall, so they are opt-in.
		if !e.config.AllowDegraded {
			return nil, fmt.Errorf("vector leg failed: %v: %w", vector.err, types.ErrSearchUnavailable)
		}
		e.logger.Warn("vector leg failed, serving keyword-only results",
			zap.Error(vector.err))
		return &Result{
			Chunks:   rank(normalizeScores(keyword.chunks), opts.K, opts.Threshold),
			Degraded: true,
		}, nil

	case keyword.err != nil:
		e.logger.Warn("keyword leg failed, serving vector-only results",
			zap.Error(keyword.err))
		return &Result{
			Chunks:   rank(vector.chunks, opts.K, opts.Threshold),
			Degraded: true,
		}, nil
	}

	fused := fuse(vector.chunks, normalizeScores(keyword.chunks), opts.Alpha)
	return &Result{Chunks: rank(fused, opts.K, opts.Threshold)}, nil
}

func (e *Engine) searchVector(ctx context.Context, question string, opts Options) (*Result, error) {
	legCtx, cancel := context.WithTimeout(ctx, e.config.LegTimeout)
	defer cancel()

	embedding, err := e.embedder.EmbedQuery(legCtx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	chunks, err := e.store.VectorSearch(legCtx, embedding, opts.K)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %v: %w", err, types.ErrSearchUnavailable)
	}

	return &Result{Chunks: rank(chunks, opts.K, opts.Threshold)}, nil
}

func (e *Engine) searchKeyword(ctx context.Context, question string, opts Options) (*Result, error) {
	legCtx, cancel := context.WithTimeout(ctx, e.config.LegTimeout)
	defer cancel()

	chunks, err := e.store.KeywordSearch(legCtx, question, opts.K)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %v: %w", err, types.ErrSearchUnavailable)
	}

	return &Result{Chunks: rank(normalizeScores(chunks), opts.K, opts.Threshold)}, nil
}

type chunkKey struct {
	docID string
	index int
}

// fuse joins the two ranked lists by chunk identity. Vector scores are
// already in [0, 1]; keyword scores must be normalized before fusion.
func fuse(vector, keyword []models.ScoredChunk, alpha float64) []models.ScoredChunk {
	merged := make(map[chunkKey]models.ScoredChunk, len(vector)+len(keyword))

	for _, c := range vector {
		key := chunkKey{c.DocumentID, c.ChunkIndex}
		c.Score = alpha * c.Score
		merged[key] = c
	}
	for _, c := range keyword {
		key := chunkKey{c.DocumentID, c.ChunkIndex}
		if existing, ok := merged[key]; ok {
			existing.Score += (1 - alpha) * c.Score
			merged[key] = existing
		} else {
			c.Score = (1 - alpha) * c.Score
			merged[key] = c
		}
	}

	fused := make([]models.ScoredChunk, 0, len(merged))
	for _, c := range merged {
		fused = append(fused, c)
	}
	return fused
}

// normalizeScores rescales raw Lucene relevance values into [0, 1] by
// dividing by the maximum. Order is preserved.
func normalizeScores(chunks []models.ScoredChunk) []models.ScoredChunk {
	if len(chunks) == 0 {
		return chunks
	}

	max := chunks[0].Score
	for _, c := range chunks[1:] {
		if c.Score > max {
			max = c.Score
		}
	}
	if max <= 0 {
		return chunks
	}

	normalized := make([]models.ScoredChunk, len(chunks))
	for i, c := range chunks {
		c.Score = c.Score / max
		normalized[i] = c
	}
	return normalized
}

// rank sorts by score descending with a deterministic tie-break on chunk
// index then document id, truncates to k and drops entries below threshold.
func rank(chunks []models.ScoredChunk, k int, threshold float64) []models.ScoredChunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if chunks[i].ChunkIndex != chunks[j].ChunkIndex {
			return chunks[i].ChunkIndex < chunks[j].ChunkIndex
		}
		return chunks[i].DocumentID < chunks[j].DocumentID
	})

	if len(chunks) > k {
		chunks = chunks[:k]
	}

	kept := chunks[:0]
	for _, c := range chunks {
		if c.Score >= threshold {
			kept = append(kept, c)
		}
	}
	return kept
}
