package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/grag/internal/models"
	"github.com/xhad/grag/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type PipelineConfig struct {
	Workers int
	Logger  *zap.Logger
}

// Pipeline turns raw documents into chunked, embedded graph records. Each
// document is chunked, its chunks are embedded in one batch, and the whole
// document is written in a single transaction so readers never observe a
// partially ingested document.
type Pipeline struct {
	config   PipelineConfig
	store    types.GraphStore
	embedder types.Embedder
	chunker  types.Chunker
	logger   *zap.Logger
}

func NewWithConfig(store types.GraphStore, embedder types.Embedder, chunker types.Chunker, config PipelineConfig) *Pipeline {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Pipeline{
		config:   config,
		store:    store,
		embedder: embedder,
		chunker:  chunker,
		logger:   config.Logger,
	}
}

// AddDocument ingests one document and returns its assigned id. The caller
// fills Content, Source, Category and Metadata; ID and Created are assigned
// here. Embedding failures abort before anything is written.
func (p *Pipeline) AddDocument(ctx context.Context, doc models.Document) (string, error) {
	if err := validateMetadata(doc.Metadata); err != nil {
		return "", err
	}

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Created.IsZero() {
		doc.Created = time.Now()
	}

	texts := p.chunker.Chunk(doc.Content)
	if len(texts) == 0 {
		p.logger.Info("document produced no chunks",
			zap.String("document_id", doc.ID),
			zap.String("source", doc.Source))
		if err := p.store.CreateDocument(ctx, doc, nil); err != nil {
			return "", err
		}
		return doc.ID, nil
	}

	embeddings, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("failed to embed document %s: %w", doc.ID, err)
	}
	if len(embeddings) != len(texts) {
		return "", fmt.Errorf("embedded %d of %d chunks for document %s: %w",
			len(embeddings), len(texts), doc.ID, types.ErrEmbeddingFailed)
	}

	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			Text:      text,
			Embedding: embeddings[i],
			Index:     i,
		}
	}

	if err := p.store.CreateDocument(ctx, doc, chunks); err != nil {
		return "", err
	}

	p.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("source", doc.Source),
		zap.Int("chunks", len(chunks)))

	return doc.ID, nil
}

// AddDocuments ingests a batch concurrently, bounded by the worker count.
// The returned ids align with the input order. The first failure cancels
// outstanding work; already written documents are not rolled back.
func (p *Pipeline) AddDocuments(ctx context.Context, docs []models.Document) ([]string, error) {
	ids := make([]string, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)

	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			id, err := p.AddDocument(gctx, doc)
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

// validateMetadata rejects values the graph store cannot hold as node
// properties. Only scalars are allowed; nesting must be flattened by the
// caller.
func validateMetadata(metadata map[string]interface{}) error {
	for key, value := range metadata {
		switch value.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64,
			time.Time:
		default:
			return fmt.Errorf("metadata field %q has unsupported type %T, only scalar values are allowed", key, value)
		}
	}
	return nil
}
