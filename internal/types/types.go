package types

import (
	"context"

	"github.com/xhad/grag/internal/models"
)

// Core interfaces
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// GraphStore is the session-pooled interface to the backing graph database.
type GraphStore interface {
	CreateDocument(ctx context.Context, doc models.Document, chunks []models.Chunk) error
	DeleteDocument(ctx context.Context, id string) error
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]models.ScoredChunk, error)
	KeywordSearch(ctx context.Context, query string, k int) ([]models.ScoredChunk, error)
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

// Generator is the external answer-generation collaborator. Failures here
// are non-fatal to a query; retrieved sources are still returned.
type Generator interface {
	Generate(ctx context.Context, question string, contextText string) (string, error)
}

type Chunker interface {
	Chunk(text string) []string
}
