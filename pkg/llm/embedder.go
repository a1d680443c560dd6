package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/grag/internal/types"
	"golang.org/x/time/rate"
)

// EmbedderConfig represents the configuration for an embedding client.
type EmbedderConfig struct {
	Model      string
	BaseURL    string // Ollama server URL
	Dimensions int
	RateLimit  float64 // requests per second against the Ollama server
}

// OllamaEmbedder turns text into fixed-width vectors via an Ollama
// embedding model. Requests are rate limited so bulk ingestion does not
// starve interactive queries hitting the same server.
type OllamaEmbedder struct {
	config  EmbedderConfig
	llm     *ollama.LLM
	limiter *rate.Limiter
}

// NewEmbedderWithConfig creates a new OllamaEmbedder with the given configuration.
func NewEmbedderWithConfig(config EmbedderConfig) (*OllamaEmbedder, error) {
	// Validate and set default values for config fields if necessary
	if config.Model == "" {
		config.Model = "nomic-embed-text" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Dimensions <= 0 {
		config.Dimensions = 384
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 10.0
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %v", err)
	}

	return &OllamaEmbedder{
		config:  config,
		llm:     llm,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// EmbedQuery embeds a single question for retrieval.
func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d: %w", len(vectors), types.ErrEmbeddingFailed)
	}
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of chunk texts in one request.
func (e *OllamaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	vectors, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %v: %w", err, types.ErrEmbeddingFailed)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d: %w", len(texts), len(vectors), types.ErrEmbeddingFailed)
	}

	for i, vec := range vectors {
		if len(vec) != e.config.Dimensions {
			return nil, fmt.Errorf("embedding %d has %d dimensions, expected %d: %w",
				i, len(vec), e.config.Dimensions, types.ErrDimensionMismatch)
		}
	}

	return vectors, nil
}

// Dimensions reports the width of the vectors this embedder produces.
func (e *OllamaEmbedder) Dimensions() int {
	return e.config.Dimensions
}
