package types

import "errors"

// Error taxonomy for the retrieval core. Callers match with errors.Is.
var (
	// ErrPoolExhausted means no session freed up within the acquire timeout.
	// Retryable; a backpressure signal, not a store failure.
	ErrPoolExhausted = errors.New("session pool exhausted")

	// ErrEmbeddingFailed aborts ingestion before any write reaches the store.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrIngestionFailed means a partial write was detected after the fact;
	// the document is not considered present and the caller must retry.
	ErrIngestionFailed = errors.New("ingestion failed")

	// ErrSearchUnavailable means both search modalities failed.
	ErrSearchUnavailable = errors.New("search unavailable")

	// ErrDimensionMismatch means an embedding vector length disagrees with
	// the configured index dimensionality. Never truncated or padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
