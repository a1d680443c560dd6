package models

import "time"

// Document is one ingested source unit: a file, a pasted text, a web page.
// Metadata values must be scalar; the store does not support nested structures.
type Document struct {
	ID       string
	Content  string
	Source   string
	Category string
	Created  time.Time
	Metadata map[string]interface{}
}

// Chunk is the atomic unit of retrieval: a contiguous, overlapping slice of
// a Document's text with its embedding. Index values for a document form a
// contiguous range starting at 0.
type Chunk struct {
	Text      string
	Embedding []float32
	Index     int
}

// ScoredChunk is a chunk returned from one search leg, before fusion.
type ScoredChunk struct {
	Text       string
	DocumentID string
	ChunkIndex int
	Score      float64
}
