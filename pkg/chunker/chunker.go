package chunker

import (
	"strings"
)

type ChunkerConfig struct {
	ChunkSize    int // maximum characters per chunk
	ChunkOverlap int // characters shared with the previous chunk
}

// Chunker splits document text into overlapping fixed-size windows. Splitting
// is deterministic: the same text and config always yield the same windows.
type Chunker struct {
	config ChunkerConfig
}

func NewWithConfig(config ChunkerConfig) Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 300
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 4
	}

	return Chunker{
		config: config,
	}
}

// Chunk returns the ordered windows for text. Empty or whitespace-only text
// yields no chunks; text shorter than one chunk size yields exactly one.
// Windows advance by ChunkSize-ChunkOverlap runes so a sentence cut at a
// boundary still appears whole in a neighboring chunk.
func (c Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.config.ChunkSize {
		return []string{text}
	}

	step := c.config.ChunkSize - c.config.ChunkOverlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}

// Size returns the configured chunk size.
func (c Chunker) Size() int {
	return c.config.ChunkSize
}

// Overlap returns the configured overlap.
func (c Chunker) Overlap() int {
	return c.config.ChunkOverlap
}
