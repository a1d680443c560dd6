package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Graph config
	if c.Graph.URI == "" {
		errors = append(errors, ValidationError{
			Field:   "graph.uri",
			Message: "Neo4j URI is required",
		})
	} else if _, err := url.Parse(c.Graph.URI); err != nil {
		errors = append(errors, ValidationError{
			Field:   "graph.uri",
			Message: "invalid Neo4j URI",
		})
	}

	if c.Graph.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "graph.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Graph.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "graph.pool_size",
			Message: "pool_size must be positive",
		})
	}

	if c.Graph.AcquireTimeout < 1 {
		errors = append(errors, ValidationError{
			Field:   "graph.acquire_timeout_ms",
			Message: "acquire_timeout_ms must be positive",
		})
	}

	// Validate Scraper config
	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate extensions format
	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Validate Chunker config
	if c.Chunker.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate Search config
	if c.Search.DefaultK < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.default_k",
			Message: "default_k must be positive",
		})
	}

	if c.Search.DefaultAlpha < 0 || c.Search.DefaultAlpha > 1 {
		errors = append(errors, ValidationError{
			Field:   "search.default_alpha",
			Message: "default_alpha must be between 0 and 1",
		})
	}

	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "search.threshold",
			Message: "threshold must be between 0 and 1",
		})
	}

	if c.Search.CacheCapacity < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.cache_capacity",
			Message: "cache_capacity must be positive",
		})
	}

	// Validate base URL format
	if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	return errors
}
