package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/grag/pkg/llm"
)

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:      "nomic-embed-text",
		BaseURL:    "http://localhost:11434",
		Dimensions: 768,
	})
	require.NoError(t, err)
	assert.NotNil(t, emb)
	assert.Equal(t, 768, emb.Dimensions())
}

func TestNewEmbedderWithConfig_Defaults(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{})
	require.NoError(t, err)
	assert.Equal(t, 384, emb.Dimensions())
}

func TestEmbedDocuments_EmptyBatch(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{})
	require.NoError(t, err)

	vectors, err := emb.EmbedDocuments(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vectors)
}
