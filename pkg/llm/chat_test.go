package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/grag/pkg/llm"
)

func TestNewWithConfig(t *testing.T) {
	config := llm.ChatConfig{
		Model:           "testmodel",
		Temperature:     0.5,
		MaxTokens:       1000,
		SystemTemplate:  "Test system template",
		ContextTemplate: "Context:\n%s\n\nQuestion: %s",
		BaseURL:         "http://localhost:1234",
	}
	engine, err := llm.NewWithConfig(config)
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestNewWithConfig_Defaults(t *testing.T) {
	engine, err := llm.NewWithConfig(llm.ChatConfig{Temperature: 0.7})
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestNewWithConfig_RejectsBadTemperature(t *testing.T) {
	_, err := llm.NewWithConfig(llm.ChatConfig{Temperature: 3.0})
	assert.Error(t, err)
}

func TestNewWithConfig_RejectsNegativeMaxTokens(t *testing.T) {
	_, err := llm.NewWithConfig(llm.ChatConfig{Temperature: 0.5, MaxTokens: -1})
	assert.Error(t, err)
}
