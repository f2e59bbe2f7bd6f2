package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenAIEngine_Defaults(t *testing.T) {
	engine, err := NewGenAIEngine(Config{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-embedding-001", engine.Model())
	assert.Equal(t, 768, engine.Dimensions())
}

func TestNewGenAIEngine_HonorsConfiguredDimensions(t *testing.T) {
	engine, err := NewGenAIEngine(Config{APIKey: "test-key", Model: "gemini-embedding-001", Dimensions: 512})
	require.NoError(t, err)
	assert.Equal(t, 512, engine.Dimensions())
}

func TestNewGenAIEngine_RequiresAPIKey(t *testing.T) {
	_, err := NewGenAIEngine(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}
