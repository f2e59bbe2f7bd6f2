package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soccode/internal/provider"
)

func embeddingResponse(vector []float32) openAIEmbeddingResponse {
	var resp openAIEmbeddingResponse
	resp.Data = []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}{{Embedding: vector}}
	return resp
}

func TestOpenAIEngine_Embed(t *testing.T) {
	vector := make([]float32, 512)
	for i := range vector {
		vector[i] = float32(i) / 512
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"Systems developer"}, req.Input)
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, 512, req.Dimensions)

		json.NewEncoder(w).Encode(embeddingResponse(vector))
	}))
	defer server.Close()

	engine := NewOpenAIEngine(Config{APIKey: "test-key", BaseURL: server.URL})

	got, err := engine.Embed(context.Background(), "Systems developer")
	require.NoError(t, err)
	assert.Len(t, got, 512)
	assert.Equal(t, vector, got)
}

func TestOpenAIEngine_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse([]float32{0.1, 0.2}))
	}))
	defer server.Close()

	engine := NewOpenAIEngine(Config{APIKey: "k", BaseURL: server.URL})

	_, err := engine.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindEmbedding))
	assert.Contains(t, err.Error(), "expected 512 dimensions, got 2")
}

func TestOpenAIEngine_RetriesRateLimit(t *testing.T) {
	vector := make([]float32, 512)
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(embeddingResponse(vector))
	}))
	defer server.Close()

	engine := NewOpenAIEngine(Config{APIKey: "k", BaseURL: server.URL})

	_, err := engine.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestOpenAIEngine_MissingAPIKey(t *testing.T) {
	engine := NewOpenAIEngine(Config{})

	_, err := engine.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindEmbedding))
	assert.Contains(t, err.Error(), "API key")
}

func TestNewEngine_Factory(t *testing.T) {
	engine, err := NewEngine(Config{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIEngine{}, engine)
	assert.Equal(t, "text-embedding-3-small", engine.Model())
	assert.Equal(t, 512, engine.Dimensions())

	_, err = NewEngine(Config{Provider: "cohere"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported embedding provider")
}
