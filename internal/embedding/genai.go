package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"soccode/internal/provider"
)

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGenAIEngine creates a new GenAI embedding engine.
func NewGenAIEngine(cfg Config) (*GenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 768
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIEngine{
		client:     client,
		model:      model,
		dimensions: dims,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	dims := int32(e.dimensions)
	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType:             "SEMANTIC_SIMILARITY",
			OutputDimensionality: &dims,
		},
	)
	if err != nil {
		return nil, provider.NewError(provider.KindEmbedding, "embed", fmt.Errorf("GenAI embed failed: %w", err))
	}

	if len(result.Embeddings) == 0 {
		return nil, provider.NewError(provider.KindEmbedding, "embed", fmt.Errorf("no embeddings returned"))
	}

	vector := result.Embeddings[0].Values
	if len(vector) != e.dimensions {
		return nil, provider.NewError(provider.KindEmbedding, "embed",
			fmt.Errorf("expected %d dimensions, got %d", e.dimensions, len(vector)))
	}
	return vector, nil
}

// Model returns the embedding model identifier.
func (e *GenAIEngine) Model() string {
	return e.model
}

// Dimensions returns the dimensionality of produced vectors.
func (e *GenAIEngine) Dimensions() int {
	return e.dimensions
}

var _ Engine = (*GenAIEngine)(nil)
