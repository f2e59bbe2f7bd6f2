// Package embedding provides vector embedding generation for candidate
// retrieval. Supports OpenAI (default) and Google GenAI backends behind a
// single Engine interface, plus a memoizing wrapper over the bounded LRU.
package embedding

import (
	"context"
	"fmt"
	"time"

	"soccode/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the embedding model identifier.
	Model() string

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "openai" or "genai"
	Provider string

	APIKey  string
	BaseURL string
	Model   string

	// Dimensions requested from the provider; returned vectors must have
	// exactly this length.
	Dimensions int

	Timeout time.Duration
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	logging.Embedding("Creating embedding engine: provider=%s model=%s dims=%d",
		cfg.Provider, cfg.Model, cfg.Dimensions)

	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIEngine(cfg), nil
	case "genai":
		return NewGenAIEngine(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'openai' or 'genai')", cfg.Provider)
	}
}
