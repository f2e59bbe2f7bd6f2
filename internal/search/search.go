// Package search provides ranked nearest-neighbor lookup against named,
// pre-provisioned vector indexes. Two backends: a Pinecone-style HTTP
// service and a local SQLite index for offline operation.
package search

import (
	"context"
	"fmt"

	"soccode/internal/provider"
)

// Match is a single ranked hit from a vector index.
type Match struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Searcher queries a named index for the k nearest neighbors of a vector,
// ordered most relevant first.
type Searcher interface {
	Query(ctx context.Context, index string, vector []float32, k int) ([]Match, error)
}

// Config holds vector search configuration.
type Config struct {
	// Provider: "pinecone" or "local"
	Provider string

	APIKey  string
	BaseURL string

	// Indexes maps index names to service hosts (Pinecone backend).
	Indexes map[string]string

	// DatabasePath backs the local SQLite index.
	DatabasePath string
}

// NewSearcher creates a search backend based on configuration.
func NewSearcher(cfg Config) (Searcher, error) {
	switch cfg.Provider {
	case "pinecone", "":
		return NewPineconeClient(cfg), nil
	case "local":
		return OpenLocalIndex(cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unsupported search provider: %s (use 'pinecone' or 'local')", cfg.Provider)
	}
}

func retrievalError(op string, err error) error {
	return provider.NewError(provider.KindRetrieval, op, err)
}
