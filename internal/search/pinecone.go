package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"soccode/internal/logging"
	"soccode/internal/provider"
)

// PineconeClient queries Pinecone-style vector index services over HTTP.
// Each named index is addressed by its own pre-provisioned host.
type PineconeClient struct {
	apiKey     string
	baseURL    string
	hosts      map[string]string
	httpClient *http.Client
}

// NewPineconeClient creates a client from configuration. When an index has
// no entry in Indexes, BaseURL is used as the host for every index.
func NewPineconeClient(cfg Config) *PineconeClient {
	return &PineconeClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		hosts:      cfg.Indexes,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// pineconeQueryRequest represents the API request structure.
type pineconeQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

// pineconeQueryResponse represents the API response structure.
type pineconeQueryResponse struct {
	Matches []struct {
		ID       string            `json:"id"`
		Score    float64           `json:"score"`
		Metadata map[string]string `json:"metadata,omitempty"`
	} `json:"matches"`
	Message string `json:"message,omitempty"`
}

// Query returns the k nearest neighbors from the named index. Fails with a
// retrieval provider error when the index is unrecognized, the call errors,
// or the index returns zero matches.
func (c *PineconeClient) Query(ctx context.Context, index string, vector []float32, k int) ([]Match, error) {
	startTime := time.Now()
	logging.SearchDebug("[Pinecone] Query: index=%s dims=%d k=%d", index, len(vector), k)

	host, err := c.hostFor(index)
	if err != nil {
		return nil, retrievalError("query", err)
	}
	if c.apiKey == "" {
		return nil, retrievalError("query", fmt.Errorf("API key not configured"))
	}

	reqBody := pineconeQueryRequest{
		Vector:          vector,
		TopK:            k,
		IncludeMetadata: true,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, retrievalError("query", fmt.Errorf("failed to marshal request: %w", err))
	}

	var matches []Match
	err = provider.Retry(ctx, 3, func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", host+"/query", bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Api-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return provider.Transient(fmt.Errorf("request failed: %w", err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return provider.Transient(fmt.Errorf("failed to read response: %w", err))
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return provider.Transient(fmt.Errorf("rate limit exceeded (429)"))
		}
		if resp.StatusCode >= 500 {
			return provider.Transient(fmt.Errorf("query failed with status %d: %s", resp.StatusCode, string(body)))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("query failed with status %d: %s", resp.StatusCode, string(body))
		}

		var queryResp pineconeQueryResponse
		if err := json.Unmarshal(body, &queryResp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		matches = make([]Match, 0, len(queryResp.Matches))
		for _, m := range queryResp.Matches {
			matches = append(matches, Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
		}
		return nil
	})
	if err != nil {
		logging.Get(logging.CategorySearch).Error("[Pinecone] Query failed after %v: %v", time.Since(startTime), err)
		return nil, retrievalError("query", err)
	}

	if len(matches) == 0 {
		return nil, retrievalError("query", fmt.Errorf("index %q returned zero matches", index))
	}

	logging.SearchDebug("[Pinecone] Query completed in %v: %d matches", time.Since(startTime), len(matches))
	return matches, nil
}

func (c *PineconeClient) hostFor(index string) (string, error) {
	if host, ok := c.hosts[index]; ok && host != "" {
		return host, nil
	}
	if c.baseURL != "" {
		return c.baseURL, nil
	}
	return "", fmt.Errorf("unrecognized index %q", index)
}

var _ Searcher = (*PineconeClient)(nil)
