package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"soccode/internal/logging"
	"soccode/internal/provider"
)

// OpenAIEngine generates embeddings via the OpenAI embeddings API.
type OpenAIEngine struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewOpenAIEngine creates an OpenAI embedding engine.
func NewOpenAIEngine(cfg Config) *OpenAIEngine {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 512
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIEngine{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		dimensions: dims,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// openAIEmbeddingRequest represents the API request structure.
type openAIEmbeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// openAIEmbeddingResponse represents the API response structure.
type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed generates an embedding for a single text.
func (e *OpenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.EmbeddingDebug("[OpenAI] Embed: model=%s dims=%d text_len=%d", e.model, e.dimensions, len(text))

	if e.apiKey == "" {
		return nil, provider.NewError(provider.KindEmbedding, "embed", fmt.Errorf("API key not configured"))
	}

	// Rate limiting between requests
	e.mu.Lock()
	elapsed := time.Since(e.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	e.lastRequest = time.Now()
	e.mu.Unlock()

	reqBody := openAIEmbeddingRequest{
		Input:      []string{text},
		Model:      e.model,
		Dimensions: e.dimensions,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, provider.NewError(provider.KindEmbedding, "embed", fmt.Errorf("failed to marshal request: %w", err))
	}

	var vector []float32
	err = provider.Retry(ctx, 3, func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.httpClient.Do(req)
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
			return provider.Transient(fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var embResp openAIEmbeddingResponse
		if err := json.Unmarshal(body, &embResp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		if embResp.Error != nil {
			return fmt.Errorf("API error: %s", embResp.Error.Message)
		}
		if len(embResp.Data) == 0 {
			return fmt.Errorf("no embedding returned")
		}

		vector = embResp.Data[0].Embedding
		return nil
	})
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("[OpenAI] Embed failed after %v: %v", time.Since(startTime), err)
		return nil, provider.NewError(provider.KindEmbedding, "embed", err)
	}

	if len(vector) != e.dimensions {
		return nil, provider.NewError(provider.KindEmbedding, "embed",
			fmt.Errorf("expected %d dimensions, got %d", e.dimensions, len(vector)))
	}

	logging.EmbeddingDebug("[OpenAI] Embed completed in %v", time.Since(startTime))
	return vector, nil
}

// Model returns the embedding model identifier.
func (e *OpenAIEngine) Model() string {
	return e.model
}

// Dimensions returns the dimensionality of produced vectors.
func (e *OpenAIEngine) Dimensions() int {
	return e.dimensions
}

// Name returns a human-readable engine name.
func (e *OpenAIEngine) Name() string {
	return fmt.Sprintf("openai:%s", e.model)
}

var _ Engine = (*OpenAIEngine)(nil)
