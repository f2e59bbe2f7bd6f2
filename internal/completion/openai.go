package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"soccode/internal/conversation"
	"soccode/internal/logging"
	"soccode/internal/provider"
)

// OpenAIClient submits conversations to the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewOpenAIClient creates an OpenAI chat client.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// openAIMessage represents a chat message.
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIChatRequest represents the API request structure.
type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

// openAIChatResponse represents the API response structure.
type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends the conversation and returns the model's response text.
// An empty model falls back to the configured default.
func (c *OpenAIClient) Complete(ctx context.Context, model string, conv conversation.Conversation) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	if model == "" {
		model = c.model
	}

	startTime := time.Now()
	logging.CompletionDebug("[OpenAI] Complete: model=%s turns=%d", model, len(conv))

	if c.apiKey == "" {
		return "", completionError("complete", fmt.Errorf("API key not configured"))
	}
	if len(conv) == 0 {
		return "", completionError("complete", fmt.Errorf("empty conversation"))
	}

	// Rate limiting between requests
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	messages := make([]openAIMessage, 0, len(conv))
	for _, turn := range conv {
		messages = append(messages, openAIMessage{Role: string(turn.Role), Content: turn.Text})
	}

	reqBody := openAIChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: 0,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", completionError("complete", fmt.Errorf("failed to marshal request: %w", err))
	}

	var response string
	err = provider.Retry(ctx, 3, func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
			return provider.Transient(fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var chatResp openAIChatResponse
		if err := json.Unmarshal(body, &chatResp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		if chatResp.Error != nil {
			return fmt.Errorf("API error: %s", chatResp.Error.Message)
		}
		if len(chatResp.Choices) == 0 {
			return fmt.Errorf("no completion returned")
		}

		response = strings.TrimSpace(chatResp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		logging.Get(logging.CategoryCompletion).Error("[OpenAI] Complete failed after %v: %v", time.Since(startTime), err)
		return "", completionError("complete", err)
	}

	logging.Completion("[OpenAI] Complete: model=%s completed in %v response_len=%d", model, time.Since(startTime), len(response))
	return response, nil
}

var _ Client = (*OpenAIClient)(nil)
