// Package completion sends assembled conversations to a chat model and
// returns the raw response text. Clients never interpret the response; the
// parser owns the grammar.
package completion

import (
	"context"
	"fmt"
	"time"

	"soccode/internal/conversation"
	"soccode/internal/provider"
)

// Client submits a multi-turn conversation to a chat model. The model
// identifier travels with each call so one client serves many requests.
type Client interface {
	Complete(ctx context.Context, model string, conv conversation.Conversation) (string, error)
}

// Config holds chat completion configuration.
type Config struct {
	// Provider: "openai" or "genai"
	Provider string

	APIKey  string
	BaseURL string

	// Model is the default when a call names none.
	Model string

	Timeout time.Duration
}

// NewClient creates a completion backend based on configuration.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg), nil
	case "genai", "gemini":
		return NewGenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported completion provider: %s (use 'openai' or 'genai')", cfg.Provider)
	}
}

func completionError(op string, err error) error {
	return provider.NewError(provider.KindCompletion, op, err)
}
