package completion

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"soccode/internal/conversation"
	"soccode/internal/logging"
)

// GenAIClient submits conversations to Google's Gemini API.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient creates a Gemini chat client.
func NewGenAIClient(cfg Config) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{client: client, model: model}, nil
}

// Complete sends the conversation and returns the model's response text.
// The system turn maps to a system instruction; assistant turns map to the
// model role.
func (c *GenAIClient) Complete(ctx context.Context, model string, conv conversation.Conversation) (string, error) {
	if model == "" {
		model = c.model
	}
	if len(conv) == 0 {
		return "", completionError("complete", fmt.Errorf("empty conversation"))
	}

	logging.CompletionDebug("[GenAI] Complete: model=%s turns=%d", model, len(conv))

	var config *genai.GenerateContentConfig
	contents := make([]*genai.Content, 0, len(conv))
	for _, turn := range conv {
		switch turn.Role {
		case conversation.RoleSystem:
			config = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(turn.Text, genai.RoleUser),
			}
		case conversation.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(turn.Text, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(turn.Text, genai.RoleUser))
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", completionError("complete", fmt.Errorf("GenAI completion failed: %w", err))
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", completionError("complete", fmt.Errorf("no completion returned"))
	}
	return text, nil
}

var _ Client = (*GenAIClient)(nil)
