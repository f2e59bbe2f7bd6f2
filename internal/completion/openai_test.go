package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soccode/internal/conversation"
	"soccode/internal/provider"
)

func chatResponse(content string) openAIChatResponse {
	var resp openAIChatResponse
	resp.Choices = []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	}{{}}
	resp.Choices[0].Message.Role = "assistant"
	resp.Choices[0].Message.Content = content
	return resp
}

func testConversation() conversation.Conversation {
	return conversation.Conversation{
		{Role: conversation.RoleSystem, Text: "You classify occupations."},
		{Role: conversation.RoleAssistant, Text: "What is your occupation?"},
		{Role: conversation.RoleUser, Text: "Systems developer"},
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 3)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "assistant", req.Messages[1].Role)
		assert.Equal(t, "user", req.Messages[2].Role)
		assert.Equal(t, "Systems developer", req.Messages[2].Content)

		json.NewEncoder(w).Encode(chatResponse("  CGPT587: 2951 - Systems Developers; CONFIDENCE: 90; FOLLOWUP: FALSE  "))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL})

	resp, err := client.Complete(context.Background(), "gpt-4o-mini", testConversation())
	require.NoError(t, err)
	assert.Equal(t, "CGPT587: 2951 - Systems Developers; CONFIDENCE: 90; FOLLOWUP: FALSE", resp, "response must be trimmed")
}

func TestOpenAIClient_EmptyModelUsesDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		json.NewEncoder(w).Encode(chatResponse("ok"))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{APIKey: "k", BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "", testConversation())
	require.NoError(t, err)
}

func TestOpenAIClient_RetriesRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(chatResponse("ok"))
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{APIKey: "k", BaseURL: server.URL})

	resp, err := client.Complete(context.Background(), "gpt-4o-mini", testConversation())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, 2, attempts)
}

func TestOpenAIClient_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{APIKey: "k", BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "gpt-4o-mini", testConversation())
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindCompletion))
	assert.Equal(t, 1, attempts)
}

func TestOpenAIClient_EmptyConversation(t *testing.T) {
	client := NewOpenAIClient(Config{APIKey: "k"})

	_, err := client.Complete(context.Background(), "gpt-4o-mini", nil)
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindCompletion))
}

func TestOpenAIClient_MissingAPIKey(t *testing.T) {
	client := NewOpenAIClient(Config{})

	_, err := client.Complete(context.Background(), "gpt-4o-mini", testConversation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestNewClient_Factory(t *testing.T) {
	client, err := NewClient(Config{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client)

	client, err = NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client)

	_, err = NewClient(Config{Provider: "anthropic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported completion provider")
}
