package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorale/go-llm/pkg/llm"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(llm.ClientConfig{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		APIKey:   "test-key",
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(llm.ClientConfig{Provider: "openai", Model: "gpt-4o"})
	require.Error(t, err)

	llmErr, ok := err.(*llm.Error)
	require.True(t, ok)
	assert.Equal(t, llm.ErrorTypeAuth, llmErr.Type)
}

func TestConvertRequest(t *testing.T) {
	t.Parallel()

	client := testClient(t)
	temp := float32(0.7)
	maxTokens := 256

	req := llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleSystem, "You are helpful."),
			llm.NewTextMessage(llm.RoleUser, "Hello"),
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Tools: []llm.Tool{{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        "get_weather",
				Description: "Current weather",
				Parameters:  map[string]interface{}{"type": "object"},
			},
		}},
	}

	converted := client.convertRequest(req)

	// An empty request model falls back to the configured one.
	assert.Equal(t, "gpt-4o-mini", converted.Model)
	require.Len(t, converted.Messages, 2)
	assert.Equal(t, "You are helpful.", converted.Messages[0].Content)
	assert.Equal(t, float32(0.7), converted.Temperature)
	assert.Equal(t, 256, converted.MaxTokens)
	require.Len(t, converted.Tools, 1)
	assert.Equal(t, "get_weather", converted.Tools[0].Function.Name)
}

func TestConvertMessagesEmptyContent(t *testing.T) {
	t.Parallel()

	client := testClient(t)

	// Tool-call-only and whitespace-only messages serialize to a single space
	// so the API never sees an undefined content field.
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: ""},
		{Role: llm.RoleUser, Content: "   \t\n   "},
		{Role: llm.RoleUser, Content: "Hello, world!"},
	}

	converted := client.convertMessages(messages)
	require.Len(t, converted, 3)
	assert.Equal(t, " ", converted[0].Content)
	assert.Equal(t, " ", converted[1].Content)
	assert.Equal(t, "Hello, world!", converted[2].Content)
}

func TestConvertMessagesToolCalls(t *testing.T) {
	t.Parallel()

	client := testClient(t)

	assistant := llm.NewTextMessage(llm.RoleAssistant, "")
	assistant.AddToolCall(llm.ToolCall{
		ID:   "call_1",
		Type: "function",
		Function: llm.ToolCallFunction{
			Name:      "get_weather",
			Arguments: `{"city":"Paris"}`,
		},
	})
	toolResult := llm.NewToolMessage("call_1", `{"temperature_c":21}`)

	converted := client.convertMessages([]llm.Message{assistant, toolResult})
	require.Len(t, converted, 2)

	require.Len(t, converted[0].ToolCalls, 1)
	assert.Equal(t, "call_1", converted[0].ToolCalls[0].ID)
	assert.Equal(t, "get_weather", converted[0].ToolCalls[0].Function.Name)

	assert.Equal(t, "call_1", converted[1].ToolCallID)
	assert.Equal(t, `{"temperature_c":21}`, converted[1].Content)
}

func TestConvertResponse(t *testing.T) {
	t.Parallel()

	client := testClient(t)

	resp := client.convertResponse(openai.ChatCompletionResponse{
		ID:    "chatcmpl-123",
		Model: "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: "Hello there",
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})

	assert.Equal(t, "chatcmpl-123", resp.ID)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, llm.RoleAssistant, resp.Choices[0].Message.Role)
	assert.Equal(t, "Hello there", resp.Choices[0].Message.Content)
	assert.Equal(t, llm.FinishReasonStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestConvertError(t *testing.T) {
	t.Parallel()

	client := testClient(t)

	cases := []struct {
		name     string
		err      error
		wantType llm.ErrorType
		wantCode int
	}{
		{
			name:     "rate_limited",
			err:      &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"},
			wantType: llm.ErrorTypeRateLimit,
			wantCode: 429,
		},
		{
			name:     "unauthorized",
			err:      &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"},
			wantType: llm.ErrorTypeAuth,
			wantCode: 401,
		},
		{
			name:     "server_error",
			err:      &openai.APIError{HTTPStatusCode: http.StatusInternalServerError, Message: "oops"},
			wantType: llm.ErrorTypeServer,
			wantCode: 500,
		},
		{
			name:     "bad_request",
			err:      &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "invalid"},
			wantType: llm.ErrorTypeClient,
			wantCode: 400,
		},
		{
			name:     "request_error",
			err:      &openai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")},
			wantType: llm.ErrorTypeServer,
			wantCode: 502,
		},
		{
			name:     "deadline",
			err:      context.DeadlineExceeded,
			wantType: llm.ErrorTypeTimeout,
		},
		{
			name:     "transport",
			err:      errors.New("connection refused"),
			wantType: llm.ErrorTypeNetwork,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			converted := client.convertError(tc.err)
			assert.Equal(t, tc.wantType, converted.Type)
			assert.Equal(t, tc.wantCode, converted.StatusCode)
			assert.ErrorIs(t, converted, tc.err)
		})
	}
}

func TestModelAttributes(t *testing.T) {
	t.Parallel()

	assert.True(t, getModelAttribute("gpt-4o", toolsSupport))
	assert.True(t, getModelAttribute("gpt-3.5-turbo", toolsSupport))
	assert.Equal(t, 128000, getModelAttribute("gpt-4o-mini", contextLength))
	assert.Equal(t, 8192, getModelAttribute("gpt-4", contextLength))
	assert.Equal(t, 4096, getModelAttribute("some-unknown-model", contextLength))
}

func TestGetModelInfo(t *testing.T) {
	t.Parallel()

	info := testClient(t).GetModelInfo()
	assert.Equal(t, "gpt-4o-mini", info.Name)
	assert.Equal(t, "openai", info.Provider)
	assert.Equal(t, 128000, info.MaxTokens)
	assert.True(t, info.SupportsTools)
	assert.True(t, info.SupportsStreaming)
}
