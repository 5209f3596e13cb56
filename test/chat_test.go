package test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorale/go-llm/pkg/llm"
)

func TestBasicChatCompletion(t *testing.T) {
	client := createTestClient(t)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req := llm.ChatRequest{
		Model: client.GetModelInfo().Name,
		Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleUser, "Say hello in one word."),
		},
	}

	resp, err := client.ChatCompletion(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotEmpty(t, resp.Choices)
	assert.NotEmpty(t, resp.Choices[0].Message.Content)
	assert.Equal(t, llm.RoleAssistant, resp.Choices[0].Message.Role)
}

func TestChatCompletionMultiTurn(t *testing.T) {
	client := createTestClient(t)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req := llm.ChatRequest{
		Model: client.GetModelInfo().Name,
		Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleSystem, "You are a terse assistant."),
			llm.NewTextMessage(llm.RoleUser, "What is 2+2?"),
			llm.NewTextMessage(llm.RoleAssistant, "4"),
			llm.NewTextMessage(llm.RoleUser, "And doubled?"),
		},
	}

	resp, err := client.ChatCompletion(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Choices)
	assert.NotEmpty(t, resp.Choices[0].Message.Content)
}

func TestChatCompletionRespectsTimeout(t *testing.T) {
	client := createTestClientWithTimeout(t, 50*time.Millisecond)
	defer func() { _ = client.Close() }()

	// A cancelled context must surface an error, not hang.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := llm.ChatRequest{
		Model: client.GetModelInfo().Name,
		Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleUser, "This should never be answered."),
		},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = client.ChatCompletion(ctx, req)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not return after context cancellation")
	}
}
