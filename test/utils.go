package test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorale/go-llm/pkg/factory"
	"github.com/quorale/go-llm/pkg/llm"
)

// createTestClient creates a client using environment configuration. Without
// credentials this is the mock provider, so the suite always runs.
func createTestClient(t *testing.T) llm.Client {
	t.Helper()

	factory := factory.New()
	config := llm.GetLLMFromEnv()

	client, err := factory.CreateClient(config)
	require.NoError(t, err, "Failed to create LLM client")
	require.NotNil(t, client, "Client should not be nil")

	info := client.GetModelInfo()
	t.Logf("🤖 Using %s provider with model %s", info.Provider, info.Name)

	return client
}

// createTestClientWithTimeout creates a client with custom timeout
func createTestClientWithTimeout(t *testing.T, timeout time.Duration) llm.Client {
	t.Helper()

	factory := factory.New()
	config := llm.GetLLMFromEnv()
	config.Timeout = timeout

	client, err := factory.CreateClient(config)
	require.NoError(t, err, "Failed to create LLM client with timeout")
	require.NotNil(t, client, "Client should not be nil")

	return client
}

// requireToolSupport skips the test if the provider doesn't support tools
func requireToolSupport(t *testing.T, client llm.Client) {
	t.Helper()

	info := client.GetModelInfo()
	if !info.SupportsTools {
		t.Skipf("Provider %s model %s doesn't support tools", info.Provider, info.Name)
	}
}

// requireStreamingSupport skips the test if the provider doesn't stream
func requireStreamingSupport(t *testing.T, client llm.Client) {
	t.Helper()

	info := client.GetModelInfo()
	if !info.SupportsStreaming {
		t.Skipf("Provider %s model %s doesn't support streaming", info.Provider, info.Name)
	}
}
