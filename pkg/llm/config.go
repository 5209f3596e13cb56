// Configuration types and response format specifications
package llm

import (
	"os"
	"strconv"
	"time"
)

const (
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultDeepSeekModel = "deepseek-chat"
)

// ClientConfig holds configuration for creating LLM clients
type ClientConfig struct {
	Provider   string            `json:"provider"` // openai, deepseek, mock, etc.
	Model      string            `json:"model"`
	APIKey     string            `json:"api_key,omitempty"`
	BaseURL    string            `json:"base_url,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty"`
	MaxRetries int               `json:"max_retries,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"` // Provider-specific configs
}

// ResponseFormat specifies the desired response format for structured outputs
type ResponseFormat struct {
	Type       ResponseFormatType `json:"type"`
	JSONSchema *JSONSchema        `json:"json_schema,omitempty"`
}

// ResponseFormatType defines the type of response format
type ResponseFormatType string

const (
	// ResponseFormatText indicates plain text response (default)
	ResponseFormatText ResponseFormatType = "text"
	// ResponseFormatJSON indicates JSON object response without strict schema
	ResponseFormatJSON ResponseFormatType = "json_object"
	// ResponseFormatJSONSchema indicates JSON response with strict schema validation
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// JSONSchema represents a JSON Schema specification for structured outputs
type JSONSchema struct {
	Name        string      `json:"name,omitempty"`        // Schema name (required by some providers)
	Description string      `json:"description,omitempty"` // Human-readable description
	Schema      interface{} `json:"schema"`                // The actual JSON Schema object
	Strict      *bool       `json:"strict,omitempty"`      // Enable strict validation (OpenAI-specific)
}

// parseTimeoutFromEnv parses timeout from environment variable with fallback to default
func parseTimeoutFromEnv(envVar string, defaultTimeout time.Duration) time.Duration {
	if timeoutStr := os.Getenv(envVar); timeoutStr != "" {
		if timeoutSecs, err := strconv.Atoi(timeoutStr); err == nil && timeoutSecs > 0 {
			return time.Duration(timeoutSecs) * time.Second
		}
	}
	return defaultTimeout
}

// GetLLMFromEnv builds a ClientConfig from environment variables, preferring
// an explicit OpenAI-compatible endpoint, then OpenAI, then DeepSeek.
func GetLLMFromEnv() ClientConfig {
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			apiKey = "dummy" // Some endpoints don't require real keys
		}

		model := DefaultOpenAIModel
		if customModel := os.Getenv("OPENAI_MODEL"); customModel != "" {
			model = customModel
		}

		return ClientConfig{
			Provider: "openai",
			Model:    model,
			APIKey:   apiKey,
			BaseURL:  baseURL,
			Timeout:  parseTimeoutFromEnv("OPENAI_TIMEOUT", 30*time.Second),
		}
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		return ClientConfig{
			Provider: "openai",
			Model:    DefaultOpenAIModel,
			APIKey:   apiKey,
			Timeout:  parseTimeoutFromEnv("OPENAI_TIMEOUT", 30*time.Second),
		}
	}

	if apiKey := os.Getenv("DEEPSEEK_API_KEY"); apiKey != "" {
		model := DefaultDeepSeekModel
		if customModel := os.Getenv("DEEPSEEK_MODEL"); customModel != "" {
			model = customModel
		}

		return ClientConfig{
			Provider: "deepseek",
			Model:    model,
			APIKey:   apiKey,
			Timeout:  parseTimeoutFromEnv("DEEPSEEK_TIMEOUT", 30*time.Second),
		}
	}

	// No credentials configured; fall back to the mock provider so examples
	// and tests still run.
	return ClientConfig{
		Provider: "mock",
		Model:    "mock-model",
	}
}
