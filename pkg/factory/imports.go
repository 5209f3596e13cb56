package factory

import (
	"github.com/quorale/go-llm/pkg/llm"
	"github.com/quorale/go-llm/pkg/providers/deepseek"
	"github.com/quorale/go-llm/pkg/providers/mock"
	"github.com/quorale/go-llm/pkg/providers/openai"
)

func init() {
	// Register the OpenAI provider
	RegisterProvider("openai", func(config llm.ClientConfig) (llm.Client, error) {
		return openai.NewClient(config)
	})

	// Register the deepseek provider
	RegisterProvider("deepseek", func(config llm.ClientConfig) (llm.Client, error) {
		return deepseek.NewClient(config)
	})

	// Register the mock provider
	RegisterProvider("mock", func(config llm.ClientConfig) (llm.Client, error) {
		return mock.NewClient(config.Model, "mock")
	})
	RegisterProvider("mocked", func(config llm.ClientConfig) (llm.Client, error) {
		return mock.NewClient(config.Model, "mock")
	})
}
