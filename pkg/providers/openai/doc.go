// Package openai provides an OpenAI client implementation for the go-llm library.
//
// This package implements the llm.Client interface for OpenAI's GPT models
// and OpenAI-compatible endpoints, supporting chat completions, streaming,
// tools (function calling), and structured output.
//
// The client handles provider-specific request/response transformations,
// including mapping API failures onto the library's error taxonomy so the
// resilience layer can classify them uniformly.
package openai
