package openai

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/quorale/go-llm/pkg/llm"
)

// ModelAttribute represents a model attribute with its pattern and value
type ModelAttribute[T any] struct {
	Pattern *regexp.Regexp
	Value   T
}

// ModelAttributes contains all model attribute patterns
var (
	// Tools support patterns - models that support function calling
	toolsSupport = []ModelAttribute[bool]{
		{regexp.MustCompile(`^gpt-4o(-mini)?$`), true},                            // gpt-4o, gpt-4o-mini
		{regexp.MustCompile(`^gpt-4(-0613|-32k|-32k-0613)?$`), true},              // gpt-4 variants
		{regexp.MustCompile(`^gpt-4-turbo(-preview|-\d{4}-\d{2}-\d{2})?$`), true}, // gpt-4-turbo variants
		{regexp.MustCompile(`^gpt-3\.5-turbo(-16k|-\d{4}-\d{2}-\d{2})?$`), true},  // gpt-3.5-turbo variants
		// For custom endpoints, check for GPT-like models
		{regexp.MustCompile(`(?i).*gpt.*`), true}, // Any GPT-like model
		{regexp.MustCompile(`(?i).*oss.*`), true}, // OSS models
		{regexp.MustCompile(`.*`), false},         // Default: no tools support
	}

	// Context length patterns - maximum tokens for different models
	contextLength = []ModelAttribute[int]{
		{regexp.MustCompile(`^gpt-4o(-mini)?$`), 128000},                            // gpt-4o series
		{regexp.MustCompile(`^gpt-4-turbo(-preview|-\d{4}-\d{2}-\d{2})?$`), 128000}, // gpt-4-turbo series
		{regexp.MustCompile(`^gpt-4-32k(-0613)?$`), 32768},                          // gpt-4-32k variants
		{regexp.MustCompile(`^gpt-4(-0613)?$`), 8192},                               // gpt-4 base variants
		{regexp.MustCompile(`^gpt-3\.5-turbo-16k(-\d{4}-\d{2}-\d{2})?$`), 16384},    // gpt-3.5-turbo-16k variants
		{regexp.MustCompile(`^gpt-3\.5-turbo(-\d{4}-\d{2}-\d{2})?$`), 4096},         // gpt-3.5-turbo base variants
		{regexp.MustCompile(`.*`), 4096},                                            // Default context length
	}
)

// getModelAttribute returns the attribute value for a given model by matching against patterns
func getModelAttribute[T any](model string, attributes []ModelAttribute[T]) T {
	for _, attr := range attributes {
		if attr.Pattern.MatchString(model) {
			return attr.Value
		}
	}
	// This should never be reached due to the catch-all pattern, but return zero value as fallback
	var zero T
	return zero
}

// Client implements the llm.Client interface for OpenAI
type Client struct {
	client   *openai.Client
	model    string
	provider string
	baseURL  string

	// Health check caching
	lastHealthCheck  *time.Time
	lastHealthStatus *bool
}

// NewClient creates a new OpenAI client
func NewClient(config llm.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &llm.Error{
			Code:    "missing_api_key",
			Message: "API key is required for OpenAI",
			Type:    llm.ErrorTypeAuth,
		}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Client{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    config.Model,
		provider: "openai",
		baseURL:  config.BaseURL,
	}, nil
}

// ChatCompletion performs a chat completion request
func (c *Client) ChatCompletion(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	openaiReq := c.convertRequest(req)

	resp, err := c.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, c.convertError(err)
	}

	return c.convertResponse(resp), nil
}

// StreamChatCompletion performs a streaming chat completion request using OpenAI
func (c *Client) StreamChatCompletion(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	openaiReq := c.convertRequest(req)
	openaiReq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		return nil, c.convertError(err)
	}

	ch := make(chan llm.StreamEvent, 10)

	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				// Stream complete
				select {
				case ch <- llm.NewDoneEvent(0, llm.FinishReasonStop):
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				select {
				case ch <- llm.NewErrorEvent(c.convertError(err)):
				case <-ctx.Done():
				}
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			choice := response.Choices[0]

			if choice.FinishReason != "" && choice.FinishReason != openai.FinishReasonNull {
				select {
				case ch <- llm.NewDoneEvent(choice.Index, string(choice.FinishReason)):
				case <-ctx.Done():
				}
				return
			}

			delta := &llm.MessageDelta{
				Role:    llm.MessageRole(choice.Delta.Role),
				Content: choice.Delta.Content,
			}
			for i, tc := range choice.Delta.ToolCalls {
				toolCallDelta := llm.ToolCallDelta{
					Index: i,
					ID:    tc.ID,
					Type:  string(tc.Type),
				}
				if tc.Index != nil {
					toolCallDelta.Index = *tc.Index
				}
				if tc.Function.Name != "" || tc.Function.Arguments != "" {
					toolCallDelta.Function = &llm.ToolCallFunctionDelta{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					}
				}
				delta.ToolCalls = append(delta.ToolCalls, toolCallDelta)
			}

			select {
			case ch <- llm.NewDeltaEvent(choice.Index, delta):
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// GetRemote returns information about the remote client
func (c *Client) GetRemote() llm.ClientRemoteInfo {
	info := llm.ClientRemoteInfo{
		Name: "openai",
	}

	// Check if we need to refresh the health status
	now := time.Now()
	needsRefresh := c.lastHealthCheck == nil ||
		now.Sub(*c.lastHealthCheck) >= llm.DefaultHealthCheckInterval

	if needsRefresh {
		healthy := c.performHealthCheck()
		c.lastHealthStatus = &healthy
		c.lastHealthCheck = &now
	}

	info.Status = &llm.ClientRemoteInfoStatus{
		Healthy:     c.lastHealthStatus,
		LastChecked: c.lastHealthCheck,
	}

	return info
}

// performHealthCheck performs a simple health check on the OpenAI API
func (c *Client) performHealthCheck() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Try to list models as a health check
	_, err := c.client.ListModels(ctx)
	return err == nil
}

// GetModelInfo returns information about the model being used
func (c *Client) GetModelInfo() llm.ModelInfo {
	return llm.ModelInfo{
		Name:              c.model,
		Provider:          c.provider,
		MaxTokens:         getModelAttribute(c.model, contextLength),
		SupportsTools:     c.supportsTools(c.model),
		SupportsStreaming: true,
	}
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	// OpenAI client doesn't require explicit cleanup
	return nil
}

// convertRequest converts our ChatRequest to OpenAI format
func (c *Client) convertRequest(req llm.ChatRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: c.convertMessages(req.Messages),
		Stream:   req.Stream,
	}

	// Handle optional pointer fields
	if req.Temperature != nil {
		openaiReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		openaiReq.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		openaiReq.TopP = *req.TopP
	}

	// Convert tools
	for _, tool := range req.Tools {
		openaiReq.Tools = append(openaiReq.Tools, openai.Tool{
			Type: openai.ToolType(tool.Type),
			Function: &openai.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	// Handle response format
	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case llm.ResponseFormatJSON:
			openaiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		case llm.ResponseFormatJSONSchema:
			if req.ResponseFormat.JSONSchema != nil {
				jsonSchema := &openai.ChatCompletionResponseFormatJSONSchema{
					Name:        req.ResponseFormat.JSONSchema.Name,
					Description: req.ResponseFormat.JSONSchema.Description,
				}
				if req.ResponseFormat.JSONSchema.Strict != nil {
					jsonSchema.Strict = *req.ResponseFormat.JSONSchema.Strict
				}

				openaiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
					Type:       openai.ChatCompletionResponseFormatTypeJSONSchema,
					JSONSchema: jsonSchema,
				}
			}
		}
	}

	return openaiReq
}

// convertMessages converts our messages to OpenAI format
func (c *Client) convertMessages(messages []llm.Message) []openai.ChatCompletionMessage {
	var openaiMessages []openai.ChatCompletionMessage

	for _, msg := range messages {
		openaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}

		// The API rejects messages whose content serializes to undefined, so
		// tool-call-only messages get a single space.
		if strings.TrimSpace(openaiMsg.Content) == "" {
			openaiMsg.Content = " "
		}

		for _, tc := range msg.ToolCalls {
			openaiMsg.ToolCalls = append(openaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolType(tc.Type),
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}

		if msg.ToolCallID != "" {
			openaiMsg.ToolCallID = msg.ToolCallID
		}

		openaiMessages = append(openaiMessages, openaiMsg)
	}

	return openaiMessages
}

// convertResponse converts OpenAI response to our format
func (c *Client) convertResponse(resp openai.ChatCompletionResponse) *llm.ChatResponse {
	chatResp := &llm.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	for _, choice := range resp.Choices {
		chatResp.Choices = append(chatResp.Choices, llm.Choice{
			Index:        choice.Index,
			Message:      c.convertMessage(choice.Message),
			FinishReason: string(choice.FinishReason),
		})
	}

	return chatResp
}

// convertMessage converts OpenAI message to our format
func (c *Client) convertMessage(msg openai.ChatCompletionMessage) llm.Message {
	ourMsg := llm.Message{
		Role:    llm.MessageRole(msg.Role),
		Content: msg.Content,
	}

	for _, tc := range msg.ToolCalls {
		ourMsg.ToolCalls = append(ourMsg.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: llm.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	if msg.ToolCallID != "" {
		ourMsg.ToolCallID = msg.ToolCallID
	}

	return ourMsg
}

// convertError converts OpenAI error to our closed error taxonomy. The status
// code drives classification so the retry executor and circuit breaker see
// transient and fatal failures the same way across providers.
func (c *Client) convertError(err error) *llm.Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := "api_error"
		if codeStr, ok := apiErr.Code.(string); ok && codeStr != "" {
			code = codeStr
		}
		converted := &llm.Error{
			Code:       code,
			Message:    apiErr.Message,
			Type:       llm.ClassifyStatusCode(apiErr.HTTPStatusCode),
			StatusCode: apiErr.HTTPStatusCode,
			Cause:      err,
		}
		if apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403 {
			converted.Type = llm.ErrorTypeAuth
		}
		return converted
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &llm.Error{
			Code:       "request_error",
			Message:    reqErr.Error(),
			Type:       llm.ClassifyStatusCode(reqErr.HTTPStatusCode),
			StatusCode: reqErr.HTTPStatusCode,
			Cause:      err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{
			Code:    "timeout",
			Message: err.Error(),
			Type:    llm.ErrorTypeTimeout,
			Cause:   err,
		}
	}

	// Transport-level failure with no HTTP status
	return &llm.Error{
		Code:    "network_error",
		Message: err.Error(),
		Type:    llm.ErrorTypeNetwork,
		Cause:   err,
	}
}

// supportsTools checks if model supports function calling
func (c *Client) supportsTools(model string) bool {
	// For custom endpoints, use the pattern-based approach with enhanced GPT/OSS detection
	if c.baseURL != "" && c.baseURL != "https://api.openai.com/v1" {
		return getModelAttribute(model, toolsSupport)
	}

	// For official OpenAI API, use pattern-based approach but exclude the generic GPT/OSS patterns
	for _, attr := range toolsSupport {
		pattern := attr.Pattern.String()
		if strings.Contains(pattern, "(?i).*gpt.*") || strings.Contains(pattern, "(?i).*oss.*") {
			continue
		}
		if attr.Pattern.MatchString(model) {
			return attr.Value
		}
	}

	return false
}

var _ llm.Client = (*Client)(nil)
