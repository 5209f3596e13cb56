package deepseek

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cohesion-org/deepseek-go"

	"github.com/quorale/go-llm/pkg/llm"
)

// Client implements the llm.Client interface for DeepSeek
type Client struct {
	client   *deepseek.Client
	model    string
	provider string
	config   llm.ClientConfig

	// Health check caching
	lastHealthCheck  *time.Time
	lastHealthStatus *bool
}

// NewClient creates a new DeepSeek client
func NewClient(config llm.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &llm.Error{
			Code:    "missing_api_key",
			Message: "API key is required for DeepSeek",
			Type:    llm.ErrorTypeAuth,
		}
	}

	if config.Model == "" {
		return nil, &llm.Error{
			Code:    "missing_model",
			Message: "model is required for DeepSeek client",
			Type:    llm.ErrorTypeValidation,
		}
	}

	var opts []deepseek.Option

	if config.BaseURL != "" {
		if config.BaseURL == "http://" || config.BaseURL == "https://" {
			return nil, &llm.Error{
				Code:    "invalid_base_url",
				Message: "base URL cannot be just a protocol",
				Type:    llm.ErrorTypeValidation,
			}
		}
		opts = append(opts, deepseek.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, deepseek.WithTimeout(config.Timeout))
	}

	var client *deepseek.Client
	var err error

	if len(opts) > 0 {
		client, err = deepseek.NewClientWithOptions(config.APIKey, opts...)
		if err != nil {
			return nil, &llm.Error{
				Code:    "client_creation_error",
				Message: "Failed to create DeepSeek client: " + err.Error(),
				Type:    llm.ErrorTypeValidation,
				Cause:   err,
			}
		}
	} else {
		client = deepseek.NewClient(config.APIKey)
	}

	return &Client{
		client:   client,
		model:    config.Model,
		provider: "deepseek",
		config:   config,
	}, nil
}

// ChatCompletion performs a chat completion request
func (c *Client) ChatCompletion(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	deepseekReq := c.convertRequest(req)

	resp, err := c.client.CreateChatCompletion(ctx, &deepseekReq)
	if err != nil {
		return nil, c.convertError(err)
	}

	return c.convertResponse(*resp), nil
}

// StreamChatCompletion performs a streaming chat completion request
func (c *Client) StreamChatCompletion(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	deepseekReq := c.convertStreamRequest(req)

	stream, err := c.client.CreateChatCompletionStream(ctx, &deepseekReq)
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

			event := c.convertStreamEvent(response)
			if event == nil {
				continue
			}
			select {
			case ch <- *event:
			case <-ctx.Done():
				return
			}
			if event.IsTerminal() {
				return
			}
		}
	}()

	return ch, nil
}

// GetRemote returns information about the remote client
func (c *Client) GetRemote() llm.ClientRemoteInfo {
	info := llm.ClientRemoteInfo{
		Name: "deepseek",
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

// performHealthCheck performs a simple health check on the DeepSeek API
func (c *Client) performHealthCheck() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Simple test request with minimal parameters
	req := deepseek.ChatCompletionRequest{
		Model: c.model,
		Messages: []deepseek.ChatCompletionMessage{
			{
				Role:    "user",
				Content: "test",
			},
		},
		MaxTokens: 1,
	}

	_, err := c.client.CreateChatCompletion(ctx, &req)
	return err == nil
}

// GetModelInfo returns information about the model
func (c *Client) GetModelInfo() llm.ModelInfo {
	// Default capabilities for DeepSeek models
	return llm.ModelInfo{
		Name:              c.model,
		Provider:          c.provider,
		MaxTokens:         32768, // DeepSeek models typically support 32K context
		SupportsTools:     true,
		SupportsStreaming: true,
	}
}

// Close cleans up resources
func (c *Client) Close() error {
	// The deepseek-go client manages its own HTTP client internally and
	// exposes no Close method.
	c.client = nil
	return nil
}

// convertRequest converts our llm.ChatRequest to DeepSeek format
func (c *Client) convertRequest(req llm.ChatRequest) deepseek.ChatCompletionRequest {
	deepseekReq := deepseek.ChatCompletionRequest{
		Model:    c.model,
		Messages: c.convertMessages(req.Messages),
		Tools:    c.convertTools(req.Tools),
	}

	if req.Temperature != nil {
		deepseekReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		deepseekReq.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		deepseekReq.TopP = *req.TopP
	}

	return deepseekReq
}

// convertStreamRequest converts our llm.ChatRequest to DeepSeek streaming format
func (c *Client) convertStreamRequest(req llm.ChatRequest) deepseek.StreamChatCompletionRequest {
	deepseekReq := deepseek.StreamChatCompletionRequest{
		Model:    c.model,
		Messages: c.convertMessages(req.Messages),
		Tools:    c.convertTools(req.Tools),
		Stream:   true,
	}

	if req.Temperature != nil {
		deepseekReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		deepseekReq.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		deepseekReq.TopP = *req.TopP
	}

	return deepseekReq
}

// convertMessages converts our messages to DeepSeek format
func (c *Client) convertMessages(messages []llm.Message) []deepseek.ChatCompletionMessage {
	converted := make([]deepseek.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		converted[i] = deepseek.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCalls:  c.convertToolCallsToDeepSeek(msg.ToolCalls),
			ToolCallID: msg.ToolCallID,
		}
	}
	return converted
}

// convertTools converts our tools to DeepSeek format
func (c *Client) convertTools(tools []llm.Tool) []deepseek.Tool {
	if len(tools) == 0 {
		return nil
	}

	converted := make([]deepseek.Tool, len(tools))
	for i, tool := range tools {
		converted[i] = deepseek.Tool{
			Type: tool.Type,
			Function: deepseek.Function{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  c.convertToolParameters(tool.Function.Parameters),
			},
		}
	}
	return converted
}

// convertToolCallsToDeepSeek converts our ToolCalls to DeepSeek format
func (c *Client) convertToolCallsToDeepSeek(toolCalls []llm.ToolCall) []deepseek.ToolCall {
	if len(toolCalls) == 0 {
		return nil
	}

	deepseekToolCalls := make([]deepseek.ToolCall, len(toolCalls))
	for i, tc := range toolCalls {
		deepseekToolCalls[i] = deepseek.ToolCall{
			Index: i, // DeepSeek requires an index
			ID:    tc.ID,
			Type:  tc.Type,
			Function: deepseek.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return deepseekToolCalls
}

// convertResponse converts DeepSeek response to our format
func (c *Client) convertResponse(resp deepseek.ChatCompletionResponse) *llm.ChatResponse {
	choices := make([]llm.Choice, len(resp.Choices))
	for i, choice := range resp.Choices {
		choices[i] = llm.Choice{
			Index: choice.Index,
			Message: llm.Message{
				Role:      llm.MessageRole(choice.Message.Role),
				Content:   choice.Message.Content,
				ToolCalls: c.convertToolCallsFromDeepSeek(choice.Message.ToolCalls),
			},
			FinishReason: choice.FinishReason,
		}
	}

	return &llm.ChatResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Choices: choices,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

// convertToolCallsFromDeepSeek converts DeepSeek ToolCalls to our format
func (c *Client) convertToolCallsFromDeepSeek(toolCalls []deepseek.ToolCall) []llm.ToolCall {
	if len(toolCalls) == 0 {
		return nil
	}

	ourToolCalls := make([]llm.ToolCall, len(toolCalls))
	for i, tc := range toolCalls {
		ourToolCalls[i] = llm.ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			Function: llm.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	return ourToolCalls
}

// convertStreamEvent converts DeepSeek streaming response to llm.StreamEvent
func (c *Client) convertStreamEvent(resp *deepseek.StreamChatCompletionResponse) *llm.StreamEvent {
	if resp == nil || len(resp.Choices) == 0 {
		return nil
	}

	choice := resp.Choices[0]

	// Handle finish reason - if present, this is a done event
	if choice.FinishReason != "" {
		event := llm.NewDoneEvent(choice.Index, choice.FinishReason)
		return &event
	}

	delta := &llm.MessageDelta{
		Content: choice.Delta.Content,
	}
	hasContent := choice.Delta.Content != ""

	for _, tc := range choice.Delta.ToolCalls {
		delta.ToolCalls = append(delta.ToolCalls, llm.ToolCallDelta{
			Index: tc.Index,
			ID:    tc.ID,
			Type:  tc.Type,
			Function: &llm.ToolCallFunctionDelta{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
		hasContent = true
	}

	// Only emit delta events carrying actual content
	if !hasContent {
		return nil
	}
	event := llm.NewDeltaEvent(choice.Index, delta)
	return &event
}

// convertError converts DeepSeek error to our closed error taxonomy. The
// deepseek-go client surfaces errors as plain strings, so classification is
// message-based.
func (c *Client) convertError(err error) *llm.Error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "authentication"):
		return &llm.Error{
			Code:       "authentication_error",
			Message:    err.Error(),
			Type:       llm.ErrorTypeAuth,
			StatusCode: 401,
			Cause:      err,
		}
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return &llm.Error{
			Code:       "rate_limit_error",
			Message:    err.Error(),
			Type:       llm.ErrorTypeRateLimit,
			StatusCode: 429,
			Cause:      err,
		}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return &llm.Error{
			Code:    "timeout_error",
			Message: err.Error(),
			Type:    llm.ErrorTypeTimeout,
			Cause:   err,
		}
	case strings.Contains(msg, "validation") || strings.Contains(msg, "invalid"):
		return &llm.Error{
			Code:       "validation_error",
			Message:    err.Error(),
			Type:       llm.ErrorTypeValidation,
			StatusCode: 400,
			Cause:      err,
		}
	default:
		return &llm.Error{
			Code:    "api_error",
			Message: err.Error(),
			Type:    llm.ErrorTypeNetwork,
			Cause:   err,
		}
	}
}

// convertToolParameters converts generic parameters to DeepSeek FunctionParameters
func (c *Client) convertToolParameters(params interface{}) *deepseek.FunctionParameters {
	if params == nil {
		return nil
	}

	paramMap, ok := params.(map[string]interface{})
	if !ok {
		return &deepseek.FunctionParameters{Type: "object"}
	}

	result := &deepseek.FunctionParameters{Type: "object"}

	if typeVal, exists := paramMap["type"]; exists {
		if typeStr, ok := typeVal.(string); ok {
			result.Type = typeStr
		}
	}

	if propsVal, exists := paramMap["properties"]; exists {
		if propsMap, ok := propsVal.(map[string]interface{}); ok {
			result.Properties = propsMap
		}
	}

	if reqVal, exists := paramMap["required"]; exists {
		switch req := reqVal.(type) {
		case []interface{}:
			required := make([]string, 0, len(req))
			for _, item := range req {
				if str, ok := item.(string); ok {
					required = append(required, str)
				}
			}
			result.Required = required
		case []string:
			result.Required = req
		}
	}

	return result
}

var _ llm.Client = (*Client)(nil)
