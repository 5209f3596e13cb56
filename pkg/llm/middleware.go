package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Middleware defines the interface for LLM middleware components
type Middleware interface {
	// Name returns the middleware name for identification
	Name() string

	// ProcessRequest processes the request before sending to LLM
	ProcessRequest(ctx context.Context, req *ChatRequest) (*ChatRequest, error)

	// ProcessResponse processes the response after receiving from LLM
	ProcessResponse(ctx context.Context, req *ChatRequest, resp *ChatResponse, err error) (*ChatResponse, error)

	// ProcessStreamEvent processes streaming events
	ProcessStreamEvent(ctx context.Context, req *ChatRequest, event StreamEvent) (StreamEvent, error)
}

// MiddlewareChain manages a chain of LLM middleware
type MiddlewareChain struct {
	mu          sync.RWMutex
	middlewares []Middleware
}

// NewMiddlewareChain creates a new middleware chain
func NewMiddlewareChain(middlewares []Middleware) *MiddlewareChain {
	chain := &MiddlewareChain{}
	for _, middleware := range middlewares {
		chain.AddMiddleware(middleware)
	}
	return chain
}

// AddMiddleware adds a middleware to the chain
func (c *MiddlewareChain) AddMiddleware(middleware Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, middleware)
}

// RemoveMiddleware removes a middleware by name
func (c *MiddlewareChain) RemoveMiddleware(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, middleware := range c.middlewares {
		if middleware.Name() == name {
			c.middlewares = append(c.middlewares[:i], c.middlewares[i+1:]...)
			return true
		}
	}
	return false
}

// GetMiddlewareNames returns the names of all middleware in the chain
func (c *MiddlewareChain) GetMiddlewareNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.middlewares))
	for i, middleware := range c.middlewares {
		names[i] = middleware.Name()
	}
	return names
}

// snapshot copies the middleware list so processing never holds the lock.
func (c *MiddlewareChain) snapshot() []Middleware {
	c.mu.RLock()
	defer c.mu.RUnlock()
	middlewares := make([]Middleware, len(c.middlewares))
	copy(middlewares, c.middlewares)
	return middlewares
}

// ProcessRequest processes request through the middleware chain
func (c *MiddlewareChain) ProcessRequest(ctx context.Context, req *ChatRequest) (*ChatRequest, error) {
	currentReq := req
	var err error

	for _, middleware := range c.snapshot() {
		currentReq, err = middleware.ProcessRequest(ctx, currentReq)
		if err != nil {
			return nil, fmt.Errorf("middleware %s failed: %w", middleware.Name(), err)
		}
	}

	return currentReq, nil
}

// ProcessResponse processes response through the middleware chain, in reverse
// order. A failing middleware is skipped; the response keeps flowing.
func (c *MiddlewareChain) ProcessResponse(ctx context.Context, req *ChatRequest, resp *ChatResponse, err error) (*ChatResponse, error) {
	middlewares := c.snapshot()

	currentResp := resp
	for i := len(middlewares) - 1; i >= 0; i-- {
		processedResp, processErr := middlewares[i].ProcessResponse(ctx, req, currentResp, err)
		if processErr != nil {
			continue
		}
		currentResp = processedResp
	}

	return currentResp, err
}

// ProcessStreamEvent processes stream events through the middleware chain
func (c *MiddlewareChain) ProcessStreamEvent(ctx context.Context, req *ChatRequest, event StreamEvent) (StreamEvent, error) {
	currentEvent := event

	for _, middleware := range c.snapshot() {
		processedEvent, err := middleware.ProcessStreamEvent(ctx, req, currentEvent)
		if err != nil {
			continue
		}
		currentEvent = processedEvent
	}

	return currentEvent, nil
}

// LoggingMiddleware logs requests, responses and stream events with zap.
type LoggingMiddleware struct {
	logger *zap.Logger
}

// NewLoggingMiddleware creates a middleware logging request/response traffic.
func NewLoggingMiddleware(logger *zap.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingMiddleware{logger: logger}
}

func (l *LoggingMiddleware) Name() string { return "logging" }

func (l *LoggingMiddleware) ProcessRequest(ctx context.Context, req *ChatRequest) (*ChatRequest, error) {
	l.logger.Debug("chat request",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Bool("stream", req.Stream))
	return req, nil
}

func (l *LoggingMiddleware) ProcessResponse(ctx context.Context, req *ChatRequest, resp *ChatResponse, err error) (*ChatResponse, error) {
	if err != nil {
		l.logger.Warn("chat completion failed", zap.Error(err))
		return resp, nil
	}
	if resp != nil {
		l.logger.Debug("chat response",
			zap.String("id", resp.ID),
			zap.Int("choices", len(resp.Choices)),
			zap.Int("total_tokens", resp.Usage.TotalTokens))
	}
	return resp, nil
}

func (l *LoggingMiddleware) ProcessStreamEvent(ctx context.Context, req *ChatRequest, event StreamEvent) (StreamEvent, error) {
	if event.IsError() {
		l.logger.Warn("stream error event", zap.Error(event.Error))
	}
	return event, nil
}

// TimingMiddleware stamps response metadata with the request duration.
type TimingMiddleware struct {
	mu     sync.Mutex
	starts map[*ChatRequest]time.Time
	logger *zap.Logger
}

// NewTimingMiddleware creates a middleware that logs per-request latency.
func NewTimingMiddleware(logger *zap.Logger) *TimingMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimingMiddleware{
		starts: make(map[*ChatRequest]time.Time),
		logger: logger,
	}
}

func (t *TimingMiddleware) Name() string { return "timing" }

func (t *TimingMiddleware) ProcessRequest(ctx context.Context, req *ChatRequest) (*ChatRequest, error) {
	t.mu.Lock()
	t.starts[req] = time.Now()
	t.mu.Unlock()
	return req, nil
}

func (t *TimingMiddleware) ProcessResponse(ctx context.Context, req *ChatRequest, resp *ChatResponse, err error) (*ChatResponse, error) {
	t.mu.Lock()
	start, ok := t.starts[req]
	delete(t.starts, req)
	t.mu.Unlock()

	if ok {
		t.logger.Debug("chat completion timed",
			zap.String("model", req.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Bool("failed", err != nil))
	}
	return resp, nil
}

func (t *TimingMiddleware) ProcessStreamEvent(ctx context.Context, req *ChatRequest, event StreamEvent) (StreamEvent, error) {
	return event, nil
}

// EnhancedClient wraps an LLM client with a middleware chain
type EnhancedClient struct {
	client Client
	chain  *MiddlewareChain
}

// NewEnhancedClient creates a new enhanced LLM client with middleware
func NewEnhancedClient(client Client, chain []Middleware) *EnhancedClient {
	return &EnhancedClient{
		client: client,
		chain:  NewMiddlewareChain(chain),
	}
}

// ChatCompletion implements Client interface with middleware processing
func (e *EnhancedClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	processedReq, err := e.chain.ProcessRequest(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("middleware request processing failed: %w", err)
	}

	resp, err := e.client.ChatCompletion(ctx, *processedReq)

	processedResp, _ := e.chain.ProcessResponse(ctx, processedReq, resp, err)
	return processedResp, err
}

// StreamChatCompletion implements Client interface with middleware processing for streaming
func (e *EnhancedClient) StreamChatCompletion(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	processedReq, err := e.chain.ProcessRequest(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("middleware request processing failed: %w", err)
	}

	eventChan, err := e.client.StreamChatCompletion(ctx, *processedReq)
	if err != nil {
		_, _ = e.chain.ProcessResponse(ctx, processedReq, nil, err)
		return nil, err
	}

	processedChan := make(chan StreamEvent)

	go func() {
		defer close(processedChan)

		for event := range eventChan {
			processedEvent, processErr := e.chain.ProcessStreamEvent(ctx, processedReq, event)
			if processErr != nil {
				processedEvent = event
			}

			select {
			case processedChan <- processedEvent:
			case <-ctx.Done():
				return
			}
		}

		_, _ = e.chain.ProcessResponse(ctx, processedReq, nil, nil)
	}()

	return processedChan, nil
}

// GetRemote implements Client interface
func (e *EnhancedClient) GetRemote() ClientRemoteInfo {
	return e.client.GetRemote()
}

// GetModelInfo implements Client interface
func (e *EnhancedClient) GetModelInfo() ModelInfo {
	return e.client.GetModelInfo()
}

// Close implements Client interface
func (e *EnhancedClient) Close() error {
	return e.client.Close()
}

// AddMiddleware adds a middleware to the client's chain
func (e *EnhancedClient) AddMiddleware(middleware Middleware) {
	e.chain.AddMiddleware(middleware)
}

// RemoveMiddleware removes a middleware from the client's chain
func (e *EnhancedClient) RemoveMiddleware(name string) bool {
	return e.chain.RemoveMiddleware(name)
}

// ClientWithMiddleware wraps an existing LLM client with the middleware system.
// Wrapping an already-enhanced client extends its chain instead of nesting.
func ClientWithMiddleware(client Client, chain []Middleware) Client {
	if enhancedClient, ok := client.(*EnhancedClient); ok {
		for _, middleware := range chain {
			enhancedClient.AddMiddleware(middleware)
		}
		return enhancedClient
	}

	return NewEnhancedClient(client, chain)
}

var _ Client = (*EnhancedClient)(nil)
