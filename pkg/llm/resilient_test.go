package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorale/go-llm/pkg/resilience"
)

// stubClient is an in-package scripted client for exercising the decorators.
// Queued errors are served before queued responses; with nothing queued every
// call echoes a fixed response.
type stubClient struct {
	mu        sync.Mutex
	provider  string
	calls     int
	errs      []error
	responses []*ChatResponse
	streamFn  func(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error)
}

func newStubClient(provider string) *stubClient {
	return &stubClient{provider: provider}
}

func (s *stubClient) queueErrors(errs ...error) *stubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
	return s
}

func (s *stubClient) queueResponses(responses ...*ChatResponse) *stubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
	return s
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.responses) > 0 {
		resp := s.responses[0]
		s.responses = s.responses[1:]
		return resp, nil
	}
	return &ChatResponse{
		ID:    "stub-response",
		Model: req.Model,
		Choices: []Choice{
			{Message: NewTextMessage(RoleAssistant, "stub"), FinishReason: FinishReasonStop},
		},
	}, nil
}

func (s *stubClient) StreamChatCompletion(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	s.mu.Lock()
	s.calls++
	streamFn := s.streamFn
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	if streamFn != nil {
		return streamFn(ctx, req)
	}

	ch := make(chan StreamEvent, 2)
	ch <- NewDeltaEvent(0, &MessageDelta{Content: "stub"})
	ch <- NewDoneEvent(0, FinishReasonStop)
	close(ch)
	return ch, nil
}

func (s *stubClient) GetRemote() ClientRemoteInfo {
	return ClientRemoteInfo{Name: s.provider}
}

func (s *stubClient) GetModelInfo() ModelInfo {
	return ModelInfo{Name: "stub-model", Provider: s.provider, SupportsStreaming: true}
}

func (s *stubClient) Close() error { return nil }

var _ Client = (*stubClient)(nil)

func userRequest(text string) ChatRequest {
	return ChatRequest{
		Model:    "stub-model",
		Messages: []Message{NewTextMessage(RoleUser, text)},
	}
}

func TestResilientClientPassthrough(t *testing.T) {
	t.Parallel()

	inner := newStubClient("stub")
	client := NewResilientClient(inner)

	resp, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, "stub-response", resp.ID)
	assert.Equal(t, 1, inner.callCount())
}

func TestResilientClientRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	inner := newStubClient("stub").queueErrors(
		NewRateLimitError("throttled", 10*time.Millisecond),
		NewRateLimitError("throttled", 10*time.Millisecond),
	)
	client := NewResilientClient(inner,
		WithRetryPolicy(resilience.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}))

	start := time.Now()
	resp, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "stub-response", resp.ID)
	assert.Equal(t, 3, inner.callCount(), "two failures then a success")
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond, "provider-suggested waits are honored")
}

func TestResilientClientDoesNotRetryFatalErrors(t *testing.T) {
	t.Parallel()

	inner := newStubClient("stub").queueErrors(&Error{
		Code:       "invalid_request",
		Message:    "bad payload",
		Type:       ErrorTypeClient,
		StatusCode: 400,
	})
	client := NewResilientClient(inner,
		WithRetryPolicy(resilience.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}))

	_, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	require.Error(t, err)
	assert.Equal(t, 1, inner.callCount())
}

func TestResilientClientStampsAttemptsAndEndpoint(t *testing.T) {
	t.Parallel()

	inner := newStubClient("stub").queueErrors(
		&Error{Code: "boom", Message: "server down", Type: ErrorTypeServer, StatusCode: 503},
		&Error{Code: "boom", Message: "server down", Type: ErrorTypeServer, StatusCode: 503},
		&Error{Code: "boom", Message: "server down", Type: ErrorTypeServer, StatusCode: 503},
	)
	client := NewResilientClient(inner,
		WithRetryPolicy(resilience.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}))

	_, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	require.Error(t, err)

	llmErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, 3, llmErr.Attempts)
	assert.Equal(t, "stub", llmErr.Endpoint)
	assert.Equal(t, "boom", llmErr.Code)
}

func TestResilientClientCircuitBreakerFailsFast(t *testing.T) {
	t.Parallel()

	inner := newStubClient("stub").queueErrors(
		&Error{Code: "boom", Message: "down", Type: ErrorTypeServer, StatusCode: 500},
		&Error{Code: "boom", Message: "down", Type: ErrorTypeServer, StatusCode: 500},
	)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Hour,
	})
	client := NewResilientClient(inner, WithCircuitBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, err := client.ChatCompletion(context.Background(), userRequest("hello"))
		require.Error(t, err)
	}
	require.Equal(t, 2, inner.callCount())

	// The circuit is open now: requests are rejected without reaching the
	// provider.
	_, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	require.Error(t, err)
	llmErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, "circuit_open", llmErr.Code)
	assert.Equal(t, 2, inner.callCount(), "open circuit must not call the provider")
}

func TestResilientClientFatalErrorsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	inner := newStubClient("stub").queueErrors(
		&Error{Code: "bad", Message: "invalid", Type: ErrorTypeValidation},
		&Error{Code: "bad", Message: "invalid", Type: ErrorTypeValidation},
		&Error{Code: "bad", Message: "invalid", Type: ErrorTypeValidation},
	)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Hour,
	})
	client := NewResilientClient(inner, WithCircuitBreaker(breaker))

	for i := 0; i < 3; i++ {
		_, err := client.ChatCompletion(context.Background(), userRequest("hello"))
		require.Error(t, err)
	}

	// Caller mistakes say nothing about provider health.
	assert.Equal(t, resilience.StateClosed, breaker.State())
	assert.Equal(t, 3, inner.callCount())
}

func TestResilientClientFatalProbeDoesNotWedgeBreaker(t *testing.T) {
	t.Parallel()

	inner := newStubClient("stub").queueErrors(
		&Error{Code: "down", Message: "down", Type: ErrorTypeServer, StatusCode: 500},
		&Error{Code: "denied", Message: "bad key", Type: ErrorTypeAuth, StatusCode: 401},
	)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          20 * time.Millisecond,
		SuccessThreshold: 1,
	})
	client := NewResilientClient(inner, WithCircuitBreaker(breaker))

	// One transient failure opens the circuit.
	_, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	require.Error(t, err)
	require.Equal(t, resilience.StateOpen, breaker.State())

	// After the recovery timeout a probe is admitted and fails for a reason
	// that says nothing about endpoint health.
	time.Sleep(25 * time.Millisecond)
	_, err = client.ChatCompletion(context.Background(), userRequest("hello"))
	require.Error(t, err)
	require.Equal(t, 2, inner.callCount())

	// The probe slot came back: the next request is admitted and its success
	// closes the circuit.
	resp, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, "stub-response", resp.ID)
	assert.Equal(t, resilience.StateClosed, breaker.State())
	assert.Equal(t, 3, inner.callCount())
}

func TestResilientClientFailoverRotatesEndpoints(t *testing.T) {
	t.Parallel()

	primary := newStubClient("primary").queueErrors(
		&Error{Code: "down", Message: "primary down", Type: ErrorTypeServer, StatusCode: 500},
	)
	secondary := newStubClient("secondary")

	manager, err := resilience.NewFailoverManager(resilience.FailoverConfig{
		Endpoints:   []string{"primary", "secondary"},
		Strategy:    resilience.StrategyPriority,
		MaxFailures: 1,
		AutoRotate:  true,
	})
	require.NoError(t, err)

	client := NewResilientClient(primary,
		WithRetryPolicy(resilience.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}),
		WithFailover(manager, map[string]Client{
			"primary":   primary,
			"secondary": secondary,
		}))

	resp, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, "stub-response", resp.ID)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, secondary.callCount(), "the retry must land on the healthy endpoint")

	health := manager.Health()
	assert.Equal(t, resilience.Unhealthy, health[0].Status)
	assert.Equal(t, resilience.Healthy, health[1].Status)
}

func TestResilientClientRateLimiterAdmission(t *testing.T) {
	t.Parallel()

	inner := newStubClient("stub")
	limiter := resilience.NewRateLimiter(1, 0.001)
	client := NewResilientClient(inner, WithRateLimiter(limiter))

	// First request consumes the only token.
	_, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	require.NoError(t, err)

	// The second cannot be admitted before the context gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.ChatCompletion(ctx, userRequest("hello"))
	require.Error(t, err)
	llmErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeTimeout, llmErr.Type)
	assert.Equal(t, 1, inner.callCount())
}

func TestResilientClientStreamFailFastWhenOpen(t *testing.T) {
	t.Parallel()

	inner := newStubClient("stub").queueErrors(
		&Error{Code: "down", Message: "down", Type: ErrorTypeServer, StatusCode: 500},
	)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Hour,
	})
	client := NewResilientClient(inner, WithCircuitBreaker(breaker))

	_, err := client.StreamChatCompletion(context.Background(), userRequest("hello"))
	require.Error(t, err)

	_, err = client.StreamChatCompletion(context.Background(), userRequest("hello"))
	require.Error(t, err)
	llmErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, "circuit_open", llmErr.Code)
	assert.Equal(t, 1, inner.callCount())
}

func TestResilientClientStreamPassthrough(t *testing.T) {
	t.Parallel()

	inner := newStubClient("stub")
	client := NewResilientClient(inner)

	stream, err := client.StreamChatCompletion(context.Background(), userRequest("hello"))
	require.NoError(t, err)

	var events []StreamEvent
	for event := range stream {
		events = append(events, event)
	}
	require.Len(t, events, 2)
	assert.True(t, events[0].IsDelta())
	assert.True(t, events[1].IsDone())
}

func TestResilientClientDelegates(t *testing.T) {
	t.Parallel()

	inner := newStubClient("stub")
	client := NewResilientClient(inner)

	assert.Equal(t, "stub", client.GetRemote().Name)
	assert.Equal(t, "stub-model", client.GetModelInfo().Name)
	assert.NoError(t, client.Close())
}
