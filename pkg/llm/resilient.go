// Resilient client composition: rate limiting, failover, circuit breaking and
// retries around any provider client
package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quorale/go-llm/pkg/resilience"
)

// ResilientClient decorates one or more provider clients with the resilience
// layer. Per request it applies, in order: token-bucket admission, failover
// endpoint selection, circuit-breaker gating and the retry executor. Terminal
// errors reach the caller enriched with the attempt count and the endpoint
// that served the final attempt.
//
// Every component is optional; an unconfigured ResilientClient is a plain
// pass-through.
type ResilientClient struct {
	inner     Client
	endpoints map[string]Client // set only when failover is configured

	policy   resilience.Policy
	classify resilience.Classifier
	breaker  *resilience.CircuitBreaker
	limiter  *resilience.RateLimiter
	failover *resilience.FailoverManager
	metrics  *resilience.MetricsCollector
	logger   *zap.Logger
}

// ResilientOption customizes a ResilientClient.
type ResilientOption func(*ResilientClient)

// WithRetryPolicy sets the retry schedule. Without it a single attempt is
// made.
func WithRetryPolicy(policy resilience.Policy) ResilientOption {
	return func(c *ResilientClient) {
		c.policy = policy
	}
}

// WithClassifier overrides the default error classifier.
func WithClassifier(classify resilience.Classifier) ResilientOption {
	return func(c *ResilientClient) {
		c.classify = classify
	}
}

// WithCircuitBreaker gates calls through the given breaker.
func WithCircuitBreaker(breaker *resilience.CircuitBreaker) ResilientOption {
	return func(c *ResilientClient) {
		c.breaker = breaker
	}
}

// WithRateLimiter applies token-bucket admission before each request.
func WithRateLimiter(limiter *resilience.RateLimiter) ResilientOption {
	return func(c *ResilientClient) {
		c.limiter = limiter
	}
}

// WithFailover routes each attempt through the endpoint the manager selects.
// The endpoints map binds every configured endpoint identifier to the client
// serving it.
func WithFailover(manager *resilience.FailoverManager, endpoints map[string]Client) ResilientOption {
	return func(c *ResilientClient) {
		c.failover = manager
		c.endpoints = endpoints
	}
}

// WithMetrics records request, retry, breaker and limiter metrics.
func WithMetrics(metrics *resilience.MetricsCollector) ResilientOption {
	return func(c *ResilientClient) {
		c.metrics = metrics
	}
}

// WithResilienceLogger attaches a logger for attempt-level diagnostics.
func WithResilienceLogger(logger *zap.Logger) ResilientOption {
	return func(c *ResilientClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewResilientClient wraps inner with the configured resilience components.
func NewResilientClient(inner Client, opts ...ResilientOption) *ResilientClient {
	c := &ResilientClient{
		inner:    inner,
		policy:   resilience.Policy{MaxAttempts: 1},
		classify: resilience.DefaultClassifier,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// circuitOpenError is the fail-fast result while the breaker refuses calls.
// It is transient: once the recovery timeout passes, probes go through.
func circuitOpenError(endpoint string) *Error {
	return &Error{
		Code:       "circuit_open",
		Message:    "circuit breaker is open, request rejected",
		Type:       ErrorTypeServer,
		StatusCode: 503,
		Endpoint:   endpoint,
	}
}

// ChatCompletion runs one request through the resilience stack.
func (c *ResilientClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	provider := c.inner.GetModelInfo().Provider
	start := time.Now()

	if err := c.admit(ctx, provider); err != nil {
		return nil, err
	}

	var lastEndpoint string
	resp, attempts, err := resilience.Execute(ctx, c.policy, c.classify, func(ctx context.Context) (*ChatResponse, error) {
		endpoint, target := c.selectEndpoint()
		lastEndpoint = endpoint

		if c.breaker != nil && !c.breaker.Allow() {
			c.observeBreaker(provider)
			return nil, circuitOpenError(endpoint)
		}

		resp, err := target.ChatCompletion(ctx, req)
		c.recordOutcome(err)
		c.observeBreaker(provider)
		if err != nil {
			c.logger.Debug("attempt failed",
				zap.String("endpoint", endpoint),
				zap.Error(err))
			return nil, err
		}
		return resp, nil
	})

	c.metrics.RecordRetries(provider, attempts-1)
	if err != nil {
		c.metrics.RecordRequest(provider, "error", time.Since(start))
		return nil, c.enrich(err, attempts, lastEndpoint)
	}
	c.metrics.RecordRequest(provider, "success", time.Since(start))
	return resp, nil
}

// StreamChatCompletion applies admission, failover and breaker gating to the
// stream setup. Established streams are not retried: a consumer may already
// have observed events, so a mid-stream failure surfaces as a terminal error
// event instead.
func (c *ResilientClient) StreamChatCompletion(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	provider := c.inner.GetModelInfo().Provider

	if err := c.admit(ctx, provider); err != nil {
		return nil, err
	}

	endpoint, target := c.selectEndpoint()
	if c.breaker != nil && !c.breaker.Allow() {
		c.observeBreaker(provider)
		return nil, circuitOpenError(endpoint)
	}

	stream, err := target.StreamChatCompletion(ctx, req)
	c.recordOutcome(err)
	c.observeBreaker(provider)
	if err != nil {
		return nil, c.enrich(err, 1, endpoint)
	}
	return stream, nil
}

// admit waits for rate-limiter admission, converting cancellation during the
// wait into a timeout error. The limiter itself never fails.
func (c *ResilientClient) admit(ctx context.Context, provider string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Acquire(ctx, 1); err != nil {
		return &Error{
			Code:    "rate_limit_wait_cancelled",
			Message: "cancelled while waiting for rate limiter admission",
			Type:    ErrorTypeTimeout,
			Cause:   err,
		}
	}
	c.metrics.SetRateLimiterTokens(provider, c.limiter.Available())
	return nil
}

// selectEndpoint asks the failover manager for the attempt's target. Without
// failover the single wrapped client serves everything.
func (c *ResilientClient) selectEndpoint() (string, Client) {
	if c.failover == nil {
		return c.inner.GetRemote().Name, c.inner
	}
	endpoint := c.failover.Current()
	if target, ok := c.endpoints[endpoint]; ok {
		return endpoint, target
	}
	// Endpoint list and client map disagree; fall back to the inner client
	// rather than failing the request.
	c.logger.Warn("no client registered for endpoint", zap.String("endpoint", endpoint))
	return endpoint, c.inner
}

// recordOutcome feeds breaker and failover health. Fatal caller mistakes
// (auth, validation, plain 4xx) say nothing about endpoint health, so only
// transient failures count against it.
func (c *ResilientClient) recordOutcome(err error) {
	if err == nil {
		if c.breaker != nil {
			c.breaker.RecordSuccess()
		}
		if c.failover != nil {
			c.failover.RecordSuccess()
			c.observeEndpoints()
		}
		return
	}

	if _, retryable := c.classify(err); !retryable {
		// The call still completed; hand back any half-open probe slot so a
		// fatal outcome cannot exhaust the breaker's probe budget.
		if c.breaker != nil {
			c.breaker.Release()
		}
		return
	}
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
	if c.failover != nil {
		c.failover.RecordFailure()
		c.observeEndpoints()
	}
}

func (c *ResilientClient) observeBreaker(provider string) {
	if c.breaker != nil {
		c.metrics.SetCircuitBreakerState(provider, c.breaker.State())
	}
}

func (c *ResilientClient) observeEndpoints() {
	if c.metrics == nil || c.failover == nil {
		return
	}
	for _, h := range c.failover.Health() {
		c.metrics.SetEndpointHealth(h.Endpoint, h.Status == resilience.Healthy)
	}
}

// enrich stamps attempt count and endpoint onto the terminal error.
func (c *ResilientClient) enrich(err error, attempts int, endpoint string) error {
	if llmErr, ok := err.(*Error); ok {
		enriched := *llmErr
		enriched.Attempts = attempts
		enriched.Endpoint = endpoint
		return &enriched
	}
	return &Error{
		Code:     "request_failed",
		Message:  err.Error(),
		Type:     ErrorTypeNetwork,
		Attempts: attempts,
		Endpoint: endpoint,
		Cause:    err,
	}
}

// GetRemote delegates to the wrapped client.
func (c *ResilientClient) GetRemote() ClientRemoteInfo {
	return c.inner.GetRemote()
}

// GetModelInfo delegates to the wrapped client.
func (c *ResilientClient) GetModelInfo() ModelInfo {
	return c.inner.GetModelInfo()
}

// Close releases every wrapped client.
func (c *ResilientClient) Close() error {
	var firstErr error
	if err := c.inner.Close(); err != nil {
		firstErr = err
	}
	for _, target := range c.endpoints {
		if target == c.inner {
			continue
		}
		if err := target.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Client = (*ResilientClient)(nil)
