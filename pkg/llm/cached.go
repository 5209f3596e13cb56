// LRU response caching keyed by canonical request fingerprints
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/quorale/go-llm/pkg/resilience"
)

// Fingerprint computes a canonical SHA-256 key for a request. The request is
// serialized, decoded into generic maps and re-encoded so that JSON key order
// can never influence the hash; byte-identical requests always collide and
// semantically different ones practically never do.
func Fingerprint(req ChatRequest) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	// encoding/json sorts map keys, which makes this encoding canonical.
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// CachedClient decorates a Client with a bounded LRU response cache. Hits
// skip the downstream call entirely and return a deep copy of the stored
// response; misses fall through, and the least-recently-used entry is evicted
// once capacity is exceeded.
//
// Streaming requests bypass the cache: a stream is consumed once and cannot
// be replayed from a snapshot.
//
// There is no single-flight guarantee: concurrent identical misses each hit
// the downstream provider.
type CachedClient struct {
	inner   Client
	cache   *lru.Cache[string, ChatResponse]
	logger  *zap.Logger
	metrics *resilience.MetricsCollector
	name    string
}

// CachedOption customizes a CachedClient.
type CachedOption func(*CachedClient)

// WithCacheLogger attaches a logger for cache diagnostics.
func WithCacheLogger(logger *zap.Logger) CachedOption {
	return func(c *CachedClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCacheMetrics attaches a metrics collector recording hits and misses.
func WithCacheMetrics(metrics *resilience.MetricsCollector) CachedOption {
	return func(c *CachedClient) {
		c.metrics = metrics
	}
}

// NewCachedClient wraps inner with an LRU cache of the given capacity.
func NewCachedClient(inner Client, capacity int, opts ...CachedOption) (*CachedClient, error) {
	if capacity <= 0 {
		return nil, &Error{
			Code:    "invalid_cache_capacity",
			Message: fmt.Sprintf("cache capacity must be positive, got %d", capacity),
			Type:    ErrorTypeValidation,
		}
	}

	cache, err := lru.New[string, ChatResponse](capacity)
	if err != nil {
		return nil, &Error{
			Code:    "cache_init_failed",
			Message: err.Error(),
			Type:    ErrorTypeValidation,
			Cause:   err,
		}
	}

	c := &CachedClient{
		inner:  inner,
		cache:  cache,
		logger: zap.NewNop(),
		name:   inner.GetModelInfo().Provider,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ChatCompletion serves byte-identical repeat requests from the cache and
// fills the cache on misses. Failed calls are never cached.
func (c *CachedClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Stream {
		return c.inner.ChatCompletion(ctx, req)
	}

	key, err := Fingerprint(req)
	if err != nil {
		// An unfingerprintable request is still a valid request.
		c.logger.Debug("request fingerprint failed, bypassing cache", zap.Error(err))
		return c.inner.ChatCompletion(ctx, req)
	}

	if stored, ok := c.cache.Get(key); ok {
		c.metrics.RecordCacheHit(c.name)
		copied := stored.DeepCopy()
		return &copied, nil
	}
	c.metrics.RecordCacheMiss(c.name)

	resp, err := c.inner.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, resp.DeepCopy())
	return resp, nil
}

// StreamChatCompletion always bypasses the cache.
func (c *CachedClient) StreamChatCompletion(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	return c.inner.StreamChatCompletion(ctx, req)
}

// GetRemote delegates to the wrapped client.
func (c *CachedClient) GetRemote() ClientRemoteInfo {
	return c.inner.GetRemote()
}

// GetModelInfo delegates to the wrapped client.
func (c *CachedClient) GetModelInfo() ModelInfo {
	return c.inner.GetModelInfo()
}

// Close releases the wrapped client. Cached entries are dropped with the
// process; there is nothing to flush.
func (c *CachedClient) Close() error {
	return c.inner.Close()
}

// Len returns the number of cached responses.
func (c *CachedClient) Len() int {
	return c.cache.Len()
}

// IsEmpty reports whether the cache holds no entries.
func (c *CachedClient) IsEmpty() bool {
	return c.cache.Len() == 0
}

// Clear drops every cached response.
func (c *CachedClient) Clear() {
	c.cache.Purge()
}

var _ Client = (*CachedClient)(nil)
