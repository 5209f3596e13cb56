// Package resilience provides the reliability primitives shared by all LLM
// clients in this module: a circuit breaker, a retry executor with exponential
// backoff, a token-bucket rate limiter, a multi-endpoint failover manager, a
// bounded-concurrency batch processor and a Prometheus metrics collector.
//
// None of these primitives perform network I/O themselves; they wrap an
// externally supplied operation. Each component owns its mutable state behind
// a single lock and exposes only narrow read/update operations, so instances
// are safe for concurrent use without cross-component locking.
//
// The primitives are generic and independent of the llm package; the
// llm.ResilientClient composes them around any llm.Client.
package resilience
