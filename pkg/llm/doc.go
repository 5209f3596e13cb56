// Package llm provides abstractions and interfaces for Large Language Model clients.
//
// This package defines the core interfaces that all LLM providers must implement,
// along with common types for requests, responses, messages, and streaming.
//
// The main components include:
//
// - Client interface: Core LLM client functionality
// - Message types: chat messages with tool call support
// - Configuration: Provider-agnostic configuration
// - Error handling: a closed error taxonomy with a retryable/fatal predicate
// - Streaming: incremental Server-Sent-Events decoding into typed events
// - Resilience: a composed client adding rate limiting, failover, circuit
//   breaking and retries on top of any provider (see pkg/resilience for the
//   underlying primitives)
// - Caching and batching: LRU response caching keyed by request fingerprint,
//   and bounded-concurrency batch execution
//
// Provider implementations are located in separate packages under /pkg/providers/
// to maintain clean separation of concerns and avoid import cycles.
package llm
