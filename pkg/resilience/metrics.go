package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the resilience layer. It
// is safe for concurrent use and is shared by the resilient and cached
// clients.
type MetricsCollector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimiterTokens *prometheus.GaugeVec

	endpointHealthy *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	batchTasksTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, letting tests and multi-client setups isolate their metrics.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests made",
			},
			[]string{"provider", "outcome"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_retries_total",
				Help: "Total number of retry attempts beyond the first call",
			},
			[]string{"provider"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "llm_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"provider"},
		),
		rateLimiterTokens: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "llm_rate_limiter_tokens",
				Help: "Currently available rate limiter tokens",
			},
			[]string{"provider"},
		),
		endpointHealthy: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "llm_endpoint_healthy",
				Help: "Endpoint health (1=healthy, 0=unhealthy)",
			},
			[]string{"endpoint"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"provider"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"provider"},
		),
		batchTasksTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_batch_tasks_total",
				Help: "Total number of batch tasks executed",
			},
			[]string{"outcome"},
		),
	}
}

// RecordRequest records one finished request with its outcome label
// ("success" or "error") and duration.
func (mc *MetricsCollector) RecordRequest(provider, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requestsTotal.WithLabelValues(provider, outcome).Inc()
	mc.requestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRetries records retry attempts beyond the first call.
func (mc *MetricsCollector) RecordRetries(provider string, retries int) {
	if mc == nil || retries <= 0 {
		return
	}
	mc.retriesTotal.WithLabelValues(provider).Add(float64(retries))
}

// SetCircuitBreakerState exports the breaker state gauge.
func (mc *MetricsCollector) SetCircuitBreakerState(provider string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

// SetRateLimiterTokens exports the current token count.
func (mc *MetricsCollector) SetRateLimiterTokens(provider string, tokens float64) {
	if mc == nil {
		return
	}
	mc.rateLimiterTokens.WithLabelValues(provider).Set(tokens)
}

// SetEndpointHealth exports one endpoint's health bit.
func (mc *MetricsCollector) SetEndpointHealth(endpoint string, healthy bool) {
	if mc == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1.0
	}
	mc.endpointHealthy.WithLabelValues(endpoint).Set(v)
}

// RecordCacheHit counts a response cache hit.
func (mc *MetricsCollector) RecordCacheHit(provider string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(provider).Inc()
}

// RecordCacheMiss counts a response cache miss.
func (mc *MetricsCollector) RecordCacheMiss(provider string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(provider).Inc()
}

// RecordBatchTask counts one finished batch task by outcome.
func (mc *MetricsCollector) RecordBatchTask(outcome string) {
	if mc == nil {
		return
	}
	mc.batchTasksTotal.WithLabelValues(outcome).Inc()
}
