package resilience

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FailoverStrategy selects which healthy endpoint serves the next request.
type FailoverStrategy int

const (
	// StrategyPriority picks the first healthy endpoint in list order.
	StrategyPriority FailoverStrategy = iota
	// StrategyRoundRobin rotates among healthy endpoints.
	StrategyRoundRobin
	// StrategyRandom picks uniformly among healthy endpoints.
	StrategyRandom
	// StrategySticky keeps the current endpoint until it turns unhealthy,
	// then falls back to priority order.
	StrategySticky
)

// HealthStatus is the two-state health of an endpoint.
type HealthStatus int

const (
	Healthy HealthStatus = iota
	Unhealthy
)

func (s HealthStatus) String() string {
	if s == Healthy {
		return "healthy"
	}
	return "unhealthy"
}

// EndpointHealth is a read-only snapshot of one endpoint's health.
type EndpointHealth struct {
	Endpoint            string
	Status              HealthStatus
	ConsecutiveFailures int
	UnhealthySince      time.Time
}

// FailoverConfig configures a FailoverManager.
type FailoverConfig struct {
	// Endpoints is the ordered, non-empty endpoint list. Order defines
	// priority.
	Endpoints []string
	// Strategy picks among healthy endpoints when AutoRotate is on.
	Strategy FailoverStrategy
	// MaxFailures is how many consecutive failures mark an endpoint
	// unhealthy.
	MaxFailures int
	// RetryAfter is how long an unhealthy endpoint rests before it may
	// receive a recovery probe.
	RetryAfter time.Duration
	// AutoRotate enables selection; when false the manager pins whatever
	// endpoint was selected last and surfaces its failures instead of
	// hiding them behind rotation.
	AutoRotate bool
	// Logger receives health transition events. Defaults to a no-op logger.
	Logger *zap.Logger
}

type endpointState struct {
	id                  string
	status              HealthStatus
	consecutiveFailures int
	unhealthySince      time.Time
}

// FailoverManager tracks per-endpoint health and selects the endpoint each
// request should target. Success and failure reports always apply to the most
// recently selected endpoint.
type FailoverManager struct {
	mu     sync.Mutex
	config FailoverConfig
	logger *zap.Logger

	endpoints []*endpointState
	current   int // index of the last selected endpoint
	cursor    int // round-robin position
	rnd       *rand.Rand

	now func() time.Time
}

// NewFailoverManager creates a manager over a non-empty endpoint list.
func NewFailoverManager(config FailoverConfig) (*FailoverManager, error) {
	if len(config.Endpoints) == 0 {
		return nil, fmt.Errorf("resilience: failover requires at least one endpoint")
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = 3
	}
	if config.RetryAfter <= 0 {
		config.RetryAfter = 30 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	states := make([]*endpointState, len(config.Endpoints))
	for i, id := range config.Endpoints {
		states[i] = &endpointState{id: id, status: Healthy}
	}

	return &FailoverManager{
		config:    config,
		logger:    logger,
		endpoints: states,
		cursor:    -1,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}, nil
}

// Current selects and returns the endpoint the next request should use.
func (fm *FailoverManager) Current() string {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if !fm.config.AutoRotate {
		return fm.endpoints[fm.current].id
	}

	healthy := fm.healthyIndexes()
	if len(healthy) == 0 {
		fm.current = fm.recoveryProbeIndex()
		return fm.endpoints[fm.current].id
	}

	switch fm.config.Strategy {
	case StrategyRoundRobin:
		fm.current = fm.nextRoundRobin(healthy)
	case StrategyRandom:
		fm.current = healthy[fm.rnd.Intn(len(healthy))]
	case StrategySticky:
		if fm.endpoints[fm.current].status != Healthy {
			fm.current = healthy[0]
		}
	default: // StrategyPriority
		fm.current = healthy[0]
	}

	return fm.endpoints[fm.current].id
}

// RecordSuccess resets the current endpoint's failure count and restores it
// to healthy.
func (fm *FailoverManager) RecordSuccess() {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	ep := fm.endpoints[fm.current]
	ep.consecutiveFailures = 0
	if ep.status == Unhealthy {
		ep.status = Healthy
		ep.unhealthySince = time.Time{}
		fm.logger.Info("endpoint recovered", zap.String("endpoint", ep.id))
	}
}

// RecordFailure counts a failure against the current endpoint and marks it
// unhealthy once MaxFailures consecutive failures accumulate.
func (fm *FailoverManager) RecordFailure() {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	ep := fm.endpoints[fm.current]
	ep.consecutiveFailures++
	switch {
	case ep.status == Healthy && ep.consecutiveFailures >= fm.config.MaxFailures:
		ep.status = Unhealthy
		ep.unhealthySince = fm.now()
		fm.logger.Warn("endpoint marked unhealthy",
			zap.String("endpoint", ep.id),
			zap.Int("consecutive_failures", ep.consecutiveFailures))
	case ep.status == Unhealthy:
		// A failed recovery probe restarts the rest window; the endpoint must
		// not be re-probed on every selection.
		ep.unhealthySince = fm.now()
	}
}

// Health returns snapshots of every endpoint in configuration order.
func (fm *FailoverManager) Health() []EndpointHealth {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	out := make([]EndpointHealth, len(fm.endpoints))
	for i, ep := range fm.endpoints {
		out[i] = EndpointHealth{
			Endpoint:            ep.id,
			Status:              ep.status,
			ConsecutiveFailures: ep.consecutiveFailures,
			UnhealthySince:      ep.unhealthySince,
		}
	}
	return out
}

// healthyIndexes returns indexes of healthy endpoints in list order.
// Callers hold the mutex.
func (fm *FailoverManager) healthyIndexes() []int {
	var out []int
	for i, ep := range fm.endpoints {
		if ep.status == Healthy {
			out = append(out, i)
		}
	}
	return out
}

// recoveryProbeIndex picks the endpoint to probe when nothing is healthy:
// the oldest-unhealthy endpoint whose rest window has elapsed, or failing
// that the oldest-unhealthy endpoint outright. Selection never fails.
// Callers hold the mutex.
func (fm *FailoverManager) recoveryProbeIndex() int {
	now := fm.now()
	eligible := -1
	oldest := -1
	for i, ep := range fm.endpoints {
		if oldest < 0 || ep.unhealthySince.Before(fm.endpoints[oldest].unhealthySince) {
			oldest = i
		}
		if now.Sub(ep.unhealthySince) >= fm.config.RetryAfter {
			if eligible < 0 || ep.unhealthySince.Before(fm.endpoints[eligible].unhealthySince) {
				eligible = i
			}
		}
	}
	if eligible >= 0 {
		return eligible
	}
	return oldest
}

// nextRoundRobin advances the cursor to the next healthy index after its
// current position. Callers hold the mutex.
func (fm *FailoverManager) nextRoundRobin(healthy []int) int {
	for _, idx := range healthy {
		if idx > fm.cursor {
			fm.cursor = idx
			return idx
		}
	}
	// Wrapped around.
	fm.cursor = healthy[0]
	return healthy[0]
}
