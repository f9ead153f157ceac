package recker

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ConcurrencyConfig normalizes the client-construction concurrency option
// (spec §3 "ConcurrencyConfig (normalized)"). A zero value for Max or
// RequestsPerInterval means "unlimited" (the gate is omitted); both zero
// disables RequestPool entirely.
type ConcurrencyConfig struct {
	// Max is the global in-flight request ceiling. Zero means unbounded.
	Max int

	// RequestsPerInterval is the token-bucket capacity refilled once per
	// Interval. Zero means unbounded.
	RequestsPerInterval int

	// Interval is the token-bucket refill period. Ignored when
	// RequestsPerInterval is zero.
	Interval time.Duration

	// Agent configures the connection pool (§4.3).
	Agent AgentConfig

	// Runner configures the default RequestRunner batch executor (§4.5).
	Runner RunnerConfig
}

// AgentConfig controls AgentManager pool sizing and dial behavior.
type AgentConfig struct {
	// Connections is the number of pooled connections per agent key. A value
	// of 0 means "auto": clamp(ConcurrencyConfig.Max/2, 1, 64).
	Connections int

	// PerDomainPooling, when true, keys pools by origin; otherwise all
	// requests share a single pool.
	PerDomainPooling bool

	KeepAlive        bool
	KeepAliveTimeout time.Duration
	Pipelining       bool
}

// RunnerConfig holds RequestRunner defaults (§4.5), usable as the default for
// Client.Batch/Multi when per-call options omit them.
type RunnerConfig struct {
	Concurrency int
	Retries     int
	RetryDelay  time.Duration
}

// IsUnbounded reports whether the concurrency config installs no gates at
// all, per spec §4.4 ("when both are ∞, the middleware is not installed").
func (c ConcurrencyConfig) IsUnbounded() bool {
	return c.Max <= 0 && c.RequestsPerInterval <= 0
}

// resolveAgentConnections implements spec §4.3's "auto" → clamp(max/2, 1, 64).
func (c ConcurrencyConfig) resolveAgentConnections() int {
	if c.Agent.Connections > 0 {
		return c.Agent.Connections
	}
	n := c.Max / 2
	if n < 1 {
		n = 1
	}
	if n > 64 {
		n = 64
	}
	return n
}

// requestPool is the global in-flight semaphore + token-bucket limiter
// middleware (spec §4.4, Glossary "Pool (RequestPool)"). Both gates must
// admit before the downstream RoundTripper runs.
type requestPool struct {
	sem     chan struct{} // nil when Max <= 0 (unbounded)
	limiter *rate.Limiter // nil when RequestsPerInterval <= 0 (unbounded)
	metrics *poolMetrics
}

func newRequestPool(cfg ConcurrencyConfig, m *poolMetrics) *requestPool {
	p := &requestPool{metrics: m}
	if cfg.Max > 0 {
		p.sem = make(chan struct{}, cfg.Max)
	}
	if cfg.RequestsPerInterval > 0 && cfg.Interval > 0 {
		ratePerSec := float64(cfg.RequestsPerInterval) / cfg.Interval.Seconds()
		p.limiter = rate.NewLimiter(rate.Limit(ratePerSec), cfg.RequestsPerInterval)
	}
	return p
}

// acquire blocks until both gates admit the request, or the request's context
// is canceled first. On cancellation, no token or slot is consumed — the
// function returns promptly without having touched the semaphore.
func (p *requestPool) acquire(req *http.Request) (release func(), err error) {
	ctx := req.Context()

	if p.limiter != nil {
		if werr := p.limiter.Wait(ctx); werr != nil {
			return nil, &CancellationError{Method: req.Method, URL: req.URL.String(), Err: werr}
		}
	}

	if p.sem == nil {
		return func() {}, nil
	}

	waitStart := time.Now()
	select {
	case p.sem <- struct{}{}:
		if p.metrics != nil {
			p.metrics.recordWait(ctx, time.Since(waitStart))
		}
		return func() { <-p.sem }, nil
	case <-ctx.Done():
		return nil, &CancellationError{Method: req.Method, URL: req.URL.String(), Err: ctx.Err()}
	}
}

// poolTransport installs the requestPool as the outermost gate below hooks,
// per the §4.1 ordering ("the limiter gates everything").
type poolTransport struct {
	base http.RoundTripper
	pool *requestPool
}

func newPoolTransport(base http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if cfg.Concurrency.IsUnbounded() {
		return base
	}
	return &poolTransport{base: base, pool: newRequestPool(cfg.Concurrency, cfg.PoolMetrics)}
}

func (t *poolTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	release, err := t.pool.acquire(req)
	if err != nil {
		return nil, err
	}
	defer release()
	return t.base.RoundTrip(req)
}
