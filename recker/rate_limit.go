package recker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the client-wide token-bucket limiter installed
// by WithRateLimit.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained token refill rate.
	RequestsPerSecond float64

	// Burst is how many requests can fire back-to-back before the limiter
	// starts throttling.
	Burst int

	// WaitOnLimit blocks for a token (respecting the request's context
	// deadline) instead of failing immediately with ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig allows 100 req/s with a burst of 10, waiting rather
// than rejecting when the bucket is empty.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// ErrRateLimited is returned when a request is rejected because no token
// was available and WaitOnLimit was false.
var ErrRateLimited = errors.New("rate limit exceeded")

// rateLimitTransport throttles requests through a shared rate.Limiter before
// handing them to next.
type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
	wait    bool
}

func newRateLimitTransport(next http.RoundTripper, cfg RateLimitConfig) http.RoundTripper {
	if cfg.RequestsPerSecond <= 0 {
		return next
	}

	return &rateLimitTransport{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		wait:    cfg.WaitOnLimit,
	}
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.wait {
		if err := t.limiter.Wait(req.Context()); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, ErrRateLimited
		}
	} else if !t.limiter.Allow() {
		return nil, ErrRateLimited
	}

	return t.next.RoundTrip(req)
}

// GetStats reports the transport's current limiter state.
func (t *rateLimitTransport) GetStats() RateLimiterStats {
	return RateLimiterStats{
		Limit:           float64(t.limiter.Limit()),
		Burst:           t.limiter.Burst(),
		TokensAvailable: t.limiter.Tokens(),
	}
}

// ReserveN reports how long the caller must wait before n tokens are
// available, or -1 if the bucket can never satisfy the reservation.
func (t *rateLimitTransport) ReserveN(n int) time.Duration {
	r := t.limiter.ReserveN(time.Now(), n)
	if !r.OK() {
		return -1
	}
	return r.Delay()
}

// RateLimiterStats exposes a rateLimitTransport's limiter state for
// diagnostics.
type RateLimiterStats struct {
	Limit           float64
	Burst           int
	TokensAvailable float64
}

// RateLimitBehavior selects how NewRateLimitConfigWithBehavior's config
// reacts to an empty bucket.
type RateLimitBehavior int

const (
	// RateLimitWait blocks for a token to become available.
	RateLimitWait RateLimitBehavior = iota
	// RateLimitFailFast returns ErrRateLimited immediately.
	RateLimitFailFast
)

// NewRateLimitConfigWithBehavior builds a RateLimitConfig from a
// RateLimitBehavior instead of a raw bool.
func NewRateLimitConfigWithBehavior(rps float64, burst int, behavior RateLimitBehavior) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: rps,
		Burst:             burst,
		WaitOnLimit:       behavior == RateLimitWait,
	}
}

// RequestRateLimitConfig configures RequestBuilder.RateLimit/RateLimitConfig:
// a limiter keyed by operation name rather than shared client-wide.
type RequestRateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	WaitOnLimit       bool
}

// perOperationLimiters holds one rate.Limiter per operation name, created
// lazily the first time a RequestBuilder for that name calls RateLimit.
type perOperationLimiters struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

var operationLimiters = &perOperationLimiters{
	limiters: make(map[string]*rate.Limiter),
}

func (p *perOperationLimiters) getOrCreate(key string, rps float64, burst int) *rate.Limiter {
	p.mu.RLock()
	limiter, ok := p.limiters[key]
	p.mu.RUnlock()
	if ok {
		return limiter
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if limiter, ok := p.limiters[key]; ok {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(rps), burst)
	p.limiters[key] = limiter
	return limiter
}

// applyRequestRateLimit throttles key (an operation name) against cfg,
// creating its limiter on first use and reusing it for subsequent calls
// with the same key.
func applyRequestRateLimit(ctx context.Context, key string, cfg RequestRateLimitConfig) error {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	limiter := operationLimiters.getOrCreate(key, cfg.RequestsPerSecond, burst)

	if cfg.WaitOnLimit {
		return limiter.Wait(ctx)
	}
	if !limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}
