package recker

import (
	"math/rand/v2"
	"time"
)

// ChaosConfig injects synthetic latency, errors, and timeouts so a client's
// retry/breaker/hedge behavior can be exercised against failures on demand
// instead of waiting for a real outage.
//
//	client := recker.New(recker.WithChaos(recker.ChaosConfig{LatencyMs: 200, ErrorRate: 0.1}))
type ChaosConfig struct {
	// LatencyMs is a fixed delay applied to every request.
	LatencyMs int

	// LatencyJitterMs adds up to this many extra milliseconds on top of
	// LatencyMs, chosen uniformly at random per request.
	LatencyJitterMs int

	// ErrorRate is the probability (0-1) a request fails with a simulated
	// dial error instead of reaching next.
	ErrorRate float64

	// TimeoutRate is the probability (0-1) a request instead blocks until
	// its context is done, simulating an upstream that never responds.
	TimeoutRate float64
}

// Delay returns LatencyMs plus a random jitter component up to LatencyJitterMs.
func (c ChaosConfig) Delay() time.Duration {
	d := time.Duration(c.LatencyMs) * time.Millisecond
	if c.LatencyJitterMs > 0 {
		d += time.Duration(rand.IntN(c.LatencyJitterMs)) * time.Millisecond //nolint:gosec
	}
	return d
}

// ShouldInjectError rolls against ErrorRate.
func (c ChaosConfig) ShouldInjectError() bool {
	return c.ErrorRate > 0 && rand.Float64() < c.ErrorRate //nolint:gosec
}

// ShouldInjectTimeout rolls against TimeoutRate.
func (c ChaosConfig) ShouldInjectTimeout() bool {
	return c.TimeoutRate > 0 && rand.Float64() < c.TimeoutRate //nolint:gosec
}
