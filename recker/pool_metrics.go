package recker

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// poolMetrics instruments the RequestPool (§4.4), the Cache plugin's
// disposition counts (§4.7), and the Dedup plugin's collapse count (§4.8).
// A nil *poolMetrics (meter construction failure) disables all recording.
type poolMetrics struct {
	waitDuration   metric.Float64Histogram
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	dedupCollapsed metric.Int64Counter
}

func newPoolMetrics(meter metric.Meter) *poolMetrics {
	if meter == nil {
		return nil
	}
	pm := &poolMetrics{}
	pm.waitDuration, _ = meter.Float64Histogram(
		"http.client.pool.wait_duration",
		metric.WithDescription("Time spent waiting for a RequestPool in-flight slot"),
		metric.WithUnit("s"),
	)
	pm.cacheHits, _ = meter.Int64Counter(
		"http.client.cache.hits",
		metric.WithDescription("Cache plugin hits by disposition"),
	)
	pm.cacheMisses, _ = meter.Int64Counter(
		"http.client.cache.misses",
		metric.WithDescription("Cache plugin misses"),
	)
	pm.dedupCollapsed, _ = meter.Int64Counter(
		"http.client.dedup.collapsed",
		metric.WithDescription("Requests collapsed into an in-flight peer by the dedup plugin"),
	)
	return pm
}

func (pm *poolMetrics) recordWait(ctx context.Context, d time.Duration) {
	if pm == nil || pm.waitDuration == nil {
		return
	}
	pm.waitDuration.Record(ctx, d.Seconds())
}

func (pm *poolMetrics) recordCacheHit(ctx context.Context) {
	if pm == nil || pm.cacheHits == nil {
		return
	}
	pm.cacheHits.Add(ctx, 1)
}

func (pm *poolMetrics) recordCacheMiss(ctx context.Context) {
	if pm == nil || pm.cacheMisses == nil {
		return
	}
	pm.cacheMisses.Add(ctx, 1)
}

func (pm *poolMetrics) recordDedupCollapsed(ctx context.Context) {
	if pm == nil || pm.dedupCollapsed == nil {
		return
	}
	pm.dedupCollapsed.Add(ctx, 1)
}

// =============================================================================
// Pool Stats Types
// =============================================================================

// PoolStats provides a snapshot of connection pool configuration.
// This is useful for debugging and monitoring connection pool settings.
//
// Example usage:
//
//	client := recker.New(
//	    recker.WithBaseURL("https://api.example.com"),
//	    recker.WithConfig(recker.DefaultConfig()),
//	)
//
//	stats := client.PoolStats()
//	fmt.Printf("Max idle conns: %d\n", stats.MaxIdleConns)
//	fmt.Printf("Max conns per host: %d\n", stats.MaxConnsPerHost)
//	fmt.Printf("Idle conn timeout: %s\n", stats.IdleConnTimeout)
type PoolStats struct {
	// MaxIdleConns is the maximum idle connections across all hosts.
	// Zero means use Go's default (currently 100).
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	// Zero means use Go's default (currently 2).
	MaxIdleConnsPerHost int

	// MaxConnsPerHost is the maximum total connections per host.
	// Zero means unlimited.
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept before closing.
	// Zero means connections are kept indefinitely.
	IdleConnTimeout time.Duration

	// DisableKeepAlives indicates if HTTP keep-alives are disabled.
	DisableKeepAlives bool
}

// =============================================================================
// Client Methods
// =============================================================================

// PoolStats returns the current connection pool configuration.
// This is useful for debugging and verifying pool settings.
//
// Returns empty PoolStats if transport is not accessible, which includes
// every client built by New: its pipeline stages and agent dispatch do not
// expose the underlying *http.Transport (see unwrapTransport).
func (c *Client) PoolStats() PoolStats {
	if c.httpClient == nil || c.httpClient.Transport == nil {
		return PoolStats{}
	}

	transport := unwrapTransport(c.httpClient.Transport)
	if transport == nil {
		return PoolStats{}
	}

	return PoolStats{
		MaxIdleConns:        transport.MaxIdleConns,
		MaxIdleConnsPerHost: transport.MaxIdleConnsPerHost,
		MaxConnsPerHost:     transport.MaxConnsPerHost,
		IdleConnTimeout:     transport.IdleConnTimeout,
		DisableKeepAlives:   transport.DisableKeepAlives,
	}
}

// =============================================================================
// Internal Utilities
// =============================================================================

// unwrapTransport traverses the transport chain to find the base http.Transport.
// It follows only wrappers that implement Unwrap() http.RoundTripper; none of
// recker's own stages (telemetry, breaker, retry, etc.) do, so for them it
// returns nil.
func unwrapTransport(rt http.RoundTripper) *http.Transport {
	for {
		switch t := rt.(type) {
		case *http.Transport:
			return t
		case interface{ Unwrap() http.RoundTripper }:
			rt = t.Unwrap()
		default:
			return nil
		}
	}
}
