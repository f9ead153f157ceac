package recker

import "time"

// AdaptiveHedgeConfig hedges against the endpoint's own recent latency
// instead of a fixed delay: once Tracker has MinSamples for the operation,
// the hedge fires at its TargetPercentile latency; until then it falls back
// to FallbackDelay.
//
//	client.Request("GetUser").
//	    AdaptiveHedge(recker.DefaultAdaptiveHedgeConfig()).
//	    Get(ctx, "/users/123")
type AdaptiveHedgeConfig struct {
	// TargetPercentile selects the hedge delay once enough samples exist
	// (0.95 means hedge after the endpoint's observed P95). Default 0.95.
	TargetPercentile float64

	// WindowSize is not applied by GetDelay: the samples kept per endpoint
	// are bounded by the Tracker's own capacity (100 for
	// DefaultLatencyTracker). Default 100.
	WindowSize int

	// MinSamples gates when percentile-based delay kicks in. The Tracker's
	// own minimum (see NewLatencyTracker) applies as well. Default 10.
	MinSamples int

	// FallbackDelay is used before MinSamples is reached. Default 50ms.
	FallbackDelay time.Duration

	// MaxHedges caps concurrent duplicate requests. Default 1.
	MaxHedges int

	// Tracker supplies the latency history; nil uses DefaultLatencyTracker().
	Tracker *LatencyTracker
}

// DefaultAdaptiveHedgeConfig returns reasonable defaults for adaptive hedging.
func DefaultAdaptiveHedgeConfig() AdaptiveHedgeConfig {
	return AdaptiveHedgeConfig{
		TargetPercentile: 0.95,
		WindowSize:       100,
		MinSamples:       10,
		FallbackDelay:    50 * time.Millisecond,
		MaxHedges:        1,
	}
}

// Enabled returns true if the config is valid for adaptive hedging.
func (c AdaptiveHedgeConfig) Enabled() bool {
	return c.FallbackDelay > 0 && c.MaxHedges > 0
}

// GetTracker returns the configured tracker or the default.
func (c AdaptiveHedgeConfig) GetTracker() *LatencyTracker {
	if c.Tracker != nil {
		return c.Tracker
	}
	return DefaultLatencyTracker()
}

// GetDelay calculates the hedge delay for an endpoint.
// Returns the percentile-based delay if enough samples exist, otherwise FallbackDelay.
func (c AdaptiveHedgeConfig) GetDelay(endpoint string) time.Duration {
	tracker := c.GetTracker()
	if c.MinSamples > 0 && tracker.Count(endpoint) < c.MinSamples {
		return c.FallbackDelay
	}
	if delay, ok := tracker.Percentile(endpoint, c.TargetPercentile); ok {
		return delay
	}
	return c.FallbackDelay
}
