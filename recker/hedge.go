package recker

import "time"

// HedgeConfig configures per-request hedging (spec §9 resilience
// enrichments): once Delay elapses without a response, a duplicate request
// fires in parallel and the first response back wins; the rest are
// cancelled. Only safe for idempotent operations — a POST that creates a
// resource can end up created twice.
//
//	client.Request("GetUser").
//	    HedgeConfig(recker.HedgeConfig{Delay: 50 * time.Millisecond, MaxHedges: 1}).
//	    Get(ctx, "/users/123")
type HedgeConfig struct {
	// Delay before firing a hedge if the original hasn't returned yet.
	// Zero disables hedging. Tune to roughly the target's P95 latency.
	Delay time.Duration

	// MaxHedges caps how many duplicate requests can be in flight at once
	// alongside the original. Zero disables hedging.
	MaxHedges int
}

// Enabled returns true if hedging is configured.
func (c HedgeConfig) Enabled() bool {
	return c.Delay > 0 && c.MaxHedges > 0
}
