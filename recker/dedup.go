package recker

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

// DedupConfig controls the Dedup plugin (spec §4.8, Glossary "Dedup
// (single-flight)"). Disabled by default — idempotent GET collapsing is
// opt-in since it changes observable response-sharing semantics.
type DedupConfig struct {
	Enabled bool

	// Methods lists which HTTP methods are eligible for collapsing. Defaults
	// to GET and HEAD when left empty.
	Methods []string

	// CompletedTTL is how long a just-finished request's result stays
	// available to late joiners after the leader completes (spec §9 Open
	// Question: default 0 — no post-completion window, a joiner arriving
	// after completion starts its own request).
	CompletedTTL time.Duration
}

func (d DedupConfig) methods() []string {
	if len(d.Methods) > 0 {
		return d.Methods
	}
	return []string{http.MethodGet, http.MethodHead}
}

func (d DedupConfig) eligible(method string) bool {
	for _, m := range d.methods() {
		if m == method {
			return true
		}
	}
	return false
}

// dedupTransport collapses concurrent identical requests into one in-flight
// call via singleflight, keyed by GenerateCoalesceKey (spec §4.8). Every
// caller sharing a key receives an independent clone of the same response.
type dedupTransport struct {
	base    http.RoundTripper
	cfg     DedupConfig
	group   *coalesceGroups
	id      string
	metrics *poolMetrics

	mu        sync.Mutex
	completed map[string]dedupResult
}

type dedupResult struct {
	resp *http.Response
	body []byte
	err  error
	at   time.Time
}

func newDedupTransport(base http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if !cfg.DedupConfig.Enabled {
		return base
	}
	return &dedupTransport{
		base:      base,
		cfg:       cfg.DedupConfig,
		group:     clientCoalesceGroups,
		id:        cfg.dedupClientID(),
		metrics:   cfg.PoolMetrics,
		completed: make(map[string]dedupResult),
	}
}

func (t *dedupTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.cfg.eligible(req.Method) {
		return t.base.RoundTrip(req)
	}

	var bodyBytes []byte
	if req.GetBody != nil {
		if rc, err := req.GetBody(); err == nil {
			bodyBytes, _ = io.ReadAll(rc)
			rc.Close()
		}
	}
	key := GenerateCoalesceKey(req.Method, req.URL.String(), bodyBytes)

	if t.cfg.CompletedTTL > 0 {
		if r, ok := t.recentlyCompleted(key); ok {
			t.metrics.recordDedupCollapsed(req.Context())
			return cloneResponse(r.resp, r.body), r.err
		}
	}

	grp := t.group.getOrCreateGroup(t.id)
	v, shared, err := grp.Do(key, func() (any, error) {
		resp, rerr := t.base.RoundTrip(req)
		if rerr != nil {
			return dedupResult{err: rerr, at: time.Now()}, rerr
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		dr := dedupResult{resp: resp, body: body, at: time.Now()}
		if t.cfg.CompletedTTL > 0 {
			t.storeCompleted(key, dr)
		}
		return dr, nil
	})

	dr, _ := v.(dedupResult)
	if shared && dr.resp != nil {
		t.metrics.recordDedupCollapsed(req.Context())
	}
	if err != nil {
		return nil, err
	}
	return cloneResponse(dr.resp, dr.body), nil
}

func (t *dedupTransport) recentlyCompleted(key string) (dedupResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.completed[key]
	if !ok || time.Since(r.at) > t.cfg.CompletedTTL {
		return dedupResult{}, false
	}
	return r, true
}

func (t *dedupTransport) storeCompleted(key string, r dedupResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed[key] = r
	for k, v := range t.completed {
		if time.Since(v.at) > t.cfg.CompletedTTL {
			delete(t.completed, k)
		}
	}
}

// cloneResponse hands each dedup joiner an independent *http.Response backed
// by the same already-read body bytes, so each caller can read/close its own
// copy without racing the leader or other joiners.
func cloneResponse(src *http.Response, body []byte) *http.Response {
	if src == nil {
		return nil
	}
	clone := *src
	clone.Body = io.NopCloser(bytes.NewReader(body))
	return &clone
}
