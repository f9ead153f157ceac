package recker

import (
	"net/http"
)

// Middleware wraps a RoundTripper with additional behavior, consistent with
// the package's "plugin" idiom: each middleware receives the next (inner)
// RoundTripper and returns the RoundTripper the client ends up installing.
//
// Composition happens once at construction (or whenever Use/BeforeRequest/
// AfterResponse/OnError mutates the client), never per-request: steady-state
// dispatch performs no chain building.
type Middleware func(next http.RoundTripper) http.RoundTripper

// BeforeRequestHook may inspect or replace the outgoing request.
// Returning a non-nil *http.Request threads the replacement down the chain.
type BeforeRequestHook func(req *http.Request) (*http.Request, error)

// AfterResponseHook may inspect or replace the response.
type AfterResponseHook func(req *http.Request, resp *http.Response) (*http.Response, error)

// OnErrorHook may substitute a fallback response for an error. Returning a
// nil response lets the error propagate unchanged.
type OnErrorHook func(err error, req *http.Request) (*http.Response, error)

// OnRetryHook observes a retry decision made by the retry plugin.
type OnRetryHook func(attempt int, lastErr error, lastResp *http.Response, nextDelayMs int64)

// OnURLResolvedHook observes the final URL a request resolved to, after path
// parameter substitution and query assembly.
type OnURLResolvedHook func(resolved *http.Request)

// hookSet holds a client's registered hooks. The chain splices a single
// synthetic Middleware at the head of the pipeline when any list is
// non-empty (spec: "Hooks are spliced as a single synthetic middleware at the
// head when any hook is registered").
type hookSet struct {
	beforeRequest []BeforeRequestHook
	afterResponse []AfterResponseHook
	onError       []OnErrorHook
	onRetry       []OnRetryHook
	onURLResolved []OnURLResolvedHook
	http3         []Http3Hook
}

func (h *hookSet) isEmpty() bool {
	return len(h.beforeRequest) == 0 && len(h.afterResponse) == 0 && len(h.onError) == 0 &&
		len(h.onURLResolved) == 0
}

// hookTransport is the synthetic middleware realizing before/after/error hook
// dispatch. It sits outermost among user-visible hooks, directly beneath the
// logging middleware, per the §4.1 ordering.
type hookTransport struct {
	base  http.RoundTripper
	hooks *hookSet
}

func newHookTransport(base http.RoundTripper, hooks *hookSet) http.RoundTripper {
	if hooks.isEmpty() {
		return base
	}
	return &hookTransport{base: base, hooks: hooks}
}

func (t *hookTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for _, h := range t.hooks.beforeRequest {
		replaced, err := h(req)
		if err != nil {
			return t.dispatchError(err, req)
		}
		if replaced != nil {
			req = replaced
		}
	}

	for _, h := range t.hooks.onURLResolved {
		h(req)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return t.dispatchError(err, req)
	}

	for _, h := range t.hooks.afterResponse {
		replaced, herr := h(req, resp)
		if herr != nil {
			return t.dispatchError(herr, req)
		}
		if replaced != nil {
			resp = replaced
		}
	}

	return resp, nil
}

func (t *hookTransport) dispatchError(err error, req *http.Request) (*http.Response, error) {
	for _, h := range t.hooks.onError {
		fallback, ferr := h(err, req)
		if ferr != nil {
			return nil, ferr
		}
		if fallback != nil {
			return fallback, nil
		}
	}
	return nil, err
}

// buildPipeline composes the fixed middleware ordering from spec §4.1:
//
//	logging → RequestPool limiter → retry → dedup → cache → user-added →
//	compression → cookies → xsrf → max-size guard → HTTP error raiser →
//	Transport
//
// Each stage wraps the one listed to its right, so the leftmost runs first
// on descent. Cookies must attach before xsrf runs: xsrf copies its token
// from the request's already-attached Cookie header (see xsrf.go), so the
// cookie jar stage is the outer of the two, which is why cookies precede
// xsrf in the list above. The HTTP error raiser's
// position is modeled by RequestBuilder.execute() rather than a
// RoundTripper stage here; see httperror.go for why. The per-client rate
// limiter and request/response interceptors aren't part of the named
// ordering above; they're spliced near the pool limiter and hooks
// respectively, where both are no-ops unless configured.
func (cfg *internalConfig) buildPipeline(transport http.RoundTripper) http.RoundTripper {
	rt := transport

	rt = newMaxSizeTransport(rt, cfg)
	rt = newXSRFTransport(rt, cfg)
	rt = newCookieTransport(rt, cfg)
	rt = newCompressionTransport(rt, cfg)

	for _, m := range cfg.UserMiddlewares {
		rt = m(rt)
	}

	rt = newCacheTransport(rt, cfg)
	rt = newDedupTransport(rt, cfg)
	rt = newRetryTransport(rt, cfg)
	rt = newCircuitBreakerTransport(rt, cfg)
	rt = newRateLimitTransport(rt, cfg.RateLimitConfig)
	rt = newPoolTransport(rt, cfg)
	rt = newInterceptorTransport(rt, cfg.Interceptors)
	rt = newHookTransport(rt, &cfg.Hooks)
	rt = newOtelTransport(rt, cfg)
	rt = newPromTransport(rt, cfg.PromExporter)

	return rt
}
