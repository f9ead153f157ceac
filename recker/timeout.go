package recker

import (
	"context"
	"net/http"
	"net/http/httptrace"
	"time"
)

// PhasedTimeout is the structured alternative to a single total duration
// (spec §3 TimeoutSpec tagged union, §4.2.1). Only Request is enforced, as a
// wall-clock deadline over the whole dispatch; Connect, SecureConnect, Send
// and Response are not enforced as deadlines and only supply the limit
// reported in a TimeoutError for the phase in flight when that deadline
// fires. Lookup is not read. A spec without Request imposes no deadline.
type PhasedTimeout struct {
	Lookup        time.Duration // DNS resolution
	Connect       time.Duration // TCP connect
	SecureConnect time.Duration // TLS handshake
	Send          time.Duration // request body upload
	Response      time.Duration // time to response headers
	Request       time.Duration // whole-request wall clock
}

// TimeoutSpec is the tagged union for per-request timeouts: either a single
// total duration, or a PhasedTimeout breakdown. Exactly one should be set.
type TimeoutSpec struct {
	Total  time.Duration
	Phased *PhasedTimeout
}

// phaseClock records when each timeout phase began during one dispatch, so
// timeoutTransport can tag a context.DeadlineExceeded with the phase that was
// in flight and build the right TimeoutError.
type phaseClock struct {
	spec       TimeoutSpec
	start      time.Time
	phaseStart map[TimeoutPhase]time.Time
}

func newPhaseClock(spec TimeoutSpec) *phaseClock {
	return &phaseClock{spec: spec, start: time.Now(), phaseStart: make(map[TimeoutPhase]time.Time)}
}

// withClientTrace installs an httptrace.ClientTrace that marks phase
// boundaries so timeoutTransport can tell which phase was in flight when a
// deadline fires.
func (pc *phaseClock) withClientTrace(ctx context.Context) context.Context {
	return httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		DNSStart:             func(httptrace.DNSStartInfo) { pc.mark(PhaseConnect) },
		ConnectStart:         func(string, string) { pc.mark(PhaseConnect) },
		TLSHandshakeStart:    func() { pc.mark(PhaseSecureConnect) },
		WroteRequest:         func(httptrace.WroteRequestInfo) { pc.mark(PhaseResponse) },
		GotFirstResponseByte: func() { pc.mark(PhaseResponse) },
	})
}

func (pc *phaseClock) mark(p TimeoutPhase) {
	if _, ok := pc.phaseStart[p]; !ok {
		pc.phaseStart[p] = time.Now()
	}
}

// currentPhase returns the most recently started phase that hasn't been
// superseded, used to tag a timeout error with the right phase.
func (pc *phaseClock) currentPhase() TimeoutPhase {
	latest := TimeoutPhase("")
	var latestAt time.Time
	for p, t := range pc.phaseStart {
		if t.After(latestAt) {
			latestAt = t
			latest = p
		}
	}
	if latest == "" {
		return PhaseConnect
	}
	return latest
}

// limitMsFor returns the configured limit, in milliseconds, for the
// phase currently in flight (0 = unset).
func (pc *phaseClock) limitMsFor(p TimeoutPhase) int64 {
	if pc.spec.Phased == nil {
		return pc.spec.Total.Milliseconds()
	}
	switch p {
	case PhaseConnect:
		return pc.spec.Phased.Connect.Milliseconds()
	case PhaseSecureConnect:
		return pc.spec.Phased.SecureConnect.Milliseconds()
	case PhaseSend:
		return pc.spec.Phased.Send.Milliseconds()
	case PhaseResponse:
		return pc.spec.Phased.Response.Milliseconds()
	case PhaseRequest:
		return pc.spec.Phased.Request.Milliseconds()
	default:
		return 0
	}
}

// timeoutContext derives the single overall context deadline enforced for
// this dispatch: Phased.Request when it is set, otherwise Total, layered on
// the caller's context so that whichever deadline comes first aborts
// (spec §4.2.1).
func timeoutContext(ctx context.Context, spec TimeoutSpec) (context.Context, context.CancelFunc) {
	var budget time.Duration
	if spec.Phased != nil && spec.Phased.Request > 0 {
		budget = spec.Phased.Request
	} else if spec.Total > 0 {
		budget = spec.Total
	}
	if budget <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, budget)
}

// timeoutTransport enforces spec §4.2.1: maps a total or phased timeout spec
// onto a context deadline, and on expiry translates the failure into a
// phase-tagged TimeoutError instead of a bare context.DeadlineExceeded.
type timeoutTransport struct {
	base http.RoundTripper
}

func newTimeoutTransport(base http.RoundTripper) http.RoundTripper {
	return &timeoutTransport{base: base}
}

func (t *timeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	spec, ok := timeoutSpecFromContext(req.Context())
	if !ok {
		return t.base.RoundTrip(req)
	}

	pc := newPhaseClock(spec)
	ctx, cancel := timeoutContext(req.Context(), spec)
	defer cancel()
	ctx = pc.withClientTrace(ctx)
	req = req.WithContext(ctx)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			phase := pc.currentPhase()
			limit := pc.limitMsFor(phase)
			if limit == 0 {
				limit = spec.Total.Milliseconds()
			}
			return nil, &TimeoutError{Phase: phase, Timeout: limit, Method: req.Method, URL: req.URL.String()}
		}
		if ctx.Err() == context.Canceled && req.Context().Err() == nil {
			// Our own deadline fired as a Canceled race; treat the same as above.
			return nil, &TimeoutError{Phase: pc.currentPhase(), Timeout: pc.limitMsFor(pc.currentPhase()), Method: req.Method, URL: req.URL.String()}
		}
		return nil, err
	}
	return resp, nil
}

type timeoutCtxKey struct{}

func withTimeoutSpec(ctx context.Context, spec TimeoutSpec) context.Context {
	return context.WithValue(ctx, timeoutCtxKey{}, spec)
}

func timeoutSpecFromContext(ctx context.Context) (TimeoutSpec, bool) {
	spec, ok := ctx.Value(timeoutCtxKey{}).(TimeoutSpec)
	return spec, ok
}
