package recker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// ErrChaosInjected marks a request failure manufactured by ChaosConfig
// rather than a real transport error.
var ErrChaosInjected = errors.New("recker: chaos-injected network error")

// chaosTransport wraps next with ChaosConfig's synthetic failure modes.
type chaosTransport struct {
	next http.RoundTripper
	cfg  ChaosConfig
}

func newChaosTransport(next http.RoundTripper, cfg ChaosConfig) http.RoundTripper {
	return &chaosTransport{next: next, cfg: cfg}
}

func (t *chaosTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if t.cfg.ShouldInjectTimeout() {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if t.cfg.ShouldInjectError() {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: ErrChaosInjected}
	}

	if err := t.sleep(ctx); err != nil {
		return nil, err
	}

	return t.next.RoundTrip(req)
}

// sleep blocks for the configured chaos delay, returning early with the
// context's error if it's cancelled first.
func (t *chaosTransport) sleep(ctx context.Context) error {
	delay := t.cfg.Delay()
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
