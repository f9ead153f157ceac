package recker

import (
	"context"
	"io"
	"net/http"
)

type maxSizeCtxKey struct{}

// withMaxResponseSize threads a per-request override of MaxResponseSize.
func withMaxResponseSize(ctx context.Context, limit int64) context.Context {
	return context.WithValue(ctx, maxSizeCtxKey{}, limit)
}

func maxResponseSizeFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(maxSizeCtxKey{}).(int64)
	return v, ok
}

// maxSizeTransport enforces spec §4.12: raise MaxSizeExceededError when a
// response's Content-Length already exceeds the limit, or when a running
// tally over a chunked/unknown-length body crosses it mid-stream.
type maxSizeTransport struct {
	base         http.RoundTripper
	defaultLimit int64
}

func newMaxSizeTransport(base http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	return &maxSizeTransport{base: base, defaultLimit: cfg.MaxResponseSize}
}

func (t *maxSizeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	limit := t.defaultLimit
	if v, ok := maxResponseSizeFromContext(req.Context()); ok && v > 0 {
		limit = v
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return resp, nil
	}

	if resp.ContentLength > 0 && resp.ContentLength > limit {
		resp.Body.Close()
		return nil, &MaxSizeExceededError{Limit: limit, Observed: resp.ContentLength, URL: req.URL.String()}
	}

	resp.Body = &sizeGuardedBody{
		ReadCloser: resp.Body,
		limit:      limit,
		url:        req.URL.String(),
	}
	return resp, nil
}

// sizeGuardedBody tallies bytes read from a chunked/unknown-length body and
// fails the read once the running total crosses the configured limit.
type sizeGuardedBody struct {
	io.ReadCloser
	limit    int64
	observed int64
	url      string
}

func (b *sizeGuardedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.observed += int64(n)
	if b.observed > b.limit {
		return n, &MaxSizeExceededError{Limit: b.limit, Observed: b.observed, URL: b.url}
	}
	return n, err
}
