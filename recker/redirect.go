package recker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// RedirectContext is passed to a BeforeRedirect hook (spec §3 RedirectContext).
type RedirectContext struct {
	From     *http.Request
	Response *http.Response
	To       *url.URL
	Hop      int
}

// BeforeRedirectHook may inspect or veto a redirect hop. Returning an error
// aborts the redirect chain and the error propagates as the request's result.
type BeforeRedirectHook func(rc *RedirectContext) error

const defaultMaxRedirects = 20

// redirectOptions carries the per-request redirect behavior threaded through
// the context (spec §4.2 item 2).
type redirectOptions struct {
	Follow         bool
	MaxRedirects   int
	BeforeRedirect BeforeRedirectHook
}

func defaultRedirectOptions() redirectOptions {
	return redirectOptions{Follow: true, MaxRedirects: defaultMaxRedirects}
}

type redirectCtxKey struct{}

func withRedirectOptions(ctx context.Context, ro redirectOptions) context.Context {
	return context.WithValue(ctx, redirectCtxKey{}, ro)
}

func redirectOptionsFromContext(ctx context.Context) redirectOptions {
	if ro, ok := ctx.Value(redirectCtxKey{}).(redirectOptions); ok {
		return ro
	}
	return defaultRedirectOptions()
}

// redirectTransport implements spec §4.2 item 2: recker never lets
// net/http auto-follow redirects (Client.CheckRedirect is forced to
// http.ErrUseLastResponse in New()); instead this transport performs the hop
// loop itself. Each hop goes back through the transports beneath it (agent
// selection, chaos, timeout); the middleware pipeline above it — cookies,
// XSRF, hooks — runs once for the original request and sees only the final
// response.
//
// redirectTransport sits directly above the base *http.Transport (by way of
// the AgentManager) and below everything else in buildPipeline, since the
// whole point is for outer plugins (cache, cookies, XSRF, compression, the
// HTTP-error raiser) to observe the final response in the chain, not an
// intermediate 3xx.
type redirectTransport struct {
	base http.RoundTripper
}

func newRedirectTransport(base http.RoundTripper) http.RoundTripper {
	return &redirectTransport{base: base}
}

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ro := redirectOptionsFromContext(req.Context())
	if !ro.Follow {
		return t.base.RoundTrip(req)
	}

	maxHops := ro.MaxRedirects
	if maxHops <= 0 {
		maxHops = defaultMaxRedirects
	}

	current := req
	var bodyBytes []byte
	if req.GetBody != nil {
		if b, err := req.GetBody(); err == nil {
			bodyBytes, _ = io.ReadAll(b)
			b.Close()
		}
	}

	for hop := 0; ; hop++ {
		resp, err := t.base.RoundTrip(current)
		if err != nil {
			return nil, err
		}

		if !isRedirectStatus(resp.StatusCode) || resp.Header.Get("Location") == "" {
			return resp, nil
		}

		if hop >= maxHops {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, &ValidationError{Field: "redirects", Value: fmt.Sprintf("exceeded MaxRedirects=%d", maxHops)}
		}

		loc, err := current.URL.Parse(resp.Header.Get("Location"))
		if err != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, &ValidationError{Field: "Location", Value: resp.Header.Get("Location")}
		}

		if ro.BeforeRedirect != nil {
			rc := &RedirectContext{From: current, Response: resp, To: loc, Hop: hop + 1}
			if herr := ro.BeforeRedirect(rc); herr != nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				return nil, herr
			}
		}

		next, nerr := buildRedirectRequest(current, resp, loc, bodyBytes)

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if nerr != nil {
			return nil, nerr
		}

		current = next
	}
}

func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// buildRedirectRequest realizes spec §4.2 item 2's per-status rewrite rules:
// 303 always rewrites to GET with no body; 301/302 rewrite to GET only when
// the original method was not GET/HEAD; 307/308 preserve method and body.
func buildRedirectRequest(prev *http.Request, resp *http.Response, loc *url.URL, bodyBytes []byte) (*http.Request, error) {
	method := prev.Method
	var body io.ReadCloser
	var getBody func() (io.ReadCloser, error)
	contentLength := prev.ContentLength

	switch resp.StatusCode {
	case http.StatusSeeOther:
		method = http.MethodGet
		body, getBody, contentLength = nil, nil, 0
	case http.StatusMovedPermanently, http.StatusFound:
		if prev.Method != http.MethodGet && prev.Method != http.MethodHead {
			method = http.MethodGet
			body, getBody, contentLength = nil, nil, 0
		} else if bodyBytes != nil {
			body, getBody = newReplayBody(bodyBytes)
		}
	case http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		if bodyBytes != nil {
			body, getBody = newReplayBody(bodyBytes)
		}
	}

	next, err := http.NewRequestWithContext(prev.Context(), method, loc.String(), body)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: loc.String(), Err: err}
	}
	next.GetBody = getBody
	next.ContentLength = contentLength
	next.Header = prev.Header.Clone()
	if method != prev.Method {
		next.Header.Del("Content-Type")
		next.Header.Del("Content-Length")
	}
	return next, nil
}

func newReplayBody(b []byte) (io.ReadCloser, func() (io.ReadCloser, error)) {
	getBody := func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	rc, _ := getBody()
	return rc, getBody
}
