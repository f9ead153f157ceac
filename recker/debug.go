package recker

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// debugLogger is the package-level zerolog logger backing debug-mode output
// (curl equivalents, request/response summaries) when WithDebug is set.
var debugLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// curlEquivalent renders req (and its already-drained body, if any) as a
// copy-pasteable curl invocation. Headers are emitted verbatim, including
// Authorization — this is a debugging aid, not a redaction layer.
func curlEquivalent(req *http.Request, body []byte) string {
	parts := []string{"curl"}

	if req.Method != http.MethodGet {
		parts = append(parts, "-X", req.Method)
	}

	parts = append(parts, fmt.Sprintf("'%s'", req.URL.String()))

	headerKeys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		headerKeys = append(headerKeys, k)
	}
	sort.Strings(headerKeys)

	for _, k := range headerKeys {
		for _, v := range req.Header[k] {
			parts = append(parts, "-H", fmt.Sprintf("'%s: %s'", k, v))
		}
	}

	if len(body) > 0 {
		escaped := strings.ReplaceAll(string(body), "'", "'\\''")
		parts = append(parts, "-d", fmt.Sprintf("'%s'", escaped))
	}

	return strings.Join(parts, " ")
}

// latencyProbe accumulates httptrace checkpoints across a single request's
// lifetime so EnableTrace() can surface a TraceInfo breakdown on the
// returned Response.
type latencyProbe struct {
	dnsStart   time.Time
	dnsEnd     time.Time
	connStart  time.Time
	connEnd    time.Time
	tlsStart   time.Time
	tlsEnd     time.Time
	reqStart   time.Time
	firstByte  time.Time
	totalStart time.Time
}

// httpTrace wires the probe's checkpoints into an httptrace.ClientTrace for
// installation via httptrace.WithClientTrace.
func (p *latencyProbe) httpTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(_ httptrace.DNSStartInfo) {
			p.dnsStart = time.Now()
		},
		DNSDone: func(_ httptrace.DNSDoneInfo) {
			p.dnsEnd = time.Now()
		},
		ConnectStart: func(_, _ string) {
			p.connStart = time.Now()
		},
		ConnectDone: func(_, _ string, _ error) {
			p.connEnd = time.Now()
		},
		TLSHandshakeStart: func() {
			p.tlsStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			p.tlsEnd = time.Now()
		},
		WroteRequest: func(_ httptrace.WroteRequestInfo) {
			p.reqStart = time.Now()
		},
		GotFirstResponseByte: func() {
			p.firstByte = time.Now()
		},
	}
}

// snapshot renders the probe's checkpoints into the public TraceInfo shape.
// A stage that never fired reports "0s", except TLS, which is left empty
// (e.g. on a plaintext connection).
func (p *latencyProbe) snapshot() *TraceInfo {
	info := &TraceInfo{}

	if !p.dnsStart.IsZero() && !p.dnsEnd.IsZero() {
		info.DNSLookup = p.dnsEnd.Sub(p.dnsStart).String()
	} else {
		info.DNSLookup = "0s"
	}

	if !p.connStart.IsZero() && !p.connEnd.IsZero() {
		info.ConnTime = p.connEnd.Sub(p.connStart).String()
	} else {
		info.ConnTime = "0s"
	}

	if !p.tlsStart.IsZero() && !p.tlsEnd.IsZero() {
		info.TLSHandshake = p.tlsEnd.Sub(p.tlsStart).String()
	} else {
		info.TLSHandshake = ""
	}

	if !p.reqStart.IsZero() && !p.firstByte.IsZero() {
		info.ServerTime = p.firstByte.Sub(p.reqStart).String()
	} else {
		info.ServerTime = "0s"
	}

	if !p.totalStart.IsZero() {
		info.TotalTime = time.Since(p.totalStart).String()
	} else {
		info.TotalTime = "0s"
	}

	return info
}

// logOutboundRequest emits a debug-level summary of req before it's sent.
func logOutboundRequest(logger zerolog.Logger, req *http.Request) {
	logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("host", req.Host).
		Msg("HTTP request")
}

// logInboundResponse emits a debug-level summary of resp once it's received.
func logInboundResponse(logger zerolog.Logger, resp *http.Response, duration time.Duration) {
	logger.Debug().
		Int("status", resp.StatusCode).
		Str("status_text", resp.Status).
		Dur("duration_ms", duration).
		Int64("content_length", resp.ContentLength).
		Msg("HTTP response")
}
