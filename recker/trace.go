package recker

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http/httptrace"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Classifications recorded under the error.type attribute (OTel semconv).
const (
	ErrorTypeTimeout           = "timeout"
	ErrorTypeConnectionRefused = "connection_refused"
	ErrorTypeDNSError          = "dns_error"
	ErrorTypeTLSError          = "tls_error"
	ErrorTypeCancelled         = "cancelled"
	ErrorTypeConnectionReset   = "connection_reset"
	ErrorTypeEOF               = "eof"
	ErrorTypeUnknown           = "unknown"
)

// connTimeline accumulates the httptrace.ClientTrace checkpoints for one
// request so the telemetry transport can turn them into span events and
// histogram recordings once the round trip completes.
type connTimeline struct {
	dnsStart time.Time
	dnsDone  time.Time

	connectStart time.Time
	connectDone  time.Time

	tlsStart time.Time
	tlsDone  time.Time

	getConnTime       time.Time
	gotConnTime       time.Time
	wroteRequestTime  time.Time
	firstResponseTime time.Time

	connReused  bool
	connRemote  string
	connLocal   string
	connIdle    bool
	protocolVer string

	dnsAddrs []string
}

// newConnTimelineTrace builds an httptrace.ClientTrace that records every
// checkpoint into tl.
func newConnTimelineTrace(tl *connTimeline) *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(_ string) {
			tl.getConnTime = time.Now()
		},
		GotConn: func(info httptrace.GotConnInfo) {
			tl.gotConnTime = time.Now()
			tl.connReused = info.Reused
			tl.connIdle = info.WasIdle
			if info.Conn != nil {
				if addr := info.Conn.RemoteAddr(); addr != nil {
					tl.connRemote = addr.String()
				}
				if addr := info.Conn.LocalAddr(); addr != nil {
					tl.connLocal = addr.String()
				}
			}
		},
		DNSStart: func(_ httptrace.DNSStartInfo) {
			tl.dnsStart = time.Now()
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			tl.dnsDone = time.Now()
			if info.Addrs != nil {
				tl.dnsAddrs = make([]string, 0, len(info.Addrs))
				for _, addr := range info.Addrs {
					tl.dnsAddrs = append(tl.dnsAddrs, addr.String())
				}
			}
		},
		ConnectStart: func(_, _ string) {
			tl.connectStart = time.Now()
		},
		ConnectDone: func(_, _ string, _ error) {
			tl.connectDone = time.Now()
		},
		TLSHandshakeStart: func() {
			tl.tlsStart = time.Now()
		},
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			tl.tlsDone = time.Now()
			tl.protocolVer = state.NegotiatedProtocol
		},
		WroteRequest: func(_ httptrace.WroteRequestInfo) {
			tl.wroteRequestTime = time.Now()
		},
		GotFirstResponseByte: func() {
			tl.firstResponseTime = time.Now()
		},
	}
}

// emitSpanEvents attaches one span event per network stage that actually
// fired. A stage whose start/done pair never populated (e.g. TLS on a
// plaintext dial) is silently skipped rather than emitted as a zero-length
// event.
func (tl *connTimeline) emitSpanEvents(span trace.Span) {
	if !tl.dnsStart.IsZero() && !tl.dnsDone.IsZero() {
		span.AddEvent("dns.start", trace.WithTimestamp(tl.dnsStart))
		span.AddEvent("dns.done", trace.WithTimestamp(tl.dnsDone),
			trace.WithAttributes(
				attribute.Float64("dns.duration_ms", float64(tl.dnsDone.Sub(tl.dnsStart).Milliseconds())),
				attribute.StringSlice("dns.addresses", tl.dnsAddrs),
			))
	}

	if !tl.connectStart.IsZero() && !tl.connectDone.IsZero() {
		span.AddEvent("connect.start", trace.WithTimestamp(tl.connectStart))
		span.AddEvent("connect.done", trace.WithTimestamp(tl.connectDone),
			trace.WithAttributes(
				attribute.Float64("connect.duration_ms", float64(tl.connectDone.Sub(tl.connectStart).Milliseconds())),
			))
	}

	if !tl.tlsStart.IsZero() && !tl.tlsDone.IsZero() {
		span.AddEvent("tls.start", trace.WithTimestamp(tl.tlsStart))
		span.AddEvent("tls.done", trace.WithTimestamp(tl.tlsDone),
			trace.WithAttributes(
				attribute.Float64("tls.duration_ms", float64(tl.tlsDone.Sub(tl.tlsStart).Milliseconds())),
				attribute.String("tls.protocol", tl.protocolVer),
			))
	}

	if !tl.gotConnTime.IsZero() {
		span.AddEvent("got_conn", trace.WithTimestamp(tl.gotConnTime),
			trace.WithAttributes(
				attribute.Bool("connection.reused", tl.connReused),
				attribute.Bool("connection.was_idle", tl.connIdle),
				attribute.String("network.peer.address", tl.connRemote),
			))
	}

	if !tl.wroteRequestTime.IsZero() {
		span.AddEvent("wrote_request", trace.WithTimestamp(tl.wroteRequestTime))
	}

	if !tl.firstResponseTime.IsZero() {
		var ttfbMs float64
		if !tl.wroteRequestTime.IsZero() {
			ttfbMs = float64(tl.firstResponseTime.Sub(tl.wroteRequestTime).Milliseconds())
		}
		span.AddEvent("got_first_response_byte", trace.WithTimestamp(tl.firstResponseTime),
			trace.WithAttributes(attribute.Float64("ttfb_ms", ttfbMs)))
	}
}

// recordInto feeds the timeline's elapsed stages into t's histograms.
func (tl *connTimeline) recordInto(ctx context.Context, t *telemetryInstruments, attrs []attribute.KeyValue) {
	if t == nil {
		return
	}

	if !tl.connReused && !tl.connectStart.IsZero() {
		t.recordConnectionOpened(ctx, attrs)
	}
	if !tl.dnsStart.IsZero() && !tl.dnsDone.IsZero() {
		t.recordDNSDuration(ctx, tl.dnsDone.Sub(tl.dnsStart), attrs)
	}
	if !tl.connectStart.IsZero() && !tl.connectDone.IsZero() {
		t.recordConnectionDuration(ctx, tl.connectDone.Sub(tl.connectStart), attrs)
	}
	if !tl.tlsStart.IsZero() && !tl.tlsDone.IsZero() {
		t.recordTLSDuration(ctx, tl.tlsDone.Sub(tl.tlsStart), attrs)
	}
	if !tl.wroteRequestTime.IsZero() && !tl.firstResponseTime.IsZero() {
		t.recordTTFB(ctx, tl.firstResponseTime.Sub(tl.wroteRequestTime), attrs)
	}
}

// classifyNetworkError maps a transport-level error to an error.type value.
func classifyNetworkError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return ErrorTypeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeDNSError
	}

	var tlsRecordErr *tls.RecordHeaderError
	if errors.As(err, &tlsRecordErr) {
		return ErrorTypeTLSError
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return ErrorTypeTLSError
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrorTypeConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return ErrorTypeConnectionReset
	}
	if errors.Is(err, io.EOF) {
		return ErrorTypeEOF
	}

	// Fallback for wrapped/opaque errors that don't satisfy any typed check above.
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(errStr, "connection refused"):
		return ErrorTypeConnectionRefused
	case strings.Contains(errStr, "connection reset"):
		return ErrorTypeConnectionReset
	case strings.Contains(errStr, "no such host"), strings.Contains(errStr, "dns"):
		return ErrorTypeDNSError
	case strings.Contains(errStr, "tls"), strings.Contains(errStr, "certificate"), strings.Contains(errStr, "x509"):
		return ErrorTypeTLSError
	case strings.Contains(errStr, "eof"):
		return ErrorTypeEOF
	default:
		return ErrorTypeUnknown
	}
}

// classifyStatusError returns the error.type value for an HTTP status code;
// per OTel semconv the status code itself doubles as the classification for
// 4xx/5xx responses.
func classifyStatusError(statusCode int) string {
	if statusCode >= 400 {
		return strconv.Itoa(statusCode)
	}
	return ""
}

// spanFail records err on span with an Error status and, when known, an
// error.type attribute.
func spanFail(span trace.Span, err error, errorType string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errorType != "" {
		span.SetAttributes(attribute.String("error.type", errorType))
	}
}
