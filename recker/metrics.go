package recker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// telemetryInstruments holds every OTel instrument recker's transport chain
// reports into. Every recorder method tolerates a nil receiver and nil
// instruments so a client built with WithOtel disabled costs nothing beyond
// a pointer check.
type telemetryInstruments struct {
	requestDuration    metric.Float64Histogram
	requestBodySize    metric.Int64Histogram
	responseBodySize   metric.Int64Histogram
	openConnections    metric.Int64UpDownCounter
	connectionDuration metric.Float64Histogram
	dnsDuration        metric.Float64Histogram
	tlsDuration        metric.Float64Histogram
	ttfb               metric.Float64Histogram
	transferDuration   metric.Float64Histogram
	activeRequests     metric.Int64UpDownCounter
	requestErrors      metric.Int64Counter
	retryAttempts      metric.Int64Counter
	retryExhausted     metric.Int64Counter
	retryDuration      metric.Float64Histogram
	breakerRequests    metric.Int64Counter
	breakerState       metric.Int64Gauge
}

// durationSpec describes one Float64Histogram measured in seconds, sized
// with buckets appropriate to the stage of the request lifecycle it covers.
type durationSpec struct {
	name    string
	desc    string
	buckets []float64
	dest    *metric.Float64Histogram
}

var fineGrainedBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// newTelemetryInstruments registers every instrument on meter, returning the
// first registration error encountered (OTel SDKs reject duplicate
// instrument names, so callers must only invoke this once per meter).
func newTelemetryInstruments(meter metric.Meter) (*telemetryInstruments, error) {
	t := &telemetryInstruments{}

	durations := []durationSpec{
		{
			name:    "http.client.request.duration",
			desc:    "Duration of HTTP client requests in seconds",
			buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10},
			dest:    &t.requestDuration,
		},
		{
			name:    "http.client.connection.duration",
			desc:    "Time to establish HTTP connection in seconds",
			buckets: fineGrainedBuckets,
			dest:    &t.connectionDuration,
		},
		{name: "http.client.dns.duration", desc: "DNS lookup duration in seconds", buckets: fineGrainedBuckets, dest: &t.dnsDuration},
		{name: "http.client.tls.duration", desc: "TLS handshake duration in seconds", buckets: fineGrainedBuckets, dest: &t.tlsDuration},
		{
			name:    "http.client.ttfb",
			desc:    "Time to first response byte in seconds",
			buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5},
			dest:    &t.ttfb,
		},
		{
			name:    "http.client.content_transfer.duration",
			desc:    "Response body download duration in seconds",
			buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			dest:    &t.transferDuration,
		},
		{
			name:    "http.client.retry.duration",
			desc:    "Total time spent in retry loop in seconds",
			buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			dest:    &t.retryDuration,
		},
	}
	for _, spec := range durations {
		h, err := meter.Float64Histogram(spec.name,
			metric.WithDescription(spec.desc), metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(spec.buckets...))
		if err != nil {
			return nil, err
		}
		*spec.dest = h
	}

	sizeBuckets := []float64{0, 100, 1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024}
	var err error
	if t.requestBodySize, err = meter.Int64Histogram("http.client.request.body.size",
		metric.WithDescription("Size of HTTP client request bodies in bytes"), metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...)); err != nil {
		return nil, err
	}
	if t.responseBodySize, err = meter.Int64Histogram("http.client.response.body.size",
		metric.WithDescription("Size of HTTP client response bodies in bytes"), metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...)); err != nil {
		return nil, err
	}

	if t.openConnections, err = meter.Int64UpDownCounter("http.client.open_connections",
		metric.WithDescription("Number of open HTTP client connections"), metric.WithUnit("{connection}")); err != nil {
		return nil, err
	}
	if t.activeRequests, err = meter.Int64UpDownCounter("http.client.active_requests",
		metric.WithDescription("Number of active HTTP client requests"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if t.requestErrors, err = meter.Int64Counter("http.client.request.error",
		metric.WithDescription("Number of HTTP client request errors"), metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	if t.retryAttempts, err = meter.Int64Counter("http.client.retry.attempts",
		metric.WithDescription("Number of HTTP client retry attempts"), metric.WithUnit("{attempt}")); err != nil {
		return nil, err
	}
	if t.retryExhausted, err = meter.Int64Counter("http.client.retry.exhausted",
		metric.WithDescription("Number of requests that exhausted all retries"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if t.breakerRequests, err = meter.Int64Counter("http.client.breaker.requests",
		metric.WithDescription("Breaker-guarded requests by outcome (success, failure, rejected)"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if t.breakerState, err = meter.Int64Gauge("http.client.breaker.state",
		metric.WithDescription("Current gobreaker.State of the circuit breaker (0=closed, 1=half-open, 2=open)")); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *telemetryInstruments) recordRequestDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if t == nil || t.requestDuration == nil {
		return
	}
	t.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (t *telemetryInstruments) recordRequestBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if t == nil || t.requestBodySize == nil {
		return
	}
	t.requestBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (t *telemetryInstruments) recordResponseBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if t == nil || t.responseBodySize == nil {
		return
	}
	t.responseBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

//nolint:unused // reserved for a future connection-pool tracing hook
func (t *telemetryInstruments) recordConnectionOpened(ctx context.Context, attrs []attribute.KeyValue) {
	if t == nil || t.openConnections == nil {
		return
	}
	t.openConnections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

//nolint:unused // reserved for a future connection-pool tracing hook
func (t *telemetryInstruments) recordConnectionClosed(ctx context.Context, attrs []attribute.KeyValue) {
	if t == nil || t.openConnections == nil {
		return
	}
	t.openConnections.Add(ctx, -1, metric.WithAttributes(attrs...))
}

func (t *telemetryInstruments) recordConnectionDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if t == nil || t.connectionDuration == nil {
		return
	}
	t.connectionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (t *telemetryInstruments) recordDNSDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if t == nil || t.dnsDuration == nil {
		return
	}
	t.dnsDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (t *telemetryInstruments) recordTLSDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if t == nil || t.tlsDuration == nil {
		return
	}
	t.tlsDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (t *telemetryInstruments) recordTTFB(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if t == nil || t.ttfb == nil {
		return
	}
	t.ttfb.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

//nolint:unused // reserved for response-body streaming instrumentation
func (t *telemetryInstruments) recordTransferDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if t == nil || t.transferDuration == nil {
		return
	}
	t.transferDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (t *telemetryInstruments) recordActiveRequestStart(ctx context.Context, attrs []attribute.KeyValue) {
	if t == nil || t.activeRequests == nil {
		return
	}
	t.activeRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (t *telemetryInstruments) recordActiveRequestEnd(ctx context.Context, attrs []attribute.KeyValue) {
	if t == nil || t.activeRequests == nil {
		return
	}
	t.activeRequests.Add(ctx, -1, metric.WithAttributes(attrs...))
}

func (t *telemetryInstruments) recordError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	if t == nil || t.requestErrors == nil {
		return
	}
	t.requestErrors.Add(ctx, 1, metric.WithAttributes(append(append([]attribute.KeyValue{}, attrs...), attribute.String("error.type", errorType))...))
}

func (t *telemetryInstruments) recordRetryAttempt(ctx context.Context, attrs []attribute.KeyValue, attempt int) {
	if t == nil || t.retryAttempts == nil {
		return
	}
	t.retryAttempts.Add(ctx, 1, metric.WithAttributes(append(append([]attribute.KeyValue{}, attrs...), attribute.Int("retry.attempt", attempt))...))
}

func (t *telemetryInstruments) recordRetryExhausted(ctx context.Context, attrs []attribute.KeyValue) {
	if t == nil || t.retryExhausted == nil {
		return
	}
	t.retryExhausted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (t *telemetryInstruments) recordRetryDuration(ctx context.Context, attrs []attribute.KeyValue, d time.Duration) {
	if t == nil || t.retryDuration == nil {
		return
	}
	t.retryDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// recordBreakerRequest tags one breaker-guarded call with its outcome:
// "success", "failure" (classified failure that ran), or "rejected" (the
// breaker was open and refused the call).
func (t *telemetryInstruments) recordBreakerRequest(ctx context.Context, name, outcome string) {
	if t == nil || t.breakerRequests == nil {
		return
	}
	t.breakerRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", name),
		attribute.String("breaker.outcome", outcome),
	))
}

// recordBreakerState records the breaker's current gobreaker.State as a
// gauge so dashboards can show open/half-open/closed over time per name.
func (t *telemetryInstruments) recordBreakerState(ctx context.Context, name string, state int64) {
	if t == nil || t.breakerState == nil {
		return
	}
	t.breakerState.Record(ctx, state, metric.WithAttributes(attribute.String("breaker.name", name)))
}
