package recker

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromExporter mirrors a subset of metrics.go's OTel instruments as
// Prometheus collectors, for deployments scraping recker directly rather
// than through an OTel collector.
type PromExporter struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
	retryAttempts   *prometheus.CounterVec
	activeRequests  prometheus.Gauge
}

// NewPromExporter registers recker's collectors against reg. A nil reg uses
// prometheus.NewRegistry() rather than the global DefaultRegisterer, so
// multiple Clients in the same process don't collide on metric names.
func NewPromExporter(reg *prometheus.Registry) *PromExporter {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	e := &PromExporter{
		registerer: reg,
		gatherer:   reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recker_http_client_request_duration_seconds",
			Help:    "Duration of HTTP client requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10},
		}, []string{"method", "status"}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recker_http_client_request_errors_total",
			Help: "Number of HTTP client request errors",
		}, []string{"method", "error_type"}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recker_http_client_retry_attempts_total",
			Help: "Number of HTTP client retry attempts",
		}, []string{"method"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recker_http_client_active_requests",
			Help: "Number of in-flight HTTP client requests",
		}),
	}

	reg.MustRegister(e.requestDuration, e.requestErrors, e.retryAttempts, e.activeRequests)
	return e
}

// Handler returns an http.Handler serving the exporter's metrics in the
// Prometheus text exposition format, for mounting on a scrape endpoint.
func (e *PromExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{})
}

func (e *PromExporter) observeRetry(method string) {
	e.retryAttempts.WithLabelValues(method).Inc()
}

// promTransport records Prometheus metrics around the inner RoundTripper.
// It runs alongside, not instead of, the OTel instrumentation in transport.go.
type promTransport struct {
	base     http.RoundTripper
	exporter *PromExporter
}

func newPromTransport(base http.RoundTripper, exporter *PromExporter) http.RoundTripper {
	if exporter == nil {
		return base
	}
	return &promTransport{base: base, exporter: exporter}
}

func (t *promTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.exporter.activeRequests.Inc()
	defer t.exporter.activeRequests.Dec()

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.exporter.requestErrors.WithLabelValues(req.Method, errorType(err)).Inc()
		return resp, err
	}

	t.exporter.requestDuration.
		WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).
		Observe(duration.Seconds())
	return resp, nil
}

func errorType(err error) string {
	switch {
	case isTimeoutErr(err):
		return "timeout"
	default:
		return "transport"
	}
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
