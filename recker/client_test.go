package recker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_AppliesOptionsAndDefaults(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		opts        []Option
		wantTimeout time.Duration
	}{
		{name: "no options uses the default timeout", wantTimeout: 15 * time.Second},
		{name: "a custom config overrides the timeout", opts: []Option{WithConfig(Config{Timeout: 10 * time.Second})}, wantTimeout: 10 * time.Second},
		{name: "a service name still keeps the default timeout", opts: []Option{WithServiceName("test-service")}, wantTimeout: 15 * time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := New(tc.opts...)

			require.NotNil(t, client)
			require.NotNil(t, client.HTTP().Transport)
			assert.Equal(t, tc.wantTimeout, client.HTTP().Timeout)

			_, isRetry := client.HTTP().Transport.(*retryTransport)
			_, isOtel := client.HTTP().Transport.(*telemetryTransport)
			assert.True(t, isRetry || isOtel, "expected retryTransport or telemetryTransport at the transport root")
		})
	}
}

func TestNew_RecordsOneSpanPerRequestRegardlessOfStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			}))
			defer server.Close()

			exporter := tracetest.NewInMemoryExporter()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
			mp := sdkmetric.NewMeterProvider()
			defer tp.Shutdown(context.Background())
			defer mp.Shutdown(context.Background())

			client := New(WithTracerProvider(tp), WithMeterProvider(mp), WithServiceName("test-service"))

			req, err := http.NewRequest(http.MethodGet, server.URL+"/test", nil)
			require.NoError(t, err)

			resp, err := client.HTTP().Do(req)
			require.NoError(t, err)

			// the span ends when the body is closed, not immediately after RoundTrip
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			assert.Equal(t, status, resp.StatusCode)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, "HTTP GET", spans[0].Name)
		})
	}
}

func TestNewTransport_WrapsBaseWithInstrumentation(t *testing.T) {
	t.Parallel()

	transport := NewTransport(http.DefaultTransport, WithServiceName("test"))

	require.NotNil(t, transport)
	_, ok := transport.(*telemetryTransport)
	assert.True(t, ok)
}

func TestNewWithTransport_UsesProvidedBaseTransport(t *testing.T) {
	t.Parallel()

	baseTransport := &http.Transport{MaxIdleConnsPerHost: 50}
	client := NewWithTransport(baseTransport, WithServiceName("test"))

	require.NotNil(t, client)
	assert.NotNil(t, client.HTTP().Transport)
}

func TestWrapClient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		timeout      time.Duration
		hasTransport bool
	}{
		{name: "client already carrying a transport gets wrapped", timeout: 15 * time.Second, hasTransport: true},
		{name: "client with no transport falls back to the default", timeout: 20 * time.Second, hasTransport: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := &http.Client{Timeout: tc.timeout}
			if tc.hasTransport {
				client.Transport = http.DefaultTransport
			}

			wrapped := WrapClient(client, WithServiceName("test"))

			assert.Equal(t, client, wrapped.HTTP())
			require.NotNil(t, wrapped.HTTP().Transport)
			_, ok := wrapped.HTTP().Transport.(*telemetryTransport)
			assert.True(t, ok)
		})
	}
}
