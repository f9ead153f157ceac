package recker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// headerCaptureServer spins up a server that writes 200 OK and records the
// named request header into *got for the caller to assert on.
func headerCaptureServer(t *testing.T, header string, got *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = r.Header.Get(header)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuiltinRequestInterceptors(t *testing.T) {
	t.Parallel()

	t.Run("AuthBearerInterceptor sets a bearer token", func(t *testing.T) {
		t.Parallel()
		var got string
		server := headerCaptureServer(t, "Authorization", &got)
		client := New(WithBaseURL(server.URL), WithRequestInterceptor(AuthBearerInterceptor("test-token-123")))

		_, err := client.Request("Test").Get(context.Background(), "/test")
		require.NoError(t, err)
		assert.Equal(t, "Bearer test-token-123", got)
	})

	t.Run("APIKeyInterceptor sets a named header", func(t *testing.T) {
		t.Parallel()
		var got string
		server := headerCaptureServer(t, "X-API-Key", &got)
		client := New(WithBaseURL(server.URL), WithRequestInterceptor(APIKeyInterceptor("X-API-Key", "my-secret-key")))

		_, err := client.Request("Test").Get(context.Background(), "/test")
		require.NoError(t, err)
		assert.Equal(t, "my-secret-key", got)
	})

	t.Run("UserAgentInterceptor overrides the default User-Agent", func(t *testing.T) {
		t.Parallel()
		var got string
		server := headerCaptureServer(t, "User-Agent", &got)
		client := New(WithBaseURL(server.URL), WithRequestInterceptor(UserAgentInterceptor("MyApp/1.0")))

		_, err := client.Request("Test").Get(context.Background(), "/test")
		require.NoError(t, err)
		assert.Equal(t, "MyApp/1.0", got)
	})
}

func TestCorrelationIDInterceptor(t *testing.T) {
	t.Parallel()

	var got string
	calls := 0
	server := headerCaptureServer(t, "X-Correlation-ID", &got)

	client := New(
		WithBaseURL(server.URL),
		WithRequestInterceptor(CorrelationIDInterceptor("X-Correlation-ID", func() string {
			calls++
			return "corr-id-" + string(rune('0'+calls))
		})),
	)

	_, err := client.Request("Test").Get(context.Background(), "/test")
	require.NoError(t, err)
	assert.Equal(t, "corr-id-1", got)

	_, err = client.Request("Test").Get(context.Background(), "/test")
	require.NoError(t, err)
	assert.Equal(t, "corr-id-2", got)
}

func TestRequestInterceptorChain_RunsInOrder(t *testing.T) {
	t.Parallel()

	var order []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	track := func(label string) RequestInterceptor {
		return func(_ *http.Request) error {
			order = append(order, label)
			return nil
		}
	}

	client := New(
		WithBaseURL(server.URL),
		WithRequestInterceptor(track("first")),
		WithRequestInterceptor(track("second")),
		WithRequestInterceptor(track("third")),
	)

	_, err := client.Request("Test").Get(context.Background(), "/test")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRequestInterceptorChain_ErrorHaltsRemaining(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("interceptor error")
	var reachedSecond bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithRequestInterceptor(func(_ *http.Request) error { return wantErr }),
		WithRequestInterceptor(func(_ *http.Request) error {
			reachedSecond = true
			return nil
		}),
	)

	_, err := client.Request("Test").Get(context.Background(), "/test")
	require.Error(t, err)
	require.ErrorIs(t, err, wantErr)
	assert.False(t, reachedSecond, "chain must stop at the first failing interceptor")
}

func TestRequestBuilder_Intercept(t *testing.T) {
	t.Parallel()

	var got string
	server := headerCaptureServer(t, "X-Request-Specific", &got)
	client := New(WithBaseURL(server.URL))

	_, err := client.Request("Test").
		Intercept(func(req *http.Request) error {
			req.Header.Set("X-Request-Specific", "per-request-value")
			return nil
		}).
		Get(context.Background(), "/test")

	require.NoError(t, err)
	assert.Equal(t, "per-request-value", got)
}

func TestRequestBuilder_Intercept_RunsAfterClientChain(t *testing.T) {
	t.Parallel()

	var order []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithRequestInterceptor(func(_ *http.Request) error {
			order = append(order, "client")
			return nil
		}),
	)

	_, err := client.Request("Test").
		Intercept(func(_ *http.Request) error {
			order = append(order, "request")
			return nil
		}).
		Get(context.Background(), "/test")

	require.NoError(t, err)
	assert.Equal(t, []string{"client", "request"}, order)
}

func TestResponseInterceptor(t *testing.T) {
	t.Parallel()

	var gotStatus int
	var gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithResponseInterceptor(func(resp *http.Response, req *http.Request) error {
			gotStatus = resp.StatusCode
			gotMethod = req.Method
			return nil
		}),
	)

	_, err := client.Request("Test").Post(context.Background(), "/test")
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, gotStatus)
	assert.Equal(t, "POST", gotMethod)
}

func TestResponseInterceptor_PropagatesError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("response interceptor error")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithResponseInterceptor(func(_ *http.Response, _ *http.Request) error {
			return wantErr
		}),
	)

	_, err := client.Request("Test").Get(context.Background(), "/test")
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestRequestAndResponseInterceptors_BothRun(t *testing.T) {
	t.Parallel()

	var requestRan, responseRan atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithRequestInterceptor(func(_ *http.Request) error {
			requestRan.Store(true)
			return nil
		}),
		WithResponseInterceptor(func(_ *http.Response, _ *http.Request) error {
			responseRan.Store(true)
			return nil
		}),
	)

	_, err := client.Request("Test").Get(context.Background(), "/test")
	require.NoError(t, err)

	assert.True(t, requestRan.Load())
	assert.True(t, responseRan.Load())
}
