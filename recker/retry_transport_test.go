package recker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedResponse is one canned (response, error) pair a sequencedRoundTripper
// returns for a single RoundTrip call.
type scriptedResponse struct {
	resp *http.Response
	err  error
}

// sequencedRoundTripper returns its scripted responses in order, one per
// call, and records every request it was handed so tests can assert on
// retried request bodies without a generated mock.
type sequencedRoundTripper struct {
	responses []scriptedResponse
	calls     []*http.Request
}

func (s *sequencedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	idx := len(s.calls)
	s.calls = append(s.calls, req)
	if idx >= len(s.responses) {
		panic("sequencedRoundTripper: ran out of scripted responses")
	}
	sr := s.responses[idx]
	return sr.resp, sr.err
}

func okResponse() *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("OK"))}
}

func statusResponse(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(bytes.NewBufferString(http.StatusText(code)))}
}

func TestRetryTransport_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		responses []scriptedResponse
		cfgOpts   []Option
		wantErr   assert.ErrorAssertionFunc
		wantSC    int
		wantCalls int
	}{
		{
			name:      "successful first attempt returns the response",
			method:    "GET",
			responses: []scriptedResponse{{resp: okResponse()}},
			cfgOpts:   []Option{WithRetryConfig(DefaultRetryConfig())},
			wantErr:   assert.NoError,
			wantSC:    200,
			wantCalls: 1,
		},
		{
			name:   "retryable error then success retries once",
			method: "GET",
			responses: []scriptedResponse{
				{err: errors.New("connection reset by peer")},
				{resp: okResponse()},
			},
			cfgOpts: []Option{WithRetryConfig(RetryConfig{
				MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond,
				Multiplier: 2.0, JitterFactor: 0.1,
			})},
			wantErr:   assert.NoError,
			wantSC:    200,
			wantCalls: 2,
		},
		{
			name:   "retries exhausted returns the last error",
			method: "GET",
			responses: []scriptedResponse{
				{err: errors.New("connection reset by peer")},
				{err: errors.New("connection reset by peer")},
				{err: errors.New("connection reset by peer")},
			},
			cfgOpts: []Option{WithRetryConfig(RetryConfig{
				MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond,
				Multiplier: 2.0, JitterFactor: 0.1,
			})},
			wantErr:   assert.Error,
			wantCalls: 3,
		},
		{
			name:      "context canceled is not retried away",
			method:    "GET",
			responses: []scriptedResponse{{err: context.Canceled}},
			cfgOpts:   []Option{WithRetryConfig(DefaultRetryConfig())},
			wantErr:   assert.Error,
			wantCalls: 1,
		},
		{
			name:      "non-retryable TLS error stops after one attempt",
			method:    "GET",
			responses: []scriptedResponse{{err: errors.New("x509: certificate has expired")}},
			cfgOpts:   []Option{WithRetryConfig(DefaultRetryConfig())},
			wantErr:   assert.Error,
			wantCalls: 1,
		},
		{
			name:   "503 then 200 retries and returns success",
			method: "GET",
			responses: []scriptedResponse{
				{resp: statusResponse(http.StatusServiceUnavailable)},
				{resp: okResponse()},
			},
			cfgOpts: []Option{WithRetryConfig(RetryConfig{
				MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond,
				Multiplier: 2.0, JitterFactor: 0.1,
			})},
			wantErr:   assert.NoError,
			wantSC:    200,
			wantCalls: 2,
		},
		{
			name:   "custom classifier retries a 500",
			method: "GET",
			responses: []scriptedResponse{
				{resp: statusResponse(http.StatusInternalServerError)},
				{resp: okResponse()},
			},
			cfgOpts: []Option{
				WithRetryConfig(RetryConfig{
					MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond,
					Multiplier: 2.0, JitterFactor: 0.1,
				}),
				WithRetryClassifier(func(resp *http.Response, err error) bool {
					if resp != nil && resp.StatusCode == http.StatusInternalServerError {
						return true
					}
					return err != nil
				}),
			},
			wantErr:   assert.NoError,
			wantSC:    200,
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srt := &sequencedRoundTripper{responses: tt.responses}
			cfg := newConfig(tt.cfgOpts...)
			rt := newRetryTransport(srt, cfg)

			req := httptest.NewRequest(tt.method, "http://example.com", nil)
			resp, err := rt.RoundTrip(req)

			tt.wantErr(t, err)
			if err == nil {
				require.NotNil(t, resp)
				assert.Equal(t, tt.wantSC, resp.StatusCode)
			}
			assert.Equal(t, tt.wantCalls, len(srt.calls))
		})
	}
}

func TestRetryTransport_PreservesBodyAcrossRetries(t *testing.T) {
	srt := &sequencedRoundTripper{responses: []scriptedResponse{
		{err: errors.New("connection refused")},
		{resp: okResponse()},
	}}
	cfg := newConfig(WithRetryConfig(RetryConfig{
		MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond,
		Multiplier: 2.0, JitterFactor: 0.1,
	}))
	rt := newRetryTransport(srt, cfg)

	req := httptest.NewRequest(http.MethodPost, "http://example.com", bytes.NewBufferString("test body"))
	resp, err := rt.RoundTrip(req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, srt.calls, 2)

	buf := new(bytes.Buffer)
	_, readErr := buf.ReadFrom(srt.calls[1].Body)
	require.NoError(t, readErr)
	assert.Equal(t, "test body", buf.String())
}

func TestRetryTransport_Disabled(t *testing.T) {
	t.Run("retry disabled returns the base transport unchanged", func(t *testing.T) {
		srt := &sequencedRoundTripper{}
		cfg := newConfig(WithRetryDisabled())

		rt := newRetryTransport(srt, cfg)

		assert.Same(t, http.RoundTripper(srt), rt)
	})
}
