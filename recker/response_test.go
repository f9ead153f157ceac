package recker

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_IsSuccess_IsError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		statusCode int
		wantOK     bool
		wantErr    bool
	}{
		{"200 is success, not error", http.StatusOK, true, false},
		{"201 is success, not error", http.StatusCreated, true, false},
		{"204 is success, not error", http.StatusNoContent, true, false},
		{"299 is still success", 299, true, false},
		{"300 is neither success nor error", 300, false, false},
		{"399 is neither success nor error", 399, false, false},
		{"400 is error, not success", http.StatusBadRequest, false, true},
		{"404 is error, not success", http.StatusNotFound, false, true},
		{"500 is error, not success", http.StatusInternalServerError, false, true},
		{"503 is error, not success", http.StatusServiceUnavailable, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp := &Response{Response: &http.Response{StatusCode: tc.statusCode}}
			assert.Equal(t, tc.wantOK, resp.IsSuccess())
			assert.Equal(t, tc.wantErr, resp.IsError())
		})
	}
}

func TestResponse_Body_CachesAfterFirstRead(t *testing.T) {
	t.Parallel()

	const content = "test body content"
	resp := &Response{Response: &http.Response{Body: io.NopCloser(strings.NewReader(content))}}

	first, err := resp.Body()
	require.NoError(t, err)
	assert.Equal(t, content, string(first))

	second, err := resp.Body()
	require.NoError(t, err)
	assert.Equal(t, content, string(second))
	assert.True(t, resp.bodyRead)
}

func TestResponse_String(t *testing.T) {
	t.Parallel()

	const content = "test body content"
	resp := &Response{Response: &http.Response{Body: io.NopCloser(strings.NewReader(content))}}

	str, err := resp.String()
	require.NoError(t, err)
	assert.Equal(t, content, str)
}

func TestResponse_CurlCommand(t *testing.T) {
	t.Parallel()

	resp := &Response{curlCommand: "curl -X GET 'https://api.example.com/users'"}
	assert.Equal(t, "curl -X GET 'https://api.example.com/users'", resp.CurlCommand())
}

func TestResponse_TraceInfo(t *testing.T) {
	t.Parallel()

	info := &TraceInfo{
		DNSLookup:    "2ms",
		ConnTime:     "15ms",
		TLSHandshake: "30ms",
		ServerTime:   "100ms",
		TotalTime:    "150ms",
	}
	resp := &Response{traceInfo: info}
	assert.Equal(t, info, resp.TraceInfo())
}

func TestTraceInfo_String(t *testing.T) {
	t.Parallel()

	t.Run("formats all fields", func(t *testing.T) {
		t.Parallel()
		info := &TraceInfo{
			DNSLookup:    "2.1ms",
			ConnTime:     "15.3ms",
			TLSHandshake: "28.7ms",
			ServerTime:   "45.2ms",
			TotalTime:    "91.3ms",
		}
		str := info.String()
		assert.Contains(t, str, "DNS Lookup:    2.1ms")
		assert.Contains(t, str, "TCP Connect:   15.3ms")
		assert.Contains(t, str, "TLS Handshake: 28.7ms")
		assert.Contains(t, str, "Server Time:   45.2ms")
		assert.Contains(t, str, "Total Time:    91.3ms")
	})

	t.Run("nil receiver reports nil", func(t *testing.T) {
		t.Parallel()
		var info *TraceInfo
		assert.Contains(t, info.String(), "nil")
	})
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	type user struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	cases := []struct {
		name        string
		body        []byte
		contentType string
		wantName    string
	}{
		{"application/json decodes as JSON", []byte(`{"id":1,"name":"John"}`), "application/json", "John"},
		{"JSON content-type with charset still decodes", []byte(`{"id":1,"name":"Jane"}`), "application/json; charset=utf-8", "Jane"},
		{"empty content-type defaults to JSON", []byte(`{"id":1,"name":"Default"}`), "", "Default"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var u user
			require.NoError(t, decodeBody(tc.body, tc.contentType, &u))
			assert.Equal(t, tc.wantName, u.Name)
		})
	}
}
