package recker

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWebSocketURL_SchemeSubstitution(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://api.example.com/base")
	require.NoError(t, err)

	resolved := ResolveWebSocketURL(base, "/stream")
	assert.Equal(t, "wss", resolved.Scheme)
	assert.Equal(t, "/base/stream", resolved.Path)
}

func TestResolveWebSocketURL_HTTPToWS(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("http://localhost:8080")
	require.NoError(t, err)

	resolved := ResolveWebSocketURL(base, "")
	assert.Equal(t, "ws", resolved.Scheme)
}

func TestResolveWebSocketURL_NilBase(t *testing.T) {
	t.Parallel()
	assert.Nil(t, ResolveWebSocketURL(nil, "/x"))
}

func TestClient_WebSocketURL(t *testing.T) {
	t.Parallel()

	client := New(WithBaseURL("https://api.example.com"))
	u, err := client.WebSocketURL("/stream")
	require.NoError(t, err)
	assert.Equal(t, "wss", u.Scheme)
}

func TestClient_WebSocketHeaders_MergesDefaultsAndOverrides(t *testing.T) {
	t.Parallel()

	client := New(
		WithBaseURL("https://api.example.com"),
		WithDefaultHeader("X-API-Key", "secret"),
	)

	merged := client.WebSocketHeaders(http.Header{"X-Extra": {"1"}})
	assert.Equal(t, "secret", merged.Get("X-API-Key"))
	assert.Equal(t, "1", merged.Get("X-Extra"))
}
