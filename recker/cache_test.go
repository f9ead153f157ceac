package recker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_HitServesWithoutHittingServer(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Cache-Control", "max-age=60")
		w.Write([]byte(`{"n":1}`))
	}))
	defer srv.Close()

	client := New(WithBaseURL(srv.URL), WithCache(CacheConfig{Enabled: true, DefaultTTL: 60 * time.Second}))

	resp1, err := client.Request("Get").Get(context.Background(), "/x")
	require.NoError(t, err)
	assert.Equal(t, "miss", resp1.CacheStatus)

	resp2, err := client.Request("Get").Get(context.Background(), "/x")
	require.NoError(t, err)
	assert.Equal(t, "hit", resp2.CacheStatus)
	assert.Equal(t, 1, calls)
}

func TestCache_DisabledBypassesPlugin(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := New(WithBaseURL(srv.URL))

	_, err := client.Request("Get").Get(context.Background(), "/x")
	require.NoError(t, err)
	_, err = client.Request("Get").Get(context.Background(), "/x")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestCache_NonGETBypassesByDefault(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Cache-Control", "max-age=60")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := New(WithBaseURL(srv.URL), WithCache(CacheConfig{Enabled: true, DefaultTTL: 60 * time.Second}))

	_, err := client.Request("Post").Post(context.Background(), "/x")
	require.NoError(t, err)
	_, err = client.Request("Post").Post(context.Background(), "/x")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}
