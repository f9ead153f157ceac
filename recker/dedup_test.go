package recker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedup_CollapsesConcurrentIdenticalGETs(t *testing.T) {
	t.Parallel()

	var calls int64
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		<-block
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(WithBaseURL(srv.URL), WithDedup(DedupConfig{Enabled: true}))

	var wg sync.WaitGroup
	n := 5
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := client.Request("Get").Get(context.Background(), "/shared")
			assert.NoError(t, err)
		}()
	}

	close(block)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestDedup_DisabledDoesNotCollapse(t *testing.T) {
	t.Parallel()

	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := New(WithBaseURL(srv.URL))

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		go func() {
			defer wg.Done()
			_, err := client.Request("Get").Get(context.Background(), "/shared")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestDedup_NonEligibleMethodBypasses(t *testing.T) {
	t.Parallel()

	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := New(WithBaseURL(srv.URL), WithDedup(DedupConfig{Enabled: true}))

	_, err := client.Request("Post").Post(context.Background(), "/x")
	require.NoError(t, err)
	_, err = client.Request("Post").Post(context.Background(), "/x")
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}
