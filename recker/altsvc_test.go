package recker

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAltSvc_H3Entry(t *testing.T) {
	t.Parallel()

	ep, ok := parseAltSvc(`h3=":443"; ma=3600, h2=":443"; ma=86400`)
	require.True(t, ok)
	assert.Equal(t, "443", ep.Port)
	assert.WithinDuration(t, time.Now().Add(3600*time.Second), ep.ExpiresAt, 5*time.Second)
}

func TestParseAltSvc_NoH3Entry(t *testing.T) {
	t.Parallel()

	_, ok := parseAltSvc(`h2=":443"; ma=86400`)
	assert.False(t, ok)
}

func TestParseAltSvc_Clear(t *testing.T) {
	t.Parallel()

	_, ok := parseAltSvc("clear")
	assert.False(t, ok)
}

func TestAltSvcManager_InfoExpires(t *testing.T) {
	t.Parallel()

	m := newAltSvcManager()
	u, _ := url.Parse("https://api.example.com")

	m.endpoints.Store(origin(u), Http3Endpoint{Host: "", Port: "443", ExpiresAt: time.Now().Add(-time.Second)})
	_, ok := m.Info(u)
	assert.False(t, ok)
}

func TestAltSvcManager_ObserveAndInfo(t *testing.T) {
	t.Parallel()

	m := newAltSvcManager()
	u, _ := url.Parse("https://api.example.com")

	ep, ok := m.observe(u, `h3=":443"; ma=60`)
	require.True(t, ok)
	assert.Equal(t, "443", ep.Port)

	got, ok := m.Info(u)
	require.True(t, ok)
	assert.Equal(t, ep, got)
}

func TestAltSvcTransport_DisabledIsPassthrough(t *testing.T) {
	t.Parallel()

	base := &MockTransport{}
	rt := newAltSvcTransport(base, AltSvcConfig{}, nil)
	assert.Same(t, http.RoundTripper(base), rt)
}
