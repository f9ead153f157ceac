package recker

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quic-go/quic-go/http3"
)

// Http3Endpoint is a discovered HTTP/3 alternative service for an origin
// (spec §4.14).
type Http3Endpoint struct {
	Host      string
	Port      string
	ExpiresAt time.Time
}

func (e Http3Endpoint) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// AltSvcConfig configures the HTTP/3 discovery plugin.
type AltSvcConfig struct {
	// Enabled turns on Alt-Svc header parsing and per-origin bookkeeping.
	Enabled bool

	// UpgradeTransport dispatches subsequent requests to a discovered origin
	// through a quic-go/http3.Transport instead of the TCP transport.
	UpgradeTransport bool
}

// AltSvcManager tracks discovered HTTP/3 endpoints per origin with expiry.
type AltSvcManager struct {
	endpoints sync.Map // origin string -> Http3Endpoint
}

func newAltSvcManager() *AltSvcManager {
	return &AltSvcManager{}
}

// Info returns the discovered HTTP/3 endpoint for u's origin, if any and not
// yet expired.
func (m *AltSvcManager) Info(u *url.URL) (Http3Endpoint, bool) {
	v, ok := m.endpoints.Load(origin(u))
	if !ok {
		return Http3Endpoint{}, false
	}
	ep := v.(Http3Endpoint)
	if ep.expired(time.Now()) {
		m.endpoints.Delete(origin(u))
		return Http3Endpoint{}, false
	}
	return ep, true
}

func (m *AltSvcManager) observe(u *url.URL, header string) (Http3Endpoint, bool) {
	ep, ok := parseAltSvc(header)
	if !ok {
		return Http3Endpoint{}, false
	}
	m.endpoints.Store(origin(u), ep)
	return ep, true
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// parseAltSvc parses an RFC 7838 Alt-Svc header value, e.g.
// `h3=":443"; ma=3600, h2=":443"; ma=86400`, returning the first h3/h3-*
// entry found.
func parseAltSvc(header string) (Http3Endpoint, bool) {
	if header == "" || header == "clear" {
		return Http3Endpoint{}, false
	}

	for _, entry := range strings.Split(header, ",") {
		parts := strings.Split(entry, ";")
		if len(parts) == 0 {
			continue
		}
		kv := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
		if len(kv) != 2 {
			continue
		}
		protoID := strings.TrimSpace(kv[0])
		if !strings.HasPrefix(protoID, "h3") {
			continue
		}
		authority := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		host, port := splitAuthority(authority)

		maxAge := 24 * time.Hour
		for _, p := range parts[1:] {
			p = strings.TrimSpace(p)
			if v, ok := strings.CutPrefix(p, "ma="); ok {
				if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
					maxAge = time.Duration(secs) * time.Second
				}
			}
		}

		return Http3Endpoint{Host: host, Port: port, ExpiresAt: time.Now().Add(maxAge)}, true
	}
	return Http3Endpoint{}, false
}

// splitAuthority splits an Alt-Svc authority-form value (":443" or
// "alt.example.com:443") into host and port.
func splitAuthority(authority string) (host, port string) {
	idx := strings.LastIndex(authority, ":")
	if idx < 0 {
		return authority, ""
	}
	return authority[:idx], authority[idx+1:]
}

// Http3Hook observes HTTP/3 discovery events for an origin.
type Http3Hook func(event Http3Event, origin string, endpoint Http3Endpoint)

// Http3Event names an altSvcTransport discovery outcome.
type Http3Event int

const (
	// Http3Discovered fires when an Alt-Svc header advertises h3 support.
	Http3Discovered Http3Event = iota
	// Http3Unsupported fires when a response carries Alt-Svc: clear. An
	// entry that merely expires is dropped without firing any hook.
	Http3Unsupported
)

// altSvcTransport parses Alt-Svc response headers and, when configured,
// upgrades subsequent requests to discovered origins onto HTTP/3.
type altSvcTransport struct {
	base    http.RoundTripper
	manager *AltSvcManager
	cfg     AltSvcConfig
	hooks   []Http3Hook

	h3mu sync.Mutex
	h3   *http3.Transport
}

func newAltSvcTransport(base http.RoundTripper, cfg AltSvcConfig, hooks []Http3Hook) http.RoundTripper {
	if !cfg.Enabled {
		return base
	}
	return &altSvcTransport{base: base, manager: newAltSvcManager(), cfg: cfg, hooks: hooks}
}

func (t *altSvcTransport) fireHooks(event Http3Event, u *url.URL, ep Http3Endpoint) {
	for _, h := range t.hooks {
		h(event, origin(u), ep)
	}
}

func (t *altSvcTransport) http3Transport() *http3.Transport {
	t.h3mu.Lock()
	defer t.h3mu.Unlock()
	if t.h3 == nil {
		t.h3 = &http3.Transport{}
	}
	return t.h3
}

func (t *altSvcTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.cfg.UpgradeTransport {
		if ep, ok := t.manager.Info(req.URL); ok {
			resp, err := t.http3Transport().RoundTrip(req)
			if err == nil {
				return resp, nil
			}
			// Fall back to the regular transport on an HTTP/3 dial failure;
			// don't poison the origin's discovery state on a single error.
			_ = ep
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if header := resp.Header.Get("Alt-Svc"); header != "" {
		if ep, ok := t.manager.observe(req.URL, header); ok {
			t.fireHooks(Http3Discovered, req.URL, ep)
		} else if header == "clear" {
			t.manager.endpoints.Delete(origin(req.URL))
			t.fireHooks(Http3Unsupported, req.URL, Http3Endpoint{})
		}
	}

	return resp, nil
}
