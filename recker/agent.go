package recker

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// AgentHandle is a long-lived connection-pool handle for an origin or set of
// origins (Glossary: "Agent"). It wraps an *http.Transport whose pool sizing
// and dial path were computed by the AgentManager.
type AgentHandle struct {
	key       string
	transport *http.Transport
}

// RoundTrip satisfies http.RoundTripper so an AgentHandle can be used
// directly wherever a transport is expected (e.g. in tests).
func (h *AgentHandle) RoundTrip(req *http.Request) (*http.Response, error) {
	return h.transport.RoundTrip(req)
}

// AgentManager owns one or more connection pools keyed by origin (when
// PerDomainPooling) or a single shared pool (spec §4.3). Transport calls
// GetAgentForURL to select the pool for a given request.
type AgentManager struct {
	mu       sync.RWMutex
	handles  map[string]*AgentHandle
	cfg      AgentConfig
	conns    int
	base     Config
	resolver *net.Resolver
	localIP  net.IP
}

// NewAgentManager builds a manager whose pool size derives from
// concurrency (spec §4.3: "auto" → clamp(max/2, 1, 64)).
func NewAgentManager(concurrency ConcurrencyConfig, base Config) *AgentManager {
	return &AgentManager{
		handles: make(map[string]*AgentHandle),
		cfg:     concurrency.Agent,
		conns:   concurrency.resolveAgentConnections(),
		base:    base,
	}
}

// WithResolver installs a custom DNS resolver used by every pool the manager
// constructs from this point forward.
func (m *AgentManager) WithResolver(r *net.Resolver) *AgentManager {
	m.resolver = r
	return m
}

// WithLocalAddr pins the local bind address used for outbound connections.
func (m *AgentManager) WithLocalAddr(ip net.IP) *AgentManager {
	m.localIP = ip
	return m
}

// agentKey implements spec §3's AgentKey: the origin when per-domain pooling
// is enabled, else a single shared constant.
func (m *AgentManager) agentKey(u *url.URL) string {
	if !m.cfg.PerDomainPooling {
		return "*"
	}
	return u.Scheme + "://" + u.Host
}

// GetAgentForURL returns the pool handle for u, creating it on first use.
func (m *AgentManager) GetAgentForURL(u *url.URL) *AgentHandle {
	key := m.agentKey(u)

	m.mu.RLock()
	h, ok := m.handles[key]
	m.mu.RUnlock()
	if ok {
		return h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handles[key]; ok {
		return h
	}

	h = &AgentHandle{key: key, transport: m.buildTransport()}
	m.handles[key] = h
	return h
}

// agentDispatchTransport is the outermost-of-the-innermost layer: it selects
// the right AgentHandle for each request's URL and delegates to it. This is
// the base http.RoundTripper the rest of buildPipeline wraps.
type agentDispatchTransport struct {
	manager *AgentManager
}

func newAgentDispatchTransport(manager *AgentManager) http.RoundTripper {
	return &agentDispatchTransport{manager: manager}
}

func (t *agentDispatchTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.manager.GetAgentForURL(req.URL).RoundTrip(req)
}

func (m *AgentManager) buildTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:       m.base.DialTimeout,
		FallbackDelay: m.base.FallbackDelay,
		Resolver:      m.resolver,
	}
	if m.cfg.KeepAlive {
		ka := m.cfg.KeepAliveTimeout
		if ka <= 0 {
			ka = 30 * time.Second
		}
		dialer.KeepAlive = ka
	} else {
		dialer.KeepAlive = -1
	}
	if m.localIP != nil {
		dialer.LocalAddr = &net.TCPAddr{IP: m.localIP}
	}

	return &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          m.conns * 4,
		MaxIdleConnsPerHost:   m.conns,
		MaxConnsPerHost:       m.conns,
		IdleConnTimeout:       m.base.IdleConnTimeout,
		TLSHandshakeTimeout:   m.base.TLSHandshakeTimeout,
		ExpectContinueTimeout: m.base.ExpectContinueTimeout,
		DisableKeepAlives:     !m.cfg.KeepAlive,
		ForceAttemptHTTP2:     m.base.ForceHTTP2 || m.cfg.Pipelining,
		DisableCompression:    m.base.DisableCompression,
		// Pipelining is honored by leaving keep-alives on and letting
		// net/http's HTTP/2 multiplexing or HTTP/1.1 pipelined idle-conn
		// reuse proceed; Go's transport has no separate pipelining knob for
		// HTTP/1.1, so Pipelining only affects whether we force HTTP/2.
	}
}
