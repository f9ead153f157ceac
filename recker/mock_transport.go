package recker

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"regexp"
	"sync"
)

// stubMatcher decides whether a recorded stub applies to a given request.
type stubMatcher func(*http.Request) bool

// responseStub pairs a matcher with either a canned response or a canned
// error; first match wins (spec §6 "mock transport").
type responseStub struct {
	matches  stubMatcher
	response *http.Response
	err      error
}

// MockTransport is an http.RoundTripper double for wiring into a Client via
// WithMockTransport, replacing the real network entirely (it takes the place
// of AgentDispatchTransport, and of any HAR player, as the base transport
// rather than being a pipeline stage — see the base-transport construction
// in New, client.go). Stubs are
// consulted in registration order; nothing matching falls through to the
// default response/error, and nothing configured at all is a test bug.
type MockTransport struct {
	mu       sync.RWMutex
	stubs    []responseStub
	fallback *responseStub
	seen     []*http.Request
	observer func(*http.Request)
}

// NewMockTransport returns an empty MockTransport with no stubs registered.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func textResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

// StubResponse sets the fallback response returned when no StubFunc/StubPath/
// StubMethod entry matches.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &responseStub{response: textResponse(statusCode, body)}
	return m
}

// StubError sets the fallback error returned when nothing else matches.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &responseStub{err: err}
	return m
}

// StubPath registers a stub keyed on an exact request path.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool { return req.URL.Path == path }, statusCode, body)
}

// StubPathRegex registers a stub keyed on a path regular expression.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubFunc(func(req *http.Request) bool { return re.MatchString(req.URL.Path) }, statusCode, body)
}

// StubMethod registers a stub keyed on the request method.
func (m *MockTransport) StubMethod(method string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool { return req.Method == method }, statusCode, body)
}

// StubFunc registers a stub with an arbitrary match predicate.
func (m *MockTransport) StubFunc(matches stubMatcher, statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, responseStub{matches: matches, response: textResponse(statusCode, body)})
	return m
}

// StubFuncError registers a stub that fails the round trip with err when it matches.
func (m *MockTransport) StubFuncError(matches stubMatcher, err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, responseStub{matches: matches, err: err})
	return m
}

// OnRequest installs an observer invoked for every request that passes
// through the mock, before stub matching — useful for capturing headers or
// bodies the stub predicates themselves don't need to inspect.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
	return m
}

func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.seen = append(m.seen, req)
	observer := m.observer
	m.mu.Unlock()

	if observer != nil {
		observer(req)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.stubs {
		if !s.matches(req) {
			continue
		}
		if s.err != nil {
			return nil, s.err
		}
		return cloneMockResponse(s.response), nil
	}

	if m.fallback != nil {
		if m.fallback.err != nil {
			return nil, m.fallback.err
		}
		return cloneMockResponse(m.fallback.response), nil
	}

	return nil, errors.New("recker: no mock stub matched " + req.Method + " " + req.URL.String())
}

// Requests returns every request the mock has observed, in arrival order.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*http.Request{}, m.seen...)
}

// RequestCount returns how many requests the mock has observed.
func (m *MockTransport) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.seen)
}

// LastRequest returns the most recently observed request, or nil.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.seen) == 0 {
		return nil
	}
	return m.seen[len(m.seen)-1]
}

// Reset clears recorded requests, stubs, and the fallback.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = nil
	m.stubs = nil
	m.fallback = nil
	m.observer = nil
}

// cloneMockResponse hands each caller an independent *http.Response backed by
// a rewound copy of the stub's body, so a stub can be matched repeatedly
// without callers racing over a single shared reader.
func cloneMockResponse(resp *http.Response) *http.Response {
	if resp == nil {
		return nil
	}

	var bodyBytes []byte
	if resp.Body != nil {
		bodyBytes, _ = io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	return &http.Response{
		Status:        resp.Status,
		StatusCode:    resp.StatusCode,
		Header:        resp.Header.Clone(),
		Body:          io.NopCloser(bytes.NewBuffer(bodyBytes)),
		ContentLength: resp.ContentLength,
		Request:       resp.Request,
	}
}

// WithMockTransport installs mock as the base transport, bypassing real
// networking entirely.
func WithMockTransport(mock *MockTransport) Option {
	return func(cfg *internalConfig) {
		cfg.MockTransport = mock
	}
}
