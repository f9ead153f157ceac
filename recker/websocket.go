package recker

import (
	"net/http"
	"net/url"
	"strings"
)

// ResolveWebSocketURL substitutes http→ws and https→wss on base and joins
// path (spec §4.17); it does not touch headers — Client.WebSocketHeaders
// merges the client's default headers. The WebSocket state
// machine itself is out of scope; callers hand the resolved URL and headers
// to their own dialer (e.g. gorilla/websocket, nhooyr.io/websocket).
func ResolveWebSocketURL(base *url.URL, path string) *url.URL {
	if base == nil {
		return nil
	}
	resolved := *base
	switch strings.ToLower(resolved.Scheme) {
	case "https":
		resolved.Scheme = "wss"
	case "http":
		resolved.Scheme = "ws"
	}

	if path != "" {
		joined, err := url.JoinPath(resolved.String(), path)
		if err == nil {
			if u, err := url.Parse(joined); err == nil {
				return u
			}
		}
	}
	return &resolved
}

// WebSocketHeaders returns the client's default headers merged with any
// caller-supplied overrides, suitable for passing to a WebSocket dialer's
// handshake request.
func (c *Client) WebSocketHeaders(overrides http.Header) http.Header {
	merged := make(http.Header, len(c.defaultHeaders)+len(overrides))
	for k, v := range c.defaultHeaders {
		merged[k] = append([]string(nil), v...)
	}
	for k, v := range overrides {
		merged[k] = append([]string(nil), v...)
	}
	return merged
}

// WebSocketURL resolves path against the client's BaseURL via
// ResolveWebSocketURL.
func (c *Client) WebSocketURL(path string) (*url.URL, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	return ResolveWebSocketURL(base, path), nil
}
