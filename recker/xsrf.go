package recker

import "net/http"

// XSRFConfig controls the XSRF plugin (spec §4.11): copying a CSRF token
// from a cookie into a request header for state-changing methods.
type XSRFConfig struct {
	Enabled    bool
	CookieName string
	HeaderName string
}

func (c XSRFConfig) cookieName() string {
	if c.CookieName != "" {
		return c.CookieName
	}
	return "XSRF-TOKEN"
}

func (c XSRFConfig) headerName() string {
	if c.HeaderName != "" {
		return c.HeaderName
	}
	return "X-XSRF-TOKEN"
}

var xsrfStateChangingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// xsrfTransport copies the XSRF cookie's value onto the configured header
// for state-changing requests, mirroring the cookie-to-header convention
// used by Angular/Axios-style XSRF protection (spec §4.11). It sits beneath
// the cookie jar so the cookie set by a prior response is already attached
// to req.Header's Cookie line by the time this runs.
type xsrfTransport struct {
	base http.RoundTripper
	cfg  XSRFConfig
}

func newXSRFTransport(base http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if !cfg.XSRFConfig.Enabled {
		return base
	}
	return &xsrfTransport{base: base, cfg: cfg.XSRFConfig}
}

func (t *xsrfTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if xsrfStateChangingMethods[req.Method] {
		for _, c := range req.Cookies() {
			if c.Name == t.cfg.cookieName() {
				req.Header.Set(t.cfg.headerName(), c.Value)
				break
			}
		}
	}
	return t.base.RoundTrip(req)
}
