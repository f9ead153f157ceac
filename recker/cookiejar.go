package recker

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Cookie is recker's own cookie representation (spec §3), independent of
// net/http/cookiejar so the Cookie plugin can be swapped or introspected.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// CookieJar is the downward contract for the Cookie plugin (spec §6).
type CookieJar interface {
	Cookies(u *url.URL) []*Cookie
	SetCookies(u *url.URL, cookies []*Cookie)
}

// memoryCookieJar is the default CookieJar: domain/path matching over an
// in-memory store keyed by (domain, path, name).
type memoryCookieJar struct {
	mu            sync.RWMutex
	store         map[string]*Cookie
	ignoreInvalid bool
}

func newMemoryCookieJar(ignoreInvalid bool) *memoryCookieJar {
	return &memoryCookieJar{store: make(map[string]*Cookie), ignoreInvalid: ignoreInvalid}
}

func cookieStoreKey(domain, path, name string) string {
	return strings.ToLower(domain) + "|" + path + "|" + name
}

func (j *memoryCookieJar) Cookies(u *url.URL) []*Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()

	now := time.Now()
	var out []*Cookie
	for _, c := range j.store {
		if !domainMatch(u.Hostname(), c.Domain) {
			continue
		}
		if !pathMatch(u.Path, c.Path) {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		if !c.Expires.IsZero() && now.After(c.Expires) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (j *memoryCookieJar) SetCookies(u *url.URL, cookies []*Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range cookies {
		if c.Domain == "" {
			c.Domain = u.Hostname()
		}
		if c.Path == "" {
			c.Path = "/"
		}
		key := cookieStoreKey(c.Domain, c.Path, c.Name)
		if !c.Expires.IsZero() && time.Now().After(c.Expires) {
			delete(j.store, key)
			continue
		}
		j.store[key] = c
	}
}

func domainMatch(host, domain string) bool {
	host, domain = strings.ToLower(host), strings.ToLower(domain)
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if cookiePath == "" || cookiePath == "/" {
		return true
	}
	if reqPath == cookiePath {
		return true
	}
	return strings.HasPrefix(reqPath, cookiePath) &&
		(strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/')
}

// CookieJarConfig controls the Cookie plugin (spec §4.9).
type CookieJarConfig struct {
	Enabled       bool
	Jar           CookieJar
	IgnoreInvalid bool
}

// cookieTransport attaches stored cookies to outgoing requests and parses
// Set-Cookie response headers back into the jar (spec §4.9). Multiple
// Set-Cookie headers are already split by net/http into separate Header
// values, so no comma-splitting is needed here.
type cookieTransport struct {
	base http.RoundTripper
	cfg  CookieJarConfig
}

func newCookieTransport(base http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if !cfg.CookieJarConfig.Enabled {
		return base
	}
	if cfg.CookieJarConfig.Jar == nil {
		cfg.CookieJarConfig.Jar = newMemoryCookieJar(cfg.CookieJarConfig.IgnoreInvalid)
	}
	return &cookieTransport{base: base, cfg: cfg.CookieJarConfig}
}

func (t *cookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for _, c := range t.cfg.Jar.Cookies(req.URL) {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if raw := resp.Header.Values("Set-Cookie"); len(raw) > 0 {
		var parsed []*Cookie
		for _, line := range raw {
			hc, perr := http.ParseSetCookie(line)
			if perr != nil {
				if t.cfg.IgnoreInvalid {
					continue
				}
				continue
			}
			parsed = append(parsed, &Cookie{
				Name: hc.Name, Value: hc.Value, Domain: hc.Domain, Path: hc.Path,
				Expires: hc.Expires, Secure: hc.Secure, HTTPOnly: hc.HttpOnly,
				SameSite: sameSiteString(hc.SameSite),
			})
		}
		t.cfg.Jar.SetCookies(req.URL, parsed)
	}

	return resp, nil
}

func sameSiteString(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}
