package recker

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// GenerateCoalesceKey derives the dedup plugin's collapse key for a request:
// sha256(method, normalized URL without query, sorted query pairs, body
// hash). Two requests collapse into one in-flight call iff their keys match.
func GenerateCoalesceKey(method, rawURL string, body []byte) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return digest(method + rawURL + string(body))
	}

	parts := []string{method, parsed.Scheme + "://" + parsed.Host + parsed.Path, sortedQuery(parsed)}
	if len(body) > 0 {
		bodySum := sha256.Sum256(body)
		parts = append(parts, hex.EncodeToString(bodySum[:]))
	}
	return digest(strings.Join(parts, "|"))
}

func sortedQuery(u *url.URL) string {
	q := u.Query()
	var pairs []string
	for key, values := range q {
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		for _, v := range sorted {
			pairs = append(pairs, key+"="+v)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// coalesceGroups hands out one singleflight.Group per dedup client id, so
// coalescing never leaks across independently-configured *Client instances
// that happen to share a process.
type coalesceGroups struct {
	mu   sync.RWMutex
	byID map[string]*singleflight.Group
}

var clientCoalesceGroups = &coalesceGroups{byID: make(map[string]*singleflight.Group)}

func (g *coalesceGroups) getOrCreateGroup(clientID string) *singleflight.Group {
	g.mu.RLock()
	if grp, ok := g.byID[clientID]; ok {
		g.mu.RUnlock()
		return grp
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if grp, ok := g.byID[clientID]; ok {
		return grp
	}
	grp := &singleflight.Group{}
	g.byID[clientID] = grp
	return grp
}
