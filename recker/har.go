package recker

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// HARLike models the subset of the HAR 1.2 log.entries[] shape recker's
// player understands: enough to replay a recorded session, not a full
// HAR archive reader.
type HARLike struct {
	Log struct {
		Entries []HAREntry `json:"entries"`
	} `json:"log"`
}

// HAREntry is one recorded request/response pair. ID is assigned at load
// time if the source archive didn't carry one, so replayed entries can be
// correlated in debug logs.
type HAREntry struct {
	ID      string `json:"id,omitempty"`
	Request struct {
		Method   string `json:"method"`
		URL      string `json:"url"`
		PostData struct {
			Text string `json:"text"`
		} `json:"postData"`
	} `json:"request"`
	Response struct {
		Status  int `json:"status"`
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"response"`
}

// NoMatchingRecording is raised when Strict is set and no HAR entry matches
// the outgoing request.
type NoMatchingRecording struct {
	Request *http.Request
}

func (e *NoMatchingRecording) Error() string {
	return fmt.Sprintf("recker: har: no matching recording for %s %s", e.Request.Method, e.Request.URL)
}

// HARConfig configures the HAR player plugin (spec §4.13).
type HARConfig struct {
	// Entries are matched in order; the first entry whose method, URL, and
	// canonicalized body match the outgoing request wins.
	Entries []HAREntry

	// Strict raises NoMatchingRecording on a miss instead of forwarding to
	// the real transport.
	Strict bool
}

// ParseHARLike decodes a HAR-like JSON document into a HARConfig's Entries.
func ParseHARLike(data []byte) ([]HAREntry, error) {
	var archive HARLike
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("recker: har: decoding archive: %w", err)
	}
	return archive.Log.Entries, nil
}

// harTransport replays recorded HAREntry responses instead of making real
// network calls.
type harTransport struct {
	base    http.RoundTripper
	entries []HAREntry
	strict  bool
}

func newHARTransport(base http.RoundTripper, cfg HARConfig) http.RoundTripper {
	entries := cfg.Entries
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
	}
	return &harTransport{base: base, entries: entries, strict: cfg.Strict}
}

func (t *harTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	for _, entry := range t.entries {
		if !strings.EqualFold(entry.Request.Method, req.Method) {
			continue
		}
		if entry.Request.URL != req.URL.String() {
			continue
		}
		if entry.Request.PostData.Text != "" && !canonicalBodyEqual(entry.Request.PostData.Text, reqBody) {
			continue
		}
		return t.synthesize(entry, req), nil
	}

	if t.strict {
		return nil, &NoMatchingRecording{Request: req}
	}
	return t.base.RoundTrip(req)
}

// canonicalBodyEqual compares a recorded body against the outgoing body,
// treating equivalent JSON objects as equal regardless of key order.
func canonicalBodyEqual(recorded string, actual []byte) bool {
	if recorded == string(actual) {
		return true
	}
	var a, b any
	if json.Unmarshal([]byte(recorded), &a) != nil || json.Unmarshal(actual, &b) != nil {
		return false
	}
	ca, _ := json.Marshal(canonicalize(a))
	cb, _ := json.Marshal(canonicalize(b))
	return string(ca) == string(cb)
}

// canonicalize sorts map keys recursively so two structurally-equal JSON
// values marshal to the same bytes.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = canonicalize(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return v
	}
}

func (t *harTransport) synthesize(entry HAREntry, req *http.Request) *http.Response {
	header := make(http.Header, len(entry.Response.Headers))
	for _, h := range entry.Response.Headers {
		header.Add(h.Name, h.Value)
	}
	body := []byte(entry.Response.Content.Text)
	return &http.Response{
		Status:        http.StatusText(entry.Response.Status),
		StatusCode:    entry.Response.Status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
