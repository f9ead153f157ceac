package recker

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// Response wraps http.Response with cached body reading, automatic
// JSON/XML decoding, and the cURL/trace debugging affordances RequestBuilder
// populates when enabled.
//
//	var users []User
//	resp, err := client.Request("GetUsers").Decode(&users).Get(ctx, "/users")
//	if err != nil {
//	    return err
//	}
//	if resp.IsSuccess() {
//	    fmt.Printf("Got %d users\n", len(users))
//	}
type Response struct {
	*http.Response

	request     *http.Request
	body        []byte
	bodyRead    bool
	result      any
	errorResult any
	curlCommand string
	traceInfo   *TraceInfo

	// CacheStatus reports how the Cache plugin served this response: "hit",
	// "miss", "revalidated", or "stale". Empty when the Cache plugin is
	// disabled (spec §4.7).
	CacheStatus string
}

// Body returns the response body as bytes.
//
// The body is read and cached on first access. Subsequent calls
// return the cached value.
func (r *Response) Body() ([]byte, error) {
	if r.bodyRead {
		return r.body, nil
	}

	defer r.Response.Body.Close()
	body, err := io.ReadAll(r.Response.Body)
	if err != nil {
		return nil, err
	}

	r.body = body
	r.bodyRead = true
	return r.body, nil
}

// String returns the response body as a string.
func (r *Response) String() (string, error) {
	body, err := r.Body()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Result returns the decoded success response.
//
// This is only populated if Decode() was called on the RequestBuilder
// and the response was successful (2xx).
func (r *Response) Result() any {
	return r.result
}

// Error returns the decoded error response.
//
// This is only populated if DecodeError() was called on the RequestBuilder
// and the response was not successful (non-2xx).
func (r *Response) Error() any {
	return r.errorResult
}

// IsSuccess returns true if the response status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError returns true if the response status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// CurlCommand returns the cURL command equivalent for this request.
//
// This is only populated if WithGenerateCurl(true) was set on the client.
func (r *Response) CurlCommand() string {
	return r.curlCommand
}

// TraceInfo returns timing information for this request.
//
// This is only populated if EnableTrace() was called on the RequestBuilder.
func (r *Response) TraceInfo() *TraceInfo {
	return r.traceInfo
}

// decode reads the body and decodes it into the result or errorResult.
func (r *Response) decode() error {
	body, err := r.Body()
	if err != nil {
		return err
	}

	if len(body) == 0 {
		return nil
	}

	// Determine content type
	contentType := r.Header.Get("Content-Type")

	if r.IsSuccess() && r.result != nil {
		return decodeBody(body, contentType, r.result)
	}

	if r.IsError() && r.errorResult != nil {
		return decodeBody(body, contentType, r.errorResult)
	}

	return nil
}

// decodeBody decodes the body based on content type.
func decodeBody(body []byte, contentType string, target any) error {
	if strings.Contains(contentType, "application/json") {
		return json.Unmarshal(body, target)
	}
	isXML := strings.Contains(contentType, "application/xml") ||
		strings.Contains(contentType, "text/xml")
	if isXML {
		return xml.Unmarshal(body, target)
	}
	// Default to JSON
	return json.Unmarshal(body, target)
}

// TraceInfo holds per-phase timing for a single request, populated only
// when EnableTrace() was called on the RequestBuilder that produced it.
type TraceInfo struct {
	DNSLookup    string // time from DNS query to resolved IP; "0s" if cached
	ConnTime     string // TCP handshake duration
	TLSHandshake string // empty for plain HTTP
	ServerTime   string // time to first response byte
	TotalTime    string // from request start until the response headers arrive; body transfer not included
}

func (t *TraceInfo) String() string {
	if t == nil {
		return "TraceInfo: nil (EnableTrace() was not called)"
	}

	return fmt.Sprintf(
		"DNS Lookup:    %s\nTCP Connect:   %s\nTLS Handshake: %s\nServer Time:   %s\nTotal Time:    %s",
		t.DNSLookup,
		t.ConnTime,
		t.TLSHandshake,
		t.ServerTime,
		t.TotalTime,
	)
}
