package recker

import (
	"bytes"
	"compress/flate"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig controls the Compression plugin (spec §4.10): response
// bodies are transparently decompressed based on Content-Encoding, and
// request bodies above the threshold are transparently compressed before
// send when the target content type is allow-listed.
type CompressionConfig struct {
	Enabled bool

	// Force compresses request bodies regardless of ContentTypes/Threshold.
	Force bool

	// Threshold is the minimum request body size, in bytes, worth
	// compressing. Below this, the plugin sends the body uncompressed.
	Threshold int64

	// ContentTypes allow-lists request Content-Type prefixes eligible for
	// compression. Empty means "application/json" and "text/*" only.
	ContentTypes []string

	// Algorithm picks the request-side encoding: "gzip", "deflate", or "br".
	// Response decompression always supports all three regardless of this
	// setting, since it is driven by the server's Content-Encoding header.
	Algorithm string
}

func (c CompressionConfig) eligibleContentType(ct string) bool {
	allow := c.ContentTypes
	if len(allow) == 0 {
		allow = []string{"application/json", "text/"}
	}
	for _, prefix := range allow {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// compressionTransport implements spec §4.10. A failure to compress the
// request body falls back to sending it uncompressed; a failure to
// decompress the response surfaces as an error from the response body's
// Read (see lazyDecompressBody).
type compressionTransport struct {
	base http.RoundTripper
	cfg  CompressionConfig
}

func newCompressionTransport(base http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if !cfg.CompressionConfig.Enabled {
		return base
	}
	return &compressionTransport{base: base, cfg: cfg.CompressionConfig}
}

func (t *compressionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.maybeCompressRequest(req)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	t.maybeDecompressResponse(resp)
	return resp, nil
}

func (t *compressionTransport) maybeCompressRequest(req *http.Request) {
	if req.Body == nil || req.GetBody == nil {
		return
	}
	ct := req.Header.Get("Content-Type")
	if !t.cfg.Force && !t.cfg.eligibleContentType(ct) {
		return
	}
	if !t.cfg.Force && req.ContentLength > 0 && req.ContentLength < t.cfg.Threshold {
		return
	}

	raw, err := req.GetBody()
	if err != nil {
		return
	}
	body, err := io.ReadAll(raw)
	raw.Close()
	if err != nil {
		return
	}
	if !t.cfg.Force && int64(len(body)) < t.cfg.Threshold {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		return
	}

	compressed, encoding, err := compressBody(body, t.cfg.Algorithm)
	if err != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		return
	}

	req.Body = io.NopCloser(bytes.NewReader(compressed))
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(compressed)), nil }
	req.ContentLength = int64(len(compressed))
	req.Header.Set("Content-Encoding", encoding)
}

func compressBody(body []byte, algorithm string) ([]byte, string, error) {
	var buf bytes.Buffer
	switch algorithm {
	case "deflate":
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, "", err
		}
		if _, err := w.Write(body); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "deflate", nil
	case "br":
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "br", nil
	default:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "gzip", nil
	}
}

func (t *compressionTransport) maybeDecompressResponse(resp *http.Response) {
	encoding := resp.Header.Get("Content-Encoding")
	switch encoding {
	case "gzip":
		resp.Body = &lazyDecompressBody{orig: resp.Body, newReader: func(r io.Reader) (io.ReadCloser, error) {
			gr, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			return gr, nil
		}}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
	case "deflate":
		resp.Body = &lazyDecompressBody{orig: resp.Body, newReader: func(r io.Reader) (io.ReadCloser, error) {
			return flate.NewReader(r), nil
		}}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
	case "br":
		resp.Body = &lazyDecompressBody{orig: resp.Body, newReader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(brotli.NewReader(r)), nil
		}}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
	}
}

// lazyDecompressBody defers constructing the decompressing reader until the
// first Read, so a failure to initialize it (malformed gzip header, etc.)
// surfaces through the normal io.Reader error path instead of aborting the
// RoundTrip.
type lazyDecompressBody struct {
	orig      io.ReadCloser
	newReader func(io.Reader) (io.ReadCloser, error)
	inner     io.ReadCloser
	initErr   error
}

func (b *lazyDecompressBody) Read(p []byte) (int, error) {
	if b.inner == nil && b.initErr == nil {
		b.inner, b.initErr = b.newReader(b.orig)
	}
	if b.initErr != nil {
		return 0, b.initErr
	}
	return b.inner.Read(p)
}

func (b *lazyDecompressBody) Close() error {
	if b.inner != nil {
		b.inner.Close()
	}
	return b.orig.Close()
}
