package recker

import (
	"io"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// spanTrackingBody wraps a response body so the OTel span covering the
// request stays open for the full body read and ends exactly once, whether
// that happens on EOF, an early Close, or a read error.
type spanTrackingBody struct {
	span   trace.Span
	body   io.ReadCloser
	read   atomic.Int64
	closed atomic.Bool

	// onFinish receives the total bytes read when the span ends, letting
	// the caller record a response-body-size metric.
	onFinish func(bytesRead int64)
}

// wrapResponseBody returns body instrumented to end span on close/EOF,
// reporting bytesRead via onFinish. Preserves io.ReadWriteCloser for
// protocol-upgrade responses (e.g. a WebSocket upgrade) whose body also
// implements io.Writer.
func wrapResponseBody(span trace.Span, body io.ReadCloser, onFinish func(bytesRead int64)) io.ReadCloser {
	if body == nil {
		return nil
	}

	b := &spanTrackingBody{span: span, body: body, onFinish: onFinish}

	if _, ok := body.(io.ReadWriteCloser); ok {
		return &spanTrackingReadWriter{spanTrackingBody: b}
	}
	return b
}

func (b *spanTrackingBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	b.read.Add(int64(n))

	switch err {
	case nil:
	case io.EOF:
		b.finish()
	default:
		b.span.RecordError(err)
		b.span.SetStatus(codes.Error, err.Error())
	}

	return n, err
}

func (b *spanTrackingBody) Close() error {
	b.finish()
	if b.body != nil {
		return b.body.Close()
	}
	return nil
}

// finish ends the span exactly once, since Close can run after EOF already did.
func (b *spanTrackingBody) finish() {
	if b.closed.CompareAndSwap(false, true) {
		if b.onFinish != nil {
			b.onFinish(b.read.Load())
		}
		b.span.End()
	}
}

// spanTrackingReadWriter extends spanTrackingBody with Write for
// protocol-upgrade bodies.
type spanTrackingReadWriter struct {
	*spanTrackingBody
}

var _ io.ReadWriteCloser = (*spanTrackingReadWriter)(nil)

func (w *spanTrackingReadWriter) Write(p []byte) (int, error) {
	writer, ok := w.body.(io.Writer)
	if !ok {
		return 0, io.ErrClosedPipe
	}

	n, err := writer.Write(p)
	if err != nil {
		w.span.RecordError(err)
		w.span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}
