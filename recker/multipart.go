package recker

import (
	"bytes"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// Attachment is a single part of a multipart/form-data request body, added
// via RequestBuilder.File or RequestBuilder.FileReader.
type Attachment struct {
	// Field is the multipart form field name the part is submitted under.
	Field string

	// Name is the filename recorded in the part's Content-Disposition.
	Name string

	// Source supplies the part's bytes. File() installs a deferredFile here
	// so the path is only opened once the request actually executes.
	Source io.Reader
}

// File queues a file upload read from disk. The path is resolved lazily at
// execution time, not at call time, so a File() call can be chained before
// the caller's working directory or the file itself is guaranteed to exist.
func (rb *RequestBuilder) File(field, path string) *RequestBuilder {
	rb.fileUploads = append(rb.fileUploads, Attachment{
		Field:  field,
		Name:   filepath.Base(path),
		Source: &deferredFile{path: path},
	})
	return rb
}

// FileReader queues a file upload read from an already-open source — bytes
// already in memory, a stream, or a test fixture.
func (rb *RequestBuilder) FileReader(field, name string, src io.Reader) *RequestBuilder {
	rb.fileUploads = append(rb.fileUploads, Attachment{Field: field, Name: name, Source: src})
	return rb
}

// FormField adds a plain text field alongside the request's file uploads.
func (rb *RequestBuilder) FormField(key, value string) *RequestBuilder {
	if rb.formFields == nil {
		rb.formFields = make(map[string]string)
	}
	rb.formFields[key] = value
	return rb
}

// encodeMultipart renders the request's form fields and file uploads into a
// single multipart/form-data body, resolving any deferredFile sources along
// the way.
func (rb *RequestBuilder) encodeMultipart() (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for key, value := range rb.formFields {
		if err := mw.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}

	for _, att := range rb.fileUploads {
		src := att.Source
		if deferred, ok := src.(*deferredFile); ok {
			f, err := os.Open(deferred.path)
			if err != nil {
				return nil, "", err
			}
			defer f.Close()
			src = f
		}

		part, err := mw.CreateFormFile(att.Field, att.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, src); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// deferredFile is a placeholder io.Reader standing in for a not-yet-opened
// file; encodeMultipart swaps it for a real *os.File before copying.
type deferredFile struct {
	path string
}

func (d *deferredFile) Read([]byte) (int, error) {
	return 0, io.EOF
}
