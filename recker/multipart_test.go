package recker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBuilder_File_QueuesDeferredSource(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("test file content"), 0o644))

	rb := New().Request("upload").File("document", testFile)

	require.Len(t, rb.fileUploads, 1)
	assert.Equal(t, "document", rb.fileUploads[0].Field)
	assert.Equal(t, "test.txt", rb.fileUploads[0].Name)
	_, isDeferred := rb.fileUploads[0].Source.(*deferredFile)
	assert.True(t, isDeferred)
}

func TestRequestBuilder_FileReader_KeepsGivenSource(t *testing.T) {
	reader := strings.NewReader("test file content from reader")

	rb := New().Request("upload").FileReader("image", "photo.jpg", reader)

	require.Len(t, rb.fileUploads, 1)
	assert.Equal(t, "image", rb.fileUploads[0].Field)
	assert.Equal(t, "photo.jpg", rb.fileUploads[0].Name)
	assert.Same(t, reader, rb.fileUploads[0].Source)
}

func TestRequestBuilder_FormField_AccumulatesAcrossCalls(t *testing.T) {
	rb := New().Request("upload").
		FormField("title", "My Document").
		FormField("category", "reports")

	assert.Equal(t, "My Document", rb.formFields["title"])
	assert.Equal(t, "reports", rb.formFields["category"])
}

func TestRequestBuilder_MultipleFiles(t *testing.T) {
	rb := New().Request("upload").
		FileReader("file1", "doc1.pdf", strings.NewReader("content1")).
		FileReader("file2", "doc2.pdf", strings.NewReader("content2")).
		FormField("description", "Multiple files")

	assert.Len(t, rb.fileUploads, 2)
	assert.Len(t, rb.formFields, 1)
}

func TestRequestBuilder_MultipartUpload_ReachesServer(t *testing.T) {
	var gotContentType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(WithBaseURL(srv.URL))
	resp, err := client.Request("upload").
		FileReader("document", "test.txt", strings.NewReader("file content")).
		FormField("title", "Test Upload").
		Post(context.Background(), "/upload")

	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Contains(t, gotContentType, "multipart/form-data")
	assert.Contains(t, string(gotBody), "file content")
	assert.Contains(t, string(gotBody), "Test Upload")
}

func TestEncodeMultipart_InMemorySource(t *testing.T) {
	rb := New().Request("upload").
		FileReader("doc", "test.txt", strings.NewReader("hello world")).
		FormField("name", "test")

	body, contentType, err := rb.encodeMultipart()

	require.NoError(t, err)
	assert.Contains(t, contentType, "multipart/form-data")
	assert.Contains(t, body.String(), "hello world")
	assert.Contains(t, body.String(), "name")
}

func TestEncodeMultipart_DeferredFileOpenedOnEncode(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "upload.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("real file content"), 0o644))

	rb := New().Request("upload").
		File("document", testFile).
		FormField("title", "Real File")

	body, contentType, err := rb.encodeMultipart()

	require.NoError(t, err)
	assert.Contains(t, contentType, "multipart/form-data")
	assert.Contains(t, body.String(), "real file content")
}

func TestEncodeMultipart_MissingFilePropagatesOpenError(t *testing.T) {
	rb := New().Request("upload").File("document", "/nonexistent/file.txt")

	_, _, err := rb.encodeMultipart()

	assert.Error(t, err)
}

func TestDeferredFile_ReadIsNeverCalledDirectly(t *testing.T) {
	d := &deferredFile{path: "/some/path"}
	buf := make([]byte, 10)
	n, err := d.Read(buf)

	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}
