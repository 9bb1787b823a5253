package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radif/uploader/internal/file"
	"github.com/radif/uploader/internal/file/filetest"
	"github.com/radif/uploader/internal/server"
	"github.com/radif/uploader/internal/storage"
)

const publicURL = "http://files.example.com"

type testServer struct {
	*httptest.Server
	blobs *filetest.BlobStore
}

type options struct {
	uploadKey   string
	cacheMaxAge int
	maxBytes    int64
}

func newTestServer(t *testing.T, o options) *testServer {
	t.Helper()
	if o.maxBytes == 0 {
		o.maxBytes = 1 << 20
	}
	blobs := filetest.NewBlobStore()
	svc := file.NewService(filetest.NewMetadataStore(), blobs, file.Options{PublicIDLength: 8, CacheMaxAge: o.cacheMaxAge})
	srv := httptest.NewServer(server.NewRouter(file.NewHandler(svc, publicURL+"/", o.maxBytes), o.uploadKey))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, blobs: blobs}
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		URL         string `json:"url"`
		DeletionURL string `json:"deletionUrl"`
	} `json:"data"`
}

func multipartBody(t *testing.T, field string, data []byte, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="upload.bin"`, field))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (s *testServer) upload(t *testing.T, data []byte, contentType, key string) (*http.Response, envelope) {
	t.Helper()
	body, ct := multipartBody(t, "file", data, contentType)
	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/v1/file/upload", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	if key != "" {
		req.Header.Set("Authorization", key)
	}
	return s.do(t, req)
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp, env
}

// local rewrites a URL built from publicURL to point at the test server.
func (s *testServer) local(u string) string {
	return s.URL + strings.TrimPrefix(u, publicURL)
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadRetrieveDelete(t *testing.T) {
	s := newTestServer(t, options{cacheMaxAge: 3600})
	payload := []byte("\x89PNG fake image bytes")

	resp, env := s.upload(t, payload, "image/png", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Regexp(t, `^`+publicURL+`/[A-Za-z0-9]{8}$`, env.Data.URL)
	assert.Regexp(t, `^`+publicURL+`/api/v1/file/delete/[0-9a-f]{32}$`, env.Data.DeletionURL)

	got := get(t, s.local(env.Data.URL))
	require.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, "image/png", got.Header.Get("Content-Type"))
	assert.Equal(t, "max-age=3600", got.Header.Get("Cache-Control"))
	assert.Equal(t, fmt.Sprint(len(payload)), got.Header.Get("Content-Length"))
	var buf bytes.Buffer
	_, err := buf.ReadFrom(got.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, buf.Bytes())

	req, err := http.NewRequest(http.MethodDelete, s.local(env.Data.DeletionURL), nil)
	require.NoError(t, err)
	delResp, delEnv := s.do(t, req)
	assert.Equal(t, http.StatusOK, delResp.StatusCode)
	assert.True(t, delEnv.Success)

	assert.Equal(t, http.StatusNotFound, get(t, s.local(env.Data.URL)).StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, s.local(env.Data.DeletionURL)).StatusCode)
}

func TestDeleteOverGet(t *testing.T) {
	s := newTestServer(t, options{})
	_, env := s.upload(t, []byte("data"), "text/plain", "")

	assert.Equal(t, http.StatusOK, get(t, s.local(env.Data.DeletionURL)).StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, s.local(env.Data.DeletionURL)).StatusCode)
}

func TestRetrieve_NoCache(t *testing.T) {
	s := newTestServer(t, options{})
	_, env := s.upload(t, []byte("data"), "text/plain", "")

	resp := get(t, s.local(env.Data.URL))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
}

func TestUpload_DefaultContentType(t *testing.T) {
	s := newTestServer(t, options{})
	_, env := s.upload(t, []byte("data"), "", "")

	resp := get(t, s.local(env.Data.URL))
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
}

func TestUpload_MissingFileField(t *testing.T) {
	s := newTestServer(t, options{})
	body, ct := multipartBody(t, "other", []byte("data"), "text/plain")

	resp, err := http.Post(s.URL+"/api/v1/file/upload", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, s.blobs.Len())
}

func TestUpload_TooLarge(t *testing.T) {
	s := newTestServer(t, options{maxBytes: 64})

	resp, env := s.upload(t, bytes.Repeat([]byte("x"), 1024), "text/plain", "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, 0, s.blobs.Len())
}

func TestUpload_LimitAppliesToPayload(t *testing.T) {
	const limit = 4096
	s := newTestServer(t, options{maxBytes: limit})

	tests := []struct {
		name   string
		size   int
		status int
	}{
		{"exactly the limit", limit, http.StatusOK},
		{"one byte over", limit + 1, http.StatusRequestEntityTooLarge},
		{"far over the envelope allowance", limit + 128<<10, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := s.upload(t, bytes.Repeat([]byte("x"), tt.size), "text/plain", "")
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Equal(t, 1, s.blobs.Len())
}

func TestUpload_RequiresKey(t *testing.T) {
	s := newTestServer(t, options{uploadKey: "let-me-in"})

	tests := []struct {
		name   string
		key    string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"correct", "let-me-in", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := s.upload(t, []byte("data"), "text/plain", tt.key)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Equal(t, 1, s.blobs.Len())
}

func TestUpload_BackendFailure(t *testing.T) {
	s := newTestServer(t, options{})
	s.blobs.FailSave(fmt.Errorf("%w: put object: connection refused", storage.ErrBackendUnavailable))

	resp, env := s.upload(t, []byte("data"), "text/plain", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "storage backend unavailable", env.Error)
	assert.NotContains(t, env.Error, "connection refused")
}

func TestRetrieve_UnknownID(t *testing.T) {
	s := newTestServer(t, options{})

	resp, env := s.do(t, mustRequest(t, http.MethodGet, s.URL+"/doesnotexist"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "file not found", env.Error)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, options{})

	resp := get(t, s.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func mustRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	return req
}
