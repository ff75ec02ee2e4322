package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	c, err := New("example.test", t.TempDir())
	require.NoError(t, err)
	return c
}

func TestDo_AppliesDefaultHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL+"/path", nil, "")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, userAgent, gotUA)
	assert.Equal(t, "*/*", gotAccept)
}

func TestDo_PostWithoutBodySetsContentLengthZero(t *testing.T) {
	var gotCL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCL = r.Header.Get("Content-Length")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Do(context.Background(), http.MethodPost, srv.URL+"/", nil, "")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "0", gotCL)
}

func TestDo_PerCallHeaderOverridesDefault(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	override := http.Header{"Content-Type": {"application/json"}}
	resp, err := c.Do(context.Background(), http.MethodPost, srv.URL+"/", override, "{}")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", gotContentType)
}

func TestDo_InflatesGzipResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte(`{"hello":"world"}`))
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL+"/", nil, "")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, string(body))
}

func TestDo_CookieRoundTrips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/first" {
			w.Header().Set("Set-Cookie", "ots=abc123; Path=/")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("X-Echo-Cookie", r.Header.Get("Cookie"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp1, err := c.Do(context.Background(), http.MethodGet, srv.URL+"/first", nil, "")
	require.NoError(t, err)
	resp1.Body.Close()

	resp2, err := c.Do(context.Background(), http.MethodGet, srv.URL+"/second", nil, "")
	require.NoError(t, err)
	defer resp2.Body.Close()

	assert.Equal(t, "ots=abc123", resp2.Header.Get("X-Echo-Cookie"))
	assert.Equal(t, "abc123", c.Cookie("ots").Value)
}

func TestDo_SetDefaultHeaderOverridesAfterConnect(t *testing.T) {
	var gotOrigin string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrigin = r.Header.Get("Origin")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	c.SetDefaultHeader("Origin", "https://example.test")
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL+"/", nil, "")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://example.test", gotOrigin)
}

func TestNew_CreatesCookieFileOnSave(t *testing.T) {
	dir := t.TempDir()
	c, err := New("example.test", dir)
	require.NoError(t, err)
	require.NoError(t, c.SaveCookies())

	assert.FileExists(t, filepath.Join(dir, "example.test.cookies"))
}
