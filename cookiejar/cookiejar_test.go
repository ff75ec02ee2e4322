package cookiejar

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResponseWithSetCookie(values ...string) *http.Response {
	h := make(http.Header)
	for _, v := range values {
		h.Add("Set-Cookie", v)
	}
	return &http.Response{Header: h}
}

func TestUpdate_MaxAgeSetsExpiry(t *testing.T) {
	j, err := Load(filepath.Join(t.TempDir(), "jar.cookies"))
	require.NoError(t, err)

	before := time.Now()
	j.Update(newResponseWithSetCookie("session=abc123; Max-Age=60; Path=/"))
	after := time.Now()

	c := j.Get("session")
	assert.Equal(t, "abc123", c.Value)
	assert.True(t, !c.ExpiryTime.Before(before.Add(59*time.Second)))
	assert.True(t, !c.ExpiryTime.After(after.Add(61*time.Second)))
}

func TestUpdate_ExpiresHeaderParsesBothLayouts(t *testing.T) {
	j, err := Load(filepath.Join(t.TempDir(), "jar.cookies"))
	require.NoError(t, err)

	j.Update(newResponseWithSetCookie("a=1; Expires=Wed, 09 Jun 2021 10:18:14 GMT"))
	c := j.Get("a")
	assert.True(t, c.ExpiryTime.Equal(time.Date(2021, 6, 9, 10, 18, 14, 0, time.UTC)))

	j.Update(newResponseWithSetCookie("b=2; Expires=Wed, 09-Jun-2021 10:18:14 GMT"))
	c = j.Get("b")
	assert.True(t, c.ExpiryTime.Equal(time.Date(2021, 6, 9, 10, 18, 14, 0, time.UTC)))
}

func TestUpdate_NoAttributesIsSessionCookie(t *testing.T) {
	j, err := Load(filepath.Join(t.TempDir(), "jar.cookies"))
	require.NoError(t, err)

	j.Update(newResponseWithSetCookie("sid=xyz"))
	c := j.Get("sid")
	assert.Equal(t, "xyz", c.Value)
	assert.True(t, c.ExpiryTime.IsZero())
}

func TestUpdate_OverwritesExistingCookie(t *testing.T) {
	j, err := Load(filepath.Join(t.TempDir(), "jar.cookies"))
	require.NoError(t, err)

	j.Update(newResponseWithSetCookie("a=1"))
	j.Update(newResponseWithSetCookie("a=2"))
	assert.Equal(t, "2", j.Get("a").Value)
}

func TestUpdate_MalformedHeaderSkipped(t *testing.T) {
	j, err := Load(filepath.Join(t.TempDir(), "jar.cookies"))
	require.NoError(t, err)

	j.Update(newResponseWithSetCookie("no-equals-sign-here"))
	assert.Equal(t, Cookie{}, j.Get("no-equals-sign-here"))
}

func TestApply_CombinesCookiesIntoSingleHeader(t *testing.T) {
	j, err := Load(filepath.Join(t.TempDir(), "jar.cookies"))
	require.NoError(t, err)

	j.Update(newResponseWithSetCookie("a=1", "b=2"))

	req, err := http.NewRequest(http.MethodGet, "https://example.test/", nil)
	require.NoError(t, err)
	j.Apply(req)

	headerValues := req.Header.Values("Cookie")
	require.Len(t, headerValues, 1)
	assert.Contains(t, headerValues[0], "a=1")
	assert.Contains(t, headerValues[0], "b=2")
}

func TestApply_SweepsExpiredCookies(t *testing.T) {
	j, err := Load(filepath.Join(t.TempDir(), "jar.cookies"))
	require.NoError(t, err)

	j.Update(newResponseWithSetCookie("stale=1; Max-Age=-10"))
	j.Update(newResponseWithSetCookie("fresh=1; Max-Age=60"))

	req, err := http.NewRequest(http.MethodGet, "https://example.test/", nil)
	require.NoError(t, err)
	j.Apply(req)

	assert.Equal(t, Cookie{}, j.Get("stale"))
	assert.Equal(t, "1", j.Get("fresh").Value)
	assert.Equal(t, "fresh=1", req.Header.Get("Cookie"))
}

func TestApply_EmptyJarRemovesCookieHeader(t *testing.T) {
	j, err := Load(filepath.Join(t.TempDir(), "jar.cookies"))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "https://example.test/", nil)
	require.NoError(t, err)
	req.Header.Set("Cookie", "leftover=1")
	j.Apply(req)

	assert.Empty(t, req.Header.Get("Cookie"))
}

func TestSaveAndLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jar.cookies")
	j, err := Load(path)
	require.NoError(t, err)

	j.Update(newResponseWithSetCookie("session=abc; Max-Age=3600"))
	j.Update(newResponseWithSetCookie("sid=xyz"))
	require.NoError(t, j.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc", reloaded.Get("session").Value)
	assert.False(t, reloaded.Get("session").ExpiryTime.IsZero())
	assert.Equal(t, "xyz", reloaded.Get("sid").Value)
	assert.True(t, reloaded.Get("sid").ExpiryTime.IsZero())
}

func TestLoad_MissingFileIsEmptyJar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.cookies")
	j, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Cookie{}, j.Get("anything"))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
