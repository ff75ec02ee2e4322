package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Duration(time.Second), cfg.WS.ReconnectBackoff)
	assert.Equal(t, Duration(60*time.Second), cfg.RestAPI.KeepAliveInterval)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "ws:\n  reconnect_backoff: 5s\nrest_api:\n  keep_alive_interval: 30s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Duration(5*time.Second), cfg.WS.ReconnectBackoff)
	assert.Equal(t, Duration(30*time.Second), cfg.RestAPI.KeepAliveInterval)
}

func TestLoad_RejectsZeroBackoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "ws:\n  reconnect_backoff: 0s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadCredentials_MissingUsernameErrors(t *testing.T) {
	t.Setenv("TD365_USERNAME", "")
	t.Setenv("TD365_PASSWORD", "secret")
	t.Setenv("TD365_ACCOUNT_ID", "123")

	_, err := LoadCredentials()
	require.Error(t, err)
}

func TestLoadCredentials_ReadsFromEnvironment(t *testing.T) {
	t.Setenv("TD365_USERNAME", "trader1")
	t.Setenv("TD365_PASSWORD", "secret")
	t.Setenv("TD365_ACCOUNT_ID", "123")

	creds, err := LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "trader1", creds.Username)
	assert.Equal(t, "secret", creds.Password)
	assert.Equal(t, "123", creds.AccountID)
}
