package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, 24*time.Hour, cfg.WaitTokenTTL)
	assert.True(t, cfg.UsingDevSecret())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	body := []byte("port: 9100\nlogLevel: debug\nwaitTokenSecret: file-secret\npersistBaseUrl: https://persist.example.com/\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "file-secret", cfg.WaitTokenSecret)
	assert.False(t, cfg.UsingDevSecret())
	assert.Equal(t, "https://persist.example.com", cfg.PersistBaseURL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9100\n"), 0o600))

	t.Setenv("XPERTLY_PORT", "9200")
	t.Setenv("XPERTLY_WAIT_TOKEN_TTL", "1h")
	t.Setenv("XPERTLY_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, time.Hour, cfg.WaitTokenTTL)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("XPERTLY_PORT", "-1")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("XPERTLY_PORT", "8000")
	t.Setenv("XPERTLY_WAIT_TOKEN_TTL", "0s")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
