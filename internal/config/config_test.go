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
	t.Setenv("VIDCAT_CONFIG", "")
	t.Setenv("R_HOST", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.Catalog.BaseURL)
	assert.Equal(t, 8, cfg.Search.PageSize)
	assert.Equal(t, 3, cfg.Catalog.MaxRetries)
	assert.True(t, cfg.Catalog.RemoteStats)
	assert.False(t, cfg.RedisEnabled())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vidcat.yaml")
	yamlDoc := `
catalog:
  base_url: http://catalog.internal:8080
  timeout: 5s
  max_retries: 5
search:
  page_size: 20
redis:
  host: cache.internal
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	t.Setenv("VIDCAT_CONFIG", path)
	t.Setenv("VIDCAT_PAGE_SIZE", "12")
	t.Setenv("VIDCAT_REMOTE_STATS", "false")
	t.Setenv("R_HOST", "")
	t.Setenv("R_PORT", "6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://catalog.internal:8080", cfg.Catalog.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, 5, cfg.Catalog.MaxRetries)
	assert.Equal(t, 12, cfg.Search.PageSize, "env overrides file")
	assert.False(t, cfg.Catalog.RemoteStats)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"page size not a number", "VIDCAT_PAGE_SIZE", "eight"},
		{"page size zero", "VIDCAT_PAGE_SIZE", "0"},
		{"bad duration", "VIDCAT_TIMEOUT", "soon"},
		{"bad bool", "VIDCAT_REMOTE_STATS", "maybe"},
		{"negative rate", "VIDCAT_RATE_LIMIT", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VIDCAT_CONFIG", "")
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("VIDCAT_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
