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
	assert.Equal(t, "redis", cfg.Index.Backend)
	assert.Equal(t, "mark", cfg.Highlight.Tag)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, "post-events", cfg.Kafka.Topics.PostEvents)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
index:
  backend: memory
  rebuildWorkers: 8
search:
  defaultLimit: 5
  maxResults: 50
highlight:
  tag: em
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("NS_INDEX_REBUILD_INTERVAL", "30m")
	t.Setenv("NS_REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, 8, cfg.Index.RebuildWorkers)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.Equal(t, "em", cfg.Highlight.Tag)
	assert.Equal(t, 30*time.Minute, cfg.Index.RebuildInterval)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	// Untouched sections keep their defaults.
	assert.Equal(t, 2*time.Second, cfg.Index.OperationTimeout)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("NS_INDEX_BACKEND", "elastic")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadShippedDevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 600, cfg.Server.RateLimit)
	assert.Equal(t, time.Minute, cfg.Server.RateWindow)
}

func TestLoadRejectsRateLimitWithoutWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  rateLimit: 10\n  rateWindow: 0s\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
