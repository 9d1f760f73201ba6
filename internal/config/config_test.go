package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FEEDMIX_DATA_DIR", "/srv/feedmix")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/srv/feedmix", "reports"), cfg.Paths.ReportsDir)
	assert.Equal(t, filepath.Join("/srv/feedmix", "cache"), cfg.Paths.CacheDir)
	assert.Equal(t, filepath.Join("/srv/feedmix", "config"), cfg.Paths.ConfigDir)
	assert.Equal(t, 24*time.Hour, cfg.Cache.Validity)
	assert.Equal(t, int64(0), cfg.CacheMaxSizeBytes())
	assert.Equal(t, time.Minute, cfg.Watcher.Interval)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Archive.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("FEEDMIX_REPORTS_DIR", "/tmp/r")
	t.Setenv("CACHE_VALIDITY", "2h")
	t.Setenv("CACHE_MAX_SIZE_MB", "3")
	t.Setenv("WATCHER_ENABLED", "false")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", "cache.local")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("API_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/r", cfg.Paths.ReportsDir)
	assert.Equal(t, 2*time.Hour, cfg.Cache.Validity)
	assert.Equal(t, int64(3*1024*1024), cfg.CacheMaxSizeBytes())
	assert.False(t, cfg.Watcher.Enabled)
	assert.Equal(t, "cache.local:6380", cfg.RedisAddr())
	assert.Equal(t, 8090, cfg.API.Port, "unparsable values fall back to the default")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Paths:   PathsConfig{ReportsDir: "r", CacheDir: "c"},
			Cache:   CacheConfig{Validity: time.Hour},
			Watcher: WatcherConfig{Enabled: true, Interval: time.Minute},
		}
	}
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Paths.ReportsDir = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Cache.Validity = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Cache.MaxSizeMB = -1
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Redis = RedisConfig{Enabled: true}
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Archive.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.WebSocket = WebSocketConfig{PingInterval: time.Minute, ReadTimeout: 30 * time.Second}
	assert.Error(t, cfg.Validate())
}
