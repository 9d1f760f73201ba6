package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/feedmix/internal/config"
	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/report"
	"github.com/mohamedkhairy/feedmix/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Paths: config.PathsConfig{
			DataDir:    root,
			ReportsDir: filepath.Join(root, "reports"),
			CacheDir:   filepath.Join(root, "cache"),
			ConfigDir:  filepath.Join(root, "config"),
		},
		Cache:   config.CacheConfig{Validity: 24 * time.Hour},
		Watcher: config.WatcherConfig{Enabled: true, Interval: time.Minute, Debounce: 100 * time.Millisecond},
		Ranking: config.RankingConfig{TTL: time.Hour},
	}
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Paths.ConfigDir, report.UsageDir), 0o755))
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.ConfigDir, name), []byte(body), 0o644))
	}
	write(report.FeedFormulaFile, `{"Corn": 1}`)
	write(filepath.Join(report.UsageDir, "usage_20250615.json"), `{"feed_usage": {"A": {"F1": {"morning": 7}, "F2": {"morning": 3}}}}`)
	return cfg
}

func TestNew_Minimal(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Rankings)
	assert.Nil(t, a.Archive)
	assert.DirExists(t, cfg.Paths.ReportsDir)
	assert.NoError(t, a.Ready(context.Background()))

	r := a.Facade.CalculateDailyReport("20250615", false)
	require.NotNil(t, r)
	assert.Equal(t, 10.0, r.RawData.TotalFeed)
	assert.FileExists(t, filepath.Join(cfg.Paths.CacheDir, "cache_metadata.json"))
}

func TestNew_PublishesRankingsAndArchives(t *testing.T) {
	cfg := testConfig(t)
	redis := storage.NewMockRedisClient()
	archive := storage.NewMockReportArchive()

	a, err := New(cfg, WithRedisClient(redis), WithArchive(archive))
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Rankings)

	require.NotNil(t, a.Facade.CalculateDailyReport("20250615", false))

	rankings, err := a.Rankings.Rankings(context.Background(), "20250615", models.UsageFeed, 10, 0)
	require.NoError(t, err)
	require.Len(t, rankings, 2)
	assert.Equal(t, "F1", rankings[0].Farm)
	assert.Equal(t, time.Hour, redis.TTLs[models.FarmToplistRedisKey(models.UsageFeed, "20250615")])

	archived, err := archive.GetArchivedReport(context.Background(), "20250615")
	require.NoError(t, err)
	assert.Equal(t, 10.0, archived.RawData.TotalFeed)
}

func TestNew_UnreachableBackendsAreSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis = config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
	cfg.Archive.Enabled = true
	cfg.Database = config.DatabaseConfig{Host: "127.0.0.1", Port: 1, SSLMode: "disable"}

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Rankings)
	assert.Nil(t, a.Archive)
	assert.NotNil(t, a.Facade.CalculateDailyReport("20250615", false))
}
