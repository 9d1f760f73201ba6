// Package app assembles the reports pipeline from configuration. Both the
// HTTP server and the CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mohamedkhairy/feedmix/internal/cache"
	"github.com/mohamedkhairy/feedmix/internal/config"
	"github.com/mohamedkhairy/feedmix/internal/fingerprint"
	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/pubsub"
	"github.com/mohamedkhairy/feedmix/internal/report"
	"github.com/mohamedkhairy/feedmix/internal/storage"
	"github.com/mohamedkhairy/feedmix/internal/toplist"
	"github.com/mohamedkhairy/feedmix/internal/view"
	"github.com/mohamedkhairy/feedmix/internal/watcher"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// hookTimeout bounds each external write made after a report is saved
const hookTimeout = 5 * time.Second

// App holds the wired components
type App struct {
	Config     *config.Config
	Store      *cache.Store
	Calculator *report.Calculator
	Facade     *view.Facade
	Watcher    *watcher.Watcher

	// Rankings is nil unless Redis is enabled and reachable
	Rankings *toplist.Service
	// Archive is nil unless the archive is enabled and reachable
	Archive storage.ReportArchive

	redis   storage.RedisClient
	updater toplist.RankingUpdater
}

// Option overrides a dependency, mostly for tests
type Option func(*App)

// WithRedisClient uses client instead of dialing REDIS_HOST
func WithRedisClient(client storage.RedisClient) Option {
	return func(a *App) {
		a.redis = client
	}
}

// WithArchive uses archive instead of connecting to PostgreSQL
func WithArchive(archive storage.ReportArchive) Option {
	return func(a *App) {
		a.Archive = archive
	}
}

// New wires the pipeline. Redis and the archive are optional: when enabled
// but unreachable they are logged and skipped.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{Config: cfg}
	for _, opt := range opts {
		opt(a)
	}

	if err := os.MkdirAll(cfg.Paths.ReportsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	storeOpts := []cache.Option{cache.WithValidity(cfg.Cache.Validity)}
	if limit := cfg.CacheMaxSizeBytes(); limit > 0 {
		storeOpts = append(storeOpts, cache.WithMaxSize(limit))
	}
	store, err := cache.NewStore(cfg.Paths.CacheDir, fingerprint.New(cfg.Paths.ReportsDir), storeOpts...)
	if err != nil {
		return nil, err
	}
	a.Store = store

	a.Calculator = report.NewCalculator(store, report.NewFileConfigLoader(cfg.Paths.ConfigDir), cfg.Paths.ReportsDir)
	a.Facade = view.NewFacade(a.Calculator)
	a.Watcher = watcher.New(cfg.Paths.ReportsDir, store,
		watcher.WithInterval(cfg.Watcher.Interval),
		watcher.WithDebounce(cfg.Watcher.Debounce),
	)

	a.wireRankings()
	a.wireArchive()

	logger.Info("Reports pipeline ready",
		logger.Path(cfg.Paths.ReportsDir),
		logger.String("cache_dir", cfg.Paths.CacheDir),
		logger.Bool("rankings", a.Rankings != nil),
		logger.Bool("archive", a.Archive != nil),
	)
	return a, nil
}

func (a *App) wireRankings() {
	if a.redis == nil {
		if !a.Config.Redis.Enabled {
			return
		}
		client, err := pubsub.NewRedisClient(a.Config.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, farm rankings disabled", logger.ErrorField(err))
			return
		}
		a.redis = client
	}

	a.updater = toplist.NewRedisRankingUpdater(a.redis, a.Config.Ranking.TTL)
	a.Rankings = toplist.NewService(a.redis)
	a.Calculator.AddSavedHook("rankings", func(r *models.DailyReport) error {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		return a.updater.PublishReport(ctx, r)
	})
}

func (a *App) wireArchive() {
	if a.Archive == nil {
		if !a.Config.Archive.Enabled {
			return
		}
		archive, err := storage.NewPostgresArchive(a.Config.Database, storage.DefaultWriteConfig())
		if err != nil {
			logger.Warn("Archive unavailable, reports will not be archived", logger.ErrorField(err))
			return
		}
		if err := archive.Start(); err != nil {
			logger.Warn("Archive writer failed to start", logger.ErrorField(err))
			archive.Close()
			return
		}
		a.Archive = archive
	}

	a.Calculator.AddSavedHook("archive", func(r *models.DailyReport) error {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		return a.Archive.ArchiveReport(ctx, r)
	})
}

// Ready reports whether the optional backends that were wired still answer
func (a *App) Ready(ctx context.Context) error {
	if a.Rankings != nil {
		if _, err := a.Rankings.Rankings(ctx, time.Now().Format(models.ReportDateLayout), models.UsageFeed, 1, 0); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close flushes the cache index and releases optional backends
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush cache: %w", err))
		}
	}
	if a.updater != nil {
		if err := a.updater.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close archive: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
