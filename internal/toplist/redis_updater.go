package toplist

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/storage"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

const (
	// ToplistUpdateChannel is the Redis pub/sub channel for ranking updates
	ToplistUpdateChannel = "toplists.updated"
	// DefaultRankingTTL is the default TTL for ranking ZSET keys
	DefaultRankingTTL = 7 * 24 * time.Hour
)

var rankingPublishes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feedmix_ranking_publishes_total",
		Help: "Total number of farm rankings written to Redis",
	},
	[]string{"kind", "status"},
)

// RedisRankingUpdater implements RankingUpdater using Redis ZSETs
type RedisRankingUpdater struct {
	redisClient storage.RedisClient
	ttl         time.Duration
	now         func() time.Time
}

// NewRedisRankingUpdater creates a new Redis-based ranking updater
func NewRedisRankingUpdater(redisClient storage.RedisClient, ttl time.Duration) *RedisRankingUpdater {
	if ttl <= 0 {
		ttl = DefaultRankingTTL
	}
	return &RedisRankingUpdater{
		redisClient: redisClient,
		ttl:         ttl,
		now:         time.Now,
	}
}

// PublishReport replaces both rankings of the report's date. A failure on
// one kind does not stop the other; the first error is returned.
func (r *RedisRankingUpdater) PublishReport(ctx context.Context, report *models.DailyReport) error {
	if !models.IsCanonicalDate(report.Date) {
		return fmt.Errorf("%w: %q", models.ErrInvalidDate, report.Date)
	}

	var firstErr error
	for _, kind := range []models.UsageKind{models.UsageFeed, models.UsageMix} {
		if err := r.publishKind(ctx, report, kind); err != nil {
			rankingPublishes.WithLabelValues(string(kind), "error").Inc()
			logger.Warn("Failed to publish farm ranking",
				logger.ErrorField(err),
				logger.Date(report.Date),
				logger.Kind(string(kind)),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		rankingPublishes.WithLabelValues(string(kind), "success").Inc()
	}
	return firstErr
}

func (r *RedisRankingUpdater) publishKind(ctx context.Context, report *models.DailyReport, kind models.UsageKind) error {
	key := models.FarmToplistRedisKey(kind, report.Date)
	rankings := report.Calculations(kind).FarmRankings

	// Farms dropped by an edit must not linger from the previous publish
	if err := r.redisClient.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to reset ZSET %s: %w", key, err)
	}

	updates := make([]RankingUpdate, 0, len(rankings))
	for _, fr := range rankings {
		updates = append(updates, RankingUpdate{
			Key:    key,
			Member: models.FarmMember(fr.Area, fr.Farm),
			Value:  fr.TotalConsumption,
		})
	}
	if err := r.BatchUpdate(ctx, updates); err != nil {
		return err
	}
	if len(updates) > 0 {
		if err := r.redisClient.Expire(ctx, key, r.ttl); err != nil {
			return fmt.Errorf("failed to set TTL on %s: %w", key, err)
		}
	}

	return r.PublishUpdate(ctx, models.ToplistUpdate{
		Date:      report.Date,
		Kind:      kind,
		Count:     len(updates),
		Timestamp: r.now().UTC(),
	})
}

// BatchUpdate performs batch updates using one pipeline per key
func (r *RedisRankingUpdater) BatchUpdate(ctx context.Context, updates []RankingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	// Group updates by key, keeping first-seen key order
	var keys []string
	byKey := make(map[string][]storage.ZMember)
	for _, u := range updates {
		if _, ok := byKey[u.Key]; !ok {
			keys = append(keys, u.Key)
		}
		byKey[u.Key] = append(byKey[u.Key], storage.ZMember{Member: u.Member, Score: u.Value})
	}

	for _, key := range keys {
		if err := r.redisClient.ZAddBatch(ctx, key, byKey[key]); err != nil {
			return fmt.Errorf("failed to update ZSET %s: %w", key, err)
		}
	}
	return nil
}

// PublishUpdate publishes a ranking update notification
func (r *RedisRankingUpdater) PublishUpdate(ctx context.Context, update models.ToplistUpdate) error {
	if err := update.Validate(); err != nil {
		return fmt.Errorf("invalid ranking update: %w", err)
	}
	if err := r.redisClient.Publish(ctx, ToplistUpdateChannel, update); err != nil {
		return fmt.Errorf("failed to publish ranking update: %w", err)
	}
	return nil
}

// Close closes the updater (no-op, the Redis client is shared)
func (r *RedisRankingUpdater) Close() error {
	return nil
}
