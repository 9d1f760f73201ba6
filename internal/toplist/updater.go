package toplist

import (
	"context"

	"github.com/mohamedkhairy/feedmix/internal/models"
)

// RankingUpdate represents a single farm score of a ranking
type RankingUpdate struct {
	Key    string  // Redis key for the ranking
	Member string  // area/farm member
	Value  float64 // total consumption
}

// RankingUpdater defines the interface for publishing farm rankings
type RankingUpdater interface {
	// PublishReport rewrites the feed and mix rankings of a report's date
	PublishReport(ctx context.Context, report *models.DailyReport) error

	// BatchUpdate writes scores grouped by key
	BatchUpdate(ctx context.Context, updates []RankingUpdate) error

	// PublishUpdate publishes a ranking update notification to Redis pub/sub
	PublishUpdate(ctx context.Context, update models.ToplistUpdate) error

	// Close closes the updater
	Close() error
}
