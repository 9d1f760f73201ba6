package storage

import (
	"context"
	"time"

	"github.com/mohamedkhairy/feedmix/internal/models"
)

// ReportArchive defines the interface for long-term report storage
type ReportArchive interface {
	// ArchiveReport enqueues a saved report for archiving
	ArchiveReport(ctx context.Context, report *models.DailyReport) error

	// GetArchivedReport retrieves the archived report of a canonical date
	GetArchivedReport(ctx context.Context, date string) (*models.DailyReport, error)

	// ListArchived retrieves archive rows with filtering options
	ListArchived(ctx context.Context, filter ArchiveFilter) ([]*ArchiveRecord, error)

	// Close flushes pending writes and closes the storage connection
	Close() error
}

// ArchiveFilter defines filtering options for archive queries
type ArchiveFilter struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// ArchiveRecord is one row of the report archive
type ArchiveRecord struct {
	ReportDate time.Time `json:"report_date"`
	TotalFeed  float64   `json:"total_feed"`
	TotalMix   float64   `json:"total_mix"`
	Payload    []byte    `json:"-"`
	ArchivedAt time.Time `json:"archived_at"`
}

// RedisClient defines the interface for Redis operations
type RedisClient interface {
	// Sorted set operations
	ZAddBatch(ctx context.Context, key string, members []ZMember) error
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error)

	// Key operations
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Pub/Sub operations
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error)

	// Close closes the Redis connection
	Close() error
}

// ZMember is a scored member of a sorted set
type ZMember struct {
	Member string
	Score  float64
}

// PubSubMessage represents a message from Redis pub/sub
type PubSubMessage struct {
	Channel string
	Message string
}
