package toplist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/storage"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// Service reads published farm rankings back from Redis
type Service struct {
	redisClient storage.RedisClient
}

// NewService creates a new ranking service
func NewService(redisClient storage.RedisClient) *Service {
	return &Service{redisClient: redisClient}
}

// Rankings returns up to limit farms of a day's ranking starting at offset,
// highest consumption first. A limit of 0 returns the whole ranking.
func (s *Service) Rankings(ctx context.Context, date string, kind models.UsageKind, limit, offset int) ([]models.ToplistRanking, error) {
	normalized, err := models.NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	start := int64(offset)
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}

	key := models.FarmToplistRedisKey(kind, normalized)
	members, err := s.redisClient.ZRevRangeWithScores(ctx, key, start, stop)
	if err != nil {
		return nil, fmt.Errorf("failed to get rankings from Redis: %w", err)
	}

	rankings := make([]models.ToplistRanking, 0, len(members))
	for i, member := range members {
		area, farm := models.SplitFarmMember(member.Member)
		rankings = append(rankings, models.ToplistRanking{
			Rank:  offset + i + 1,
			Area:  area,
			Farm:  farm,
			Value: member.Score,
		})
	}
	return rankings, nil
}

// Updates streams ranking update notifications until ctx is done.
// Malformed messages are skipped.
func (s *Service) Updates(ctx context.Context) (<-chan models.ToplistUpdate, error) {
	messages, err := s.redisClient.Subscribe(ctx, ToplistUpdateChannel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ToplistUpdateChannel, err)
	}

	out := make(chan models.ToplistUpdate, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			var update models.ToplistUpdate
			if err := json.Unmarshal([]byte(msg.Message), &update); err != nil {
				logger.Debug("Skipping malformed ranking update", logger.ErrorField(err))
				continue
			}
			if err := update.Validate(); err != nil {
				logger.Debug("Skipping invalid ranking update", logger.ErrorField(err))
				continue
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
