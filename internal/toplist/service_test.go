package toplist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/storage"
)

func seededService(t *testing.T) (*Service, *storage.MockRedisClient) {
	t.Helper()
	mockRedis := storage.NewMockRedisClient()
	require.NoError(t, newTestUpdater(mockRedis).PublishReport(context.Background(), rankedReport("20250615")))
	return NewService(mockRedis), mockRedis
}

func TestService_Rankings(t *testing.T) {
	svc, _ := seededService(t)
	ctx := context.Background()

	rankings, err := svc.Rankings(ctx, "2025-06-15", models.UsageFeed, 0, 0)
	require.NoError(t, err)
	require.Len(t, rankings, 3)
	assert.Equal(t, models.ToplistRanking{Rank: 1, Area: "Khu 1", Farm: "T2", Value: 40}, rankings[0])
	assert.Equal(t, 3, rankings[2].Rank)
	assert.Equal(t, "Khu 2", rankings[2].Area)

	page, err := svc.Rankings(ctx, "20250615", models.UsageFeed, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 2, page[0].Rank)
	assert.Equal(t, "T1", page[0].Farm)

	empty, err := svc.Rankings(ctx, "20250616", models.UsageMix, 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestService_RankingsErrors(t *testing.T) {
	svc, mockRedis := seededService(t)
	ctx := context.Background()

	_, err := svc.Rankings(ctx, "June", models.UsageFeed, 10, 0)
	assert.ErrorIs(t, err, models.ErrInvalidDate)

	mockRedis.GetErr = errors.New("connection refused")
	_, err = svc.Rankings(ctx, "20250615", models.UsageFeed, 10, 0)
	assert.Error(t, err)
}

func TestService_Updates(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	mockRedis.PubSubData = []storage.PubSubMessage{
		{Channel: ToplistUpdateChannel, Message: `not json`},
		{Channel: ToplistUpdateChannel, Message: `{"date":"20250615","kind":"feed","count":3,"timestamp":"2025-06-15T09:00:00Z"}`},
		{Channel: ToplistUpdateChannel, Message: `{"date":"20250615","kind":"nope","count":1,"timestamp":"2025-06-15T09:00:00Z"}`},
	}
	svc := NewService(mockRedis)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	updates, err := svc.Updates(ctx)
	require.NoError(t, err)

	var got []models.ToplistUpdate
	for u := range updates {
		got = append(got, u)
	}
	require.Len(t, got, 1)
	assert.Equal(t, models.UsageFeed, got[0].Kind)
	assert.Equal(t, 3, got[0].Count)
}
