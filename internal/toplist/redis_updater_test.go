package toplist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/storage"
)

func rankedReport(date string) *models.DailyReport {
	return &models.DailyReport{
		Date: date,
		FeedCalculations: models.Calculations{
			FarmRankings: []models.FarmRanking{
				{Rank: 1, Area: "Khu 1", Farm: "T2", TotalConsumption: 40},
				{Rank: 2, Area: "Khu 1", Farm: "T1", TotalConsumption: 31},
				{Rank: 3, Area: "Khu 2", Farm: "T1", TotalConsumption: 10},
			},
		},
		MixCalculations: models.Calculations{
			FarmRankings: []models.FarmRanking{
				{Rank: 1, Area: "Khu 3", Farm: "T9", TotalConsumption: 50},
			},
		},
	}
}

func newTestUpdater(redis storage.RedisClient) *RedisRankingUpdater {
	u := NewRedisRankingUpdater(redis, time.Hour)
	u.now = func() time.Time { return time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC) }
	return u
}

func TestRedisRankingUpdater_PublishReport(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	updater := newTestUpdater(mockRedis)

	require.NoError(t, updater.PublishReport(context.Background(), rankedReport("20250615")))

	feedKey := models.FarmToplistRedisKey(models.UsageFeed, "20250615")
	assert.Equal(t, map[string]float64{
		"Khu 1/T2": 40,
		"Khu 1/T1": 31,
		"Khu 2/T1": 10,
	}, mockRedis.ZSets[feedKey])
	assert.Equal(t, time.Hour, mockRedis.TTLs[feedKey])

	mixKey := models.FarmToplistRedisKey(models.UsageMix, "20250615")
	assert.Equal(t, map[string]float64{"Khu 3/T9": 50}, mockRedis.ZSets[mixKey])

	require.Len(t, mockRedis.Published, 2)
	assert.Equal(t, ToplistUpdateChannel, mockRedis.Published[0].Channel)

	var update models.ToplistUpdate
	require.NoError(t, json.Unmarshal([]byte(mockRedis.Published[0].Message), &update))
	assert.Equal(t, "20250615", update.Date)
	assert.Equal(t, models.UsageFeed, update.Kind)
	assert.Equal(t, 3, update.Count)
}

func TestRedisRankingUpdater_RepublishDropsStaleFarms(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	updater := newTestUpdater(mockRedis)
	ctx := context.Background()

	require.NoError(t, updater.PublishReport(ctx, rankedReport("20250615")))

	edited := rankedReport("20250615")
	edited.FeedCalculations.FarmRankings = edited.FeedCalculations.FarmRankings[:1]
	require.NoError(t, updater.PublishReport(ctx, edited))

	feedKey := models.FarmToplistRedisKey(models.UsageFeed, "20250615")
	assert.Equal(t, map[string]float64{"Khu 1/T2": 40}, mockRedis.ZSets[feedKey])
}

func TestRedisRankingUpdater_EmptyRanking(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	updater := newTestUpdater(mockRedis)

	report := rankedReport("20250615")
	report.MixCalculations.FarmRankings = nil
	require.NoError(t, updater.PublishReport(context.Background(), report))

	mixKey := models.FarmToplistRedisKey(models.UsageMix, "20250615")
	_, exists := mockRedis.ZSets[mixKey]
	assert.False(t, exists)
	require.Len(t, mockRedis.Published, 2)
	assert.Contains(t, mockRedis.Published[1].Message, `"count":0`)
}

func TestRedisRankingUpdater_Errors(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	updater := newTestUpdater(mockRedis)
	ctx := context.Background()

	assert.ErrorIs(t, updater.PublishReport(ctx, rankedReport("bad")), models.ErrInvalidDate)

	mockRedis.ZAddErr = errors.New("READONLY")
	err := updater.PublishReport(ctx, rankedReport("20250615"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
	assert.Empty(t, mockRedis.Published)
}

func TestRedisRankingUpdater_BatchUpdateGroupsByKey(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	updater := newTestUpdater(mockRedis)

	err := updater.BatchUpdate(context.Background(), []RankingUpdate{
		{Key: "a", Member: "x", Value: 1},
		{Key: "b", Member: "y", Value: 2},
		{Key: "a", Member: "z", Value: 3},
	})
	require.NoError(t, err)
	assert.Len(t, mockRedis.ZSets["a"], 2)
	assert.Len(t, mockRedis.ZSets["b"], 1)

	assert.NoError(t, updater.BatchUpdate(context.Background(), nil))
}

func TestRedisRankingUpdater_PublishUpdateValidates(t *testing.T) {
	updater := newTestUpdater(storage.NewMockRedisClient())
	err := updater.PublishUpdate(context.Background(), models.ToplistUpdate{Date: "20250615", Kind: "bogus", Timestamp: time.Now()})
	assert.Error(t, err)
}
