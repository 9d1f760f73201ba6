package report

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/feedmix/internal/models"
)

func usageFromJSON(t *testing.T, s string) models.UsageMatrix {
	t.Helper()
	var m models.UsageMatrix
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func amounts(pairs ...interface{}) models.IngredientAmounts {
	m := models.NewOrderedMap[float64]()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i].(string), pairs[i+1].(float64))
	}
	return m
}

func TestAreaTotals(t *testing.T) {
	usage := usageFromJSON(t, `{
		"Area 1": {"Farm 1": {"morning": 10, "afternoon": 20}},
		"Area 2": {"Farm 1": {"morning": 5, "afternoon": "15"}, "Farm 2": {"morning": null}}
	}`)

	areas, grand := AreaTotals(usage)
	assert.Equal(t, 50.0, grand)
	assert.Equal(t, []string{"Area 1", "Area 2"}, areas.Keys())

	a1, _ := areas.Get("Area 1")
	assert.Equal(t, 30.0, a1.Total)
	a2, _ := areas.Get("Area 2")
	assert.Equal(t, 20.0, a2.Total)
	f2, ok := a2.Farms.Get("Farm 2")
	require.True(t, ok)
	assert.Equal(t, 0.0, f2.Total)
	f1, _ := a2.Farms.Get("Farm 1")
	afternoon, _ := f1.Shifts.Get("afternoon")
	assert.Equal(t, 15.0, afternoon)
}

func TestAreaTotals_NoFloatDrift(t *testing.T) {
	usage := usageFromJSON(t, `{"A": {"F": {"s1": 0.1, "s2": 0.2}}}`)
	_, grand := AreaTotals(usage)
	assert.Equal(t, 0.3, grand)
}

func TestAreaTotals_Empty(t *testing.T) {
	areas, grand := AreaTotals(models.UsageMatrix{})
	assert.Equal(t, 0, areas.Len())
	assert.Equal(t, 0.0, grand)
}

func TestShiftStatistics(t *testing.T) {
	usage := usageFromJSON(t, `{
		"A": {"F1": {"morning": 10, "afternoon": 0}, "F2": {"morning": 30}},
		"B": {"F3": {"morning": 0, "afternoon": 8, "night": 2}}
	}`)

	stats := ShiftStatistics(usage)
	assert.Equal(t, []string{"morning", "afternoon", "night"}, stats.Keys())

	morning, _ := stats.Get("morning")
	assert.Equal(t, models.ShiftStatistic{Sum: 40, Average: 20, Count: 3, ActiveCount: 2}, morning)

	afternoon, _ := stats.Get("afternoon")
	assert.Equal(t, models.ShiftStatistic{Sum: 8, Average: 8, Count: 2, ActiveCount: 1}, afternoon)

	night, _ := stats.Get("night")
	assert.Equal(t, 2.0, night.Average)
}

func TestShiftStatistics_NoActiveFarms(t *testing.T) {
	stats := ShiftStatistics(usageFromJSON(t, `{"A": {"F": {"morning": 0}}}`))
	morning, _ := stats.Get("morning")
	assert.Equal(t, models.ShiftStatistic{Count: 1}, morning)
}

func TestFarmRankings_StableTies(t *testing.T) {
	usage := usageFromJSON(t, `{
		"A": {"F1": {"morning": 50}, "F2": {"morning": 50}, "F0": {"morning": 0}},
		"B": {"F3": {"morning": 10}}
	}`)
	areas, _ := AreaTotals(usage)

	rankings := FarmRankings(areas)
	require.Len(t, rankings, 3)

	assert.Equal(t, "F1", rankings[0].Farm)
	assert.Equal(t, 1, rankings[0].Rank)
	assert.Equal(t, "F2", rankings[1].Farm)
	assert.Equal(t, 2, rankings[1].Rank)
	assert.Equal(t, "F3", rankings[2].Farm)
	assert.Equal(t, 3, rankings[2].Rank)
	assert.Equal(t, "B", rankings[2].Area)
	assert.Equal(t, 10.0, rankings[2].TotalConsumption)
}

func TestFarmRankings_EmptyIsNotNil(t *testing.T) {
	rankings := FarmRankings(models.NewOrderedMap[models.AreaTotal]())
	require.NotNil(t, rankings)
	data, err := json.Marshal(rankings)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestIngredientBreakdown(t *testing.T) {
	out := IngredientBreakdown(300, amounts("A", 1.0, "B", 2.0, "C", 0.0, "D", -1.0))
	assert.Equal(t, []string{"A", "B"}, out.Keys())
	a, _ := out.Get("A")
	b, _ := out.Get("B")
	assert.InDelta(t, 100.0, a, 1e-9)
	assert.InDelta(t, 200.0, b, 1e-9)

	assert.Equal(t, 0, IngredientBreakdown(100, amounts("A", 0.0)).Len())
	assert.Equal(t, 0, IngredientBreakdown(100, models.IngredientAmounts{}).Len())
}

func TestEfficiency(t *testing.T) {
	m := Efficiency(75, 25,
		amounts("Corn", 60.0, "Soy", 15.0),
		amounts("Corn", 5.0, "Premix", 20.0),
		amounts("Corn", 50.0, "Soy", 30.0, "Premix", 0.0),
	)

	assert.Equal(t, 100.0, m.GrandTotal)
	assert.Equal(t, 75.0, m.FeedPercentage)
	assert.Equal(t, 25.0, m.MixPercentage)
	assert.Equal(t, 3.0, float64(m.FeedToMixRatio))

	corn, _ := m.IngredientUsageVsStock.Get("Corn")
	assert.InDelta(t, 130.0, corn, 1e-9)
	soy, _ := m.IngredientUsageVsStock.Get("Soy")
	assert.InDelta(t, 50.0, soy, 1e-9)
	_, hasPremix := m.IngredientUsageVsStock.Get("Premix")
	assert.False(t, hasPremix, "zero stock has no percentage")

	assert.Equal(t, []string{"Corn", "Premix"}, m.StockShortfalls)
}

func TestEfficiency_ZeroTotals(t *testing.T) {
	m := Efficiency(0, 0, models.IngredientAmounts{}, models.IngredientAmounts{}, models.IngredientAmounts{})
	assert.Equal(t, 0.0, m.FeedPercentage)
	assert.Equal(t, 0.0, m.MixPercentage)
	assert.True(t, math.IsInf(float64(m.FeedToMixRatio), 1))
	assert.NotNil(t, m.StockShortfalls)
}

func TestBuildSummary(t *testing.T) {
	feed := Calculate(usageFromJSON(t, `{"A": {"F1": {"m": 5}, "F2": {"m": 9}}, "B": {"F3": {"m": 0}}}`))
	mix := Calculate(usageFromJSON(t, `{"B": {"F3": {"m": 4}}, "C": {"F4": {"m": 0}}}`))

	s := BuildSummary(feed, mix, amounts("Corn", 3.0, "Soy", 0.0), amounts("Premix", 1.0))
	assert.Equal(t, 2, s.ActiveAreas)
	assert.Equal(t, 3, s.ActiveFarms)
	require.NotNil(t, s.TopFarm)
	assert.Equal(t, models.TopFarm{Area: "A", Farm: "F2", TotalConsumption: 9}, *s.TopFarm)
	assert.Equal(t, 1, s.FeedIngredientCount)
	assert.Equal(t, 1, s.MixIngredientCount)
	assert.Equal(t, 14.0, s.TotalFeed)
	assert.Equal(t, 4.0, s.TotalMix)
}

func TestBuildSummary_TopFarmFallsBackToMix(t *testing.T) {
	mix := Calculate(usageFromJSON(t, `{"B": {"F3": {"m": 4}}}`))
	s := BuildSummary(Calculate(models.UsageMatrix{}), mix, models.IngredientAmounts{}, models.IngredientAmounts{})
	require.NotNil(t, s.TopFarm)
	assert.Equal(t, "F3", s.TopFarm.Farm)

	empty := BuildSummary(Calculate(models.UsageMatrix{}), Calculate(models.UsageMatrix{}), models.IngredientAmounts{}, models.IngredientAmounts{})
	assert.Nil(t, empty.TopFarm)
}

func TestRoundSeconds(t *testing.T) {
	assert.Equal(t, 0.12, roundSeconds(0.1234))
	assert.Equal(t, 1.57, roundSeconds(1.5678))
}
