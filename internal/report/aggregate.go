package report

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mohamedkhairy/feedmix/internal/models"
)

// amount converts a quantity to a finite, non-negative float
func amount(q models.Quantity) float64 {
	f := float64(q)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

func dec(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// percentage returns part/total*100, or 0 when total is 0
func percentage(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return dec(part).Div(dec(total)).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// AreaTotals sums every farm across its shifts, every area across its farms
// and the grand total across areas.
func AreaTotals(usage models.UsageMatrix) (models.OrderedMap[models.AreaTotal], float64) {
	areas := models.NewOrderedMap[models.AreaTotal]()
	grand := decimal.Zero

	usage.Range(func(area string, farms models.FarmUsage) bool {
		areaSum := decimal.Zero
		farmTotals := models.NewOrderedMap[models.FarmTotal]()

		farms.Range(func(farm string, shifts models.ShiftUsage) bool {
			farmSum := decimal.Zero
			shiftAmounts := models.NewOrderedMap[float64]()
			shifts.Range(func(shift string, q models.Quantity) bool {
				v := amount(q)
				shiftAmounts.Set(shift, v)
				farmSum = farmSum.Add(dec(v))
				return true
			})
			farmTotals.Set(farm, models.FarmTotal{Shifts: shiftAmounts, Total: farmSum.InexactFloat64()})
			areaSum = areaSum.Add(farmSum)
			return true
		})

		areas.Set(area, models.AreaTotal{Farms: farmTotals, Total: areaSum.InexactFloat64()})
		grand = grand.Add(areaSum)
		return true
	})

	return areas, grand.InexactFloat64()
}

type shiftAccumulator struct {
	sum    decimal.Decimal
	count  int
	active int
}

// ShiftStatistics aggregates each shift label across all farms. Count is the
// number of farms reporting the shift, ActiveCount those with a non-zero
// amount; the average is taken over active farms only.
func ShiftStatistics(usage models.UsageMatrix) models.OrderedMap[models.ShiftStatistic] {
	accs := models.NewOrderedMap[*shiftAccumulator]()

	usage.Range(func(_ string, farms models.FarmUsage) bool {
		farms.Range(func(_ string, shifts models.ShiftUsage) bool {
			shifts.Range(func(shift string, q models.Quantity) bool {
				acc, ok := accs.Get(shift)
				if !ok {
					acc = &shiftAccumulator{sum: decimal.Zero}
					accs.Set(shift, acc)
				}
				acc.count++
				if v := amount(q); v > 0 {
					acc.sum = acc.sum.Add(dec(v))
					acc.active++
				}
				return true
			})
			return true
		})
		return true
	})

	stats := models.NewOrderedMap[models.ShiftStatistic]()
	accs.Range(func(shift string, acc *shiftAccumulator) bool {
		stat := models.ShiftStatistic{
			Sum:         acc.sum.InexactFloat64(),
			Count:       acc.count,
			ActiveCount: acc.active,
		}
		if acc.active > 0 {
			stat.Average = acc.sum.Div(decimal.NewFromInt(int64(acc.active))).InexactFloat64()
		}
		stats.Set(shift, stat)
		return true
	})
	return stats
}

// FarmRankings lists farms with positive consumption, highest first. Ties
// keep the order farms appear in the usage data.
func FarmRankings(areas models.OrderedMap[models.AreaTotal]) []models.FarmRanking {
	rankings := make([]models.FarmRanking, 0)
	areas.Range(func(area string, at models.AreaTotal) bool {
		at.Farms.Range(func(farm string, ft models.FarmTotal) bool {
			if ft.Total > 0 {
				rankings = append(rankings, models.FarmRanking{
					Area:             area,
					Farm:             farm,
					TotalConsumption: ft.Total,
					ShiftBreakdown:   ft.Shifts,
				})
			}
			return true
		})
		return true
	})

	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].TotalConsumption > rankings[j].TotalConsumption
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings
}

// Calculate runs the three aggregations over one usage matrix
func Calculate(usage models.UsageMatrix) models.Calculations {
	areas, grand := AreaTotals(usage)
	return models.Calculations{
		AreaTotals:      areas,
		GrandTotal:      grand,
		ShiftStatistics: ShiftStatistics(usage),
		FarmRankings:    FarmRankings(areas),
	}
}

// IngredientBreakdown splits total kg across a formula. Formula values are
// relative weights; non-positive weights are left out.
func IngredientBreakdown(total float64, formula models.IngredientAmounts) models.IngredientAmounts {
	out := models.NewOrderedMap[float64]()
	weightSum := decimal.Zero
	formula.Range(func(_ string, w float64) bool {
		if w > 0 && !math.IsInf(w, 0) {
			weightSum = weightSum.Add(dec(w))
		}
		return true
	})
	if weightSum.IsZero() {
		return out
	}

	t := dec(total)
	formula.Range(func(name string, w float64) bool {
		if w > 0 && !math.IsInf(w, 0) {
			out.Set(name, t.Mul(dec(w)).Div(weightSum).InexactFloat64())
		}
		return true
	})
	return out
}

// Efficiency derives the ratios of a report from its totals. Ingredients are
// compared with inventory stock when the inventory lists them.
func Efficiency(feedTotal, mixTotal float64, feedIngredients, mixIngredients, inventory models.IngredientAmounts) models.EfficiencyMetrics {
	grand := dec(feedTotal).Add(dec(mixTotal)).InexactFloat64()
	m := models.EfficiencyMetrics{
		FeedTotal:              feedTotal,
		MixTotal:               mixTotal,
		GrandTotal:             grand,
		FeedPercentage:         percentage(feedTotal, grand),
		MixPercentage:          percentage(mixTotal, grand),
		IngredientUsageVsStock: models.NewOrderedMap[float64](),
		StockShortfalls:        []string{},
	}
	if mixTotal > 0 {
		m.FeedToMixRatio = models.Ratio(dec(feedTotal).Div(dec(mixTotal)).InexactFloat64())
	} else {
		m.FeedToMixRatio = models.InfiniteRatio()
	}

	consumed := models.NewOrderedMap[decimal.Decimal]()
	for _, ingredients := range []models.IngredientAmounts{feedIngredients, mixIngredients} {
		ingredients.Range(func(name string, kg float64) bool {
			prev, ok := consumed.Get(name)
			if !ok {
				prev = decimal.Zero
			}
			consumed.Set(name, prev.Add(dec(kg)))
			return true
		})
	}

	consumed.Range(func(name string, used decimal.Decimal) bool {
		stock, ok := inventory.Get(name)
		if !ok {
			return true
		}
		if stock > 0 {
			m.IngredientUsageVsStock.Set(name, used.Div(dec(stock)).Mul(decimal.NewFromInt(100)).InexactFloat64())
		}
		if used.GreaterThan(dec(stock)) {
			m.StockShortfalls = append(m.StockShortfalls, name)
		}
		return true
	})
	return m
}

// BuildSummary condenses the two calculation sets into the report digest
func BuildSummary(feed, mix models.Calculations, feedIngredients, mixIngredients models.IngredientAmounts) models.Summary {
	activeAreas := make(map[string]struct{})
	activeFarms := make(map[string]struct{})
	for _, calc := range []models.Calculations{feed, mix} {
		calc.AreaTotals.Range(func(area string, at models.AreaTotal) bool {
			if at.Total > 0 {
				activeAreas[area] = struct{}{}
			}
			at.Farms.Range(func(farm string, ft models.FarmTotal) bool {
				if ft.Total > 0 {
					activeFarms[models.FarmMember(area, farm)] = struct{}{}
				}
				return true
			})
			return true
		})
	}

	s := models.Summary{
		ActiveAreas:         len(activeAreas),
		ActiveFarms:         len(activeFarms),
		FeedIngredientCount: countPositive(feedIngredients),
		MixIngredientCount:  countPositive(mixIngredients),
		TotalFeed:           feed.GrandTotal,
		TotalMix:            mix.GrandTotal,
	}

	top := feed.FarmRankings
	if len(top) == 0 {
		top = mix.FarmRankings
	}
	if len(top) > 0 {
		s.TopFarm = &models.TopFarm{
			Area:             top[0].Area,
			Farm:             top[0].Farm,
			TotalConsumption: top[0].TotalConsumption,
		}
	}
	return s
}

func countPositive(m models.IngredientAmounts) int {
	n := 0
	m.Range(func(_ string, v float64) bool {
		if v > 0 {
			n++
		}
		return true
	})
	return n
}

// roundSeconds rounds a duration in seconds to two decimals
func roundSeconds(secs float64) float64 {
	return dec(secs).Round(2).InexactFloat64()
}
