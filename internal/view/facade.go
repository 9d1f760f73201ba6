// Package view shapes daily reports into table-ready rows for the HTTP and
// CLI front ends. It makes no caching decisions of its own.
package view

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/mohamedkhairy/feedmix/internal/cache"
	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/report"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// SlimReport is the metadata and summary of a report without its detail
type SlimReport struct {
	Date     string          `json:"date"`
	Summary  models.Summary  `json:"summary"`
	Metadata models.Metadata `json:"metadata"`
}

// ReportView holds either the full report or its slim form
type ReportView struct {
	Full *models.DailyReport
	Slim *SlimReport
}

// MarshalJSON implements json.Marshaler
func (v ReportView) MarshalJSON() ([]byte, error) {
	if v.Full != nil {
		return json.Marshal(v.Full)
	}
	return json.Marshal(v.Slim)
}

// ConsumptionRow is one farm line of a feed or mix table
type ConsumptionRow struct {
	Area             string  `json:"area"`
	Farm             string  `json:"farm"`
	Morning          float64 `json:"morning"`
	Afternoon        float64 `json:"afternoon"`
	OtherShifts      float64 `json:"other_shifts"`
	FarmTotal        float64 `json:"farm_total"`
	AreaTotal        float64 `json:"area_total"`
	PercentageOfArea float64 `json:"percentage_of_area"`
}

// AreaSummaryRow is one area of the area summary
type AreaSummaryRow struct {
	Rank              int     `json:"rank"`
	Area              string  `json:"area"`
	FeedConsumption   float64 `json:"feed_consumption"`
	MixConsumption    float64 `json:"mix_consumption"`
	TotalConsumption  float64 `json:"total_consumption"`
	PercentageOfTotal float64 `json:"percentage_of_total"`
}

// AreaSummary ranks areas by total consumption
type AreaSummary struct {
	Areas      []AreaSummaryRow `json:"areas"`
	GrandTotal float64          `json:"grand_total"`
}

// ConsumptionMetrics are the totals section of the performance metrics
type ConsumptionMetrics struct {
	FeedTotal      float64 `json:"feed_total"`
	MixTotal       float64 `json:"mix_total"`
	GrandTotal     float64 `json:"grand_total"`
	FeedPercentage float64 `json:"feed_percentage"`
	MixPercentage  float64 `json:"mix_percentage"`
	FeedToMixRatio string  `json:"feed_to_mix_ratio"`
}

// OperationalMetrics are the activity section of the performance metrics
type OperationalMetrics struct {
	ActiveAreas         int             `json:"active_areas"`
	ActiveFarms         int             `json:"active_farms"`
	TopFarm             *models.TopFarm `json:"top_farm"`
	FeedIngredientCount int             `json:"feed_ingredient_count"`
	MixIngredientCount  int             `json:"mix_ingredient_count"`
	StockShortfalls     []string        `json:"stock_shortfalls"`
}

// PerformanceInfo describes how the report was produced
type PerformanceInfo struct {
	Date              string    `json:"date"`
	CalculationTime   float64   `json:"calculation_time"`
	CalculatedAt      time.Time `json:"calculated_at,omitzero"`
	Cached            bool      `json:"cached"`
	PreservedUserData bool      `json:"preserved_user_data"`
	SavedToFile       bool      `json:"saved_to_file"`
}

// PerformanceMetrics is the consumption/operational/info triad
type PerformanceMetrics struct {
	Consumption ConsumptionMetrics `json:"consumption"`
	Operational OperationalMetrics `json:"operational"`
	Info        PerformanceInfo    `json:"info"`
}

// Facade is the read side used by every front end
type Facade struct {
	calc  *report.Calculator
	store *cache.Store
}

// NewFacade creates a facade over calc and the cache it reads through
func NewFacade(calc *report.Calculator) *Facade {
	return &Facade{calc: calc, store: calc.Store()}
}

// CalculateDailyReport returns the report of date, recomputing when force is set
func (f *Facade) CalculateDailyReport(date string, force bool) *models.DailyReport {
	return f.calc.Calculate(date, force)
}

// GetReport returns the full report, or its slim form when includeDetails
// is false. Nil when no report exists.
func (f *Facade) GetReport(date string, includeDetails bool) *ReportView {
	r := f.calc.Calculate(date, false)
	if r == nil {
		return nil
	}
	if includeDetails {
		return &ReportView{Full: r}
	}
	return &ReportView{Slim: slim(r)}
}

// GetReportSummary returns the slim report
func (f *Facade) GetReportSummary(date string) *SlimReport {
	r := f.calc.Calculate(date, false)
	if r == nil {
		return nil
	}
	return slim(r)
}

func slim(r *models.DailyReport) *SlimReport {
	return &SlimReport{Date: r.Date, Summary: r.Summary, Metadata: r.Metadata}
}

// InvalidateReportCache drops every cache entry of date. It is false only
// for an invalid date; clearing an empty cache succeeds.
func (f *Facade) InvalidateReportCache(date string) bool {
	normalized, err := models.NormalizeDate(date)
	if err != nil {
		logger.Warn("Invalid report date", logger.Op("invalidate"), logger.Date(date))
		return false
	}
	f.store.Invalidate(normalized, "")
	return true
}

// GetAvailableReports lists report dates, newest first
func (f *Facade) GetAvailableReports() []string {
	return f.calc.AvailableReports()
}

// GetFeedConsumptionTable returns one row per farm of the feed usage
func (f *Facade) GetFeedConsumptionTable(date string) []ConsumptionRow {
	r := f.calc.Calculate(date, false)
	if r == nil {
		return nil
	}
	return consumptionRows(r.FeedCalculations)
}

// GetMixConsumptionTable returns one row per farm of the mix usage. A report
// without mix usage yields an empty, non-nil table.
func (f *Facade) GetMixConsumptionTable(date string) []ConsumptionRow {
	r := f.calc.Calculate(date, false)
	if r == nil {
		return nil
	}
	return consumptionRows(r.MixCalculations)
}

// GetFarmRankings returns the farm ranking of one usage kind
func (f *Facade) GetFarmRankings(date string, kind models.UsageKind) []models.FarmRanking {
	r := f.calc.Calculate(date, false)
	if r == nil {
		return nil
	}
	rankings := r.Calculations(kind).FarmRankings
	if rankings == nil {
		return []models.FarmRanking{}
	}
	return rankings
}

type shiftColumn int

const (
	columnOther shiftColumn = iota
	columnMorning
	columnAfternoon
)

func classifyShift(label string) shiftColumn {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "morning", "sang", "sáng":
		return columnMorning
	case "afternoon", "chieu", "chiều":
		return columnAfternoon
	}
	return columnOther
}

func consumptionRows(calc models.Calculations) []ConsumptionRow {
	rows := make([]ConsumptionRow, 0)
	calc.AreaTotals.Range(func(area string, at models.AreaTotal) bool {
		at.Farms.Range(func(farm string, ft models.FarmTotal) bool {
			row := ConsumptionRow{
				Area:      area,
				Farm:      farm,
				FarmTotal: ft.Total,
				AreaTotal: at.Total,
			}
			ft.Shifts.Range(func(shift string, v float64) bool {
				switch classifyShift(shift) {
				case columnMorning:
					row.Morning += v
				case columnAfternoon:
					row.Afternoon += v
				default:
					row.OtherShifts += v
				}
				return true
			})
			if at.Total > 0 {
				row.PercentageOfArea = ft.Total / at.Total * 100
			}
			rows = append(rows, row)
			return true
		})
		return true
	})

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Area != rows[j].Area {
			return rows[i].Area < rows[j].Area
		}
		return rows[i].FarmTotal > rows[j].FarmTotal
	})
	return rows
}

// GetAreaSummary ranks areas by combined feed and mix consumption
func (f *Facade) GetAreaSummary(date string) *AreaSummary {
	r := f.calc.Calculate(date, false)
	if r == nil {
		return nil
	}

	rows := make([]AreaSummaryRow, 0)
	index := make(map[string]int)
	add := func(calc models.Calculations, feed bool) {
		calc.AreaTotals.Range(func(area string, at models.AreaTotal) bool {
			i, ok := index[area]
			if !ok {
				i = len(rows)
				index[area] = i
				rows = append(rows, AreaSummaryRow{Area: area})
			}
			if feed {
				rows[i].FeedConsumption = at.Total
			} else {
				rows[i].MixConsumption = at.Total
			}
			return true
		})
	}
	add(r.FeedCalculations, true)
	add(r.MixCalculations, false)

	var grand float64
	for i := range rows {
		rows[i].TotalConsumption = rows[i].FeedConsumption + rows[i].MixConsumption
		grand += rows[i].TotalConsumption
	}
	for i := range rows {
		if grand > 0 {
			rows[i].PercentageOfTotal = rows[i].TotalConsumption / grand * 100
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalConsumption > rows[j].TotalConsumption
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return &AreaSummary{Areas: rows, GrandTotal: grand}
}

// GetPerformanceMetrics pulls the efficiency, summary and metadata sections
// into one view. The feed-to-mix ratio is rendered for display.
func (f *Facade) GetPerformanceMetrics(date string) *PerformanceMetrics {
	r := f.calc.Calculate(date, false)
	if r == nil {
		return nil
	}

	em := r.EfficiencyMetrics
	shortfalls := em.StockShortfalls
	if shortfalls == nil {
		shortfalls = []string{}
	}
	return &PerformanceMetrics{
		Consumption: ConsumptionMetrics{
			FeedTotal:      em.FeedTotal,
			MixTotal:       em.MixTotal,
			GrandTotal:     em.GrandTotal,
			FeedPercentage: em.FeedPercentage,
			MixPercentage:  em.MixPercentage,
			FeedToMixRatio: em.FeedToMixRatio.Display(),
		},
		Operational: OperationalMetrics{
			ActiveAreas:         r.Summary.ActiveAreas,
			ActiveFarms:         r.Summary.ActiveFarms,
			TopFarm:             r.Summary.TopFarm,
			FeedIngredientCount: r.Summary.FeedIngredientCount,
			MixIngredientCount:  r.Summary.MixIngredientCount,
			StockShortfalls:     shortfalls,
		},
		Info: PerformanceInfo{
			Date:              r.Date,
			CalculationTime:   r.Metadata.CalculationTime,
			CalculatedAt:      r.Metadata.CalculatedAt,
			Cached:            r.Metadata.Cached,
			PreservedUserData: r.Metadata.PreservedUserData,
			SavedToFile:       r.Metadata.SavedToFile,
		},
	}
}

// RefreshReport evicts the cache of date and forces a recompute
func (f *Facade) RefreshReport(date string) bool {
	normalized, err := models.NormalizeDate(date)
	if err != nil {
		logger.Warn("Invalid report date", logger.Op("refresh"), logger.Date(date))
		return false
	}
	f.store.Invalidate(normalized, "")
	return f.calc.Calculate(normalized, true) != nil
}

// GetCacheStatus returns the entries of date, or overall statistics when
// date is empty
func (f *Facade) GetCacheStatus(date string) models.CacheStatus {
	return f.store.Status(date)
}

// CleanupOldCache removes entries older than daysOld days
func (f *Facade) CleanupOldCache(daysOld int) int {
	return f.store.CleanupOlderThan(daysOld)
}

// CleanupExpiredCache removes entries past the validity window
func (f *Facade) CleanupExpiredCache() int {
	return f.store.CleanupExpired()
}
