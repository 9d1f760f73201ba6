package models

import (
	"encoding/json"
	"time"
)

// ReportKindDailyConsumption is the cache kind of a full daily report
const ReportKindDailyConsumption = "daily_consumption"

// Usage types: area -> farm -> shift -> kg
type (
	ShiftUsage  = OrderedMap[Quantity]
	FarmUsage   = OrderedMap[ShiftUsage]
	UsageMatrix = OrderedMap[FarmUsage]
)

// IngredientAmounts maps ingredient name -> kg
type IngredientAmounts = OrderedMap[float64]

// DailyReport is the canonical, persisted unit of computation for one date.
// Unknown keys found on disk are kept in Extra, here and in every nested
// record.
type DailyReport struct {
	Date              string            `json:"date"`
	RawData           RawData           `json:"raw_data"`
	FeedCalculations  Calculations      `json:"feed_calculations"`
	MixCalculations   Calculations      `json:"mix_calculations"`
	EfficiencyMetrics EfficiencyMetrics `json:"efficiency_metrics"`
	Summary           Summary           `json:"summary"`
	Metadata          Metadata          `json:"metadata"`

	Extra Extra `json:"-"`
}

var reportKeys = keySet("date", "raw_data", "feed_calculations", "mix_calculations",
	"efficiency_metrics", "summary", "metadata")

// MarshalJSON implements json.Marshaler
func (r DailyReport) MarshalJSON() ([]byte, error) {
	type plain DailyReport
	return encodeWithExtra(plain(r), r.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (r *DailyReport) UnmarshalJSON(data []byte) error {
	type plain DailyReport
	var p plain
	extra, err := decodeWithExtra(data, &p, reportKeys)
	if err != nil {
		return err
	}
	*r = DailyReport(p)
	r.Extra = extra
	return nil
}

// Clone returns a deep copy via a JSON round trip
func (r *DailyReport) Clone() (*DailyReport, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out DailyReport
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RawData holds the usage matrices and their totals. Totals decode
// leniently, like the usage quantities.
type RawData struct {
	FeedUsage       UsageMatrix       `json:"feed_usage"`
	MixUsage        UsageMatrix       `json:"mix_usage"`
	TotalFeed       float64           `json:"total_feed"`
	TotalMix        float64           `json:"total_mix"`
	FeedIngredients IngredientAmounts `json:"feed_ingredients"`
	MixIngredients  IngredientAmounts `json:"mix_ingredients"`

	Extra Extra `json:"-"`
}

var rawDataKeys = keySet("feed_usage", "mix_usage", "total_feed", "total_mix",
	"feed_ingredients", "mix_ingredients")

// MarshalJSON implements json.Marshaler
func (d RawData) MarshalJSON() ([]byte, error) {
	type plain RawData
	return encodeWithExtra(plain(d), d.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (d *RawData) UnmarshalJSON(data []byte) error {
	type plain RawData
	var p struct {
		plain
		TotalFeed Quantity `json:"total_feed"`
		TotalMix  Quantity `json:"total_mix"`
	}
	extra, err := decodeWithExtra(data, &p, rawDataKeys)
	if err != nil {
		return err
	}
	*d = RawData(p.plain)
	d.TotalFeed = p.TotalFeed.Float64()
	d.TotalMix = p.TotalMix.Float64()
	d.Extra = extra
	return nil
}

// Calculations are the aggregates derived from one usage matrix
type Calculations struct {
	AreaTotals      OrderedMap[AreaTotal]      `json:"area_totals"`
	GrandTotal      float64                    `json:"grand_total"`
	ShiftStatistics OrderedMap[ShiftStatistic] `json:"shift_statistics"`
	FarmRankings    []FarmRanking              `json:"farm_rankings"`

	Extra Extra `json:"-"`
}

var calculationsKeys = keySet("area_totals", "grand_total", "shift_statistics", "farm_rankings")

// MarshalJSON implements json.Marshaler
func (c Calculations) MarshalJSON() ([]byte, error) {
	type plain Calculations
	return encodeWithExtra(plain(c), c.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Calculations) UnmarshalJSON(data []byte) error {
	type plain Calculations
	var p plain
	extra, err := decodeWithExtra(data, &p, calculationsKeys)
	if err != nil {
		return err
	}
	*c = Calculations(p)
	c.Extra = extra
	return nil
}

// AreaTotal is one area's farm totals and their sum
type AreaTotal struct {
	Farms OrderedMap[FarmTotal] `json:"farms"`
	Total float64               `json:"total"`

	Extra Extra `json:"-"`
}

var areaTotalKeys = keySet("farms", "total")

// MarshalJSON implements json.Marshaler
func (a AreaTotal) MarshalJSON() ([]byte, error) {
	type plain AreaTotal
	return encodeWithExtra(plain(a), a.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (a *AreaTotal) UnmarshalJSON(data []byte) error {
	type plain AreaTotal
	var p plain
	extra, err := decodeWithExtra(data, &p, areaTotalKeys)
	if err != nil {
		return err
	}
	*a = AreaTotal(p)
	a.Extra = extra
	return nil
}

// FarmTotal is one farm's per-shift amounts and their sum
type FarmTotal struct {
	Shifts OrderedMap[float64] `json:"shifts"`
	Total  float64             `json:"total"`

	Extra Extra `json:"-"`
}

var farmTotalKeys = keySet("shifts", "total")

// MarshalJSON implements json.Marshaler
func (f FarmTotal) MarshalJSON() ([]byte, error) {
	type plain FarmTotal
	return encodeWithExtra(plain(f), f.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (f *FarmTotal) UnmarshalJSON(data []byte) error {
	type plain FarmTotal
	var p plain
	extra, err := decodeWithExtra(data, &p, farmTotalKeys)
	if err != nil {
		return err
	}
	*f = FarmTotal(p)
	f.Extra = extra
	return nil
}

// ShiftStatistic aggregates one shift label across all farms
type ShiftStatistic struct {
	Sum         float64 `json:"sum"`
	Average     float64 `json:"average"`
	Count       int     `json:"count"`
	ActiveCount int     `json:"active_count"`

	Extra Extra `json:"-"`
}

var shiftStatisticKeys = keySet("sum", "average", "count", "active_count")

// MarshalJSON implements json.Marshaler
func (s ShiftStatistic) MarshalJSON() ([]byte, error) {
	type plain ShiftStatistic
	return encodeWithExtra(plain(s), s.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (s *ShiftStatistic) UnmarshalJSON(data []byte) error {
	type plain ShiftStatistic
	var p plain
	extra, err := decodeWithExtra(data, &p, shiftStatisticKeys)
	if err != nil {
		return err
	}
	*s = ShiftStatistic(p)
	s.Extra = extra
	return nil
}

// FarmRanking is one entry of the consumption ranking
type FarmRanking struct {
	Rank             int                 `json:"rank"`
	Area             string              `json:"area"`
	Farm             string              `json:"farm"`
	TotalConsumption float64             `json:"total_consumption"`
	ShiftBreakdown   OrderedMap[float64] `json:"shift_breakdown"`

	Extra Extra `json:"-"`
}

var farmRankingKeys = keySet("rank", "area", "farm", "total_consumption", "shift_breakdown")

// MarshalJSON implements json.Marshaler
func (f FarmRanking) MarshalJSON() ([]byte, error) {
	type plain FarmRanking
	return encodeWithExtra(plain(f), f.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (f *FarmRanking) UnmarshalJSON(data []byte) error {
	type plain FarmRanking
	var p plain
	extra, err := decodeWithExtra(data, &p, farmRankingKeys)
	if err != nil {
		return err
	}
	*f = FarmRanking(p)
	f.Extra = extra
	return nil
}

// EfficiencyMetrics are the ratios derived from the totals
type EfficiencyMetrics struct {
	FeedTotal              float64             `json:"feed_total"`
	MixTotal               float64             `json:"mix_total"`
	GrandTotal             float64             `json:"grand_total"`
	FeedPercentage         float64             `json:"feed_percentage"`
	MixPercentage          float64             `json:"mix_percentage"`
	FeedToMixRatio         Ratio               `json:"feed_to_mix_ratio"`
	IngredientUsageVsStock OrderedMap[float64] `json:"ingredient_usage_vs_stock"`
	StockShortfalls        []string            `json:"stock_shortfalls"`

	Extra Extra `json:"-"`
}

var efficiencyKeys = keySet("feed_total", "mix_total", "grand_total", "feed_percentage",
	"mix_percentage", "feed_to_mix_ratio", "ingredient_usage_vs_stock", "stock_shortfalls")

// MarshalJSON implements json.Marshaler
func (e EfficiencyMetrics) MarshalJSON() ([]byte, error) {
	type plain EfficiencyMetrics
	return encodeWithExtra(plain(e), e.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (e *EfficiencyMetrics) UnmarshalJSON(data []byte) error {
	type plain EfficiencyMetrics
	var p plain
	extra, err := decodeWithExtra(data, &p, efficiencyKeys)
	if err != nil {
		return err
	}
	*e = EfficiencyMetrics(p)
	e.Extra = extra
	return nil
}

// Summary is the compact digest of a report
type Summary struct {
	ActiveAreas         int      `json:"active_areas"`
	ActiveFarms         int      `json:"active_farms"`
	TopFarm             *TopFarm `json:"top_farm"`
	FeedIngredientCount int      `json:"feed_ingredient_count"`
	MixIngredientCount  int      `json:"mix_ingredient_count"`
	TotalFeed           float64  `json:"total_feed"`
	TotalMix            float64  `json:"total_mix"`

	Extra Extra `json:"-"`
}

var summaryKeys = keySet("active_areas", "active_farms", "top_farm", "feed_ingredient_count",
	"mix_ingredient_count", "total_feed", "total_mix")

// MarshalJSON implements json.Marshaler
func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return encodeWithExtra(plain(s), s.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Summary) UnmarshalJSON(data []byte) error {
	type plain Summary
	var p plain
	extra, err := decodeWithExtra(data, &p, summaryKeys)
	if err != nil {
		return err
	}
	*s = Summary(p)
	s.Extra = extra
	return nil
}

// TopFarm identifies the farm with the highest consumption
type TopFarm struct {
	Area             string  `json:"area"`
	Farm             string  `json:"farm"`
	TotalConsumption float64 `json:"total_consumption"`

	Extra Extra `json:"-"`
}

var topFarmKeys = keySet("area", "farm", "total_consumption")

// MarshalJSON implements json.Marshaler
func (f TopFarm) MarshalJSON() ([]byte, error) {
	type plain TopFarm
	return encodeWithExtra(plain(f), f.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (f *TopFarm) UnmarshalJSON(data []byte) error {
	type plain TopFarm
	var p plain
	extra, err := decodeWithExtra(data, &p, topFarmKeys)
	if err != nil {
		return err
	}
	*f = TopFarm(p)
	f.Extra = extra
	return nil
}

// Metadata is the report's bookkeeping bag. Timestamps decode leniently:
// zone-less ISO-8601 is read as local time and anything unparseable is zero.
type Metadata struct {
	CalculationTime   float64   `json:"calculation_time"`
	CalculatedAt      time.Time `json:"calculated_at,omitzero"`
	LastAccessed      time.Time `json:"last_accessed,omitzero"`
	Cached            bool      `json:"cached"`
	PreservedUserData bool      `json:"preserved_user_data"`
	SavedToFile       bool      `json:"saved_to_file"`
	SavePath          string    `json:"save_path,omitempty"`
	Recalculated      bool      `json:"recalculated,omitempty"`
	ConfigSources     []string  `json:"config_sources,omitempty"`

	Extra Extra `json:"-"`
}

var metadataKeys = keySet("calculation_time", "calculated_at", "last_accessed", "cached",
	"preserved_user_data", "saved_to_file", "save_path", "recalculated", "config_sources")

// MarshalJSON implements json.Marshaler
func (m Metadata) MarshalJSON() ([]byte, error) {
	type plain Metadata
	return encodeWithExtra(plain(m), m.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	var p struct {
		plain
		CalculationTime Quantity        `json:"calculation_time"`
		CalculatedAt    json.RawMessage `json:"calculated_at"`
		LastAccessed    json.RawMessage `json:"last_accessed"`
	}
	extra, err := decodeWithExtra(data, &p, metadataKeys)
	if err != nil {
		return err
	}
	*m = Metadata(p.plain)
	m.CalculationTime = p.CalculationTime.Float64()
	m.CalculatedAt = parseTimestamp(p.CalculatedAt)
	m.LastAccessed = parseTimestamp(p.LastAccessed)
	m.Extra = extra
	return nil
}

// GeneratedAt is the timestamp used to decide which of two copies is newer
func (m Metadata) GeneratedAt() time.Time {
	return m.CalculatedAt
}
