// Package report computes, merges and persists daily feed/mix reports.
package report

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/feedmix/internal/cache"
	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// Option configures a Calculator
type Option func(*Calculator)

// WithClock overrides the time source used for report timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

// Calculator produces the DailyReport of a date. It exclusively owns the
// canonical report files and their backups.
type Calculator struct {
	store      *cache.Store
	loader     ConfigLoader
	reportsDir string
	now        func() time.Time

	hooksMu sync.RWMutex
	hooks   []namedHook
}

// NewCalculator creates a calculator
func NewCalculator(store *cache.Store, loader ConfigLoader, reportsDir string, opts ...Option) *Calculator {
	c := &Calculator{
		store:      store,
		loader:     loader,
		reportsDir: reportsDir,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReportsDir returns the canonical reports directory
func (c *Calculator) ReportsDir() string {
	return c.reportsDir
}

// Store returns the cache the calculator reads through
func (c *Calculator) Store() *cache.Store {
	return c.store
}

// Calculate returns the report of date, or nil when none can be produced.
//
// Without force, a valid cache entry is served unless the canonical file is
// newer; otherwise an existing canonical file is returned untouched apart
// from its access time, so manual edits survive. With force, or when no file
// exists, the report is recomputed from configuration, saved and cached.
// Calculate never panics: any failure falls back to the existing report.
func (c *Calculator) Calculate(date string, force bool) (result *models.DailyReport) {
	normalized, err := models.NormalizeDate(date)
	if err != nil {
		logger.Warn("Invalid report date", logger.Op("calculate"), logger.Date(date))
		calculations.WithLabelValues(outcomeInvalidDate).Inc()
		return nil
	}
	date = normalized

	start := time.Now()
	var existing *models.DailyReport
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Report calculation panicked",
				logger.Op("calculate"),
				logger.Date(date),
				logger.Any("panic", r),
			)
			calculations.WithLabelValues(outcomePanic).Inc()
			result = existing
		}
		calculationDuration.Observe(time.Since(start).Seconds())
	}()

	existing = c.loadExisting(date)

	if !force {
		if cached := c.fromCache(date, existing); cached != nil {
			calculations.WithLabelValues(outcomeCacheHit).Inc()
			return cached
		}
		if existing != nil {
			c.preserve(date, existing)
			calculations.WithLabelValues(outcomePreserved).Inc()
			return existing
		}
	}

	report, err := c.compute(date, existing, force)
	if err != nil {
		logger.Warn("Report computation aborted",
			logger.Op("calculate"),
			logger.Date(date),
			logger.Bool("has_existing", existing != nil),
			logger.ErrorField(err),
		)
		if errors.Is(err, models.ErrNoFormulas) {
			calculations.WithLabelValues(outcomeNoConfig).Inc()
		} else {
			calculations.WithLabelValues(outcomeFailed).Inc()
		}
		return existing
	}

	report.Metadata.CalculationTime = roundSeconds(time.Since(start).Seconds())

	if !c.Save(date, report) {
		calculations.WithLabelValues(outcomeUnsaved).Inc()
		return report
	}
	if !c.store.Put(date, report, models.ReportKindDailyConsumption, nil) {
		logger.Warn("Continuing without cache", logger.Op("calculate"), logger.Date(date))
	}
	c.runSavedHooks(report)

	calculations.WithLabelValues(outcomeComputed).Inc()
	logger.Info("Report calculated",
		logger.Date(date),
		logger.Float64("total_feed", report.RawData.TotalFeed),
		logger.Float64("total_mix", report.RawData.TotalMix),
		logger.Bool("forced", force),
	)
	return report
}

// fromCache returns the cached report unless the canonical file was
// generated after it
func (c *Calculator) fromCache(date string, existing *models.DailyReport) *models.DailyReport {
	var cached models.DailyReport
	if !c.store.Get(date, models.ReportKindDailyConsumption, nil, &cached) {
		return nil
	}
	if existing != nil && cached.Metadata.GeneratedAt().Before(existing.Metadata.GeneratedAt()) {
		logger.Debug("Canonical report newer than cache", logger.Date(date))
		return nil
	}
	cached.Metadata.Cached = true
	cached.Metadata.LastAccessed = c.now().UTC()
	return &cached
}

// preserve marks an existing report as served as-is and writes it through
// to the cache. Only metadata changes; the file on disk is not rewritten.
func (c *Calculator) preserve(date string, existing *models.DailyReport) {
	existing.Metadata.LastAccessed = c.now().UTC()
	existing.Metadata.PreservedUserData = true
	existing.Metadata.Cached = false
	if !c.store.Put(date, existing, models.ReportKindDailyConsumption, nil) {
		logger.Warn("Continuing without cache", logger.Op("preserve"), logger.Date(date))
	}
}

// compute builds a fresh report from configuration. On a forced recompute
// of an existing report, the unknown keys of the old report are kept.
func (c *Calculator) compute(date string, existing *models.DailyReport, force bool) (*models.DailyReport, error) {
	inputs, err := c.loader.Load(date)
	if err != nil {
		logger.CountError("report", "config_io")
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if !inputs.HasFormulas() {
		return nil, models.ErrNoFormulas
	}

	var feedUsage, mixUsage models.UsageMatrix
	switch {
	case inputs.Usage != nil:
		feedUsage, mixUsage = inputs.Usage.FeedUsage, inputs.Usage.MixUsage
	case existing != nil:
		feedUsage, mixUsage = existing.RawData.FeedUsage, existing.RawData.MixUsage
	}

	report := Build(date, inputs, feedUsage, mixUsage, c.now().UTC())

	if existing != nil && force {
		report.Extra = existing.Extra.Clone()
		report.RawData.Extra = existing.RawData.Extra.Clone()
		report.Metadata.Extra = existing.Metadata.Extra.Clone()
		report.FeedCalculations.Extra = existing.FeedCalculations.Extra.Clone()
		report.MixCalculations.Extra = existing.MixCalculations.Extra.Clone()
		report.EfficiencyMetrics.Extra = existing.EfficiencyMetrics.Extra.Clone()
		report.Summary.Extra = existing.Summary.Extra.Clone()
		report.Metadata.Recalculated = true
	}
	return report, nil
}

// Build assembles a report from inputs and usage matrices
func Build(date string, inputs *Inputs, feedUsage, mixUsage models.UsageMatrix, now time.Time) *models.DailyReport {
	feedCalc := Calculate(feedUsage)
	mixCalc := Calculate(mixUsage)

	feedIngredients := IngredientBreakdown(feedCalc.GrandTotal, inputs.FeedFormula)
	mixIngredients := IngredientBreakdown(mixCalc.GrandTotal, inputs.MixFormula)

	return &models.DailyReport{
		Date: date,
		RawData: models.RawData{
			FeedUsage:       feedUsage,
			MixUsage:        mixUsage,
			TotalFeed:       feedCalc.GrandTotal,
			TotalMix:        mixCalc.GrandTotal,
			FeedIngredients: feedIngredients,
			MixIngredients:  mixIngredients,
		},
		FeedCalculations:  feedCalc,
		MixCalculations:   mixCalc,
		EfficiencyMetrics: Efficiency(feedCalc.GrandTotal, mixCalc.GrandTotal, feedIngredients, mixIngredients, inputs.Inventory),
		Summary:           BuildSummary(feedCalc, mixCalc, feedIngredients, mixIngredients),
		Metadata: models.Metadata{
			CalculatedAt:  now,
			LastAccessed:  now,
			ConfigSources: inputs.Sources,
		},
	}
}
