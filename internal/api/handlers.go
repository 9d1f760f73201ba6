package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"golang.org/x/sync/singleflight"

	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/view"
	"github.com/mohamedkhairy/feedmix/internal/watcher"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// RankingReader reads published farm rankings
type RankingReader interface {
	Rankings(ctx context.Context, date string, kind models.UsageKind, limit, offset int) ([]models.ToplistRanking, error)
}

// Scanner runs one pass of the report-file watcher
type Scanner interface {
	Scan() watcher.ScanResult
}

// ReportHandler handles report and cache API requests
type ReportHandler struct {
	facade   *view.Facade
	rankings RankingReader
	scanner  Scanner
	group    singleflight.Group
}

// HandlerOption configures a ReportHandler
type HandlerOption func(*ReportHandler)

// WithRankings serves rankings from the published toplists first
func WithRankings(r RankingReader) HandlerOption {
	return func(h *ReportHandler) {
		h.rankings = r
	}
}

// WithScanner enables POST /watcher/scan
func WithScanner(s Scanner) HandlerOption {
	return func(h *ReportHandler) {
		h.scanner = s
	}
}

// NewReportHandler creates a new report handler
func NewReportHandler(facade *view.Facade, opts ...HandlerOption) *ReportHandler {
	h := &ReportHandler{facade: facade}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type sharedResult struct {
	value interface{}
}

// shared collapses concurrent identical requests into one facade call.
// Requests that force a recalculation must not go through here.
func (h *ReportHandler) shared(r *http.Request, fn func() interface{}) interface{} {
	key := r.Method + " " + r.URL.Path + "?" + r.URL.RawQuery
	v, _, _ := h.group.Do(key, func() (interface{}, error) {
		return sharedResult{value: fn()}, nil
	})
	return v.(sharedResult).value
}

// dateParam returns the normalized {date} path variable, or writes a 400
func dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := mux.Vars(r)["date"]
	date, err := models.NormalizeDate(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid date: expected YYYYMMDD or YYYY-MM-DD")
		return "", false
	}
	return date, true
}

func parseBoolQuery(r *http.Request, key string, defaultValue bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func parseIntQuery(r *http.Request, key string, defaultValue int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(v)
}

func reportNotFound(w http.ResponseWriter, date string) {
	respondWithError(w, http.StatusNotFound, "No report for "+date)
}

// ListReports handles GET /api/v1/reports
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	dates := h.facade.GetAvailableReports()
	if dates == nil {
		dates = []string{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"reports": dates,
		"count":   len(dates),
	})
}

// GetReport handles GET /api/v1/reports/{date}
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	if parseBoolQuery(r, "force", false) {
		report := h.facade.CalculateDailyReport(date, true)
		if report == nil {
			reportNotFound(w, date)
			return
		}
		if parseBoolQuery(r, "details", true) {
			respondWithJSON(w, http.StatusOK, report)
		} else {
			respondWithJSON(w, http.StatusOK, view.SlimReport{Date: report.Date, Summary: report.Summary, Metadata: report.Metadata})
		}
		return
	}

	includeDetails := parseBoolQuery(r, "details", true)
	result := h.shared(r, func() interface{} {
		if v := h.facade.GetReport(date, includeDetails); v != nil {
			return v
		}
		return nil
	})
	if result == nil {
		reportNotFound(w, date)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// GetSummary handles GET /api/v1/reports/{date}/summary
func (h *ReportHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	result := h.shared(r, func() interface{} {
		if s := h.facade.GetReportSummary(date); s != nil {
			return s
		}
		return nil
	})
	if result == nil {
		reportNotFound(w, date)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// GetFeedTable handles GET /api/v1/reports/{date}/feed-table
func (h *ReportHandler) GetFeedTable(w http.ResponseWriter, r *http.Request) {
	h.consumptionTable(w, r, h.facade.GetFeedConsumptionTable)
}

// GetMixTable handles GET /api/v1/reports/{date}/mix-table
func (h *ReportHandler) GetMixTable(w http.ResponseWriter, r *http.Request) {
	h.consumptionTable(w, r, h.facade.GetMixConsumptionTable)
}

func (h *ReportHandler) consumptionTable(w http.ResponseWriter, r *http.Request, table func(string) []view.ConsumptionRow) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	result := h.shared(r, func() interface{} {
		if rows := table(date); rows != nil {
			return rows
		}
		return nil
	})
	if result == nil {
		reportNotFound(w, date)
		return
	}
	rows := result.([]view.ConsumptionRow)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"date":  date,
		"rows":  rows,
		"count": len(rows),
	})
}

// GetAreas handles GET /api/v1/reports/{date}/areas
func (h *ReportHandler) GetAreas(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	result := h.shared(r, func() interface{} {
		if s := h.facade.GetAreaSummary(date); s != nil {
			return s
		}
		return nil
	})
	if result == nil {
		reportNotFound(w, date)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// GetPerformance handles GET /api/v1/reports/{date}/performance
func (h *ReportHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	result := h.shared(r, func() interface{} {
		if m := h.facade.GetPerformanceMetrics(date); m != nil {
			return m
		}
		return nil
	})
	if result == nil {
		reportNotFound(w, date)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// GetRankings handles GET /api/v1/reports/{date}/rankings/{kind}.
// Published toplists are served when available, otherwise the rankings
// stored in the report itself.
func (h *ReportHandler) GetRankings(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	kind, err := models.ParseUsageKind(mux.Vars(r)["kind"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid kind: expected feed or mix")
		return
	}
	limit, err := parseIntQuery(r, "limit", 0)
	if err != nil || limit < 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid limit parameter")
		return
	}

	if h.rankings != nil {
		published, err := h.rankings.Rankings(r.Context(), date, kind, limit, 0)
		if err != nil {
			logger.WithContext(r.Context()).Warn("Published rankings unavailable",
				logger.Date(date),
				logger.Kind(string(kind)),
				logger.ErrorField(err),
			)
		} else if len(published) > 0 {
			respondWithJSON(w, http.StatusOK, map[string]interface{}{
				"date":     date,
				"kind":     kind,
				"source":   "redis",
				"rankings": published,
			})
			return
		}
	}

	rankings := h.facade.GetFarmRankings(date, kind)
	if rankings == nil {
		reportNotFound(w, date)
		return
	}
	if limit > 0 && len(rankings) > limit {
		rankings = rankings[:limit]
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"date":     date,
		"kind":     kind,
		"source":   "report",
		"rankings": rankings,
	})
}

// Refresh handles POST /api/v1/reports/{date}/refresh
func (h *ReportHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	if !h.facade.RefreshReport(date) {
		reportNotFound(w, date)
		return
	}
	logger.WithContext(r.Context()).Info("Report refreshed",
		logger.Date(date),
		logger.String("user_id", UserID(r.Context())),
	)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"date":      date,
		"refreshed": true,
	})
}

// InvalidateCache handles DELETE /api/v1/reports/{date}/cache
func (h *ReportHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	h.facade.InvalidateReportCache(date)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"date":        date,
		"invalidated": true,
	})
}

// CacheStatus handles GET /api/v1/cache
func (h *ReportHandler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" {
		normalized, err := models.NormalizeDate(date)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid date: expected YYYYMMDD or YYYY-MM-DD")
			return
		}
		date = normalized
	}
	respondWithJSON(w, http.StatusOK, h.facade.GetCacheStatus(date))
}

// CacheCleanup handles POST /api/v1/cache/cleanup. With ?expired=true only
// expired entries are dropped, otherwise entries older than ?days (default 7).
func (h *ReportHandler) CacheCleanup(w http.ResponseWriter, r *http.Request) {
	if parseBoolQuery(r, "expired", false) {
		removed := h.facade.CleanupExpiredCache()
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"removed": removed,
			"expired": true,
		})
		return
	}

	days, err := parseIntQuery(r, "days", 7)
	if err != nil || days < 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid days parameter")
		return
	}
	removed := h.facade.CleanupOldCache(days)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
		"days":    days,
	})
}

// WatcherScan handles POST /api/v1/watcher/scan
func (h *ReportHandler) WatcherScan(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Watcher is not enabled")
		return
	}
	respondWithJSON(w, http.StatusOK, h.scanner.Scan())
}
