package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/feedmix/internal/cache"
	"github.com/mohamedkhairy/feedmix/internal/fingerprint"
	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/report"
	"github.com/mohamedkhairy/feedmix/internal/view"
	"github.com/mohamedkhairy/feedmix/internal/watcher"
)

type stubRankings struct {
	rankings []models.ToplistRanking
	err      error
}

func (s *stubRankings) Rankings(ctx context.Context, date string, kind models.UsageKind, limit, offset int) ([]models.ToplistRanking, error) {
	return s.rankings, s.err
}

type stubScanner struct {
	calls int
}

func (s *stubScanner) Scan() watcher.ScanResult {
	s.calls++
	return watcher.ScanResult{Invalidated: []string{"20250615"}, TrackedFiles: 1}
}

func newTestFacade(t *testing.T) *view.Facade {
	t.Helper()
	reportsDir := t.TempDir()
	configDir := t.TempDir()

	write := func(name, body string) {
		path := filepath.Join(configDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	write(report.FeedFormulaFile, `{"Corn": 1}`)
	write(filepath.Join(report.UsageDir, "usage_20250615.json"),
		`{"feed_usage": {"A": {"F1": {"morning": 7}, "F2": {"morning": 3}}}}`)

	store, err := cache.NewStore(t.TempDir(), fingerprint.New(reportsDir))
	require.NoError(t, err)
	return view.NewFacade(report.NewCalculator(store, report.NewFileConfigLoader(configDir), reportsDir))
}

func newTestRouter(t *testing.T, opts ...HandlerOption) http.Handler {
	t.Helper()
	return NewRouter(NewReportHandler(newTestFacade(t), opts...), nil)
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestGetReport(t *testing.T) {
	router := newTestRouter(t)

	w, body := do(t, router, "GET", "/api/v1/reports/20250615")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20250615", body["date"])
	assert.Contains(t, body, "feed_calculations")

	w, body = do(t, router, "GET", "/api/v1/reports/2025-06-15?details=false")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "summary")
	assert.NotContains(t, body, "feed_calculations")

	w, body = do(t, router, "GET", "/api/v1/reports/20250615?force=true")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20250615", body["date"])
}

func TestGetReport_Errors(t *testing.T) {
	router := newTestRouter(t)

	w, body := do(t, router, "GET", "/api/v1/reports/20250616")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, body, "error")

	w, _ = do(t, router, "GET", "/api/v1/reports/not-a-date")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, path := range []string{"summary", "feed-table", "mix-table", "areas", "performance", "rankings/feed"} {
		w, _ = do(t, router, "GET", "/api/v1/reports/20250616/"+path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)

		w, _ = do(t, router, "GET", "/api/v1/reports/June/"+path)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestListReports(t *testing.T) {
	router := newTestRouter(t)

	w, body := do(t, router, "GET", "/api/v1/reports")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])

	do(t, router, "GET", "/api/v1/reports/20250615")

	w, body = do(t, router, "GET", "/api/v1/reports")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"20250615"}, body["reports"])
}

func TestConsumptionTables(t *testing.T) {
	router := newTestRouter(t)

	w, body := do(t, router, "GET", "/api/v1/reports/20250615/feed-table")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["count"])
	rows := body["rows"].([]interface{})
	assert.Equal(t, "F1", rows[0].(map[string]interface{})["farm"])

	w, body = do(t, router, "GET", "/api/v1/reports/20250615/mix-table")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, []interface{}{}, body["rows"])
}

func TestSummaryAreasPerformance(t *testing.T) {
	router := newTestRouter(t)

	w, body := do(t, router, "GET", "/api/v1/reports/20250615/summary")
	require.Equal(t, http.StatusOK, w.Code)
	summary := body["summary"].(map[string]interface{})
	assert.EqualValues(t, 10, summary["total_feed"])

	w, body = do(t, router, "GET", "/api/v1/reports/20250615/areas")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 10, body["grand_total"])

	w, _ = do(t, router, "GET", "/api/v1/reports/20250615/performance")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetRankings(t *testing.T) {
	t.Run("from report", func(t *testing.T) {
		router := newTestRouter(t)

		w, body := do(t, router, "GET", "/api/v1/reports/20250615/rankings/feed?limit=1")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "report", body["source"])
		rankings := body["rankings"].([]interface{})
		require.Len(t, rankings, 1)
		assert.Equal(t, "F1", rankings[0].(map[string]interface{})["farm"])
	})

	t.Run("from redis", func(t *testing.T) {
		stub := &stubRankings{rankings: []models.ToplistRanking{{Rank: 1, Area: "A", Farm: "F1", Value: 7}}}
		router := newTestRouter(t, WithRankings(stub))

		w, body := do(t, router, "GET", "/api/v1/reports/20250615/rankings/feed")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "redis", body["source"])
	})

	t.Run("redis failure falls back", func(t *testing.T) {
		router := newTestRouter(t, WithRankings(&stubRankings{err: errors.New("connection refused")}))

		w, body := do(t, router, "GET", "/api/v1/reports/20250615/rankings/feed")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "report", body["source"])
	})

	t.Run("invalid kind", func(t *testing.T) {
		router := newTestRouter(t)
		w, _ := do(t, router, "GET", "/api/v1/reports/20250615/rankings/water")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRefreshAndInvalidate(t *testing.T) {
	router := newTestRouter(t)

	w, body := do(t, router, "POST", "/api/v1/reports/20250615/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["refreshed"])

	w, _ = do(t, router, "POST", "/api/v1/reports/20250616/refresh")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = do(t, router, "DELETE", "/api/v1/reports/20250615/cache")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["invalidated"])

	w, _ = do(t, router, "DELETE", "/api/v1/reports/bad/cache")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheEndpoints(t *testing.T) {
	router := newTestRouter(t)
	do(t, router, "GET", "/api/v1/reports/20250615")

	w, body := do(t, router, "GET", "/api/v1/cache")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "statistics")

	w, body = do(t, router, "GET", "/api/v1/cache?date=2025-06-15")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20250615", body["date"])

	w, _ = do(t, router, "GET", "/api/v1/cache?date=junk")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, router, "POST", "/api/v1/cache/cleanup?days=30")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["removed"])

	w, body = do(t, router, "POST", "/api/v1/cache/cleanup?expired=true")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["expired"])

	w, _ = do(t, router, "POST", "/api/v1/cache/cleanup?days=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWatcherScan(t *testing.T) {
	w, _ := do(t, newTestRouter(t), "POST", "/api/v1/watcher/scan")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	scanner := &stubScanner{}
	w, body := do(t, newTestRouter(t, WithScanner(scanner)), "POST", "/api/v1/watcher/scan")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, scanner.calls)
	assert.EqualValues(t, 1, body["tracked_files"])
}

func TestProbes(t *testing.T) {
	h := NewReportHandler(newTestFacade(t))

	router := NewRouter(h, nil)
	for _, path := range []string{"/health", "/ready", "/live"} {
		w, _ := do(t, router, "GET", path)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	failing := NewRouter(h, func(ctx context.Context) error { return errors.New("redis down") })
	w, body := do(t, failing, "GET", "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not ready", body["status"])
}
