package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// ReadyFunc reports whether the service's backends are reachable
type ReadyFunc func(ctx context.Context) error

// NewRouter registers the v1 report routes and the probe endpoints
func NewRouter(h *ReportHandler, ready ReadyFunc) *mux.Router {
	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(MetricsMiddleware()))

	// API v1 routes
	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Report endpoints
	v1.HandleFunc("/reports", h.ListReports).Methods("GET")
	v1.HandleFunc("/reports/{date}", h.GetReport).Methods("GET")
	v1.HandleFunc("/reports/{date}/summary", h.GetSummary).Methods("GET")
	v1.HandleFunc("/reports/{date}/feed-table", h.GetFeedTable).Methods("GET")
	v1.HandleFunc("/reports/{date}/mix-table", h.GetMixTable).Methods("GET")
	v1.HandleFunc("/reports/{date}/areas", h.GetAreas).Methods("GET")
	v1.HandleFunc("/reports/{date}/performance", h.GetPerformance).Methods("GET")
	v1.HandleFunc("/reports/{date}/rankings/{kind}", h.GetRankings).Methods("GET")
	v1.HandleFunc("/reports/{date}/refresh", h.Refresh).Methods("POST")
	v1.HandleFunc("/reports/{date}/cache", h.InvalidateCache).Methods("DELETE")

	// Cache endpoints
	v1.HandleFunc("/cache", h.CacheStatus).Methods("GET")
	v1.HandleFunc("/cache/cleanup", h.CacheCleanup).Methods("POST")

	v1.HandleFunc("/watcher/scan", h.WatcherScan).Methods("POST")

	// Health check endpoints
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				logger.WithContext(r.Context()).Warn("Readiness check failed", logger.ErrorField(err))
				respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	return router
}
