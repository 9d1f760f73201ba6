package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	calculations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedmix_report_calculations_total",
			Help: "Report requests by outcome",
		},
		[]string{"outcome"},
	)

	calculationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedmix_report_calculation_duration_seconds",
			Help:    "Time spent serving a report request",
			Buckets: prometheus.DefBuckets,
		},
	)

	saves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedmix_report_saves_total",
			Help: "Canonical report writes by status",
		},
		[]string{"status"},
	)
)

// calculation outcomes
const (
	outcomeCacheHit    = "cache_hit"
	outcomePreserved   = "preserved"
	outcomeComputed    = "computed"
	outcomeUnsaved     = "computed_unsaved"
	outcomeNoConfig    = "no_config"
	outcomeFailed      = "failed"
	outcomeInvalidDate = "invalid_date"
	outcomePanic       = "panic"
)
