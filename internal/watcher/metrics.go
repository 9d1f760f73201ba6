package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var watcherInvalidations = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "feedmix_watcher_invalidations_total",
		Help: "Dates whose cache was evicted because the report file changed",
	},
)
