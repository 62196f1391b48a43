// Package metrics provides Prometheus metrics for the cinelike service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Toggle results.
const (
	ResultLiked   = "liked"
	ResultUnliked = "unliked"
	ResultError   = "error"
)

// Sync item outcomes.
const (
	OutcomeCreated = "created"
	OutcomeExisted = "existed"
	OutcomeFailed  = "failed"
)

var (
	// LikeTogglesTotal tracks like toggles by resulting state
	LikeTogglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinelike",
			Subsystem: "likes",
			Name:      "toggles_total",
			Help:      "Total number of like toggles by result",
		},
		[]string{"result"},
	)

	// SyncItemsTotal tracks anonymous film ids merged into accounts
	SyncItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinelike",
			Subsystem: "sync",
			Name:      "items_total",
			Help:      "Total number of anonymous film ids processed by outcome",
		},
		[]string{"outcome"},
	)

	// SyncRunsSkippedTotal tracks sync requests suppressed as replays
	SyncRunsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cinelike",
			Subsystem: "sync",
			Name:      "runs_skipped_total",
			Help:      "Total number of sync requests skipped as recent replays",
		},
	)

	// HTTPRequestDuration tracks inbound request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cinelike",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "status_code"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
