package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Runs by terminal result: ok, malformed, transport_error, partial_upload, nothing_matched.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditsync_runs_total",
			Help: "Total number of reconciliation runs",
		},
		[]string{"result"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "creditsync_run_duration_seconds",
			Help:    "Duration of a reconciliation run in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event units by filter outcome: matched or a skip reason.
	UnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditsync_event_units_total",
			Help: "Total number of event units evaluated by the match filter",
		},
		[]string{"outcome"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditsync_uploads_total",
			Help: "Total number of artifact uploads",
		},
		[]string{"endpoint", "kind", "status"},
	)

	SentStampsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditsync_sent_stamps_total",
			Help: "Total number of ledger sent-timestamp decisions",
		},
		[]string{"result"},
	)
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
