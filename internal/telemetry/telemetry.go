// Package telemetry exposes prometheus metrics for crawl sessions,
// page fetches and oracle calls.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/sitebot/config"
)

var (
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitebot_sessions_total",
		Help: "Completed question-answering sessions by terminal status.",
	}, []string{"status"})

	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitebot_pages_fetched_total",
		Help: "Page fetch attempts by outcome.",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sitebot_fetch_duration_seconds",
		Help:    "Wall time of page fetches including retries.",
		Buckets: prometheus.DefBuckets,
	})

	oracleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitebot_oracle_requests_total",
		Help: "Oracle calls by role and outcome.",
	}, []string{"role", "outcome"})

	oracleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sitebot_oracle_duration_seconds",
		Help:    "Wall time of oracle calls by role.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"role"})
)

// Telemetry records metrics; a nil or disabled instance is a no-op so
// callers never need to guard their instrumentation.
type Telemetry struct {
	enabled bool
}

// New creates a telemetry recorder from configuration.
func New(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{enabled: cfg.Enabled}
}

func (t *Telemetry) active() bool { return t != nil && t.enabled }

// SessionFinished counts a session reaching a terminal status.
func (t *Telemetry) SessionFinished(status string) {
	if !t.active() {
		return
	}
	sessionsTotal.WithLabelValues(status).Inc()
}

// PageFetched counts one fetch attempt and its duration.
func (t *Telemetry) PageFetched(outcome string, d time.Duration) {
	if !t.active() {
		return
	}
	pagesFetchedTotal.WithLabelValues(outcome).Inc()
	fetchDuration.Observe(d.Seconds())
}

// OracleCall counts one oracle request for a role and its duration.
func (t *Telemetry) OracleCall(role, outcome string, d time.Duration) {
	if !t.active() {
		return
	}
	oracleRequestsTotal.WithLabelValues(role, outcome).Inc()
	oracleDuration.WithLabelValues(role).Observe(d.Seconds())
}

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }
