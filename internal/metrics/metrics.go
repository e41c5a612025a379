// Package metrics exposes Prometheus instruments for the lead pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every pipeline instrument on its own registry.
//
// Metrics:
//   - standzon_lead_transitions_total{from,to}
//   - standzon_lead_conflict_retries_total
//   - standzon_notifications_total{channel,outcome}
//   - standzon_notifications_deferred_total{scope}
//   - standzon_match_duration_seconds
//   - standzon_match_runs_total{outcome}
type Metrics struct {
	registry *prometheus.Registry

	Transitions     *prometheus.CounterVec
	ConflictRetries prometheus.Counter
	Notifications   *prometheus.CounterVec
	Deferred        *prometheus.CounterVec
	MatchDuration   prometheus.Histogram
	MatchResults    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "standzon_lead_transitions_total",
			Help: "Lead status transitions applied",
		}, []string{"from", "to"}),
		ConflictRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "standzon_lead_conflict_retries_total",
			Help: "Versioned lead writes retried after a concurrent update",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "standzon_notifications_total",
			Help: "Notification delivery attempts by outcome",
		}, []string{"channel", "outcome"}),
		Deferred: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "standzon_notifications_deferred_total",
			Help: "Notifications pushed back by a rolling-hour rate limit",
		}, []string{"scope"}),
		MatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "standzon_match_duration_seconds",
			Help:    "Time spent ranking builders for one lead",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		}),
		MatchResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "standzon_match_runs_total",
			Help: "Matching runs by outcome",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TransitionApplied implements lifecycle.Observer.
func (m *Metrics) TransitionApplied(from, to domain.Status) {
	m.Transitions.WithLabelValues(string(from), string(to)).Inc()
}

// ConflictRetried implements lifecycle.Observer.
func (m *Metrics) ConflictRetried() {
	m.ConflictRetries.Inc()
}

// NotificationAttempted implements dispatch.Observer.
func (m *Metrics) NotificationAttempted(channel, outcome string) {
	m.Notifications.WithLabelValues(channel, outcome).Inc()
}

// NotificationDeferred implements dispatch.Observer.
func (m *Metrics) NotificationDeferred(scope string) {
	m.Deferred.WithLabelValues(scope).Inc()
}

// MatchRun records one ranking pass.
func (m *Metrics) MatchRun(elapsed time.Duration, matched int) {
	m.MatchDuration.Observe(elapsed.Seconds())
	outcome := "matched"
	if matched == 0 {
		outcome = "unmatched"
	}
	m.MatchResults.WithLabelValues(outcome).Inc()
}
