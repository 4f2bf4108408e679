// Package metrics exposes Prometheus collectors for timecard traffic and lifecycle events.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics holds every collector the server records.
type Metrics struct {
	TimecardsCreated prometheus.Counter
	LinesRecorded    prometheus.Counter
	Transitions      *prometheus.CounterVec
	LoginFailures    prometheus.Counter
	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in production
// and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TimecardsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "timecards_created_total",
			Help: "Total number of timecards opened",
		}),
		LinesRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "timecards_lines_recorded_total",
			Help: "Total number of lines recorded or replaced",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timecards_transitions_total",
			Help: "Total number of status transitions by target status",
		}, []string{"to"}),
		LoginFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "timecards_login_failures_total",
			Help: "Total number of rejected resource logins",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timecards_http_requests_total",
			Help: "Requests by method (HTTP verb or grpc), route and status code",
		}, []string{"method", "route", "code"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timecards_http_request_duration_seconds",
			Help:    "Request latency by route",
			Buckets: latencyBuckets,
		}, []string{"route"}),
	}
}

// ObserveTransition counts a transition into status.
func (m *Metrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status).Inc()
}

// IncTimecardsCreated counts a newly opened timecard.
func (m *Metrics) IncTimecardsCreated() {
	if m == nil {
		return
	}
	m.TimecardsCreated.Inc()
}

// IncLinesRecorded counts a recorded line.
func (m *Metrics) IncLinesRecorded() {
	if m == nil {
		return
	}
	m.LinesRecorded.Inc()
}

// IncLoginFailures counts a rejected login.
func (m *Metrics) IncLoginFailures() {
	if m == nil {
		return
	}
	m.LoginFailures.Inc()
}

// ObserveRequest records one served request.
// Call with time.Now() taken before the handler ran.
func (m *Metrics) ObserveRequest(method, route string, code int, start time.Time) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
