// Package httpserver exposes the timecard workflow as a hypermedia JSON API.
package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/timecards/internal/metrics"
	"github.com/and161185/timecards/internal/service"
)

// Pinger reports storage reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires services into HTTP handlers.
type Server struct {
	auth      service.AuthService
	timecards service.TimecardService
	log       *zap.Logger
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	pinger    Pinger
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithMetrics records request metrics in m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithPinger makes /healthz fail while p cannot reach storage.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// New constructs an HTTP server with injected services.
func New(auth service.AuthService, timecards service.TimecardService, log *zap.Logger, opts ...Option) *Server {
	s := &Server{auth: auth, timecards: timecards, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(AccessLog(s.log, s.metrics))
	r.Use(Recover(s.log))

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	r.Route("/timesheets", func(r chi.Router) {
		r.Use(Authenticate(s.auth))

		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleRemove)

			r.Get("/lines", s.handleLines)
			r.Post("/lines", s.handleAddLine)
			r.Get("/lines/{lineId}", s.handleLine)
			r.Post("/lines/{lineId}", s.handleReplaceLine)
			r.Patch("/lines/{lineId}", s.handleUpdateLine)

			r.Get("/transitions", s.handleTransitions)

			r.Post("/submittal", s.handleSubmit)
			r.Post("/cancellation", s.handleCancel)
			r.Post("/approval", s.handleApprove)
			r.Post("/rejection", s.handleReject)
			r.Post("/return", s.handleReturn)

			r.Get("/submittal", s.handleDocument)
			r.Get("/cancellation", s.handleDocument)
			r.Get("/approval", s.handleDocument)
			r.Get("/rejection", s.handleDocument)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.log.Warn("health probe failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
