package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "timecards"

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health keeps the grpc.health.v1 status in line with a storage probe.
type Health struct {
	srv     *health.Server
	probe   Pinger
	every   time.Duration
	timeout time.Duration
	log     *zap.Logger
}

// NewHealth creates a health tracker. A nil probe means always SERVING.
func NewHealth(probe Pinger, every time.Duration, log *zap.Logger) *Health {
	if every <= 0 {
		every = 10 * time.Second
	}
	return &Health{
		srv:     health.NewServer(),
		probe:   probe,
		every:   every,
		timeout: every / 2,
		log:     log,
	}
}

// Register adds the health service to s.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Server exposes the underlying health server.
func (h *Health) Server() healthpb.HealthServer { return h.srv }

// Check probes storage once and publishes the result.
func (h *Health) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if h.probe != nil {
		pctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.probe.Ping(pctx)
		cancel()
		if err != nil {
			h.log.Warn("storage probe failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(ServiceName, st)
	return st
}

// Run probes every interval until ctx is done.
func (h *Health) Run(ctx context.Context) {
	h.Check(ctx)
	t := time.NewTicker(h.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING for every service and ignores later updates.
func (h *Health) Shutdown() { h.srv.Shutdown() }
