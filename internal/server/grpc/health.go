package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall "" entry.
const ServiceName = "flasky"

// Health publishes storage reachability through grpc.health.v1.
type Health struct {
	srv      *health.Server
	ping     func(ctx context.Context) error
	interval time.Duration
	log      *zap.Logger
}

// NewHealth constructs Health; services start as NOT_SERVING until the first probe.
func NewHealth(ping func(ctx context.Context) error, interval time.Duration, log *zap.Logger) *Health {
	h := &Health{srv: health.NewServer(), ping: ping, interval: interval, log: log}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(ServiceName, st)
}

// Probe pings storage once and updates the serving status.
func (h *Health) Probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()
	if err := h.ping(pctx); err != nil {
		h.log.Warn("storage ping failed", zap.Error(err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
}

// Run probes every interval until ctx ends, then marks everything NOT_SERVING.
func (h *Health) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	h.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Probe(ctx)
		}
	}
}
