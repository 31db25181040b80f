package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/openfinance-sandbox/fapigw/internal/obs"
)

// GRPCHealth serves grpc.health.v1 for the gateway, mirroring the
// readiness probe.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
	probe  ReadyProbe
}

func NewGRPCHealth(probe ReadyProbe) *GRPCHealth {
	h := &GRPCHealth{
		server: grpc.NewServer(),
		health: health.NewServer(),
		probe:  probe,
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	return h
}

// Server is the gRPC server to Serve on a listener.
func (h *GRPCHealth) Server() *grpc.Server { return h.server }

// Refresh runs the probe once and publishes the result for both the
// overall ("") and the named service.
func (h *GRPCHealth) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if h.probe != nil {
		if err := h.probe.Check(ctx); err != nil {
			obs.Logger().WithError(err).Warn("readiness check failed")
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	obs.SetReady(status == healthpb.HealthCheckResponse_SERVING)
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(serviceName, status)
}

// Run refreshes every interval until ctx ends, then marks the service
// as shutting down.
func (h *GRPCHealth) Run(ctx context.Context, interval time.Duration) {
	h.Refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-t.C:
			h.Refresh(ctx)
		}
	}
}
