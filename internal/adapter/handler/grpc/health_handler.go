package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthHandler serves grpc.health.v1.Health, reporting NOT_SERVING while the
// probe (normally a database ping) fails.
type HealthHandler struct {
	server  *health.Server
	probe   func(ctx context.Context) error
	service string
	logger  *zap.Logger
}

func NewHealthHandler(service string, probe func(ctx context.Context) error, logger *zap.Logger) *HealthHandler {
	h := &HealthHandler{
		server:  health.NewServer(),
		probe:   probe,
		service: service,
		logger:  logger,
	}
	h.setStatus(healthpb.HealthCheckResponse_SERVING)
	return h
}

func (h *HealthHandler) Server() healthpb.HealthServer {
	return h.server
}

// Check runs the probe once and publishes the result.
func (h *HealthHandler) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if h.probe != nil {
		if err := h.probe(ctx); err != nil {
			h.logger.Warn("Health probe failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.setStatus(status)
	return status
}

// Run re-checks every interval until ctx is done.
func (h *HealthHandler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			h.Check(probeCtx)
			cancel()
		}
	}
}

// Shutdown marks every service NOT_SERVING so clients drain before the server stops.
func (h *HealthHandler) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthHandler) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	if h.service != "" {
		h.server.SetServingStatus(h.service, status)
	}
}
