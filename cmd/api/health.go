package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// healthCheckTimeout bounds the database ping behind /health.
const healthCheckTimeout = 2 * time.Second

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// healthService is the process-wide gRPC health server. The overall ("")
// status follows the database ping.
type healthService struct {
	srv    *grpc.Server
	health *health.Server
	db     pinger
	log    *zap.SugaredLogger
}

func newHealthService(db pinger, log *zap.SugaredLogger) *healthService {
	h := &healthService{
		srv:    grpc.NewServer(),
		health: health.NewServer(),
		db:     db,
		log:    log,
	}
	healthpb.RegisterHealthServer(h.srv, h.health)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return h
}

// serve blocks until lis is closed or stop is called.
func (h *healthService) serve(lis net.Listener) error {
	if err := h.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc health server: %w", err)
	}
	return nil
}

// watch refreshes the serving status every interval until ctx ends.
func (h *healthService) watch(ctx context.Context, interval time.Duration) {
	if h.db == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

func (h *healthService) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.db.Ping(pingCtx); err != nil {
		h.log.Warnw("database ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
}

func (h *healthService) stop() {
	h.health.Shutdown()
	h.srv.GracefulStop()
}
