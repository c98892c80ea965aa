package health

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer exposes the standard grpc.health.v1 service, driven by a Checker.
type GRPCServer struct {
	server  *grpc.Server
	health  *grpchealth.Server
	checker *Checker
	log     *zap.Logger
}

func NewGRPCServer(checker *Checker, log *zap.Logger) *GRPCServer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &GRPCServer{
		server:  grpc.NewServer(),
		health:  grpchealth.NewServer(),
		checker: checker,
		log:     log,
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.server, s.health)
	return s
}

// Refresh runs the checks and publishes the result.
func (s *GRPCServer) Refresh(ctx context.Context) bool {
	results, healthy := s.checker.Run(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.log.Warn("health check failing", zap.Any("checks", results))
	}
	s.health.SetServingStatus("", status)
	return healthy
}

// Serve refreshes the status every interval until ctx ends, then serves on lis.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	s.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()

	s.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Stop reports NOT_SERVING to watchers and drains the server.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
