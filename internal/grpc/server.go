package grpc

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/describe-it/shield/internal/security"
)

// Server is the optional gRPC listener. It carries no domain services of
// its own; it exists so gRPC clients hit the same validation pipeline as
// HTTP ones, and exposes the standard health service for probes.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	addr       string
	logger     *slog.Logger
}

// NewServer creates a gRPC server wired to the validation pipeline.
func NewServer(addr string, middlewares []security.Middleware, logger *slog.Logger) *Server {
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(ValidationUnaryInterceptor(middlewares, logger)),
		grpc.StreamInterceptor(ValidationStreamInterceptor(middlewares, logger)),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		addr:       addr,
		logger:     logger,
	}
}

// Serve listens and blocks until Stop is called.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen on %s: %w", s.addr, err)
	}
	s.logger.Info("gRPC server listening", slog.String("addr", s.addr))
	return s.grpcServer.Serve(lis)
}

// SetServing flips the health service's reported status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Stop gracefully drains in-flight calls.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
