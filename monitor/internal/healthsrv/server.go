package healthsrv

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/obsidianstack/pulsewatch/monitor/internal/auth"
	"github.com/obsidianstack/pulsewatch/monitor/internal/outcome"
	"github.com/obsidianstack/pulsewatch/pkg/types"
)

const servicePrefix = "pulsewatch.check/"

// ServiceName is the health service name for a check id.
func ServiceName(checkID string) string {
	return servicePrefix + checkID
}

// Server wraps a gRPC server carrying only the health service.
type Server struct {
	health *health.Server
	grpc   *grpc.Server
}

// New builds a Server guarded by opts.
func New(opts auth.Options) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	gs := grpc.NewServer(
		grpc.UnaryInterceptor(auth.APIKeyInterceptor(opts)),
		grpc.StreamInterceptor(auth.APIKeyStreamInterceptor(opts)),
	)
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{health: hs, grpc: gs}
}

// Observe publishes the state of r's check.
func (s *Server) Observe(_ context.Context, r outcome.Result) {
	s.health.SetServingStatus(ServiceName(r.Check.ID), servingStatus(r.Check.State))
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("healthsrv: listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func servingStatus(st types.State) healthpb.HealthCheckResponse_ServingStatus {
	switch st {
	case types.StateUp:
		return healthpb.HealthCheckResponse_SERVING
	case types.StateDown:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_UNKNOWN
	}
}
