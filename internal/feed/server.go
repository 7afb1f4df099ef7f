package feed

import (
	"github.com/signalsfoundry/eva-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is a gRPC server with the feed and the health service registered.
type Server struct {
	*grpc.Server
	health *health.Server
}

// NewServer builds a gRPC server around svc. metrics may be nil.
func NewServer(svc *Service, log logging.Logger, metrics *observability.TelemetryCollector, opts ...grpc.ServerOption) *Server {
	unary := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	stream := []grpc.StreamServerInterceptor{
		RequestIDStreamServerInterceptor(log),
		TracingStreamServerInterceptor(),
	}
	if metrics != nil {
		unary = append(unary, metrics.UnaryServerInterceptor())
		stream = append(stream, metrics.StreamServerInterceptor())
	}

	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	}
	srv := grpc.NewServer(append(base, opts...)...)
	RegisterTelemetryFeedServer(srv, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{Server: srv, health: hs}
	s.SetServing(true)
	return s
}

// SetServing updates the health status reported for the feed and for the
// server as a whole.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// GracefulStop marks the server NOT_SERVING and drains in-flight RPCs.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.Server.GracefulStop()
}
