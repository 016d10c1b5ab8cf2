package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "keyrotation-auth/internal/health/handler"
	"keyrotation-auth/internal/server/interceptors"
)

// GRPCDeps holds the dependencies of the gRPC server.
type GRPCDeps struct {
	// Gate authenticates bearer tokens on non-public methods. If nil, no auth interceptor is installed.
	Gate *interceptors.Gate
	// Health backs grpc.health.v1. If nil, Check always reports SERVING.
	Health *healthhandler.Checker
}

// PublicMethods are the full method names reachable without a bearer token.
var PublicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewGRPCServer returns a gRPC server instrumented with otelgrpc, with the auth interceptor and
// all services registered.
func NewGRPCServer(deps GRPCDeps) *grpc.Server {
	opts := []grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}
	if deps.Gate != nil {
		opts = append(opts, grpc.ChainUnaryInterceptor(interceptors.AuthUnary(deps.Gate, PublicMethods)))
	}
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps GRPCDeps) {
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.Health))
}
