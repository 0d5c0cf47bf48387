package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// NewServer builds a grpc.Server with the booking service and the standard
// health service registered. The booking service reports SERVING immediately.
func NewServer(handler BookingServiceHandler, logger *zap.Logger, options ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	serverOptions := append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(loggingInterceptor(logger))}, options...)
	server := grpc.NewServer(serverOptions...)
	Register(server, handler)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	return server, healthServer
}

// GracefulShutdown reports NOT_SERVING to health checkers and then waits for
// in-flight calls to finish.
func GracefulShutdown(server *grpc.Server, healthServer *health.Server) {
	if healthServer != nil {
		healthServer.Shutdown()
	}
	server.GracefulStop()
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, request any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		startedAt := time.Now()
		response, err := handler(ctx, request)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(startedAt)),
			zap.String("code", status.Code(err).String()),
		}
		if err != nil {
			logger.Warn("grpc call failed", append(fields, zap.Error(err))...)
			return response, err
		}
		logger.Debug("grpc call", fields...)
		return response, nil
	}
}
