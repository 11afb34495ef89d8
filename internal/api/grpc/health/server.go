package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/alarm-display/internal/domain/alarm"
	"github.com/oshokin/alarm-display/internal/logger"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "alarm.display.Panel"

// Server reports SERVING while the broker link is connected.
type Server struct {
	// health keeps the per-service statuses.
	health *grpchealth.Server
	// grpcServer serves the health service.
	grpcServer *grpc.Server
}

// NewServer creates a server reporting NOT_SERVING until the first connection.
func NewServer() *Server {
	s := &Server{
		health:     grpchealth.NewServer(),
		grpcServer: grpc.NewServer(),
	}

	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.SetConnectionState(alarm.ConnectionDisconnected)

	return s
}

// SetConnectionState translates a broker link state into a health status.
func (s *Server) SetConnectionState(state alarm.ConnectionState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == alarm.ConnectionConnected {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve serves health checks on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	ctx = logger.WithName(ctx, "health")

	// Closed after GracefulStop finishes so Serve returns only once the server fully stops.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		close(done)
	}()

	logger.InfoKV(ctx, "Health endpoint listening", "listen_address", lis.Addr().String())

	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve health: %w", err)
	}

	<-done
	logger.Info(ctx, "Health endpoint stopped")

	return nil
}
