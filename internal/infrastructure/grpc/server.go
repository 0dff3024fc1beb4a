package grpc

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpchandler "github.com/flipmyera/credit-ledger/internal/adapter/handler/grpc"
	"github.com/flipmyera/credit-ledger/internal/config"
	"github.com/flipmyera/credit-ledger/pkg/logger"
)

type Server struct {
	config *config.Config
	logger *zap.Logger
	server *grpc.Server
	health *grpchandler.HealthHandler
}

func NewServer(cfg *config.Config, log *zap.Logger, health *grpchandler.HealthHandler) *Server {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(logger.NewGrpcUnaryServerInterceptor(log)),
		grpc.ChainStreamInterceptor(logger.NewGrpcStreamServerInterceptor(log)),
	)
	healthpb.RegisterHealthServer(server, health.Server())

	return &Server{
		config: cfg,
		logger: log,
		server: server,
		health: health,
	}
}

func (s *Server) Start() error {
	addr := s.config.Server.GRPC.Addr()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.logger.Info("Starting gRPC server", zap.String("address", addr))
	return s.Serve(listener)
}

// Serve blocks serving on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	if err := s.server.Serve(listener); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.server.Stop()
	}
	return nil
}
