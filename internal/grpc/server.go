package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Traviscatt/picknroll-sub000/internal/dal"
	"github.com/Traviscatt/picknroll-sub000/internal/logger"
)

// DatabaseService is the health service name tracking the storage backend
const DatabaseService = "picknroll.database"

// Pinger is the part of the storage layer the health checks need
type Pinger interface {
	Ping() error
}

var _ Pinger = dal.PoolDAL(nil)

// Server exposes gRPC health checking and reflection for the scoring service
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	store    Pinger
	interval time.Duration
}

// NewServer creates a new gRPC server whose health follows store.Ping
func NewServer(store Pinger, interval time.Duration) *Server {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	s := &Server{
		grpc: grpc.NewServer(
			grpc.UnaryInterceptor(unaryLogger),
			grpc.StreamInterceptor(streamLogger),
		),
		health:   health.NewServer(),
		store:    store,
		interval: interval,
	}

	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.check()

	return s
}

// Serve accepts connections on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	logger.Info("gRPC server starting", "address", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Watch refreshes the health status every interval until ctx is done
func (s *Server) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check()
		}
	}
}

// Stop marks every service as not serving and drains open RPCs
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) check() {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.store.Ping(); err != nil {
		logger.Warn("gRPC: database ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(DatabaseService, status)
}

func unaryLogger(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		logger.Warn("gRPC call failed", "method", info.FullMethod, "error", err, "duration", time.Since(start))
	} else {
		logger.Debug("gRPC call", "method", info.FullMethod, "duration", time.Since(start))
	}
	return resp, err
}

func streamLogger(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	logger.Debug("gRPC stream opened", "method", info.FullMethod)
	err := handler(srv, ss)
	logger.Debug("gRPC stream closed", "method", info.FullMethod, "error", err)
	return err
}
