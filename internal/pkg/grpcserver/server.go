package grpcserver

import (
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server is a grpc.Server bundled with the standard health service
type Server struct {
	Server *grpc.Server
	Health *health.Server

	mu  sync.Mutex
	lis net.Listener
}

// New builds a server; opts carry credentials and interceptors
func New(opts ...grpc.ServerOption) *Server {
	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return &Server{
		Server: s,
		Health: hs,
	}
}

// Serve marks every registered service SERVING and serves on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	for name := range s.Server.GetServiceInfo() {
		s.Health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	s.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s.Server.Serve(lis)
}

// Stop reports NOT_SERVING, drains in-flight calls and closes the listener
func (s *Server) Stop() {
	s.Health.Shutdown()
	s.Server.GracefulStop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
