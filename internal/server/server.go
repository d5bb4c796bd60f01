// Package server exposes policy evaluation to Envoy over the ext_authz gRPC API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"google.golang.org/grpc"
)

// Server manages the gRPC server
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener

	grpcPort    int
	authzServer *AuthzServer
	logger      *slog.Logger
}

// Config contains server configuration
type Config struct {
	// GRPCPort to listen on; 0 picks a free port
	GRPCPort int

	AuthzServer *AuthzServer
	Logger      *slog.Logger
}

// New creates a new server with the given configuration
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		grpcPort:    cfg.GRPCPort,
		authzServer: cfg.AuthzServer,
		logger:      logger,
	}
}

// Start starts the gRPC server in the background
func (s *Server) Start(ctx context.Context) error {
	if s.authzServer == nil {
		return errors.New("no ext_authz server configured")
	}

	s.grpcServer = grpc.NewServer()
	authv3.RegisterAuthorizationServer(s.grpcServer, s.authzServer)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.grpcPort))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port %d: %w", s.grpcPort, err)
	}
	s.listener = listener

	go func() {
		s.logger.Info("gRPC server listening", "address", listener.Addr().String())
		if err := s.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("gRPC server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server, forcing it down if ctx ends first
func (s *Server) Stop(ctx context.Context) error {
	if s.grpcServer == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.grpcServer.Stop()
		return ctx.Err()
	}
}
