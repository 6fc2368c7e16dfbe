package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
)

// GracefulServer hosts AssistantService and shuts down cleanly when its
// context is cancelled.
type GracefulServer struct {
	grpcServer *grpc.Server
	logger     observability.Logger
	address    string

	mu         sync.Mutex
	listener   net.Listener
	isShutdown bool
}

// NewGracefulServer creates the server. With no options the standard
// interceptors from ServerOptions are installed.
func NewGracefulServer(svc AssistantService, address string, logger observability.Logger, opts ...grpc.ServerOption) *GracefulServer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if len(opts) == 0 {
		opts = ServerOptions(logger)
	}

	grpcServer := grpc.NewServer(opts...)
	RegisterAssistantServiceServer(grpcServer, svc)

	return &GracefulServer{
		grpcServer: grpcServer,
		logger:     logger,
		address:    address,
	}
}

// Start serves until ctx is cancelled, then stops gracefully.
func (s *GracefulServer) Start(ctx context.Context) error {
	errCh, err := s.StartBackground()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		s.logger.Info("grpc_graceful_shutdown_initiated", "reason", ctx.Err().Error())
		s.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// StartBackground listens on the configured address and serves in a
// goroutine. The returned channel yields the serve error, if any, and is
// closed when serving stops.
func (s *GracefulServer) StartBackground() (<-chan error, error) {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis), nil
}

// Serve serves on an existing listener in a goroutine.
func (s *GracefulServer) Serve(lis net.Listener) <-chan error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("grpc_server_started", "address", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// GracefulStop stops accepting connections and waits for in-flight RPCs.
func (s *GracefulServer) GracefulStop() {
	if !s.markShutdown() {
		return
	}
	s.logger.Info("grpc_graceful_stop_started")
	s.grpcServer.GracefulStop()
	s.logger.Info("grpc_graceful_stop_completed")
}

// Stop closes every connection immediately.
func (s *GracefulServer) Stop() {
	if !s.markShutdown() {
		return
	}
	s.logger.Warn("grpc_immediate_stop")
	s.grpcServer.Stop()
}

// ShutdownWithTimeout stops gracefully, forcing an immediate stop once
// timeout elapses.
func (s *GracefulServer) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("grpc_graceful_shutdown_timeout", "timeout_ms", timeout.Milliseconds())
		s.grpcServer.Stop()
	}
}

func (s *GracefulServer) markShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isShutdown {
		return false
	}
	s.isShutdown = true
	return true
}

// GRPCServer returns the underlying grpc.Server.
func (s *GracefulServer) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// Address returns the bound address once serving, else the configured one.
func (s *GracefulServer) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}
