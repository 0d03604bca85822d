package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/matheus3301/admiral/internal/api"
	"github.com/matheus3301/admiral/internal/lock"
	"github.com/matheus3301/admiral/internal/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server manages the gRPC server lifecycle for a session daemon.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the session's Unix domain socket.
// It requires the session lock so a stale socket is never removed from under
// a running daemon.
func NewServer(
	p Params,
	_ *lock.Lock,
	logger *zap.Logger,
	sessionSvc *api.SessionService,
	chatSvc *api.ChatService,
) (*Server, error) {
	socketPath := p.socketPath()

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary(logger)))
	rpc.RegisterSessionServiceServer(srv, sessionSvc)
	rpc.RegisterChatServiceServer(srv, chatSvc)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

func logUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{zap.String("method", info.FullMethod), zap.Duration("elapsed", time.Since(start))}
		if err != nil {
			logger.Debug("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return resp, err
	}
}

// SocketPath returns the socket the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file. Open Watch
// streams are cut when ctx ends.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
	_ = os.Remove(s.socketPath)
}
