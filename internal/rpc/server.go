package rpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/netutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/worker"
)

const (
	serviceName = "encodly.worker.v1.Worker"
	// ProcessMethod is the full name of the bidirectional worker stream.
	ProcessMethod = "/" + serviceName + "/Process"

	shutdownGrace = 2 * time.Second
)

// WorkerServer handles one worker stream.
type WorkerServer interface {
	Process(grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WorkerServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Process",
			Handler:       processHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "encodly/worker/v1/worker.json",
}

func processHandler(srv any, stream grpc.ServerStream) error {
	return srv.(WorkerServer).Process(stream)
}

// Server exposes the worker over gRPC.
type Server struct {
	logger *slog.Logger
	grpc   *grpc.Server
}

// NewServer builds a worker server. A nil logger discards log output.
func NewServer(logger *slog.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{logger: logger, grpc: grpc.NewServer(opts...)}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Process runs every request received on stream and sends back its messages.
// It returns once the client has closed its side and all requests have
// finished.
func (s *Server) Process(stream grpc.ServerStream) error {
	var sendMu sync.Mutex
	emit := func(msg protocol.Message) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		return stream.SendMsg(&msg)
	}
	dispatcher := worker.NewDispatcher(stream.Context(), emit, s.logger)
	defer dispatcher.Wait()

	s.logger.Info("worker stream opened")
	for {
		var req protocol.Request
		if err := stream.RecvMsg(&req); err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("worker stream closed by client", "inflight", dispatcher.Inflight())
				return nil
			}
			dispatcher.Stop()
			if status.Code(err) == codes.Canceled {
				return nil
			}
			s.logger.Warn("worker stream receive failed", "error", err)
			return err
		}
		dispatcher.Handle(req)
	}
}

// Serve accepts connections on lis until ctx is cancelled. When maxConns is
// positive at most that many connections are served at once.
func (s *Server) Serve(ctx context.Context, lis net.Listener, maxConns int) error {
	if maxConns > 0 {
		lis = netutil.LimitListener(lis, maxConns)
	}

	go func() {
		<-ctx.Done()
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			s.grpc.Stop()
		}
	}()

	s.logger.Info("worker serving", "transport", "grpc", "addr", lis.Addr().String(), "max_conns", maxConns)
	if err := s.grpc.Serve(lis); err != nil {
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
	return nil
}

// Stop closes every connection immediately.
func (s *Server) Stop() {
	s.grpc.Stop()
}
