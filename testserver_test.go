package warren

import (
	"net"
	"sync/atomic"
	"testing"

	"github.com/shhac/warren/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Test infrastructure: real in-process gRPC servers on ephemeral ports.
//
// A server with no registered services answers every method with a true
// Unimplemented status, exercising the degraded handshake outcome. A
// server with an unknown-service handler that echoes an empty message
// exercises the Connected path: an empty response decodes as an
// all-default message whose status code is zero, i.e. success.

// startServer runs srv on an ephemeral port and returns its address.
func startServer(t *testing.T, srv *grpc.Server) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

// startUnimplementedServer serves a real gRPC server that recognizes no
// methods at all, like a server predating the whole service.
func startUnimplementedServer(t *testing.T) string {
	t.Helper()
	return startServer(t, grpc.NewServer())
}

// startEchoServer serves a server that accepts any unary method and
// replies with an empty message. calls counts handled RPCs.
func startEchoServer(t *testing.T, calls *atomic.Int64) string {
	t.Helper()
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(srv any, stream grpc.ServerStream) error {
		if calls != nil {
			calls.Add(1)
		}
		req := new(emptypb.Empty)
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		return stream.SendMsg(new(emptypb.Empty))
	}))
	return startServer(t, srv)
}

// buildTestClient builds a client against addr with test defaults.
func buildTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	c, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}
