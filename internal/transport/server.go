package transport

import (
	"fmt"
	"net"

	"google.golang.org/grpc"

	"transformstate/internal/logging"
)

type Server struct {
	grpc *grpc.Server
	lis  net.Listener
}

// StartServer listens on port and registers impl. Call Serve to accept
// connections.
func StartServer(port int, impl MetadataServer, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return NewServer(lis, impl, opts...), nil
}

// NewServer registers impl on a server bound to an existing listener.
func NewServer(lis net.Listener, impl MetadataServer, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(wireCodec{})}, opts...)
	s := &Server{
		grpc: grpc.NewServer(opts...),
		lis:  lis,
	}
	s.grpc.RegisterService(&serviceDesc, impl)
	return s
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

func (s *Server) Serve() error {
	logging.For("transport").Info("metadata service listening", "addr", s.lis.Addr().String())
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
