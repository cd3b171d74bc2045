package rpc

import (
	"context"
	"encoding/json"
	"net"
	"sort"
	"sync"

	"google.golang.org/grpc"

	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/smlog"
)

// Handler executes one remote procedure. The returned value is sent back JSON-encoded.
type Handler func(ctx context.Context, args Args) (any, error)

type Server struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	grpcServer *grpc.Server
}

var _ storageService = &Server{}

func NewServer(opts ...grpc.ServerOption) *Server {
	s := &Server{
		handlers:   map[string]Handler{},
		grpcServer: grpc.NewServer(opts...),
	}
	s.grpcServer.RegisterService(&storageServiceDesc, s)
	return s
}

// Register exposes h under name, replacing any previous handler.
func (s *Server) Register(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Procedures lists registered procedure names.
func (s *Server) Procedures() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) Serve(lis net.Listener) error {
	smlog.Zero.Info().
		Str("address", lis.Addr().String()).
		Msg("serve storage rpc")
	return s.grpcServer.Serve(lis)
}

func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

func (s *Server) Stop() {
	s.grpcServer.Stop()
}

func (s *Server) call(ctx context.Context, req *Request) (*Response, error) {
	s.mu.RLock()
	h, ok := s.handlers[req.Name]
	s.mu.RUnlock()

	if !ok {
		return nil, toStatus(smerror.Newf(smerror.SHARDMAN_NO_SUCH_PROCEDURE, "procedure %q is not registered", req.Name))
	}

	smlog.Zero.Debug().
		Str("procedure", req.Name).
		Int("args", len(req.Args)).
		Msg("rpc: call")

	res, err := h(ctx, Args(req.Args))
	if err != nil {
		smlog.Zero.Debug().
			Str("procedure", req.Name).
			Err(err).
			Msg("rpc: call failed")
		return nil, toStatus(err)
	}
	if res == nil {
		return &Response{}, nil
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, toStatus(smerror.Newf(smerror.SHARDMAN_UNEXPECTED, "encode result of %s: %s", req.Name, err))
	}
	return &Response{Result: raw}, nil
}
