package rpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"github.com/pg-sharding/shardman/pkg/models/smerror"
)

const (
	serviceName    = "shardman.Storage"
	callMethodName = "Call"
	callMethod     = "/" + serviceName + "/" + callMethodName
)

// Request invokes the remote procedure Name with positional arguments.
type Request struct {
	Name string            `json:"name"`
	Args []json.RawMessage `json:"args,omitempty"`
}

type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
}

// Args are the positional arguments of a call, decoded lazily by the handler.
type Args []json.RawMessage

func (a Args) Len() int {
	return len(a)
}

// Decode unmarshals the i-th argument into v.
func (a Args) Decode(i int, v any) error {
	if i >= len(a) {
		return smerror.Newf(smerror.SHARDMAN_INVALID_REQUEST, "missing argument #%d", i+1)
	}
	if err := json.Unmarshal(a[i], v); err != nil {
		return smerror.Newf(smerror.SHARDMAN_INVALID_REQUEST, "argument #%d: %s", i+1, err)
	}
	return nil
}

type storageService interface {
	call(ctx context.Context, req *Request) (*Response, error)
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(storageService).call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: callMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(storageService).call(ctx, req.(*Request))
	}
	return interceptor(ctx, in, info, handler)
}

// storageServiceDesc is written by hand in the shape protoc-gen-go-grpc
// generates. There is no .proto file: messages are Request and Response,
// encoded by the JSON codec registered in codec.go.
var storageServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*storageService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: callMethodName,
			Handler:    callHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shardman/storage",
}
