package codec

import (
	"context"

	"google.golang.org/grpc"
)

// Unary builds a method handler for a hand-written service descriptor.
func Unary[S, Req any](service, method string, call func(S, context.Context, *Req) (any, error)) grpc.MethodHandler {
	fullMethod := "/" + service + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		server := srv.(S)
		if interceptor == nil {
			return call(server, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*Req))
		})
	}
}

// Invoke performs a unary call with the JSON codec.
func Invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, req, out, grpc.ForceCodec(JSON{})); err != nil {
		return nil, err
	}
	return out, nil
}
