package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

const (
	// ServiceName is the fully qualified gRPC service name
	ServiceName = "surfacehost.v1.Surfaces"

	// ConnMetadataKey carries the connection ID announced on the event stream
	ConnMetadataKey = "x-surface-conn"

	callMethod   = "/" + ServiceName + "/Call"
	eventsMethod = "/" + ServiceName + "/Events"
)

// surfacesServer is implemented by Server.
type surfacesServer interface {
	Call(ctx context.Context, req *protocol.Message) (*protocol.Message, error)
	Events(req *protocol.Message, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*surfacesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
	Metadata: "surfacehost/v1/surfaces",
}

func callHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(protocol.Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(surfacesServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(surfacesServer).Call(ctx, req.(*protocol.Message))
	}
	return interceptor(ctx, in, info, handler)
}

func eventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(protocol.Message)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(surfacesServer).Events(in, stream)
}
