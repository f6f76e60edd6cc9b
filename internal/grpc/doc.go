// Package grpc serves the surface protocol over gRPC and provides the
// matching client.Transport.
//
// The service is declared by hand (surfacehost.v1.Surfaces) and carries the
// same JSON envelopes as the websocket transport through a registered "json"
// codec:
//
//	Call(Message) Message            unary request/response
//	Events(Message) stream Message   hello, then every owned surface's events
//
// A consumer opens Events first, reads the hello that announces its
// connection ID and sends that ID as x-surface-conn metadata on every Call.
//
// Example Usage:
//
//	c, err := grpc.Dial(ctx, "localhost:50071", grpc.ClientOptions{})
//	demux := client.NewDemultiplexer(c, logger)
//	p := demux.NewProxy()
//	ok, err := p.Create(ctx, 1280, 720)
package grpc
