/*
Package tracing records request spans for the HTTP and gRPC entry points.

Spans are buffered and written to the log by one collector goroutine, so
the request path only pays for a channel send. A trace is continued when the
caller sends X-Trace-ID and X-Span-ID headers (or the lower-case gRPC
metadata keys); otherwise a new trace ID is generated. The IDs of the
current span are echoed in the HTTP response headers.

	tracer := tracing.New("surfacehost", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
		grpc.ChainStreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
	)

Completed spans log at debug level; spans that ended with an error log at
warn level.
*/
package tracing
