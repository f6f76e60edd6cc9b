package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/client"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/queue"
)

// ClientOptions configures Dial
type ClientOptions struct {
	Token           string
	MaxMessageBytes int
	Logger          *zap.Logger
	// DialOptions are appended to the defaults
	DialOptions []grpc.DialOption
}

// Client is a client.Transport over the gRPC surface service
type Client struct {
	conn   *grpc.ClientConn
	logger *zap.Logger
	token  string
	connID string

	events *queue.Queue[protocol.Event]
	out    chan protocol.Event
	done   chan struct{}
	cancel context.CancelFunc

	closeOnce sync.Once
}

// Dial connects to addr and opens the event stream. It returns once the host
// has announced the connection ID.
func Dial(ctx context.Context, addr string, opts ClientOptions) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = protocol.PaintFrameLen(protocol.MaxSurfaceDimension, protocol.MaxSurfaceDimension)
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(codecName),
			grpc.MaxCallRecvMsgSize(opts.MaxMessageBytes),
			grpc.MaxCallSendMsgSize(opts.MaxMessageBytes),
		),
	}
	conn, err := grpc.NewClient(addr, append(dialOpts, opts.DialOptions...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial surface host: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		logger: opts.Logger,
		token:  opts.Token,
		events: queue.New[protocol.Event](),
		out:    make(chan protocol.Event),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	stream, err := conn.NewStream(c.outgoing(streamCtx), &serviceDesc.Streams[0], eventsMethod)
	if err == nil {
		err = stream.SendMsg(&protocol.Message{Type: protocol.TypeRequest})
	}
	if err == nil {
		err = stream.CloseSend()
	}
	if err == nil {
		err = c.awaitHello(ctx, stream)
	}
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("open event stream: %w", err)
	}

	go c.recvLoop(stream)
	go c.pump()
	return c, nil
}

func (c *Client) awaitHello(ctx context.Context, stream grpc.ClientStream) error {
	result := make(chan error, 1)
	go func() {
		var hello protocol.Message
		if err := stream.RecvMsg(&hello); err != nil {
			result <- err
			return
		}
		if hello.Type != protocol.TypeHello || hello.Conn == "" {
			result <- fmt.Errorf("expected hello, got %q", hello.Type)
			return
		}
		c.connID = hello.Conn
		result <- nil
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		c.cancel()
		<-result
		return ctx.Err()
	}
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func (c *Client) recvLoop(stream grpc.ClientStream) {
	defer c.shutdown()
	for {
		var msg protocol.Message
		if err := stream.RecvMsg(&msg); err != nil {
			if !errors.Is(err, io.EOF) && status.Code(err) != codes.Canceled {
				c.logger.Debug("Event stream ended", zap.Error(err))
			}
			return
		}
		ev, err := protocol.DecodeEvent(msg)
		if err != nil {
			c.logger.Debug("Dropping event", zap.Error(err))
			continue
		}
		c.events.Push(ev)
	}
}

func (c *Client) pump() {
	defer close(c.out)
	for {
		ev, err := c.events.Pop(context.Background())
		if err != nil {
			return
		}
		select {
		case c.out <- ev:
		case <-c.done:
			return
		}
	}
}

// ConnID returns the connection ID the host assigned
func (c *Client) ConnID() string {
	return c.connID
}

// Call sends one request and decodes its result into result.
func (c *Client) Call(ctx context.Context, method protocol.Method, params, result interface{}) error {
	select {
	case <-c.done:
		return client.ErrNotConnected
	default:
	}

	req, err := protocol.NewRequest(uuid.NewString(), method, params)
	if err != nil {
		return err
	}
	ctx = metadata.AppendToOutgoingContext(c.outgoing(ctx), ConnMetadataKey, c.connID)

	var resp protocol.Message
	if err := c.conn.Invoke(ctx, callMethod, &req, &resp); err != nil {
		switch status.Code(err) {
		case codes.Unavailable, codes.FailedPrecondition:
			return fmt.Errorf("%w: %v", client.ErrNotConnected, err)
		case codes.Canceled, codes.DeadlineExceeded:
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return err
	}
	return resp.DecodeResult(method, result)
}

// Events returns the event stream. It is closed when the connection ends.
func (c *Client) Events() <-chan protocol.Event {
	return c.out
}

// Done is closed when the event stream has ended
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the event stream, which releases the surfaces this connection
// owns, and closes the connection.
func (c *Client) Close() error {
	c.cancel()
	c.shutdown()
	return c.conn.Close()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.events.Close()
	})
}

var _ client.Transport = (*Client)(nil)
