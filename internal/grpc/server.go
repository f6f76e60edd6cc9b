package grpc

import (
	"context"
	"crypto/subtle"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/api/rpc"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/queue"
)

const transportName = "grpc"

// ServerOptions configures the gRPC surface service
type ServerOptions struct {
	// Token, when set, must be presented as "authorization: Bearer <token>"
	Token string
	// MaxMessageBytes bounds one message in either direction. Events larger
	// than this are dropped rather than sent.
	MaxMessageBytes int
}

// DefaultMaxMessageBytes fits a full-frame paint of a 2560x1600 surface.
var DefaultMaxMessageBytes = protocol.PaintFrameLen(2560, 1600)

// Server exposes a Dispatcher over gRPC. A consumer first opens the Events
// stream, which announces its connection ID, then tags every Call with that
// ID. Surfaces created by a connection are destroyed when its stream ends.
type Server struct {
	dispatcher *rpc.Dispatcher
	logger     *zap.Logger
	metrics    *monitoring.Metrics
	opts       ServerOptions
	server     *grpc.Server

	mu       sync.Mutex
	sessions map[id.ConnID]*session
}

// session is the surface owner behind one Events stream.
type session struct {
	id     id.ConnID
	events *queue.Queue[protocol.Event]
	cancel context.CancelFunc
}

func (s *session) Emit(ev protocol.Event) {
	s.events.Push(ev)
}

// NewServer creates the gRPC server and registers the surface service
func NewServer(dispatcher *rpc.Dispatcher, opts ServerOptions, logger *zap.Logger, extra ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}

	s := &Server{
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts,
		sessions:   make(map[id.ConnID]*session),
	}

	serverOpts := []grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 20 * time.Second,
		}),
		grpc.MaxRecvMsgSize(opts.MaxMessageBytes),
		grpc.MaxSendMsgSize(opts.MaxMessageBytes),
		grpc.ChainUnaryInterceptor(s.unaryAuth),
		grpc.ChainStreamInterceptor(s.streamAuth),
	}
	s.server = grpc.NewServer(append(serverOpts, extra...)...)
	s.server.RegisterService(&serviceDesc, s)
	return s
}

// WithMetrics records connection and message metrics
func (s *Server) WithMetrics(metrics *monitoring.Metrics) *Server {
	s.metrics = metrics
	return s
}

// Serve accepts connections on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC surface service listening", zap.String("addr", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Stop ends every event stream and then drains in-flight calls
func (s *Server) Stop() {
	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.cancel()
	}
	s.mu.Unlock()
	s.server.GracefulStop()
}

// Sessions returns the number of open event streams
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Call runs one request for the connection named in the call metadata.
func (s *Server) Call(ctx context.Context, req *protocol.Message) (*protocol.Message, error) {
	sess, err := s.lookup(ctx)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordMessage(transportName, "in", string(req.Method))
	}
	resp := s.dispatcher.Handle(ctx, sess, *req)
	return &resp, nil
}

// Events streams the events of every surface the connection owns. The first
// message is a hello carrying the connection ID.
func (s *Server) Events(_ *protocol.Message, stream grpc.ServerStream) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	sess := &session{
		id:     id.NewConnID(),
		events: queue.New[protocol.Event](),
		cancel: cancel,
	}
	logger := s.logger.With(zap.String("conn", sess.id.String()))

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.IncConnections(transportName)
	}

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		n := s.dispatcher.Multiplexer().DestroyOwnedBy(context.Background(), sess)
		sess.events.Close()
		if s.metrics != nil {
			s.metrics.DecConnections(transportName)
		}
		logger.Info("gRPC event stream closed", zap.Int("surfaces_destroyed", n))
	}()

	if err := stream.SendMsg(&protocol.Message{Type: protocol.TypeHello, Conn: sess.id.String()}); err != nil {
		return err
	}
	logger.Info("gRPC event stream opened")

	for {
		ev, err := sess.events.Pop(ctx)
		if err != nil {
			return nil
		}
		env, err := protocol.EncodeFrame(ev)
		if err != nil {
			logger.Warn("Dropping unencodable event", zap.Error(err))
			s.dropped(ev, "unencodable")
			continue
		}
		// An oversized SendMsg would end the stream and with it every
		// surface the connection owns.
		if size := env.Size(); size > s.opts.MaxMessageBytes {
			logger.Warn("Dropping oversized event",
				zap.String("event", string(ev.EventKind())),
				zap.Uint64("handle", uint64(ev.EventHandle())),
				zap.Int("bytes", size),
				zap.Int("limit", s.opts.MaxMessageBytes),
			)
			s.dropped(ev, "oversized")
			continue
		}
		if err := stream.SendMsg(&env); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordMessage(transportName, "out", string(ev.EventKind()))
		}
	}
}

func (s *Server) dropped(ev protocol.Event, reason string) {
	if s.metrics != nil {
		s.metrics.RecordDroppedEvent(string(ev.EventKind()), reason)
	}
}

func (s *Server) lookup(ctx context.Context) (*session, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(ConnMetadataKey)
	if len(vals) == 0 {
		return nil, status.Errorf(codes.FailedPrecondition, "missing %s metadata", ConnMetadataKey)
	}
	s.mu.Lock()
	sess := s.sessions[id.ConnID(vals[0])]
	s.mu.Unlock()
	if sess == nil {
		return nil, status.Errorf(codes.FailedPrecondition, "unknown connection %q", vals[0])
	}
	return sess, nil
}

func (s *Server) authorize(ctx context.Context) error {
	if s.opts.Token == "" {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	for _, v := range md.Get("authorization") {
		token, ok := strings.CutPrefix(v, "Bearer ")
		if ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.Token)) == 1 {
			return nil
		}
	}
	return status.Error(codes.Unauthenticated, "invalid or missing token")
}

func (s *Server) unaryAuth(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

func (s *Server) streamAuth(srv interface{}, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if err := s.authorize(ss.Context()); err != nil {
		return err
	}
	return handler(srv, ss)
}
