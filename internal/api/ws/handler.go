package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/api/rpc"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

const transportName = "ws"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin policy is enforced by the CORS and auth middleware
	},
}

// Config tunes per-connection limits
type Config struct {
	// OutboundLimit closes a connection once this many messages are waiting
	// to be written. Zero leaves the queue unbounded.
	OutboundLimit int
	// MaxMessageBytes bounds one inbound text frame
	MaxMessageBytes int64
	// WriteTimeout bounds one frame write
	WriteTimeout time.Duration
}

// DefaultConfig returns the limits used when none are configured
func DefaultConfig() Config {
	return Config{
		OutboundLimit:   0,
		MaxMessageBytes: 1 << 20,
		WriteTimeout:    10 * time.Second,
	}
}

// Handler manages WebSocket connections
type Handler struct {
	dispatcher *rpc.Dispatcher
	logger     *zap.Logger
	metrics    *monitoring.Metrics
	cfg        Config

	mu    sync.Mutex
	conns map[*connection]struct{}
}

// NewHandler creates a new WebSocket handler
func NewHandler(dispatcher *rpc.Dispatcher, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Handler{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		conns:      make(map[*connection]struct{}),
	}
}

// WithMetrics records connection and message metrics
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	h.Serve(c.Request.Context(), conn)
}

// Serve runs the protocol on an upgraded connection until it closes. Every
// surface created over the connection is destroyed when it ends.
func (h *Handler) Serve(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cc := newConnection(conn, h.cfg, h.logger, h.metrics)
	h.track(cc, true)
	defer h.track(cc, false)

	if h.metrics != nil {
		h.metrics.IncConnections(transportName)
		defer h.metrics.DecConnections(transportName)
	}

	go cc.writeLoop()
	defer func() {
		n := h.dispatcher.Multiplexer().DestroyOwnedBy(context.Background(), cc)
		cc.shutdown()
		cc.logger.Info("WebSocket connection closed", zap.Int("surfaces_destroyed", n))
	}()

	cc.logger.Info("WebSocket connection opened", zap.String("remote", conn.RemoteAddr().String()))
	cc.push(outbound{msg: protocol.Message{Type: protocol.TypeHello, Conn: cc.id.String()}})

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cc.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			cc.logger.Debug("Ignoring binary frame from consumer")
			continue
		}

		var msg protocol.Message
		if err := protocol.Unmarshal(data, &msg); err != nil {
			cc.sendError("", fmt.Errorf("%w: %v", protocol.ErrBadParams, err))
			continue
		}
		if msg.Type != protocol.TypeRequest {
			cc.sendError(msg.ID, fmt.Errorf("unexpected message type %q", msg.Type))
			continue
		}

		if h.metrics != nil {
			h.metrics.RecordMessage(transportName, "in", string(msg.Method))
		}
		cc.push(outbound{msg: h.dispatcher.Handle(ctx, cc, msg)})
	}
}

func (h *Handler) track(cc *connection, add bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if add {
		h.conns[cc] = struct{}{}
	} else {
		delete(h.conns, cc)
	}
}

// Connections returns the number of open connections
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close drops every open connection. Their read loops then release the
// surfaces they own.
func (h *Handler) Close() {
	h.mu.Lock()
	conns := make([]*connection, 0, len(h.conns))
	for cc := range h.conns {
		conns = append(conns, cc)
	}
	h.mu.Unlock()

	for _, cc := range conns {
		cc.abort("server shutting down")
	}
}
