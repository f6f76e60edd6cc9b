package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/queue"
)

// outbound is one queued frame: either an event or a JSON envelope
type outbound struct {
	ev  protocol.Event
	msg protocol.Message
}

// connection is the surface owner for one websocket consumer. Responses and
// events share one queue so a consumer sees them in the order they happened.
type connection struct {
	id      id.ConnID
	conn    *websocket.Conn
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	out        *queue.Queue[outbound]
	writerDone chan struct{}
	abortOnce  sync.Once
	closeOnce  sync.Once
}

func newConnection(conn *websocket.Conn, cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *connection {
	cid := id.NewConnID()
	return &connection{
		id:         cid,
		conn:       conn,
		cfg:        cfg,
		logger:     logger.With(zap.String("conn", cid.String())),
		metrics:    metrics,
		out:        queue.New[outbound](),
		writerDone: make(chan struct{}),
	}
}

// Emit queues an event for the consumer. It runs on the multiplexer loop and
// never blocks.
func (c *connection) Emit(ev protocol.Event) {
	c.push(outbound{ev: ev})
}

func (c *connection) push(o outbound) {
	if !c.out.Push(o) {
		return
	}
	if c.cfg.OutboundLimit > 0 && c.out.Len() > c.cfg.OutboundLimit {
		go c.abort("outbound limit exceeded")
	}
}

func (c *connection) sendError(reqID string, err error) {
	c.push(outbound{msg: protocol.NewError(reqID, err)})
}

// abort closes the socket, which ends the read loop and with it the
// connection.
func (c *connection) abort(reason string) {
	c.abortOnce.Do(func() {
		c.logger.Warn("Closing WebSocket connection", zap.String("reason", reason))
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, reason),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}

func (c *connection) shutdown() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
		c.out.Close()
		<-c.writerDone
	})
}

func (c *connection) writeLoop() {
	defer close(c.writerDone)
	for {
		o, err := c.out.Pop(context.Background())
		if err != nil {
			return
		}
		if err := c.write(o); err != nil {
			c.logger.Debug("WebSocket write failed", zap.Error(err))
			_ = c.conn.Close()
			c.drain()
			return
		}
	}
}

// drain discards queued frames until the queue is closed.
func (c *connection) drain() {
	for {
		if _, err := c.out.Pop(context.Background()); err != nil {
			return
		}
	}
}

func (c *connection) write(o outbound) error {
	var (
		mt      int
		data    []byte
		msgType string
	)
	switch {
	case o.ev != nil:
		msgType = string(o.ev.EventKind())
		if paint, ok := o.ev.(*protocol.PaintEvent); ok {
			mt, data = websocket.BinaryMessage, protocol.EncodePaint(paint)
			break
		}
		env, err := protocol.EncodeEvent(o.ev)
		if err != nil {
			c.logger.Warn("Dropping unencodable event", zap.Error(err))
			return nil
		}
		if data, err = protocol.Marshal(env); err != nil {
			c.logger.Warn("Dropping unencodable event", zap.Error(err))
			return nil
		}
		mt = websocket.TextMessage
	default:
		msgType = string(o.msg.Type)
		var err error
		if data, err = protocol.Marshal(o.msg); err != nil {
			c.logger.Warn("Dropping unencodable message", zap.Error(err))
			return nil
		}
		mt = websocket.TextMessage
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(mt, data); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordMessage(transportName, "out", msgType)
	}
	return nil
}
