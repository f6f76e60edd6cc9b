package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/queue"
)

// WSOptions configures DialWS.
type WSOptions struct {
	// Token is sent as a bearer token when set.
	Token string
	// MaxPaintBytes bounds the pixel payload of one paint frame; zero
	// disables the check.
	MaxPaintBytes int
	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// WSTransport is a Transport over a websocket connection to a surface host.
type WSTransport struct {
	conn   *websocket.Conn
	logger *zap.Logger
	opts   WSOptions

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.Message
	connID  string
	hello   chan struct{}

	events *queue.Queue[protocol.Event]
	out    chan protocol.Event
	done   chan struct{}

	closeOnce sync.Once
}

// DialWS connects to the websocket endpoint at url.
func DialWS(ctx context.Context, url string, opts WSOptions) (*WSTransport, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	t := &WSTransport{
		conn:    conn,
		logger:  opts.Logger,
		opts:    opts,
		pending: make(map[string]chan protocol.Message),
		hello:   make(chan struct{}),
		events:  queue.New[protocol.Event](),
		out:     make(chan protocol.Event),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	go t.pump()
	return t, nil
}

// ConnID waits for the host greeting and returns the connection ID it
// assigned.
func (t *WSTransport) ConnID(ctx context.Context) (string, error) {
	select {
	case <-t.hello:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.connID, nil
	case <-t.done:
		return "", ErrNotConnected
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *WSTransport) readLoop() {
	defer t.shutdown()
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debug("Websocket read ended", zap.Error(err))
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			ev, err := protocol.DecodePaint(data, t.opts.MaxPaintBytes)
			if err != nil {
				t.logger.Warn("Dropping malformed paint frame", zap.Error(err))
				continue
			}
			t.events.Push(ev)
		case websocket.TextMessage:
			var msg protocol.Message
			if err := protocol.Unmarshal(data, &msg); err != nil {
				t.logger.Warn("Dropping malformed message", zap.Error(err))
				continue
			}
			t.handle(msg)
		}
	}
}

func (t *WSTransport) handle(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeHello:
		t.mu.Lock()
		first := t.connID == ""
		t.connID = msg.Conn
		t.mu.Unlock()
		if first {
			close(t.hello)
		}
	case protocol.TypeResponse:
		t.mu.Lock()
		ch, ok := t.pending[msg.ID]
		delete(t.pending, msg.ID)
		t.mu.Unlock()
		if ok {
			ch <- msg
		}
	case protocol.TypeEvent:
		ev, err := protocol.DecodeEvent(msg)
		if err != nil {
			t.logger.Debug("Dropping event", zap.Error(err))
			return
		}
		t.events.Push(ev)
	}
}

func (t *WSTransport) pump() {
	defer close(t.out)
	for {
		ev, err := t.events.Pop(context.Background())
		if err != nil {
			return
		}
		select {
		case t.out <- ev:
		case <-t.done:
			return
		}
	}
}

// Call sends a request and waits for the matching response.
func (t *WSTransport) Call(ctx context.Context, method protocol.Method, params, result interface{}) error {
	id := uuid.NewString()
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return err
	}
	data, err := protocol.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	ch := make(chan protocol.Message, 1)
	t.mu.Lock()
	select {
	case <-t.done:
		t.mu.Unlock()
		return ErrNotConnected
	default:
	}
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	t.writeMu.Lock()
	err = t.conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	select {
	case resp := <-ch:
		return resp.DecodeResult(method, result)
	case <-t.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the event stream of the connection.
func (t *WSTransport) Events() <-chan protocol.Event {
	return t.out
}

// Done is closed when the connection has ended.
func (t *WSTransport) Done() <-chan struct{} {
	return t.done
}

// Close sends a close frame and tears the connection down.
func (t *WSTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	err := t.conn.Close()
	t.shutdown()
	return err
}

func (t *WSTransport) shutdown() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		close(t.done)
		t.mu.Unlock()
		t.events.Close()
	})
}
