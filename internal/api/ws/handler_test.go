package ws

import (
	"context"
	"image"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/api/rpc"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/client"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface/surfacetest"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

const waitFor = 2 * time.Second

type testHost struct {
	server  *httptest.Server
	handler *Handler
	mux     *surface.Multiplexer
	built   func() []*surfacetest.Provider
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	gin.SetMode(gin.TestMode)

	factory, built := surfacetest.Factory()
	metrics := monitoring.NewMetrics()
	mux := surface.NewMultiplexer(surface.DefaultConfig(), factory, nil).WithMetrics(metrics)
	handler := NewHandler(rpc.NewDispatcher(mux, nil), DefaultConfig(), nil).WithMetrics(metrics)

	router := gin.New()
	router.GET("/ws", handler.HandleConnection)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		handler.Close()
		server.Close()
		_ = mux.Close()
	})
	return &testHost{server: server, handler: handler, mux: mux, built: built}
}

func (h *testHost) wsURL() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
}

// live returns the number of live surfaces, or -1 once the host is closed.
func (h *testHost) live() int {
	stats, err := h.mux.Stats(context.Background())
	if err != nil {
		return -1
	}
	return stats.Live
}

func dial(t *testing.T, h *testHost) *client.WSTransport {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	tr, err := client.DialWS(ctx, h.wsURL(), client.WSOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestHelloAnnouncesConnection(t *testing.T) {
	host := newTestHost(t)
	tr := dial(t, host)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	connID, err := tr.ConnID(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(connID, "conn_"), connID)
	assert.Eventually(t, func() bool { return host.handler.Connections() == 1 }, waitFor, 5*time.Millisecond)
}

func TestSurfaceOverWebSocket(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t)
	demux := client.NewDemultiplexer(dial(t, host), nil)

	p := demux.NewProxy()
	ok, err := p.Create(ctx, 4, 4)
	require.NoError(t, err)
	require.True(t, ok)

	var (
		mu     sync.Mutex
		paints []*protocol.PaintEvent
		titles []string
	)
	p.OnPaint(func(ev *protocol.PaintEvent) {
		mu.Lock()
		defer mu.Unlock()
		paints = append(paints, ev)
	})
	p.OnTitleChanged(func(ev *protocol.TitleEvent) {
		mu.Lock()
		defer mu.Unlock()
		titles = append(titles, ev.Title)
	})

	ok, err = p.Navigate(ctx, "https://example.com/", false)
	require.NoError(t, err)
	assert.True(t, ok)
	u, ok, err := p.URL(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/", u)

	pix := make([]byte, 4*4*4)
	for i := range pix {
		pix[i] = byte(i)
	}
	prov := host.built()[0]
	prov.Paint(surface.Frame{Width: 4, Height: 4, Pix: pix, Dirty: image.Rect(1, 1, 3, 2)})
	prov.SetTitle("Example", true)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(paints) == 1 && len(titles) == 1
	}, waitFor, 5*time.Millisecond)

	mu.Lock()
	paint := paints[0]
	mu.Unlock()
	assert.Equal(t, p.Handle(), paint.Handle)
	assert.False(t, paint.FullFrame)
	assert.Equal(t, image.Rect(1, 1, 3, 2), paint.Dirty())
	// Row 1, columns 1..2 of the source frame.
	assert.Equal(t, pix[(4+1)*4:(4+3)*4], paint.Pixels)
	assert.Equal(t, []string{"Example"}, titles)

	ok, err = p.Destroy(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, host.live())
}

func TestDisconnectDestroysOwnedSurfaces(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t)

	tr := dial(t, host)
	demux := client.NewDemultiplexer(tr, nil)
	for i := 0; i < 2; i++ {
		ok, err := demux.NewProxy().Create(ctx, 8, 8)
		require.NoError(t, err)
		require.True(t, ok)
	}

	other := client.NewDemultiplexer(dial(t, host), nil)
	kept := other.NewProxy()
	ok, err := kept.Create(ctx, 8, 8)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, host.live())

	require.NoError(t, tr.Close())
	assert.Eventually(t, func() bool { return host.live() == 1 }, waitFor, 10*time.Millisecond)

	u, ok, err := kept.URL(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, u)
}

func TestMalformedMessages(t *testing.T) {
	host := newTestHost(t)
	conn, _, err := websocket.DefaultDialer.Dial(host.wsURL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() protocol.Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
		mt, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.TextMessage, mt)
		var msg protocol.Message
		require.NoError(t, protocol.Unmarshal(data, &msg))
		return msg
	}

	hello := read()
	assert.Equal(t, protocol.TypeHello, hello.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	resp := read()
	assert.Equal(t, protocol.TypeResponse, resp.Type)
	assert.Contains(t, resp.Error, "malformed params")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"event","id":"e1"}`)))
	resp = read()
	assert.Equal(t, "e1", resp.ID)
	assert.Contains(t, resp.Error, "unexpected message type")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"request","id":"r1","method":"resize"}`)))
	resp = read()
	assert.Equal(t, "r1", resp.ID)
	assert.Contains(t, resp.Error, "unknown method")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"request","id":"r2","method":"destroy","params":{"handle":99}}`)))
	resp = read()
	assert.Equal(t, "r2", resp.ID)
	assert.JSONEq(t, "false", string(resp.Result))
}

func TestHandlerCloseDropsConnections(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t)
	tr := dial(t, host)

	ok, err := client.NewDemultiplexer(tr, nil).NewProxy().Create(ctx, 4, 4)
	require.NoError(t, err)
	require.True(t, ok)

	host.handler.Close()

	select {
	case <-tr.Done():
	case <-time.After(waitFor):
		t.Fatal("client transport still open after handler close")
	}
	assert.Eventually(t, func() bool {
		return host.live() == 0 && host.handler.Connections() == 0
	}, waitFor, 10*time.Millisecond)

	err = tr.Call(ctx, protocol.MethodGetURL, protocol.HandleParams{Handle: 1}, nil)
	assert.ErrorIs(t, err, client.ErrNotConnected)
}
