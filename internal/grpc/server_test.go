package grpc

import (
	"context"
	"image"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/api/rpc"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/client"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface/surfacetest"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

const waitFor = 2 * time.Second

type testHost struct {
	lis    *bufconn.Listener
	server *Server
	mux     *surface.Multiplexer
	metrics *monitoring.Metrics
	built   func() []*surfacetest.Provider
}

func newTestHost(t *testing.T, opts ServerOptions) *testHost {
	t.Helper()
	factory, built := surfacetest.Factory()
	metrics := monitoring.NewMetrics()
	mux := surface.NewMultiplexer(surface.DefaultConfig(), factory, nil).WithMetrics(metrics)
	srv := NewServer(rpc.NewDispatcher(mux, nil), opts, nil).WithMetrics(metrics)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()

	t.Cleanup(func() {
		srv.Stop()
		_ = mux.Close()
	})
	return &testHost{lis: lis, server: srv, mux: mux, metrics: metrics, built: built}
}

func (h *testHost) dial(t *testing.T, token string) (*Client, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	c, err := Dial(ctx, "passthrough:///bufnet", ClientOptions{
		Token: token,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return h.lis.DialContext(ctx)
			}),
		},
	})
	if err == nil {
		t.Cleanup(func() { _ = c.Close() })
	}
	return c, err
}

func (h *testHost) live() int {
	stats, err := h.mux.Stats(context.Background())
	if err != nil {
		return -1
	}
	return stats.Live
}

func TestSurfaceOverGRPC(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, ServerOptions{})
	c, err := host.dial(t, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.ConnID(), "conn_"))

	demux := client.NewDemultiplexer(c, nil)
	p := demux.NewProxy()
	ok, err := p.Create(ctx, 4, 4)
	require.NoError(t, err)
	require.True(t, ok)

	var (
		mu     sync.Mutex
		paints []*protocol.PaintEvent
		urls   []string
	)
	p.OnPaint(func(ev *protocol.PaintEvent) {
		mu.Lock()
		defer mu.Unlock()
		paints = append(paints, ev)
	})
	p.OnStartNavigation(func(ev *protocol.NavigationEvent) {
		mu.Lock()
		defer mu.Unlock()
		urls = append(urls, ev.URL)
	})

	ok, err = p.Navigate(ctx, "https://example.com/", false)
	require.NoError(t, err)
	assert.True(t, ok)

	title, ok, err := p.Title(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, title)

	prov := host.built()[0]
	prov.StartNavigation("https://example.com/frame", false)
	prov.StartNavigation("https://example.com/", true)
	prov.Paint(surface.Frame{Width: 4, Height: 4, Pix: make([]byte, 64), Dirty: image.Rect(0, 0, 4, 1)})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(paints) == 1 && len(urls) == 1
	}, waitFor, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"https://example.com/"}, urls)
	assert.Len(t, paints[0].Pixels, 4*1*4)
	assert.Equal(t, p.Handle(), paints[0].Handle)
}

func TestStreamEndDestroysOwnedSurfaces(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, ServerOptions{})

	c, err := host.dial(t, "")
	require.NoError(t, err)
	_, err = client.NewDemultiplexer(c, nil).NewProxy().Create(ctx, 8, 8)
	require.NoError(t, err)
	assert.Equal(t, 1, host.live())
	assert.Equal(t, 1, host.server.Sessions())

	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool {
		return host.live() == 0 && host.server.Sessions() == 0
	}, waitFor, 10*time.Millisecond)

	err = c.Call(ctx, protocol.MethodGetURL, protocol.HandleParams{Handle: 1}, nil)
	assert.ErrorIs(t, err, client.ErrNotConnected)
}

func fullFrame(w, h int) surface.Frame {
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = byte(i % 251)
	}
	return surface.Frame{Width: w, Height: h, Pix: pix, Dirty: image.Rect(0, 0, w, h)}
}

func TestLargePaintKeepsStream(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, ServerOptions{})
	c, err := host.dial(t, "")
	require.NoError(t, err)

	p := client.NewDemultiplexer(c, nil).NewProxy()
	ok, err := p.Create(ctx, 2560, 1440)
	require.NoError(t, err)
	require.True(t, ok)

	var (
		mu     sync.Mutex
		paints []*protocol.PaintEvent
	)
	p.OnPaint(func(ev *protocol.PaintEvent) {
		mu.Lock()
		defer mu.Unlock()
		paints = append(paints, ev)
	})

	frame := fullFrame(2560, 1440)
	host.built()[0].Paint(frame)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(paints) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	got := paints[0]
	mu.Unlock()
	assert.Equal(t, 2560, got.FullWidth)
	assert.Equal(t, 1440, got.FullHeight)
	assert.Equal(t, image.Rect(0, 0, 2560, 1440), got.Dirty())
	assert.Equal(t, frame.Pix, got.Pixels)

	assert.Equal(t, 1, host.live())
	ok, err = p.SetFocus(ctx, true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOversizedEventIsDropped(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, ServerOptions{MaxMessageBytes: 64 * 1024})
	c, err := host.dial(t, "")
	require.NoError(t, err)

	p := client.NewDemultiplexer(c, nil).NewProxy()
	ok, err := p.Create(ctx, 256, 256)
	require.NoError(t, err)
	require.True(t, ok)

	var (
		mu     sync.Mutex
		paints []*protocol.PaintEvent
	)
	p.OnPaint(func(ev *protocol.PaintEvent) {
		mu.Lock()
		defer mu.Unlock()
		paints = append(paints, ev)
	})

	prov := host.built()[0]
	big := fullFrame(256, 256)
	prov.Paint(big)
	small := big
	small.Dirty = image.Rect(0, 10, 256, 11)
	prov.Paint(small)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(paints) == 1
	}, waitFor, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, image.Rect(0, 10, 256, 11), paints[0].Dirty())
	mu.Unlock()

	assert.Equal(t, int64(1), host.metrics.Snapshot().EventsDropped)
	assert.Equal(t, 1, host.live())
	assert.Equal(t, 1, host.server.Sessions())
	ok, err = p.SetFocus(ctx, true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCallRequiresConnection(t *testing.T) {
	host := newTestHost(t, ServerOptions{})
	c, err := host.dial(t, "")
	require.NoError(t, err)

	req, err := protocol.NewRequest("r1", protocol.MethodGetURL, protocol.HandleParams{Handle: 1})
	require.NoError(t, err)
	var resp protocol.Message
	err = c.conn.Invoke(context.Background(), callMethod, &req, &resp)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestUnknownMethodIsRemoteError(t *testing.T) {
	host := newTestHost(t, ServerOptions{})
	c, err := host.dial(t, "")
	require.NoError(t, err)

	err = c.Call(context.Background(), "resize", protocol.HandleParams{Handle: 1}, nil)
	var remote *protocol.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "unknown method")
}

func TestTokenAuth(t *testing.T) {
	host := newTestHost(t, ServerOptions{Token: "s3cret"})

	_, err := host.dial(t, "wrong")
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	c, err := host.dial(t, "s3cret")
	require.NoError(t, err)
	ok, err := client.NewDemultiplexer(c, nil).NewProxy().Create(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}
