package software

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface/surfacetest"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

type navigation struct {
	url       string
	mainFrame bool
}

type title struct {
	text     string
	explicit bool
}

// recorder collects every notification a provider sends.
type recorder struct {
	mu          sync.Mutex
	frames      []surface.Frame
	cursors     []string
	navigations []navigation
	titles      []title
}

func (r *recorder) listener() surface.Listener {
	return surface.Listener{
		OnPaint: func(f surface.Frame) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.frames = append(r.frames, f)
		},
		OnCursorChanged: func(c string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.cursors = append(r.cursors, c)
		},
		OnStartNavigation: func(u string, main bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.navigations = append(r.navigations, navigation{u, main})
		},
		OnTitleUpdated: func(t string, explicit bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.titles = append(r.titles, title{t, explicit})
		},
	}
}

func (r *recorder) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) lastFrame() surface.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[len(r.frames)-1]
}

func (r *recorder) titleList() []title {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]title(nil), r.titles...)
}

func (r *recorder) navigationList() []navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]navigation(nil), r.navigations...)
}

func (r *recorder) cursorList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cursors...)
}

func newProvider(t *testing.T, mutate ...func(*Options)) (*Provider, *recorder) {
	opts := DefaultOptions()
	opts.FetchTimeout = 2 * time.Second
	opts.ScriptTimeout = 200 * time.Millisecond
	for _, fn := range mutate {
		fn(&opts)
	}
	p := New(NewFetcher(opts), opts)
	t.Cleanup(func() { _ = p.Close() })

	rec := &recorder{}
	p.Subscribe(rec.listener())
	return p, rec
}

func writePage(t *testing.T, name, html string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(html), 0o644))
	return path
}

func pixelAt(f surface.Frame, x, y int) []byte {
	o := (y*f.Width + x) * 4
	return f.Pix[o : o+4]
}

func TestPaintsFullFrameThenDamage(t *testing.T) {
	p, rec := newProvider(t)
	p.Resize(64, 48)
	p.StartPainting()

	require.Eventually(t, func() bool { return rec.frameCount() >= 1 }, 2*time.Second, 5*time.Millisecond)
	first := rec.lastFrame()
	assert.Equal(t, image.Rect(0, 0, 64, 48), first.Dirty)
	assert.Len(t, first.Pix, 64*48*4)

	p.SendMouseEvent(protocol.MouseEvent{Kind: protocol.MouseMove, X: 40, Y: 40})
	require.Eventually(t, func() bool { return rec.frameCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	damage := rec.lastFrame()
	assert.False(t, damage.Dirty.Empty())
	assert.True(t, damage.Dirty.In(image.Rect(36, 36, 44, 44)), "dirty %v", damage.Dirty)
	assert.Less(t, pixelAt(damage, 40, 40)[0], byte(64))
}

func TestStoppedProviderDoesNotPaint(t *testing.T) {
	p, rec := newProvider(t)
	p.Resize(32, 32)
	p.SendMouseEvent(protocol.MouseEvent{Kind: protocol.MouseMove, X: 5, Y: 20})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.frameCount())

	p.StartPainting()
	require.Eventually(t, func() bool { return rec.frameCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	p.StopPainting()
	p.SendMouseEvent(protocol.MouseEvent{Kind: protocol.MouseMove, X: 10, Y: 20})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.frameCount())
}

func TestLoadFileTitlesAndFrames(t *testing.T) {
	path := writePage(t, "index.html", `<html><head><title>Docs</title></head>
<body>
<h1>Heading</h1>
<p>Some text in a paragraph.</p>
<iframe src="frame.html"></iframe>
<script>document.title = document.title + " - ready";</script>
<script type="application/json">{"ignored": true}</script>
</body></html>`)

	p, rec := newProvider(t)
	require.NoError(t, p.LoadFile(path))

	fileURL := "file://" + filepath.ToSlash(path)
	assert.Equal(t, fileURL, p.URL())

	require.Eventually(t, func() bool { return len(rec.titleList()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []title{{"Docs", false}, {"Docs - ready", true}}, rec.titleList())
	assert.Equal(t, "Docs - ready", p.Title())

	navs := rec.navigationList()
	require.Len(t, navs, 2)
	assert.Equal(t, navigation{fileURL, true}, navs[0])
	assert.False(t, navs[1].mainFrame)
	assert.True(t, strings.HasSuffix(navs[1].url, "/frame.html"))
}

func TestPageBackground(t *testing.T) {
	path := writePage(t, "red.html", `<html><head><title>Red</title></head><body bgcolor="#ff0000"><p>x</p></body></html>`)

	p, rec := newProvider(t)
	p.Resize(40, 120)
	p.StartPainting()
	require.NoError(t, p.LoadFile(path))

	require.Eventually(t, func() bool {
		if rec.frameCount() == 0 {
			return false
		}
		px := pixelAt(rec.lastFrame(), 39, 119)
		return px[0] == 0 && px[1] == 0 && px[2] == 255
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCursorOverHeader(t *testing.T) {
	p, rec := newProvider(t)
	p.Resize(100, 100)

	p.SendMouseEvent(protocol.MouseEvent{Kind: protocol.MouseMove, X: 10, Y: 60})
	p.SendMouseEvent(protocol.MouseEvent{Kind: protocol.MouseMove, X: 10, Y: 5})
	p.SendMouseEvent(protocol.MouseEvent{Kind: protocol.MouseMove, X: 20, Y: 6})
	p.SendMouseEvent(protocol.MouseEvent{Kind: protocol.MouseLeave})

	assert.Equal(t, []string{CursorPointer, CursorDefault}, rec.cursorList())
}

func TestKeyboardNeedsFocus(t *testing.T) {
	p, _ := newProvider(t)

	p.SendKeyboardEvent(protocol.KeyboardEvent{Kind: protocol.KeyChar, KeyCode: "a"})
	p.Focus(true)
	p.SendKeyboardEvent(protocol.KeyboardEvent{Kind: protocol.KeyChar, KeyCode: "b"})
	p.SendKeyboardEvent(protocol.KeyboardEvent{Kind: protocol.KeyChar, KeyCode: "c"})
	p.SendKeyboardEvent(protocol.KeyboardEvent{Kind: protocol.KeyDown, KeyCode: "Backspace"})
	p.SendKeyboardEvent(protocol.KeyboardEvent{Kind: protocol.KeyDown, KeyCode: "Enter"})

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, []rune("b"), p.typed)
}

func TestRemoteHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>" + strings.TrimPrefix(r.URL.Path, "/") + "</title></head><body></body></html>"))
	}))
	defer srv.Close()

	p, rec := newProvider(t)
	assert.False(t, p.CanGoBack())

	require.NoError(t, p.LoadURL(srv.URL+"/one"))
	require.NoError(t, p.LoadURL(srv.URL+"/two"))
	assert.True(t, p.CanGoBack())
	assert.False(t, p.CanGoForward())

	require.Eventually(t, func() bool { return p.Title() == "two" }, 2*time.Second, 5*time.Millisecond)

	p.GoBack()
	assert.Equal(t, srv.URL+"/one", p.URL())
	assert.True(t, p.CanGoForward())
	require.Eventually(t, func() bool { return p.Title() == "one" }, 2*time.Second, 5*time.Millisecond)

	p.GoForward()
	assert.Equal(t, srv.URL+"/two", p.URL())

	p.ClearHistory()
	assert.False(t, p.CanGoBack())
	assert.False(t, p.CanGoForward())
	assert.Equal(t, srv.URL+"/two", p.URL())

	for _, tt := range rec.titleList() {
		assert.False(t, tt.explicit)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<html><head><title>Recovered</title></head><body></body></html>"))
	}))
	defer srv.Close()

	p, rec := newProvider(t, func(o *Options) { o.FetchRetries = 2 })
	require.NoError(t, p.LoadURL(srv.URL))

	require.Eventually(t, func() bool { return len(rec.titleList()) == 1 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Recovered", rec.titleList()[0].text)
	assert.EqualValues(t, 2, calls.Load())
}

func TestFailedNavigationShowsErrorPage(t *testing.T) {
	p, rec := newProvider(t)
	p.Resize(20, 20)
	p.StartPainting()

	missing := filepath.Join(t.TempDir(), "missing.html")
	require.NoError(t, p.LoadFile(missing))

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.doc.url != surface.BlankURL && p.doc.url != ""
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.titleList())
	assert.Equal(t, "file://"+filepath.ToSlash(missing), p.Title())
}

func TestScriptTimeout(t *testing.T) {
	path := writePage(t, "loop.html", `<html><body>
<script>while (true) {}</script>
<script>document.title = "after";</script>
</body></html>`)

	p, rec := newProvider(t, func(o *Options) { o.ScriptTimeout = 50 * time.Millisecond })
	require.NoError(t, p.LoadFile(path))

	require.Eventually(t, func() bool { return len(rec.titleList()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, title{"after", true}, rec.titleList()[0])
}

func TestLoadURLErrors(t *testing.T) {
	p, _ := newProvider(t)

	assert.ErrorIs(t, p.LoadURL("ftp://example.test/file"), ErrUnsupportedScheme)
	assert.NoError(t, p.LoadURL(surface.BlankURL))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.LoadURL(surface.BlankURL), ErrClosed)
}

func TestFetcherLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDocumentBytes = 16
	f := NewFetcher(opts)

	small := writePage(t, "small.txt", "tiny")
	data, err := f.ReadFile(small)
	require.NoError(t, err)
	assert.Equal(t, "tiny", string(data))

	large := writePage(t, "large.txt", strings.Repeat("x", 17))
	_, err = f.ReadFile(large)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestParseDocument(t *testing.T) {
	t.Run("html", func(t *testing.T) {
		doc, err := parseDocument("https://example.test/a/", []byte(`<!DOCTYPE html><html><head><title> T </title></head>
<body style="margin: 0; background-color: #00ff00"><h1>Big</h1><p>para</p><img src="x.png"><iframe src="../b.html"></iframe>
<script src="ext.js"></script><script>var x = 1;</script></body></html>`))
		require.NoError(t, err)
		assert.Equal(t, "T", doc.title)
		assert.Len(t, doc.blocks, 3)
		assert.Equal(t, []string{"var x = 1;"}, doc.scripts)
		assert.Equal(t, []string{"https://example.test/b.html"}, doc.frames)
		assert.InDelta(t, 1.0, doc.background.G, 0.001)
		assert.InDelta(t, 0.0, doc.background.R, 0.001)
	})

	t.Run("plain text", func(t *testing.T) {
		doc, err := parseDocument("file:///notes.txt", []byte("first line\n\nsecond line\n"))
		require.NoError(t, err)
		assert.Empty(t, doc.title)
		assert.Len(t, doc.blocks, 2)
	})

	t.Run("named background", func(t *testing.T) {
		doc, err := parseDocument("https://example.test/", []byte(`<html><body bgcolor="Navy"><p>x</p></body></html>`))
		require.NoError(t, err)
		assert.InDelta(t, 128.0/255, doc.background.B, 0.001)

		bad, err := parseDocument("https://example.test/", []byte(`<html><body bgcolor="not-a-colour"><p>x</p></body></html>`))
		require.NoError(t, err)
		assert.Equal(t, styledDocument("https://example.test/").background, bad.background)
	})

	t.Run("legacy encoding", func(t *testing.T) {
		latin1 := []byte("<html><head><title>caf\xe9 cr\xe8me</title></head><body><p>d\xe9j\xe0 vu, tr\xe8s bien</p></body></html>")
		doc, err := parseDocument("https://example.test/", latin1)
		require.NoError(t, err)
		assert.Equal(t, "café crème", doc.title)
	})

	t.Run("colours are stable per url", func(t *testing.T) {
		a := styledDocument("https://example.test/")
		b := styledDocument("https://example.test/")
		assert.Equal(t, a.background, b.background)
	})
}

func TestResizeOutOfRangeIsIgnored(t *testing.T) {
	p, rec := newProvider(t)
	p.Resize(16, 8)
	p.Resize(1<<30, 1<<30)
	p.Resize(0, 8)
	p.StartPainting()

	require.Eventually(t, func() bool { return rec.frameCount() >= 1 }, 2*time.Second, 5*time.Millisecond)
	f := rec.lastFrame()
	assert.Equal(t, 16, f.Width)
	assert.Equal(t, 8, f.Height)
}

func TestOversizedCreateFailsSoftly(t *testing.T) {
	mux := surface.NewMultiplexer(surface.DefaultConfig(), NewFactory(DefaultOptions()), nil)
	defer mux.Close()

	ctx := context.Background()
	_, err := mux.Create(ctx, surfacetest.NewSink(), 1<<30, 1<<30)
	assert.ErrorIs(t, err, surface.ErrInvalidSize)

	h, err := mux.Create(ctx, surfacetest.NewSink(), 32, 32)
	require.NoError(t, err)
	assert.True(t, mux.Destroy(ctx, h))
}

func TestFactoryWithMultiplexer(t *testing.T) {
	path := writePage(t, "page.html", `<html><head><title>Hosted</title></head><body><p>hello</p></body></html>`)

	opts := DefaultOptions()
	mux := surface.NewMultiplexer(surface.Config{FrameRate: 120, ResourceRoot: filepath.Dir(path)}, NewFactory(opts), nil)
	defer mux.Close()

	ctx := context.Background()
	sink := surfacetest.NewSink()
	h, err := mux.Create(ctx, sink, 48, 32)
	require.NoError(t, err)
	require.True(t, mux.Navigate(ctx, h, "page.html", true))

	require.Eventually(t, func() bool {
		title, _ := mux.Title(ctx, h)
		return title == "Hosted"
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, ev := range sink.Events() {
			if paint, ok := ev.(*protocol.PaintEvent); ok && paint.FullWidth == 48 && paint.FullHeight == 32 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, mux.Destroy(ctx, h))
}
