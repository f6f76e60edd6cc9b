package chrome

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
)

func TestDecodeFrame(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img.Set(1, 0, color.NRGBA{R: 40, G: 50, B: 60, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	pix, w, h, err := decodeFrame(base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, h)
	assert.Equal(t, []byte{30, 20, 10, 255, 60, 50, 40, 255}, pix)

	_, _, _, err = decodeFrame("not base64!")
	assert.Error(t, err)
	_, _, _, err = decodeFrame(base64.StdEncoding.EncodeToString([]byte("not an image")))
	assert.Error(t, err)
}

func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome binary available")
	return ""
}

func TestProviderAgainstChrome(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	path := findChrome(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	browser, err := NewBrowser(ctx, Options{ExecPath: path, Headless: true, NoSandbox: true, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer browser.Close()

	p, err := browser.Factory()(ctx)
	require.NoError(t, err)
	defer p.Close()

	var (
		mu     sync.Mutex
		titles []string
		frames int
	)
	p.Subscribe(surface.Listener{
		OnPaint: func(f surface.Frame) {
			mu.Lock()
			frames++
			mu.Unlock()
		},
		OnTitleUpdated: func(title string, explicit bool) {
			mu.Lock()
			titles = append(titles, title)
			mu.Unlock()
		},
	})

	p.Resize(320, 240)
	p.StartPainting()
	require.NoError(t, p.LoadURL("data:text/html,<title>Hello</title><body style='background:red'>hi</body>"))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return frames > 0 && len(titles) > 0 && titles[len(titles)-1] == "Hello"
	}, 20*time.Second, 50*time.Millisecond)
	assert.Equal(t, "Hello", p.Title())
}
