package surface

import (
	"context"
	"image"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

// BlankURL is loaded into every provider before it returns to the pool.
const BlankURL = "about:blank"

// Frame is one rendered image. Pix holds the full Width x Height image in
// BGRA order; Dirty is the region that changed since the previous frame.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
	Dirty  image.Rectangle
}

// Listener receives provider notifications. Providers may call it from any
// goroutine.
type Listener struct {
	OnPaint           func(Frame)
	OnCursorChanged   func(cursor string)
	OnStartNavigation func(url string, mainFrame bool)
	OnTitleUpdated    func(title string, explicitlySet bool)
}

// Provider is one off-screen rendering surface.
type Provider interface {
	StartPainting()
	StopPainting()
	SetFrameRate(fps int)
	Resize(width, height int)

	// LoadURL and LoadFile start a navigation and return without waiting
	// for the page to load.
	LoadURL(url string) error
	LoadFile(path string) error

	SendMouseEvent(ev protocol.MouseEvent)
	SendKeyboardEvent(ev protocol.KeyboardEvent)
	Focus(flag bool)

	URL() string
	Title() string

	GoBack()
	GoForward()
	CanGoBack() bool
	CanGoForward() bool
	ClearHistory()

	// Subscribe installs l and returns a function that removes it.
	Subscribe(l Listener) (cancel func())

	Close() error
}

// Factory constructs a new hidden, non-painting provider.
type Factory func(ctx context.Context) (Provider, error)
