package pixel

import (
	"fmt"
	"image"
	"sync"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

// Canvas is a backing store that reconstructs a surface from its paint
// stream. A size change discards the previous contents.
type Canvas struct {
	mu     sync.RWMutex
	pix    []byte
	width  int
	height int
	frames int
}

// NewCanvas creates an empty canvas.
func NewCanvas() *Canvas {
	return &Canvas{}
}

// Apply composites one paint event.
func (c *Canvas) Apply(ev *protocol.PaintEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("apply paint: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.FullWidth != c.width || ev.FullHeight != c.height {
		c.width, c.height = ev.FullWidth, ev.FullHeight
		c.pix = make([]byte, c.width*c.height*BytesPerPixel)
	}

	dirty := ev.Dirty()
	rowLen := dirty.Dx() * BytesPerPixel
	for y := 0; y < dirty.Dy(); y++ {
		dst := ((dirty.Min.Y+y)*c.width + dirty.Min.X) * BytesPerPixel
		src := y * rowLen
		if ev.FullFrame {
			src = ((dirty.Min.Y+y)*ev.FullWidth + dirty.Min.X) * BytesPerPixel
		}
		copy(c.pix[dst:dst+rowLen], ev.Pixels[src:src+rowLen])
	}
	c.frames++
	return nil
}

// Size returns the current canvas dimensions.
func (c *Canvas) Size() (width, height int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

// Frames returns how many paint events have been applied.
func (c *Canvas) Frames() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames
}

// Bytes returns a copy of the BGRA backing store.
func (c *Canvas) Bytes() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]byte(nil), c.pix...)
}

// RGBA exports the canvas as an image.
func (c *Canvas) RGBA() *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ToRGBA(c.pix, c.width, c.height)
}
