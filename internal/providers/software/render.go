package software

import (
	"image"

	"github.com/gogpu/gg"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/pixel"
)

const (
	headerHeight = 32
	margin       = 16
	blockGap     = 8
	markerSize   = 6
)

// scene is everything one frame depends on.
type scene struct {
	width, height int
	doc           *document
	scrollY       int
	focused       bool
	typed         int
	pointer       image.Point
	pointerIn     bool
}

// header returns the height of the header band for a surface height.
func header(height int) int {
	return min(headerHeight, height/4)
}

// contentHeight is the laid-out height of doc below the header.
func contentHeight(doc *document, width, height int) int {
	total := margin
	for _, b := range doc.blocks {
		total += b.height + blockGap
	}
	if doc.image != nil {
		total += height - header(height)
	}
	return total
}

// render rasterises s into a BGRA buffer.
func render(s scene) ([]byte, error) {
	dc := gg.NewContext(s.width, s.height)
	defer dc.Close()

	dc.ClearWithColor(s.doc.background)
	top := header(s.height)
	column := float64(s.width - 2*margin)

	y := top + margin - s.scrollY
	for _, b := range s.doc.blocks {
		if y >= s.height {
			break
		}
		if y+b.height > top {
			if err := fillRect(dc, margin, y, int(column*b.width), b.height, gg.RGB(b.shade, b.shade, b.shade)); err != nil {
				return nil, err
			}
		}
		y += b.height + blockGap
	}

	if s.doc.image != nil && y < s.height {
		drawFitted(dc, s.doc.image, image.Rect(margin, max(y, top), s.width-margin, s.height-margin))
	}

	// header last so scrolled content never covers it
	if err := fillRect(dc, 0, 0, s.width, top, s.doc.accent); err != nil {
		return nil, err
	}
	if s.focused {
		if err := fillRect(dc, 0, top-2, s.width, 2, gg.RGB(0.1, 0.4, 0.9)); err != nil {
			return nil, err
		}
	}
	if s.typed > 0 {
		w := min(s.typed*6, s.width-2*margin)
		if err := fillRect(dc, margin, top/2-2, w, 4, gg.RGB(1, 1, 1)); err != nil {
			return nil, err
		}
	}
	if s.pointerIn {
		x, y := s.pointer.X-markerSize/2, s.pointer.Y-markerSize/2
		if err := fillRect(dc, x, y, markerSize, markerSize, gg.RGB(0.05, 0.05, 0.05)); err != nil {
			return nil, err
		}
	}

	buf, _, _ := pixel.FromImage(dc.Image())
	return buf, nil
}

func fillRect(dc *gg.Context, x, y, w, h int, c gg.RGBA) error {
	if w <= 0 || h <= 0 {
		return nil
	}
	dc.SetRGBA(c.R, c.G, c.B, c.A)
	dc.DrawRectangle(float64(x), float64(y), float64(w), float64(h))
	return dc.Fill()
}

// drawFitted scales img into box keeping its aspect ratio.
func drawFitted(dc *gg.Context, img image.Image, box image.Rectangle) {
	b := img.Bounds()
	if b.Empty() || box.Empty() {
		return
	}
	scale := min(float64(box.Dx())/float64(b.Dx()), float64(box.Dy())/float64(b.Dy()))
	dc.DrawImageEx(gg.ImageBufFromImage(img), gg.DrawImageOptions{
		X:             float64(box.Min.X),
		Y:             float64(box.Min.Y),
		DstWidth:      float64(b.Dx()) * scale,
		DstHeight:     float64(b.Dy()) * scale,
		Interpolation: gg.InterpNearest,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	})
}
