package pixel

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

func solid(width, height int, c color.RGBA) []byte {
	buf := make([]byte, width*height*BytesPerPixel)
	Fill(buf, width, image.Rect(0, 0, width, height), c)
	return buf
}

func TestCrop(t *testing.T) {
	buf := make([]byte, 4*3*BytesPerPixel)
	for i := range buf {
		buf[i] = byte(i / BytesPerPixel)
	}

	out := Crop(buf, 4, image.Rect(1, 1, 3, 3))
	require.Len(t, out, 2*2*BytesPerPixel)
	// pixels 5, 6, 9, 10 of the 4x3 grid
	assert.Equal(t, byte(5), out[0])
	assert.Equal(t, byte(6), out[4])
	assert.Equal(t, byte(9), out[8])
	assert.Equal(t, byte(10), out[12])
}

func TestSwapRB(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	SwapRB(buf, buf)
	assert.Equal(t, []byte{3, 2, 1, 4, 7, 6, 5, 8}, buf)
}

func TestDiff(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	prev := solid(8, 6, white)
	cur := append([]byte(nil), prev...)

	assert.True(t, Diff(prev, cur, 8, 6).Empty())
	assert.Equal(t, image.Rect(0, 0, 8, 6), Diff(nil, cur, 8, 6))

	Fill(cur, 8, image.Rect(2, 1, 4, 2), color.RGBA{255, 0, 0, 255})
	Fill(cur, 8, image.Rect(6, 4, 7, 5), color.RGBA{0, 0, 255, 255})
	assert.Equal(t, image.Rect(2, 1, 7, 5), Diff(prev, cur, 8, 6))
}

func TestFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(10, 10, 12, 11))
	img.Set(10, 10, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	buf, w, h := FromImage(img)
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, h)
	assert.Equal(t, []byte{50, 100, 200, 255}, buf[:4])

	back := ToRGBA(buf, w, h)
	assert.Equal(t, color.RGBA{200, 100, 50, 255}, back.RGBAAt(0, 0))
}

func TestCanvasReconstructsFromDirtyRects(t *testing.T) {
	const w, h = 6, 4
	white := color.RGBA{255, 255, 255, 255}
	red := color.RGBA{255, 0, 0, 255}

	// expected host-side frame after each update
	frame := solid(w, h, white)
	canvas := NewCanvas()
	require.NoError(t, canvas.Apply(&protocol.PaintEvent{
		Handle: 1, FullWidth: w, FullHeight: h,
		DirtyWidth: w, DirtyHeight: h,
		Pixels: append([]byte(nil), frame...),
	}))

	prev := append([]byte(nil), frame...)
	Fill(frame, w, image.Rect(1, 1, 3, 2), red)
	dirty := Diff(prev, frame, w, h)
	require.NoError(t, canvas.Apply(&protocol.PaintEvent{
		Handle: 1, FullWidth: w, FullHeight: h,
		DirtyX: dirty.Min.X, DirtyY: dirty.Min.Y,
		DirtyWidth: dirty.Dx(), DirtyHeight: dirty.Dy(),
		Pixels: Crop(frame, w, dirty),
	}))
	assert.Equal(t, frame, canvas.Bytes())

	prev = append([]byte(nil), frame...)
	Fill(frame, w, image.Rect(4, 2, 6, 4), red)
	dirty = Diff(prev, frame, w, h)
	require.NoError(t, canvas.Apply(&protocol.PaintEvent{
		Handle: 1, FullWidth: w, FullHeight: h,
		DirtyX: dirty.Min.X, DirtyY: dirty.Min.Y,
		DirtyWidth: dirty.Dx(), DirtyHeight: dirty.Dy(),
		FullFrame: true,
		Pixels:    append([]byte(nil), frame...),
	}))
	assert.Equal(t, frame, canvas.Bytes())
	assert.Equal(t, 3, canvas.Frames())
	assert.Equal(t, red, canvas.RGBA().RGBAAt(5, 3))
}

func TestCanvasRejectsBadGeometry(t *testing.T) {
	canvas := NewCanvas()
	err := canvas.Apply(&protocol.PaintEvent{FullWidth: 2, FullHeight: 2, DirtyWidth: 2, DirtyHeight: 2, Pixels: []byte{1}})
	assert.ErrorIs(t, err, protocol.ErrBadParams)

	w, h := canvas.Size()
	assert.Zero(t, w)
	assert.Zero(t, h)
}
