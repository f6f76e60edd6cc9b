// Package pixel holds helpers for raw BGRA frame buffers: cropping, channel
// swapping, damage detection and compositing paint events.
package pixel

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
)

// BytesPerPixel is the stride of one BGRA pixel.
const BytesPerPixel = 4

// Crop copies the r sub-image out of a width-wide BGRA buffer. r must lie
// inside the buffer.
func Crop(src []byte, width int, r image.Rectangle) []byte {
	out := make([]byte, r.Dx()*r.Dy()*BytesPerPixel)
	rowLen := r.Dx() * BytesPerPixel
	for y := 0; y < r.Dy(); y++ {
		off := ((r.Min.Y+y)*width + r.Min.X) * BytesPerPixel
		copy(out[y*rowLen:(y+1)*rowLen], src[off:off+rowLen])
	}
	return out
}

// SwapRB exchanges the first and third channel of every pixel, converting
// BGRA to RGBA and back. dst and src may be the same slice.
func SwapRB(dst, src []byte) {
	for i := 0; i+3 < len(src) && i+3 < len(dst); i += BytesPerPixel {
		b, g, r, a := src[i], src[i+1], src[i+2], src[i+3]
		dst[i], dst[i+1], dst[i+2], dst[i+3] = r, g, b, a
	}
}

// Diff returns the bounding box of the pixels that differ between two
// width x height BGRA buffers. A nil or mismatched prev yields the full frame;
// identical buffers yield the empty rectangle.
func Diff(prev, cur []byte, width, height int) image.Rectangle {
	full := image.Rect(0, 0, width, height)
	if len(prev) != len(cur) || len(cur) != width*height*BytesPerPixel {
		return full
	}

	rowLen := width * BytesPerPixel
	minX, minY, maxX, maxY := width, height, -1, -1
	for y := 0; y < height; y++ {
		a := prev[y*rowLen : (y+1)*rowLen]
		b := cur[y*rowLen : (y+1)*rowLen]
		if bytes.Equal(a, b) {
			continue
		}
		if y < minY {
			minY = y
		}
		maxY = y
		for x := 0; x < width; x++ {
			o := x * BytesPerPixel
			if !bytes.Equal(a[o:o+BytesPerPixel], b[o:o+BytesPerPixel]) {
				if x < minX {
					minX = x
				}
				break
			}
		}
		for x := width - 1; x >= 0; x-- {
			o := x * BytesPerPixel
			if !bytes.Equal(a[o:o+BytesPerPixel], b[o:o+BytesPerPixel]) {
				if x > maxX {
					maxX = x
				}
				break
			}
		}
	}
	if maxY < 0 {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// FromImage converts img to a BGRA buffer anchored at the image origin.
func FromImage(img image.Image) (buf []byte, width, height int) {
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) || rgba.Stride != width*BytesPerPixel {
		rgba = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	}

	buf = make([]byte, width*height*BytesPerPixel)
	SwapRB(buf, rgba.Pix)
	return buf, width, height
}

// ToRGBA wraps a BGRA buffer as a freshly allocated *image.RGBA.
func ToRGBA(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	SwapRB(img.Pix, buf)
	return img
}

// Fill paints r with c in a width-wide BGRA buffer, clipped to the buffer.
func Fill(buf []byte, width int, r image.Rectangle, c color.RGBA) {
	height := len(buf) / BytesPerPixel / max(width, 1)
	r = r.Intersect(image.Rect(0, 0, width, height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			o := (y*width + x) * BytesPerPixel
			buf[o], buf[o+1], buf[o+2], buf[o+3] = c.B, c.G, c.R, c.A
		}
	}
}
