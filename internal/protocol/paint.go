package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// PaintMagic opens every binary paint frame ("SFPT").
	PaintMagic uint32 = 0x54504653
	// PaintVersion is the current binary paint frame version.
	PaintVersion uint16 = 1
	// PaintHeaderLen is the size of the fixed little-endian header.
	PaintHeaderLen = 40

	// MaxSurfaceDimension bounds either side of a surface or paint frame.
	MaxSurfaceDimension = 16384

	paintFlagFullFrame uint16 = 0x01
)

// PaintFrameLen returns the size of a full-frame binary paint of w×h pixels.
func PaintFrameLen(w, h int) int {
	return PaintHeaderLen + w*h*4
}

// IsPaintFrame reports whether data opens with the paint frame magic.
func IsPaintFrame(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data[0:4]) == PaintMagic
}

var (
	ErrShortPaint   = errors.New("paint: short header")
	ErrPaintMagic   = errors.New("paint: bad magic")
	ErrPaintVersion = errors.New("paint: unsupported version")
	ErrPaintTooBig  = errors.New("paint: frame exceeds limit")
)

// EncodePaint serialises a paint event as a binary frame:
//
//	magic u32 | version u16 | flags u16 | handle u64 |
//	fullW u32 | fullH u32 | x u32 | y u32 | w u32 | h u32 | pixels
func EncodePaint(ev *PaintEvent) []byte {
	buf := make([]byte, PaintHeaderLen+len(ev.Pixels))
	var flags uint16
	if ev.FullFrame {
		flags |= paintFlagFullFrame
	}
	binary.LittleEndian.PutUint32(buf[0:4], PaintMagic)
	binary.LittleEndian.PutUint16(buf[4:6], PaintVersion)
	binary.LittleEndian.PutUint16(buf[6:8], flags)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(ev.Handle))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(ev.FullWidth))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(ev.FullHeight))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(ev.DirtyX))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(ev.DirtyY))
	binary.LittleEndian.PutUint32(buf[32:36], uint32(ev.DirtyWidth))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(ev.DirtyHeight))
	copy(buf[PaintHeaderLen:], ev.Pixels)
	return buf
}

// DecodePaint parses a binary paint frame. maxBytes bounds the pixel payload;
// zero disables the check. The returned event aliases data.
func DecodePaint(data []byte, maxBytes int) (*PaintEvent, error) {
	if len(data) < PaintHeaderLen {
		return nil, ErrShortPaint
	}
	if binary.LittleEndian.Uint32(data[0:4]) != PaintMagic {
		return nil, ErrPaintMagic
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != PaintVersion {
		return nil, fmt.Errorf("%w: %d", ErrPaintVersion, v)
	}
	pixels := data[PaintHeaderLen:]
	if maxBytes > 0 && len(pixels) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPaintTooBig, len(pixels))
	}
	flags := binary.LittleEndian.Uint16(data[6:8])
	ev := &PaintEvent{
		Handle:      Handle(binary.LittleEndian.Uint64(data[8:16])),
		FullWidth:   int(binary.LittleEndian.Uint32(data[16:20])),
		FullHeight:  int(binary.LittleEndian.Uint32(data[20:24])),
		DirtyX:      int(binary.LittleEndian.Uint32(data[24:28])),
		DirtyY:      int(binary.LittleEndian.Uint32(data[28:32])),
		DirtyWidth:  int(binary.LittleEndian.Uint32(data[32:36])),
		DirtyHeight: int(binary.LittleEndian.Uint32(data[36:40])),
		FullFrame:   flags&paintFlagFullFrame != 0,
		Pixels:      pixels,
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}
