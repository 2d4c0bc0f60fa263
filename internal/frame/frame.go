// Package frame handles packed 1bpp frame buffers produced outside this
// program (a renderer, an upload, a file on disk).
//
// Packing rules:
//
//   - y-major, MSB first, one byte per 8 horizontal pixels:
//     byteIndex = y*stride + (x >> 3)
//     mask      = 0x80 >> (x & 7)
//   - Trailing bits of each row beyond the panel width are padding.
//
// Which bit value renders black is fixed by the panel firmware. This package
// never assumes it: a Polarity is always chosen explicitly by configuration.
package frame

import (
	"fmt"
	"os"

	"epd213/internal/epd"
)

// Polarity says how stored bytes relate to what the firmware expects.
type Polarity int

const (
	// AsIs sends bytes unchanged.
	AsIs Polarity = iota
	// Inverted flips every bit before sending.
	Inverted
)

// ParsePolarity maps the config values "firmware" and "inverted".
func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "firmware":
		return AsIs, nil
	case "inverted":
		return Inverted, nil
	}
	return AsIs, fmt.Errorf("frame: unknown polarity %q", s)
}

func (p Polarity) String() string {
	if p == Inverted {
		return "inverted"
	}
	return "firmware"
}

// Frame is a packed bitmap for a geometry.
type Frame struct {
	g   epd.Geometry
	Pix []byte
}

// New returns a frame of g.FrameSize() bytes, each set to fill.
func New(g epd.Geometry, fill byte) *Frame {
	pix := make([]byte, g.FrameSize())
	for i := range pix {
		pix[i] = fill
	}
	return &Frame{g: g, Pix: pix}
}

// FromBytes wraps b after checking its length against g.
func FromBytes(g epd.Geometry, b []byte) (*Frame, error) {
	if want := g.FrameSize(); len(b) != want {
		return nil, fmt.Errorf("frame: %d bytes, want %d for %s (stride %d)", len(b), want, g, g.Stride())
	}
	return &Frame{g: g, Pix: b}, nil
}

// Load reads a raw packed frame file.
func Load(path string, g epd.Geometry) (*Frame, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("frame: read %s: %w", path, err)
	}
	return FromBytes(g, b)
}

// Geometry returns the frame's geometry.
func (f *Frame) Geometry() epd.Geometry {
	return f.g
}

// Bit returns the raw bit at (x, y). Out of range coordinates return false.
func (f *Frame) Bit(x, y int) bool {
	i, mask, ok := f.locate(x, y)
	if !ok {
		return false
	}
	return f.Pix[i]&mask != 0
}

// SetBit sets or clears the raw bit at (x, y). Out of range coordinates are
// ignored.
func (f *Frame) SetBit(x, y int, v bool) {
	i, mask, ok := f.locate(x, y)
	if !ok {
		return
	}
	if v {
		f.Pix[i] |= mask
	} else {
		f.Pix[i] &^= mask
	}
}

func (f *Frame) locate(x, y int) (int, byte, bool) {
	if x < 0 || x >= f.g.Width || y < 0 || y >= f.g.Height {
		return 0, 0, false
	}
	return y*f.g.Stride() + (x >> 3), byte(0x80 >> (x & 7)), true
}

// Encode returns the bytes to send to the panel for polarity p. The frame
// itself is not modified.
func (f *Frame) Encode(p Polarity) []byte {
	if p == AsIs {
		return f.Pix
	}
	out := make([]byte, len(f.Pix))
	for i, b := range f.Pix {
		out[i] = ^b
	}
	return out
}
