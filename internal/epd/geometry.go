package epd

import "fmt"

// Geometry describes the pixel dimensions of a panel.
type Geometry struct {
	Width  int
	Height int
}

// Panel213 is the only geometry this driver supports: the 2.13" 122x250
// panel, 16 bytes per row.
var Panel213 = Geometry{Width: 122, Height: 250}

// Stride returns the number of bytes per pixel row (ceil(width/8)).
func (g Geometry) Stride() int {
	return (g.Width + 7) / 8
}

// FrameSize returns the exact length of a packed frame buffer.
func (g Geometry) FrameSize() int {
	return g.Stride() * g.Height
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}
