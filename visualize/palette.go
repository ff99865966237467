// Package visualize - Labeled image overlays for detection results.
package visualize

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// PaletteSize is the number of distinct class colors.
const PaletteSize = 80

// Palette assigns a stable color to each class id.
type Palette []color.RGBA

// NewPalette spreads n colors evenly around the hue circle.
//
// Arguments:
//   - n: The number of colors.
//
// Returns:
//   - The palette.
func NewPalette(n int) Palette {
	p := make(Palette, n)
	for i := range p {
		r, g, b := colorful.Hsv(float64(i)*360/float64(n), 0.85, 0.95).RGB255()
		p[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return p
}

// Color returns the color for a class id. Ids past the end wrap around.
func (p Palette) Color(id int) color.RGBA {
	if len(p) == 0 {
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	if id < 0 {
		id = -id
	}
	return p[id%len(p)]
}
