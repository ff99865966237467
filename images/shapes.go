package images

import (
	"image"

	"github.com/chewxy/math32"
)

// Box is an axis aligned box given by its top-left corner and size.
type Box struct {
	X, Y, W, H float32
}

// BoxFromCenter builds a top-left box from center form.
func BoxFromCenter(cx, cy, w, h float32) Box {
	return Box{X: cx - w/2, Y: cy - h/2, W: w, H: h}
}

// Center returns the center point of the box.
func (b Box) Center() (float32, float32) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns W*H, or zero for degenerate boxes.
func (b Box) Area() float32 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// ToRect truncates the box to integer pixel corners.
func (b Box) ToRect() image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.X+b.W), int(b.Y+b.H)).Canon()
}

// CalculateIoU returns the Intersection over Union of two boxes, a value between 0 and 1.
//
// The intersection spans from the larger of the two top-left corners to the
// smaller of the two bottom-right corners; if that span is empty on either axis
// the boxes do not overlap and the result is 0. The union is the sum of both
// areas minus the intersection.
//
// Arguments:
//   - r: The first box.
//   - o: The other box.
//
// Returns:
//   - float32: The IoU score.
//
// Example Usage:
// ```go
//
//	a := Box{X: 0, Y: 0, W: 10, H: 10}
//	b := Box{X: 5, Y: 5, W: 10, H: 10}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Box) float32 {
	ix1 := math32.Max(r.X, o.X)
	iy1 := math32.Max(r.Y, o.Y)
	ix2 := math32.Min(r.X+r.W, o.X+o.W)
	iy2 := math32.Min(r.Y+r.H, o.Y+o.H)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}
	return interArea / unionArea
}
