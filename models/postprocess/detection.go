// Package postprocess - Decoding, suppression and remapping of raw detector candidates.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-vision-detect/images"
)

// RawDetection is one candidate box as produced by a detector.
type RawDetection struct {
	// CX, CY are the box center in network input pixels.
	CX, CY float32
	// W, H are the box extent in network input pixels.
	W, H float32
	// Probs holds one probability per trained class, in class index order.
	Probs []float32
}

// Box returns the candidate as a top-left box.
func (r *RawDetection) Box() images.Box {
	return images.BoxFromCenter(r.CX, r.CY, r.W, r.H)
}

// Detection is a candidate with a single resolved class.
type Detection struct {
	// Box is top-left corner plus size, in network input pixels until remapped.
	Box images.Box
	// ClassID is the index of the selected class.
	ClassID int
	// Score is the probability of the selected class.
	Score float32
}

func (d Detection) String() string {
	return fmt.Sprintf("class %d (score %f): (%f, %f) %fx%f",
		d.ClassID, d.Score, d.Box.X, d.Box.Y, d.Box.W, d.Box.H)
}

// Remap maps every detection from network input space into frame pixels in place.
//
// Arguments:
//   - dets: Detections in network input pixels.
//   - params: The letterbox params of the frame the detections came from.
func Remap(dets []Detection, params images.LetterboxParams) {
	for i := range dets {
		dets[i].Box = params.Unmap(dets[i].Box)
	}
}
