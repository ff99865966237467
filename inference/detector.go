// Package inference - Detector boundary and the ONNX Runtime backed detector.
package inference

import (
	"context"
	"image"

	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/nvr-ai/go-vision-detect/models/postprocess"
)

// Detector is the boundary to the neural network.
//
// A detector accepts a letterboxed planar tensor and returns center-form
// candidates in tensor pixels, already filtered by its confidence floor and
// suppressed at its NMS threshold. It does not take ownership of the tensor.
type Detector interface {
	// Detect runs one forward pass. The call blocks until the pass completes.
	Detect(ctx context.Context, t *images.Tensor) ([]postprocess.RawDetection, error)
	// InputSize returns the network input width (X) and height (Y).
	InputSize() image.Point
	// Close releases the detector.
	Close() error
}

// DetectFunc is the signature of a plain detection function.
type DetectFunc func(ctx context.Context, t *images.Tensor) ([]postprocess.RawDetection, error)

type funcDetector struct {
	size image.Point
	fn   DetectFunc
}

// DetectorFunc adapts a plain function to the Detector interface.
//
// Arguments:
//   - size: The network input size reported by InputSize.
//   - fn: The detection function.
//
// Returns:
//   - The detector. Close is a no-op.
//
// @example
// det := DetectorFunc(image.Pt(416, 416), func(ctx context.Context, t *images.Tensor) ([]postprocess.RawDetection, error) {
//     return nil, nil
// })
func DetectorFunc(size image.Point, fn DetectFunc) Detector {
	return &funcDetector{size: size, fn: fn}
}

func (d *funcDetector) Detect(ctx context.Context, t *images.Tensor) ([]postprocess.RawDetection, error) {
	return d.fn(ctx, t)
}

func (d *funcDetector) InputSize() image.Point { return d.size }

func (d *funcDetector) Close() error { return nil }
