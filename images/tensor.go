package images

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Channels is the number of color planes in a detector input tensor.
const Channels = 3

// Tensor is a planar (channel-major) float32 detector input of shape (1, 3, Height, Width).
//
// The buffer is owned by whoever called Letterbox and must be released once the
// frame has been fully processed. Release is idempotent.
type Tensor struct {
	dense  *tensor.Dense
	data   []float32
	width  int
	height int
}

// NewTensor allocates a zeroed tensor for a width x height network input.
//
// Arguments:
//   - width: Network input width.
//   - height: Network input height.
//
// Returns:
//   - The allocated tensor.
func NewTensor(width, height int) *Tensor {
	data := make([]float32, Channels*width*height)
	return &Tensor{
		dense: tensor.New(
			tensor.WithShape(1, Channels, height, width),
			tensor.Of(tensor.Float32),
			tensor.WithBacking(data),
		),
		data:   data,
		width:  width,
		height: height,
	}
}

// Width returns the network input width.
func (t *Tensor) Width() int { return t.width }

// Height returns the network input height.
func (t *Tensor) Height() int { return t.height }

// Data returns the planar backing slice, or nil once released.
func (t *Tensor) Data() []float32 { return t.data }

// Dense returns the tensor as a gorgonia dense tensor, or nil once released.
func (t *Tensor) Dense() *tensor.Dense { return t.dense }

// Shape returns the tensor shape, (1, 3, Height, Width), or nil once released.
func (t *Tensor) Shape() tensor.Shape {
	if t.dense == nil {
		return nil
	}
	return t.dense.Shape()
}

// normalize divides every element by 255 in place.
func (t *Tensor) normalize() error {
	if _, err := t.dense.DivScalar(float32(255), true, tensor.UseUnsafe()); err != nil {
		return errors.Wrap(err, "normalize tensor")
	}
	return nil
}

// Plane returns channel c of the tensor.
func (t *Tensor) Plane(c int) []float32 {
	if t.data == nil {
		return nil
	}
	n := t.width * t.height
	return t.data[c*n : (c+1)*n]
}

// Released reports whether Release has been called.
func (t *Tensor) Released() bool { return t.data == nil }

// Release drops the backing buffer.
func (t *Tensor) Release() {
	if t == nil {
		return
	}
	t.dense = nil
	t.data = nil
}

// swapPlanes exchanges channel planes a and b in place.
func (t *Tensor) swapPlanes(a, b int) {
	pa, pb := t.Plane(a), t.Plane(b)
	for i := range pa {
		pa[i], pb[i] = pb[i], pa[i]
	}
}
