package images

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/chewxy/math32"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// LetterboxParams records how a frame was fitted into the network input.
//
// The same Scale and padding must be used to map detections back into the
// frame, so the params travel with the frame for its whole pipeline.
type LetterboxParams struct {
	// Scale is the uniform resize factor applied to both axes.
	Scale float64 `json:"scale"`
	// PadX is the number of zero columns inserted on the left.
	PadX int `json:"pad_x"`
	// PadY is the number of zero rows inserted on the top.
	PadY int `json:"pad_y"`
	// SourceWidth and SourceHeight are the frame dimensions.
	SourceWidth  int `json:"source_width"`
	SourceHeight int `json:"source_height"`
	// ResizedWidth and ResizedHeight are the dimensions after scaling, before padding.
	ResizedWidth  int `json:"resized_width"`
	ResizedHeight int `json:"resized_height"`
	// TargetWidth and TargetHeight are the network input dimensions.
	TargetWidth  int `json:"target_width"`
	TargetHeight int `json:"target_height"`
	// HeightFit is set when the width ratio would overflow the target height and
	// the scale was derived from the height instead.
	HeightFit bool `json:"height_fit"`
}

// Identity reports whether the frame already matches the network input.
func (p LetterboxParams) Identity() bool {
	return p.SourceWidth == p.TargetWidth && p.SourceHeight == p.TargetHeight
}

// ComputeLetterbox derives the scale and padding for fitting a srcW x srcH frame
// into a dstW x dstH input.
//
// The scale comes from the width ratio. When that ratio would make the frame
// taller than the target, the scale comes from the height ratio instead and
// HeightFit is set, so Scale is not always dstW/srcW. Padding is half the
// absolute difference between the resized and target size, rounded down, so
// the resized image plus twice the padding is within one pixel of the target.
// Resized dimensions never drop below one pixel.
//
// Arguments:
//   - srcW, srcH: Frame dimensions.
//   - dstW, dstH: Network input dimensions.
//
// Returns:
//   - The letterbox parameters.
//
// @example
// p := ComputeLetterbox(640, 480, 416, 416) // Scale 0.65, PadX 0, PadY 52
func ComputeLetterbox(srcW, srcH, dstW, dstH int) LetterboxParams {
	p := LetterboxParams{
		Scale:         1,
		SourceWidth:   srcW,
		SourceHeight:  srcH,
		ResizedWidth:  srcW,
		ResizedHeight: srcH,
		TargetWidth:   dstW,
		TargetHeight:  dstH,
	}
	if p.Identity() {
		return p
	}

	p.Scale = float64(dstW) / float64(srcW)
	p.ResizedWidth = int(math.Round(float64(srcW) * p.Scale))
	p.ResizedHeight = int(math.Round(float64(srcH) * p.Scale))

	// Tall frames would be cropped by the width ratio.
	if p.ResizedHeight > dstH {
		p.HeightFit = true
		p.Scale = float64(dstH) / float64(srcH)
		p.ResizedWidth = int(math.Round(float64(srcW) * p.Scale))
		p.ResizedHeight = dstH
	}
	p.ResizedWidth = max(p.ResizedWidth, 1)
	p.ResizedHeight = max(p.ResizedHeight, 1)

	p.PadY = absInt(p.ResizedHeight-dstH) / 2
	p.PadX = absInt(p.ResizedWidth-dstW) / 2
	return p
}

// Letterbox converts a bgr8 frame into a planar RGB tensor of size width x height.
//
// The frame is scaled uniformly with a bilinear filter, centered on a black
// canvas of exactly the target size, divided by 255 into channel planes and
// finally has its first and third planes swapped to turn BGR into RGB. When the
// frame already has the target size it is only converted.
//
// Arguments:
//   - frame: The inbound frame. It is not modified.
//   - width: Network input width.
//   - height: Network input height.
//
// Returns:
//   - The tensor, which the caller must Release.
//   - The params needed to map detections back into the frame.
//   - *UnsupportedEncodingError if the frame is not bgr8, or another error for
//     malformed frames. No tensor is returned on error.
//
// @example
// t, params, err := Letterbox(frame, 416, 416)
//
//	if err != nil {
//	    return err
//	}
//
// defer t.Release()
func Letterbox(frame Frame, width, height int) (t *Tensor, p LetterboxParams, err error) {
	if err := frame.Validate(); err != nil {
		return nil, p, errFrame(err, &frame)
	}
	if width <= 0 || height <= 0 {
		return nil, p, fmt.Errorf("invalid network input size: %dx%d", width, height)
	}

	p = ComputeLetterbox(frame.Width, frame.Height, width, height)

	t = NewTensor(width, height)
	defer func() {
		if err != nil {
			t.Release()
			t = nil
		}
	}()

	if p.Identity() {
		planarizeFrame(t, &frame)
	} else {
		resized := resize.Resize(uint(p.ResizedWidth), uint(p.ResizedHeight), frame.channelImage(), resize.Bilinear)
		canvas := imaging.Paste(imaging.New(width, height, color.Black), resized, image.Pt(p.PadX, p.PadY))
		if err = planarizeNRGBA(t, canvas); err != nil {
			return t, p, errFrame(err, &frame)
		}
	}

	if err = t.normalize(); err != nil {
		return t, p, err
	}
	t.swapPlanes(0, 2)
	return t, p, nil
}

// planarizeFrame copies interleaved frame bytes into the tensor planes in source
// channel order, unscaled.
func planarizeFrame(t *Tensor, f *Frame) {
	n := t.width * t.height
	data := t.data
	for y := 0; y < f.Height; y++ {
		row := f.Data[y*f.Step:]
		for x := 0; x < f.Width; x++ {
			i := y*t.width + x
			for c := 0; c < Channels; c++ {
				data[c*n+i] = float32(row[3*x+c])
			}
		}
	}
}

// planarizeNRGBA copies the first three channels of img into the tensor planes, unscaled.
func planarizeNRGBA(t *Tensor, img *image.NRGBA) error {
	if img.Bounds().Dx() != t.width || img.Bounds().Dy() != t.height {
		return fmt.Errorf("letterboxed image is %dx%d, expected %dx%d",
			img.Bounds().Dx(), img.Bounds().Dy(), t.width, t.height)
	}
	n := t.width * t.height
	data := t.data
	for y := 0; y < t.height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < t.width; x++ {
			i := y*t.width + x
			for c := 0; c < Channels; c++ {
				data[c*n+i] = float32(row[4*x+c])
			}
		}
	}
	return nil
}

// Unmap maps a top-left box from network input space back into frame pixels.
//
// Negative results are clamped to zero field by field, which clips boxes that
// straddle the padding at the frame edge. Nothing is clamped against the right
// or bottom edge.
//
// Arguments:
//   - b: Box in network input pixels.
//
// Returns:
//   - Box in frame pixels.
func (p LetterboxParams) Unmap(b Box) Box {
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	out := Box{
		X: float32(float64(b.X)/scale - float64(p.PadX)/scale),
		Y: float32(float64(b.Y)/scale - float64(p.PadY)/scale),
		W: float32(float64(b.W) / scale),
		H: float32(float64(b.H) / scale),
	}
	out.X = math32.Max(out.X, 0)
	out.Y = math32.Max(out.Y, 0)
	out.W = math32.Max(out.W, 0)
	out.H = math32.Max(out.H, 0)
	return out
}

// Map is the forward transform of Unmap, without clamping.
func (p LetterboxParams) Map(b Box) Box {
	return Box{
		X: float32(float64(b.X)*p.Scale + float64(p.PadX)),
		Y: float32(float64(b.Y)*p.Scale + float64(p.PadY)),
		W: float32(float64(b.W) * p.Scale),
		H: float32(float64(b.H) * p.Scale),
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
