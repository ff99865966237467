// Package images - Frame buffers, letterboxing and tensor layout for detector input.
package images

import (
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"
)

// Encoding is the pixel encoding tag delivered by the camera transport.
type Encoding string

const (
	// EncodingBGR8 is 3-channel, 8-bit, interleaved pixels in B,G,R order.
	EncodingBGR8 Encoding = "bgr8"
	// EncodingRGB8 is 3-channel, 8-bit, interleaved pixels in R,G,B order.
	EncodingRGB8 Encoding = "rgb8"
	// EncodingMono8 is a single 8-bit channel.
	EncodingMono8 Encoding = "mono8"
)

// Header identifies a frame. It is copied verbatim onto every message derived from the frame.
type Header struct {
	// Seq is the sequence number assigned by the frame source.
	Seq uint32 `json:"seq" yaml:"seq"`
	// Stamp is the capture time of the frame.
	Stamp time.Time `json:"stamp" yaml:"stamp"`
	// FrameID names the coordinate frame (usually the camera) the pixels belong to.
	FrameID string `json:"frame_id" yaml:"frame_id"`
}

// Frame is a raw camera frame as delivered by the transport.
type Frame struct {
	Header Header `json:"header"`
	// Width is the number of pixel columns.
	Width int `json:"width"`
	// Height is the number of pixel rows.
	Height int `json:"height"`
	// Step is the row stride in bytes, which may exceed 3*Width.
	Step int `json:"step"`
	// Encoding is the pixel encoding tag.
	Encoding Encoding `json:"encoding"`
	// Data holds Height rows of Step bytes each.
	Data []byte `json:"-"`
}

// UnsupportedEncodingError is returned when a frame is not 3-channel 8-bit interleaved BGR.
type UnsupportedEncodingError struct {
	Encoding Encoding
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("unsupported encoding %q, expected %q", e.Encoding, EncodingBGR8)
}

// Validate checks that the frame is a well formed bgr8 buffer.
//
// Returns:
//   - *UnsupportedEncodingError when the encoding is not bgr8.
//   - An error when the dimensions, stride or buffer length are inconsistent.
func (f *Frame) Validate() error {
	if f.Encoding != EncodingBGR8 {
		return &UnsupportedEncodingError{Encoding: f.Encoding}
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions: %dx%d", f.Width, f.Height)
	}
	if f.Step < 3*f.Width {
		return fmt.Errorf("row stride %d is smaller than 3*width (%d)", f.Step, 3*f.Width)
	}
	if need := f.Step*(f.Height-1) + 3*f.Width; len(f.Data) < need {
		return fmt.Errorf("frame buffer too short: have %d bytes, need %d", len(f.Data), need)
	}
	return nil
}

// Clone returns a deep copy of the frame with a tightly packed stride.
func (f *Frame) Clone() Frame {
	out := *f
	out.Step = 3 * f.Width
	out.Data = make([]byte, out.Step*f.Height)
	for y := 0; y < f.Height; y++ {
		copy(out.Data[y*out.Step:(y+1)*out.Step], f.Data[y*f.Step:y*f.Step+out.Step])
	}
	return out
}

// channelImage copies the frame into an RGBA image without reordering channels.
//
// Channel 0 of each pixel lands in R, channel 1 in G and channel 2 in B. Every
// filter used on the result treats channels independently, so the BGR order
// survives resampling and is only fixed when the tensor planes are swapped.
func (f *Frame) channelImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Data[y*f.Step : y*f.Step+3*f.Width]
		dst := img.Pix[y*img.Stride : y*img.Stride+4*f.Width]
		for x := 0; x < f.Width; x++ {
			dst[4*x+0] = src[3*x+0]
			dst[4*x+1] = src[3*x+1]
			dst[4*x+2] = src[3*x+2]
			dst[4*x+3] = 0xff
		}
	}
	return img
}

// FrameFromImage converts a decoded image into a packed bgr8 frame.
//
// Arguments:
//   - img: The source image.
//   - header: The header to attach to the frame.
//
// Returns:
//   - A bgr8 Frame with Step == 3*Width.
//
// @example
// frame := FrameFromImage(decoded, Header{Seq: 1, FrameID: "camera"})
func FrameFromImage(img image.Image, header Header) Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]byte, 3*w*h)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			data[i+0] = uint8(bl >> 8)
			data[i+1] = uint8(g >> 8)
			data[i+2] = uint8(r >> 8)
			i += 3
		}
	}
	return Frame{
		Header:   header,
		Width:    w,
		Height:   h,
		Step:     3 * w,
		Encoding: EncodingBGR8,
		Data:     data,
	}
}

// errFrame wraps a validation failure with the frame identity.
func errFrame(err error, f *Frame) error {
	return errors.Wrapf(err, "frame %d", f.Header.Seq)
}
