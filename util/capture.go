package util

import (
	"context"
	"strconv"
	"time"

	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Capture reads frames from a camera, video file or stream.
type Capture struct {
	capture *gocv.VideoCapture
	img     gocv.Mat
	name    string
	frameID string
	seq     uint32
}

// OpenCapture opens a capture source.
//
// Arguments:
//   - path: A video file or stream URL. Empty selects the camera device.
//   - device: The camera index used when path is empty.
//   - frameID: The frame id stamped on every frame header.
//
// Returns:
//   - *Capture: The open capture.
//   - error: Error if the source cannot be opened.
//
// @example
// capture, err := util.OpenCapture("", 0, "camera")
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// defer capture.Close()
func OpenCapture(path string, device int, frameID string) (*Capture, error) {
	var (
		vc   *gocv.VideoCapture
		err  error
		name string
	)
	if path == "" {
		vc, err = gocv.OpenVideoCapture(device)
		name = "camera device " + strconv.Itoa(device)
	} else {
		vc, err = gocv.OpenVideoCapture(path)
		name = path
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return &Capture{capture: vc, img: gocv.NewMat(), name: name, frameID: frameID}, nil
}

// Name describes the source for log messages.
func (c *Capture) Name() string { return c.name }

// Read blocks for the next frame.
//
// Returns:
//   - images.Frame: A bgr8 frame that owns its pixel data.
//   - bool: False once the source is exhausted or unreadable.
func (c *Capture) Read() (images.Frame, bool) {
	for {
		if ok := c.capture.Read(&c.img); !ok {
			return images.Frame{}, false
		}
		if c.img.Empty() {
			continue
		}
		c.seq++
		return MatToFrame(c.img, images.Header{Seq: c.seq, Stamp: time.Now(), FrameID: c.frameID}), true
	}
}

// Stream reads frames and hands each one to deliver until the source ends or
// the context is done.
//
// Arguments:
//   - ctx: Stops the stream.
//   - deliver: Receives every frame. Frames it does not keep are discarded.
//
// Returns:
//   - The number of frames read.
func (c *Capture) Stream(ctx context.Context, deliver func(images.Frame)) int {
	n := 0
	for ctx.Err() == nil {
		frame, ok := c.Read()
		if !ok {
			break
		}
		n++
		deliver(frame)
	}
	return n
}

// Close releases the capture device and its buffer.
func (c *Capture) Close() error {
	c.img.Close()
	return c.capture.Close()
}

// MatToFrame copies a Mat into a frame.
//
// 8-bit 3-channel Mats are bgr8 frames. Any other Mat type gives a frame with an
// empty encoding, which the pipeline rejects.
//
// Arguments:
//   - mat: The source Mat. It is not retained.
//   - header: The frame header.
//
// Returns:
//   - images.Frame: The frame.
func MatToFrame(mat gocv.Mat, header images.Header) images.Frame {
	frame := images.Frame{
		Header: header,
		Width:  mat.Cols(),
		Height: mat.Rows(),
		Step:   mat.Cols() * mat.Channels(),
		Data:   mat.ToBytes(),
	}
	switch mat.Type() {
	case gocv.MatTypeCV8UC3:
		frame.Encoding = images.EncodingBGR8
	case gocv.MatTypeCV8UC1:
		frame.Encoding = images.EncodingMono8
	}
	return frame
}
