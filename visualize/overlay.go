package visualize

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/nvr-ai/go-vision-detect/models"
	"github.com/nvr-ai/go-vision-detect/models/postprocess"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const (
	boxThickness  = 2
	fontScale     = 0.5
	textThickness = 1
	textOffset    = 15
	textMargin    = 30
)

// Overlay draws detections onto copies of frames.
type Overlay struct {
	labels  *models.LabelTable
	palette Palette
}

// NewOverlay returns an overlay resolving names with the given table.
func NewOverlay(labels *models.LabelTable) *Overlay {
	return &Overlay{labels: labels, palette: NewPalette(PaletteSize)}
}

// Annotate draws every detection with a usable label onto a copy of the frame.
//
// Each detection gets a rectangle and a "<name>:<percent>%" caption 15 pixels
// above its top edge, or below it when the box is within 30 pixels of the top.
// Detections resolving to the sentinel id are not drawn.
//
// Arguments:
//   - frame: The inbound bgr8 frame. It is not modified.
//   - dets: Detections in frame pixels.
//
// Returns:
//   - The labeled copy, packed, with the inbound header.
//   - An error if the frame is malformed.
func (o *Overlay) Annotate(frame images.Frame, dets []postprocess.Detection) (images.Frame, error) {
	if err := frame.Validate(); err != nil {
		return images.Frame{}, errors.Wrapf(err, "annotate frame %d", frame.Header.Seq)
	}

	out := frame.Clone()
	mat, err := gocv.NewMatFromBytes(out.Height, out.Width, gocv.MatTypeCV8UC3, out.Data)
	if err != nil {
		return images.Frame{}, errors.Wrap(err, "wrap frame")
	}
	defer mat.Close()

	for _, d := range dets {
		name, id := o.labels.Resolve(d.ClassID)
		if id == models.SentinelID {
			continue
		}
		c := o.palette.Color(id)
		rect := boxRect(d)
		gocv.Rectangle(&mat, rect, c, boxThickness)
		gocv.PutText(&mat, caption(name, d.Score), textOrigin(rect), gocv.FontHersheySimplex, fontScale, c, textThickness)
	}

	out.Data = mat.ToBytes()
	return out, nil
}

// boxRect converts a detection to whole pixels with the same clamp as the split output.
func boxRect(d postprocess.Detection) image.Rectangle {
	x0 := int(math32.Max(d.Box.X, 0))
	y0 := int(math32.Max(d.Box.Y, 0))
	w := int(math32.Max(d.Box.W, 0))
	h := int(math32.Max(d.Box.H, 0))
	return image.Rect(x0, y0, x0+w, y0+h)
}

func textOrigin(r image.Rectangle) image.Point {
	if r.Min.Y > textMargin {
		return image.Pt(r.Min.X, r.Min.Y-textOffset)
	}
	return image.Pt(r.Min.X, r.Min.Y+textOffset)
}

func caption(name string, score float32) string {
	return fmt.Sprintf("%s:%f%%", name, float64(score)*100)
}
