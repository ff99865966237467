package output

import (
	"fmt"
	"math"
	"strings"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/nvr-ai/go-vision-detect/models"
	"github.com/nvr-ai/go-vision-detect/models/postprocess"
)

// Mode selects the wire shape produced for every frame.
type Mode string

const (
	// ModeCombined emits one Detection2DArray per frame.
	ModeCombined Mode = "combined"
	// ModeSplit emits a RectArray and a parallel ClassificationResult per frame.
	ModeSplit Mode = "split"
)

// Classifier tags every ClassificationResult.
const Classifier = "vision_detect"

// ParseMode parses an output mode name.
//
// Arguments:
//   - s: "combined" or "split", case insensitive.
//
// Returns:
//   - The mode.
//   - An error for any other value.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCombined:
		return ModeCombined, nil
	case ModeSplit:
		return ModeSplit, nil
	}
	return "", fmt.Errorf("unknown output mode %q", s)
}

// Assembler builds results in a single mode. The mode and label table are
// fixed at construction.
type Assembler struct {
	mode   Mode
	labels *models.LabelTable
	newID  func() string
}

// NewAssembler returns an assembler for the given mode.
//
// Arguments:
//   - mode: The output mode.
//   - labels: The active label table.
//
// Returns:
//   - *Assembler: The assembler.
//   - An error if the mode is unknown or labels is nil.
func NewAssembler(mode Mode, labels *models.LabelTable) (*Assembler, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if labels == nil {
		return nil, fmt.Errorf("label table is required")
	}
	return &Assembler{mode: mode, labels: labels, newID: uuid.NewString}, nil
}

// Mode returns the mode the assembler was built with.
func (a *Assembler) Mode() Mode { return a.mode }

// Labels returns the label table the assembler resolves names with.
func (a *Assembler) Labels() *models.LabelTable { return a.labels }

// Assemble builds the result for one frame from remapped detections.
//
// Arguments:
//   - header: The inbound frame header, copied into every message.
//   - dets: Detections in frame pixels.
//
// Returns:
//   - The result in the assembler's mode.
func (a *Assembler) Assemble(header images.Header, dets []postprocess.Detection) Result {
	result := Result{Mode: a.mode, Header: header}
	if a.mode == ModeCombined {
		result.Detections = a.combined(header, dets)
	} else {
		result.Rects, result.Classification = a.split(header, dets)
	}
	return result
}

// combined reports the raw class id on each hypothesis. Label resolution only
// applies to the split shape.
func (a *Assembler) combined(header images.Header, dets []postprocess.Detection) *Detection2DArray {
	out := &Detection2DArray{Header: header, Detections: make([]Detection2D, 0, len(dets))}
	for _, d := range dets {
		w, h := float64(d.Box.W), float64(d.Box.H)
		out.Detections = append(out.Detections, Detection2D{
			Header: header,
			Results: []ObjectHypothesisWithPose{{
				ID:    int64(d.ClassID),
				Score: float64(d.Score),
			}},
			BBox: BoundingBox2D{
				Center: Pose2D{X: float64(d.Box.X) + w*0.5, Y: float64(d.Box.Y) + h*0.5},
				SizeX:  w,
				SizeY:  h,
			},
			DetectionID: a.newID(),
		})
	}
	return out
}

func (a *Assembler) split(header images.Header, dets []postprocess.Detection) (*RectArray, *ClassificationResult) {
	rects := &RectArray{Header: header, Rects: make([]Rect, 0, len(dets))}
	class := &ClassificationResult{
		Header:     header,
		Labels:     make([]uint32, 0, len(dets)),
		LabelNames: make([]string, 0, len(dets)),
		LabelProba: make([]float64, 0, len(dets)),
		Classifier: Classifier,
	}
	if a.labels.Custom() {
		class.TargetNames = a.labels.Names()
	}

	for _, d := range dets {
		rects.Rects = append(rects.Rects, Rect{
			X:      clampInt32(d.Box.X),
			Y:      clampInt32(d.Box.Y),
			Width:  clampInt32(d.Box.W),
			Height: clampInt32(d.Box.H),
		})
		name, id := a.labels.Resolve(d.ClassID)
		class.Labels = append(class.Labels, uint32(id))
		class.LabelNames = append(class.LabelNames, name)
		class.LabelProba = append(class.LabelProba, float64(d.Score))
	}
	return rects, class
}

// clampInt32 floors negative values to zero and truncates to whole pixels.
// Values past the int32 range saturate.
func clampInt32(v float32) int32 {
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(math32.Max(v, 0))
}
