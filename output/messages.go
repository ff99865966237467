// Package output - Wire shapes for detection results and the assembler that builds them.
package output

import (
	"github.com/nvr-ai/go-vision-detect/images"
)

// Pose2D is a point with an orientation.
type Pose2D struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// BoundingBox2D is a center-form box in frame pixels.
type BoundingBox2D struct {
	Center Pose2D  `json:"center"`
	SizeX  float64 `json:"size_x"`
	SizeY  float64 `json:"size_y"`
}

// ObjectHypothesisWithPose is one scored class for a detection.
type ObjectHypothesisWithPose struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// Detection2D is a single detection in combined mode.
type Detection2D struct {
	Header      images.Header              `json:"header"`
	Results     []ObjectHypothesisWithPose `json:"results"`
	BBox        BoundingBox2D              `json:"bbox"`
	IsTracking  bool                       `json:"is_tracking"`
	DetectionID string                     `json:"detection_id"`
}

// Detection2DArray is the combined mode result for one frame.
type Detection2DArray struct {
	Header     images.Header `json:"header"`
	Detections []Detection2D `json:"detections"`
}

// Rect is a top-left rectangle in whole frame pixels.
type Rect struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

// RectArray is the geometry half of a split mode result.
type RectArray struct {
	Header images.Header `json:"header"`
	Rects  []Rect        `json:"rects"`
}

// ClassificationResult is the label half of a split mode result. Labels,
// LabelNames and LabelProba are parallel to RectArray.Rects.
type ClassificationResult struct {
	Header      images.Header `json:"header"`
	Labels      []uint32      `json:"labels"`
	LabelNames  []string      `json:"label_names"`
	LabelProba  []float64     `json:"label_proba"`
	Classifier  string        `json:"classifier"`
	TargetNames []string      `json:"target_names,omitempty"`
}

// Result is the outcome of assembling one frame. Exactly one of the combined
// or the split fields is set, as recorded by Mode.
type Result struct {
	Mode           Mode                  `json:"mode"`
	Header         images.Header         `json:"header"`
	Detections     *Detection2DArray     `json:"detections,omitempty"`
	Rects          *RectArray            `json:"rects,omitempty"`
	Classification *ClassificationResult `json:"classification,omitempty"`
}

// Len returns the number of detections in the result.
func (r *Result) Len() int {
	switch {
	case r.Detections != nil:
		return len(r.Detections.Detections)
	case r.Rects != nil:
		return len(r.Rects.Rects)
	}
	return 0
}
