package output

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/nvr-ai/go-vision-detect/models"
	"github.com/nvr-ai/go-vision-detect/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHeader = images.Header{Seq: 42, Stamp: time.Unix(1700000000, 0).UTC(), FrameID: "camera"}

func testDetections() []postprocess.Detection {
	return []postprocess.Detection{
		{Box: images.Box{X: 10.7, Y: 20.2, W: 30.9, H: 40.1}, ClassID: 2, Score: 0.75},
		{Box: images.Box{X: 0, Y: 5, W: 8, H: 12}, ClassID: 5, Score: 0.5},
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("Combined")
	require.NoError(t, err)
	assert.Equal(t, ModeCombined, mode)

	mode, err = ParseMode(" split ")
	require.NoError(t, err)
	assert.Equal(t, ModeSplit, mode)

	_, err = ParseMode("both")
	assert.Error(t, err)
}

func TestNewAssemblerValidates(t *testing.T) {
	_, err := NewAssembler("both", models.BuiltinLabels())
	assert.Error(t, err)

	_, err = NewAssembler(ModeSplit, nil)
	assert.Error(t, err)
}

func TestAssembleCombined(t *testing.T) {
	a, err := NewAssembler(ModeCombined, models.NewCustomLabels([]string{"car", "pedestrian", "cyclist"}))
	require.NoError(t, err)

	result := a.Assemble(testHeader, testDetections())
	require.NotNil(t, result.Detections)
	assert.Nil(t, result.Rects)
	assert.Nil(t, result.Classification)
	assert.Equal(t, 2, result.Len())

	want := &Detection2DArray{
		Header: testHeader,
		Detections: []Detection2D{
			{
				Header:  testHeader,
				Results: []ObjectHypothesisWithPose{{ID: 2, Score: float64(float32(0.75))}},
				BBox: BoundingBox2D{
					Center: Pose2D{
						X: float64(float32(10.7)) + float64(float32(30.9))*0.5,
						Y: float64(float32(20.2)) + float64(float32(40.1))*0.5,
					},
					SizeX: float64(float32(30.9)),
					SizeY: float64(float32(40.1)),
				},
			},
			{
				Header:  testHeader,
				Results: []ObjectHypothesisWithPose{{ID: 5, Score: 0.5}},
				BBox: BoundingBox2D{
					Center: Pose2D{X: 4, Y: 11},
					SizeX:  8,
					SizeY:  12,
				},
			},
		},
	}
	opts := cmpopts.IgnoreFields(Detection2D{}, "DetectionID")
	if diff := cmp.Diff(want, result.Detections, opts); diff != "" {
		t.Errorf("combined result mismatch (-want +got):\n%s", diff)
	}

	ids := map[string]bool{}
	for _, d := range result.Detections.Detections {
		_, err := uuid.Parse(d.DetectionID)
		require.NoError(t, err)
		ids[d.DetectionID] = true
	}
	assert.Len(t, ids, 2, "every detection gets a fresh id")
}

func TestAssembleSplitCustom(t *testing.T) {
	names := []string{"car", "pedestrian", "cyclist"}
	a, err := NewAssembler(ModeSplit, models.NewCustomLabels(names))
	require.NoError(t, err)

	result := a.Assemble(testHeader, testDetections())
	assert.Nil(t, result.Detections)
	require.NotNil(t, result.Rects)
	require.NotNil(t, result.Classification)

	wantRects := &RectArray{
		Header: testHeader,
		Rects: []Rect{
			{X: 10, Y: 20, Width: 30, Height: 40},
			{X: 0, Y: 5, Width: 8, Height: 12},
		},
	}
	if diff := cmp.Diff(wantRects, result.Rects); diff != "" {
		t.Errorf("rects mismatch (-want +got):\n%s", diff)
	}

	wantClass := &ClassificationResult{
		Header:      testHeader,
		Labels:      []uint32{2, models.SentinelID},
		LabelNames:  []string{"cyclist", models.UnknownLabel},
		LabelProba:  []float64{float64(float32(0.75)), 0.5},
		Classifier:  Classifier,
		TargetNames: names,
	}
	if diff := cmp.Diff(wantClass, result.Classification); diff != "" {
		t.Errorf("classification mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleSplitBuiltin(t *testing.T) {
	a, err := NewAssembler(ModeSplit, models.BuiltinLabels())
	require.NoError(t, err)

	result := a.Assemble(testHeader, testDetections())
	require.NotNil(t, result.Classification)
	assert.Equal(t, []string{"car", "bus"}, result.Classification.LabelNames)
	assert.Equal(t, []uint32{2, 5}, result.Classification.Labels)
	assert.Nil(t, result.Classification.TargetNames)
}

func TestAssembleSplitTargetNamesOnEmptyBatch(t *testing.T) {
	a, err := NewAssembler(ModeSplit, models.NewCustomLabels([]string{"car"}))
	require.NoError(t, err)

	result := a.Assemble(testHeader, nil)
	require.NotNil(t, result.Classification)
	assert.Equal(t, 0, result.Len())
	assert.Equal(t, []string{"car"}, result.Classification.TargetNames)
	assert.Empty(t, result.Rects.Rects)
}

func TestAssembleSplitClamps(t *testing.T) {
	a, err := NewAssembler(ModeSplit, models.BuiltinLabels())
	require.NoError(t, err)

	result := a.Assemble(testHeader, []postprocess.Detection{
		{Box: images.Box{X: -3, Y: -0.5, W: -1, H: 7.9}, ClassID: 0, Score: 0.9},
	})
	assert.Equal(t, []Rect{{X: 0, Y: 0, Width: 0, Height: 7}}, result.Rects.Rects)
}

func TestAssembleSplitSaturatesHugeBoxes(t *testing.T) {
	a, err := NewAssembler(ModeSplit, models.BuiltinLabels())
	require.NoError(t, err)

	result := a.Assemble(testHeader, []postprocess.Detection{
		{Box: images.Box{X: 1e12, Y: 3e9, W: math.MaxFloat32, H: 2147483520}, ClassID: 0, Score: 0.9},
	})
	want := Rect{X: math.MaxInt32, Y: math.MaxInt32, Width: math.MaxInt32, Height: 2147483520}
	assert.Equal(t, []Rect{want}, result.Rects.Rects)
}

func TestAssembleModeIsExclusive(t *testing.T) {
	labels := models.BuiltinLabels()
	for _, mode := range []Mode{ModeCombined, ModeSplit} {
		a, err := NewAssembler(mode, labels)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			result := a.Assemble(testHeader, testDetections())
			assert.Equal(t, mode, result.Mode)
			combined := result.Detections != nil
			split := result.Rects != nil || result.Classification != nil
			assert.True(t, combined != split, "exactly one shape in mode %s", mode)
			assert.Equal(t, mode == ModeCombined, combined)
		}
	}
}
