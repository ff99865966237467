package postprocess

import (
	"testing"

	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFirstMatch(t *testing.T) {
	const tau = float32(0.5)
	raws := []RawDetection{
		{CX: 50, CY: 50, W: 10, H: 10, Probs: []float32{tau - 0.1, tau + 0.05, tau + 0.2}},
	}

	dets := Decode(raws, tau)
	require.Len(t, dets, 1)
	assert.Equal(t, 1, dets[0].ClassID, "first class reaching the threshold wins, not the highest")
	assert.InDelta(t, tau+0.05, dets[0].Score, 1e-6)
}

func TestDecodeThresholdIsInclusive(t *testing.T) {
	dets := Decode([]RawDetection{{W: 1, H: 1, Probs: []float32{0.2, 0.5}}}, 0.5)
	require.Len(t, dets, 1)
	assert.Equal(t, 1, dets[0].ClassID)
}

func TestDecodeDropsUnqualified(t *testing.T) {
	raws := []RawDetection{
		{CX: 10, CY: 10, W: 4, H: 4, Probs: []float32{0.1, 0.2}},
		{CX: 20, CY: 20, W: 4, H: 4, Probs: []float32{0.1, 0.9}},
		{CX: 30, CY: 30, W: 4, H: 4, Probs: nil},
	}

	dets := Decode(raws, 0.5)
	require.Len(t, dets, 1)
	assert.Equal(t, images.Box{X: 18, Y: 18, W: 4, H: 4}, dets[0].Box)
}

func TestDecodeEmpty(t *testing.T) {
	dets := Decode(nil, 0.5)
	assert.NotNil(t, dets)
	assert.Empty(t, dets)
}

func TestDecodeCornerConversion(t *testing.T) {
	probs := make([]float32, 80)
	probs[7] = 0.8
	probs[9] = 0.95

	dets := Decode([]RawDetection{{CX: 200, CY: 140, W: 30, H: 40, Probs: probs}}, 0.5)
	require.Len(t, dets, 1)
	assert.Equal(t, 7, dets[0].ClassID)
	assert.Equal(t, images.Box{X: 185, Y: 120, W: 30, H: 40}, dets[0].Box)
}

func TestRemap(t *testing.T) {
	params := images.ComputeLetterbox(640, 480, 416, 416)
	dets := []Detection{{Box: images.Box{X: 185, Y: 120, W: 30, H: 40}, ClassID: 7, Score: 0.8}}

	Remap(dets, params)

	assert.InDelta(t, 185/0.65, dets[0].Box.X, 1e-3)
	assert.InDelta(t, (120-52)/0.65, dets[0].Box.Y, 1e-3)
	assert.InDelta(t, 30/0.65, dets[0].Box.W, 1e-3)
	assert.InDelta(t, 40/0.65, dets[0].Box.H, 1e-3)
	assert.Equal(t, 7, dets[0].ClassID)
}

func TestNMSSortSuppressesOverlaps(t *testing.T) {
	raws := []RawDetection{
		{CX: 50, CY: 50, W: 20, H: 20, Probs: []float32{0.6, 0}},
		{CX: 51, CY: 51, W: 20, H: 20, Probs: []float32{0.9, 0}},
		{CX: 200, CY: 200, W: 20, H: 20, Probs: []float32{0.7, 0}},
	}

	kept := NMSSort(raws, &NMSConfig{IoUThreshold: 0.45})
	require.Len(t, kept, 2)
	assert.Equal(t, float32(51), kept[0].CX, "higher scoring overlap survives")
	assert.Equal(t, float32(200), kept[1].CX)
}

func TestNMSSortIsPerClass(t *testing.T) {
	raws := []RawDetection{
		{CX: 50, CY: 50, W: 20, H: 20, Probs: []float32{0.9, 0}},
		{CX: 50, CY: 50, W: 20, H: 20, Probs: []float32{0, 0.8}},
	}

	kept := NMSSort(raws, &NMSConfig{IoUThreshold: 0.45})
	assert.Len(t, kept, 2, "identical boxes of different classes do not suppress each other")
}

func TestNMSSortDropsEmpty(t *testing.T) {
	kept := NMSSort([]RawDetection{{W: 1, H: 1, Probs: []float32{0, 0}}}, &NMSConfig{IoUThreshold: 0.5})
	assert.Empty(t, kept)
}
