package visualize

import (
	"image"
	"os"
	"testing"

	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/nvr-ai/go-vision-detect/models"
	"github.com/nvr-ai/go-vision-detect/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blankFrame(w, h int) images.Frame {
	return images.Frame{
		Header:   images.Header{Seq: 3},
		Width:    w,
		Height:   h,
		Step:     3 * w,
		Encoding: images.EncodingBGR8,
		Data:     make([]byte, 3*w*h),
	}
}

func nonZero(data []byte) int {
	n := 0
	for _, b := range data {
		if b != 0 {
			n++
		}
	}
	return n
}

func TestPalette(t *testing.T) {
	p := NewPalette(PaletteSize)
	require.Len(t, p, PaletteSize)
	assert.NotEqual(t, p[0], p[1])
	assert.Equal(t, p[3], p.Color(3+PaletteSize))
	assert.Equal(t, uint8(255), p.Color(0).A)
}

func TestTextOrigin(t *testing.T) {
	assert.Equal(t, image.Pt(10, 85), textOrigin(image.Rect(10, 100, 50, 150)))
	assert.Equal(t, image.Pt(10, 45), textOrigin(image.Rect(10, 30, 50, 150)))
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "car:75.000000%", caption("car", 0.75))
}

func TestAnnotateDrawsOnCopy(t *testing.T) {
	frame := blankFrame(64, 48)
	overlay := NewOverlay(models.BuiltinLabels())

	out, err := overlay.Annotate(frame, []postprocess.Detection{
		{Box: images.Box{X: 8, Y: 8, W: 20, H: 20}, ClassID: 2, Score: 0.9},
	})
	require.NoError(t, err)

	assert.Zero(t, nonZero(frame.Data), "inbound frame must not be modified")
	assert.Equal(t, frame.Header, out.Header)
	assert.Len(t, out.Data, len(frame.Data))
	assert.NotZero(t, nonZero(out.Data))
}

func TestAnnotateSkipsSentinel(t *testing.T) {
	frame := blankFrame(64, 48)
	overlay := NewOverlay(models.NewCustomLabels([]string{"car"}))

	out, err := overlay.Annotate(frame, []postprocess.Detection{
		{Box: images.Box{X: 8, Y: 8, W: 20, H: 20}, ClassID: 4, Score: 0.9},
	})
	require.NoError(t, err)
	assert.Zero(t, nonZero(out.Data))
}

func TestDirectorySink(t *testing.T) {
	sink, err := NewDirectorySink(t.TempDir())
	require.NoError(t, err)

	frame := blankFrame(16, 8)
	require.NoError(t, sink.WriteFrame(frame))

	info, err := os.Stat(sink.Path(frame.Header))
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}
