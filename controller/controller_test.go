package controller

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/nvr-ai/go-vision-detect/inference"
	"github.com/nvr-ai/go-vision-detect/models"
	"github.com/nvr-ai/go-vision-detect/models/postprocess"
	"github.com/nvr-ai/go-vision-detect/output"
	"github.com/nvr-ai/go-vision-detect/profiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher records every published result.
type capturePublisher struct {
	mu      sync.Mutex
	results []output.Result
	err     error
}

func (p *capturePublisher) Publish(ctx context.Context, result output.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, result)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) Results() []output.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]output.Result(nil), p.results...)
}

func vgaFrame(seq uint32) images.Frame {
	w, h := 640, 480
	return images.Frame{
		Header:   images.Header{Seq: seq, FrameID: "camera"},
		Width:    w,
		Height:   h,
		Step:     3 * w,
		Encoding: images.EncodingBGR8,
		Data:     make([]byte, 3*w*h),
	}
}

// truckDetector returns one candidate whose first class over 0.5 is 7.
func truckDetector(seen **images.Tensor) inference.Detector {
	return inference.DetectorFunc(image.Pt(416, 416), func(ctx context.Context, t *images.Tensor) ([]postprocess.RawDetection, error) {
		if seen != nil {
			*seen = t
		}
		probs := make([]float32, 80)
		probs[3] = 0.2
		probs[7] = 0.8
		probs[9] = 0.95
		return []postprocess.RawDetection{{CX: 200, CY: 140, W: 30, H: 40, Probs: probs}}, nil
	})
}

func newController(t *testing.T, det inference.Detector, mode output.Mode, pub *capturePublisher) *Controller {
	assembler, err := output.NewAssembler(mode, models.BuiltinLabels())
	require.NoError(t, err)
	c, err := New(logs.NewTestingLog(t), Options{
		Detector:       det,
		Assembler:      assembler,
		Publisher:      pub,
		ScoreThreshold: 0.5,
		Profiler:       profiler.New(logs.NewTestingLog(t), profiler.Options{}),
	})
	require.NoError(t, err)
	return c
}

func TestNewRequiresCollaborators(t *testing.T) {
	assembler, err := output.NewAssembler(output.ModeSplit, models.BuiltinLabels())
	require.NoError(t, err)
	det := truckDetector(nil)
	pub := &capturePublisher{}

	_, err = New(logs.NewTestingLog(t), Options{Assembler: assembler, Publisher: pub})
	assert.Error(t, err)
	_, err = New(logs.NewTestingLog(t), Options{Detector: det, Publisher: pub})
	assert.Error(t, err)
	_, err = New(logs.NewTestingLog(t), Options{Detector: det, Assembler: assembler})
	assert.Error(t, err)

	zero := inference.DetectorFunc(image.Point{}, nil)
	_, err = New(logs.NewTestingLog(t), Options{Detector: zero, Assembler: assembler, Publisher: pub})
	assert.Error(t, err)
}

func TestProcessEndToEndSplit(t *testing.T) {
	var seen *images.Tensor
	pub := &capturePublisher{}
	c := newController(t, truckDetector(&seen), output.ModeSplit, pub)

	result, err := c.Process(context.Background(), vgaFrame(11))
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.True(t, seen.Released(), "tensor is released after the frame")

	require.Len(t, pub.Results(), 1)
	assert.Equal(t, output.ModeSplit, result.Mode)
	assert.Equal(t, uint32(11), result.Header.Seq)
	assert.Equal(t, uint32(11), result.Rects.Header.Seq)

	// Tensor box top-left (185, 120), scale 0.65, pad_y 52.
	require.Len(t, result.Rects.Rects, 1)
	assert.Equal(t, output.Rect{X: 284, Y: 104, Width: 46, Height: 61}, result.Rects.Rects[0])
	assert.Equal(t, []uint32{7}, result.Classification.Labels)
	assert.Equal(t, []string{"truck"}, result.Classification.LabelNames)
	assert.InDelta(t, 0.8, result.Classification.LabelProba[0], 1e-6)

	metrics := c.CollectMetrics()
	assert.Equal(t, 1.0, metrics["frames_processed"])
	assert.Equal(t, 1.0, metrics["detections"])
	assert.Zero(t, metrics["frames_failed"])
}

func TestProcessEndToEndCombined(t *testing.T) {
	pub := &capturePublisher{}
	c := newController(t, truckDetector(nil), output.ModeCombined, pub)

	result, err := c.Process(context.Background(), vgaFrame(1))
	require.NoError(t, err)
	assert.Nil(t, result.Rects)
	require.NotNil(t, result.Detections)
	require.Len(t, result.Detections.Detections, 1)

	d := result.Detections.Detections[0]
	assert.Equal(t, int64(7), d.Results[0].ID)
	assert.InDelta(t, 185/0.65+30/0.65/2, d.BBox.Center.X, 1e-3)
	assert.InDelta(t, (120-52)/0.65+40/0.65/2, d.BBox.Center.Y, 1e-3)
	assert.InDelta(t, 30/0.65, d.BBox.SizeX, 1e-3)
	assert.InDelta(t, 40/0.65, d.BBox.SizeY, 1e-3)
}

func TestProcessReleasesTensorOnDetectorError(t *testing.T) {
	var seen *images.Tensor
	det := inference.DetectorFunc(image.Pt(416, 416), func(ctx context.Context, t *images.Tensor) ([]postprocess.RawDetection, error) {
		seen = t
		return nil, errors.New("inference failed")
	})
	pub := &capturePublisher{}
	c := newController(t, det, output.ModeSplit, pub)

	_, err := c.Process(context.Background(), vgaFrame(1))
	require.Error(t, err)
	require.NotNil(t, seen)
	assert.True(t, seen.Released())
	assert.Empty(t, pub.Results())
	assert.Equal(t, 1.0, c.CollectMetrics()["frames_failed"])
}

func TestProcessReleasesTensorOnPublishError(t *testing.T) {
	var seen *images.Tensor
	pub := &capturePublisher{err: errors.New("transport down")}
	c := newController(t, truckDetector(&seen), output.ModeSplit, pub)

	_, err := c.Process(context.Background(), vgaFrame(1))
	require.Error(t, err)
	assert.True(t, seen.Released())
}

func TestProcessRejectsEncoding(t *testing.T) {
	called := false
	det := inference.DetectorFunc(image.Pt(416, 416), func(ctx context.Context, t *images.Tensor) ([]postprocess.RawDetection, error) {
		called = true
		return nil, nil
	})
	c := newController(t, det, output.ModeSplit, &capturePublisher{})

	frame := vgaFrame(1)
	frame.Encoding = images.EncodingMono8
	_, err := c.Process(context.Background(), frame)

	var encErr *images.UnsupportedEncodingError
	require.ErrorAs(t, err, &encErr)
	assert.False(t, called)
}

func TestProcessEmptyFrame(t *testing.T) {
	det := inference.DetectorFunc(image.Pt(416, 416), func(ctx context.Context, t *images.Tensor) ([]postprocess.RawDetection, error) {
		return nil, nil
	})
	pub := &capturePublisher{}
	c := newController(t, det, output.ModeSplit, pub)

	result, err := c.Process(context.Background(), vgaFrame(1))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Len())
	assert.Len(t, pub.Results(), 1, "frames without detections are still published")
}

func TestRunSkipsBadFrames(t *testing.T) {
	pub := &capturePublisher{}
	c := newController(t, truckDetector(nil), output.ModeSplit, pub)

	bad := vgaFrame(1)
	bad.Encoding = images.EncodingRGB8
	frames := make(chan images.Frame, 3)
	frames <- bad
	frames <- vgaFrame(2)
	frames <- vgaFrame(3)
	close(frames)

	require.NoError(t, c.Run(context.Background(), frames))

	results := pub.Results()
	require.Len(t, results, 2)
	assert.Equal(t, uint32(2), results[0].Header.Seq)
	assert.Equal(t, uint32(3), results[1].Header.Seq)
	assert.Equal(t, 1.0, c.CollectMetrics()["frames_failed"])
}

func TestRunStopsOnCancel(t *testing.T) {
	c := newController(t, truckDetector(nil), output.ModeSplit, &capturePublisher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Run(ctx, make(chan images.Frame)), context.Canceled)
}

func TestMailboxDropsWhileInFlight(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	det := inference.DetectorFunc(image.Pt(416, 416), func(ctx context.Context, t *images.Tensor) ([]postprocess.RawDetection, error) {
		entered <- struct{}{}
		<-release
		return nil, nil
	})
	pub := &capturePublisher{}
	c := newController(t, det, output.ModeSplit, pub)

	mailbox := NewMailbox()
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), mailbox.Frames()) }()

	require.NoError(t, mailbox.Submit(context.Background(), vgaFrame(1)))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("detector was not called")
	}

	assert.False(t, mailbox.Offer(vgaFrame(2)), "a frame arriving mid-inference is dropped")
	assert.Equal(t, int64(1), mailbox.Dropped())
	assert.Equal(t, 1.0, mailbox.CollectMetrics()["frames_dropped"])

	close(release)
	mailbox.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}

	results := pub.Results()
	require.Len(t, results, 1)
	assert.Equal(t, uint32(1), results[0].Header.Seq)
}

func TestMailboxSubmitCancelled(t *testing.T) {
	mailbox := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, mailbox.Submit(ctx, vgaFrame(1)), context.Canceled)
}
