// Package controller - This file contains the per-frame pipeline that turns frames into published results.
package controller

import (
	"context"
	"image"
	"sync/atomic"

	"github.com/cyclopcam/logs"
	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/nvr-ai/go-vision-detect/inference"
	"github.com/nvr-ai/go-vision-detect/models/postprocess"
	"github.com/nvr-ai/go-vision-detect/output"
	"github.com/nvr-ai/go-vision-detect/profiler"
	"github.com/nvr-ai/go-vision-detect/publish"
	"github.com/nvr-ai/go-vision-detect/visualize"
	"github.com/pkg/errors"
)

// Stage names recorded in the profiler.
const (
	StageLetterbox = "letterbox"
	StageDetect    = "detect"
	StageDecode    = "decode"
	StagePublish   = "publish"
	StageOverlay   = "overlay"
)

// Options wires the controller to its collaborators.
type Options struct {
	// Detector runs the network. Required.
	Detector inference.Detector
	// Assembler builds results in the configured output mode. Required.
	Assembler *output.Assembler
	// Publisher delivers results. Required.
	Publisher publish.Publisher
	// ScoreThreshold is the decoder threshold.
	ScoreThreshold float32
	// Overlay and Sink produce labeled images. Both must be set to enable them.
	Overlay *visualize.Overlay
	Sink    visualize.Sink
	// Profiler records stage durations. Optional.
	Profiler *profiler.Profiler
}

// Controller processes frames one at a time.
//
// All collaborators are fixed at construction, so the only state that crosses
// frames is the counters.
type Controller struct {
	log  logs.Log
	opts Options
	size image.Point

	processed  atomic.Int64
	failed     atomic.Int64
	detections atomic.Int64
	heightFit  atomic.Bool
}

// New validates the options and returns a controller.
//
// Arguments:
//   - log: The logger.
//   - opts: The collaborators.
//
// Returns:
//   - *Controller: The controller.
//   - An error if a required collaborator is missing.
func New(log logs.Log, opts Options) (*Controller, error) {
	if opts.Detector == nil {
		return nil, errors.New("detector is required")
	}
	if opts.Assembler == nil {
		return nil, errors.New("assembler is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	size := opts.Detector.InputSize()
	if size.X <= 0 || size.Y <= 0 {
		return nil, errors.Errorf("detector reports invalid input size %v", size)
	}
	return &Controller{log: log, opts: opts, size: size}, nil
}

// stage starts a profiler timer, or does nothing without a profiler.
func (c *Controller) stage(name string) func() {
	if c.opts.Profiler == nil {
		return func() {}
	}
	return c.opts.Profiler.StartStage(name)
}

// Process runs the full pipeline for one frame: letterbox, detect, decode,
// remap, assemble, publish and optionally draw a labeled copy.
//
// The input tensor is released when Process returns, on every path.
//
// Arguments:
//   - ctx: Passed to the detector and the publisher.
//   - frame: The inbound frame.
//
// Returns:
//   - The published result.
//   - *images.UnsupportedEncodingError (wrapped) for frames that are not bgr8,
//     or the first detector, publisher or overlay error.
func (c *Controller) Process(ctx context.Context, frame images.Frame) (output.Result, error) {
	done := c.stage(StageLetterbox)
	tensor, params, err := images.Letterbox(frame, c.size.X, c.size.Y)
	done()
	if err != nil {
		c.failed.Add(1)
		return output.Result{}, err
	}
	defer tensor.Release()

	if params.HeightFit && !c.heightFit.Swap(true) {
		c.log.Warnf("frame %dx%d is taller than the network input, scaling by height (%.4f)",
			frame.Width, frame.Height, params.Scale)
	}

	done = c.stage(StageDetect)
	raws, err := c.opts.Detector.Detect(ctx, tensor)
	done()
	if err != nil {
		c.failed.Add(1)
		return output.Result{}, errors.Wrapf(err, "detect frame %d", frame.Header.Seq)
	}

	done = c.stage(StageDecode)
	dets := postprocess.Decode(raws, c.opts.ScoreThreshold)
	postprocess.Remap(dets, params)
	result := c.opts.Assembler.Assemble(frame.Header, dets)
	done()

	done = c.stage(StagePublish)
	err = c.opts.Publisher.Publish(ctx, result)
	done()
	if err != nil {
		c.failed.Add(1)
		return result, errors.Wrapf(err, "publish frame %d", frame.Header.Seq)
	}

	if c.opts.Overlay != nil && c.opts.Sink != nil {
		done = c.stage(StageOverlay)
		err = c.writeLabeled(frame, dets)
		done()
		if err != nil {
			c.failed.Add(1)
			return result, err
		}
	}

	c.processed.Add(1)
	c.detections.Add(int64(len(dets)))
	return result, nil
}

func (c *Controller) writeLabeled(frame images.Frame, dets []postprocess.Detection) error {
	labeled, err := c.opts.Overlay.Annotate(frame, dets)
	if err != nil {
		return err
	}
	return errors.Wrapf(c.opts.Sink.WriteFrame(labeled), "write labeled frame %d", frame.Header.Seq)
}

// Run processes frames until the channel is closed or the context is done.
//
// A frame that fails is logged and skipped; later frames are unaffected.
//
// Returns:
//   - nil when frames is closed, otherwise the context error.
func (c *Controller) Run(ctx context.Context, frames <-chan images.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if _, err := c.Process(ctx, frame); err != nil {
				var encErr *images.UnsupportedEncodingError
				if errors.As(err, &encErr) {
					c.log.Warnf("skipping frame: %v", err)
				} else {
					c.log.Errorf("frame %d failed: %v", frame.Header.Seq, err)
				}
			}
		}
	}
}

// CollectMetrics implements profiler.MetricsCollector.
func (c *Controller) CollectMetrics() map[string]float64 {
	return map[string]float64{
		"frames_processed": float64(c.processed.Load()),
		"frames_failed":    float64(c.failed.Load()),
		"detections":       float64(c.detections.Load()),
	}
}
