package controller

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nvr-ai/go-vision-detect/images"
)

// Mailbox hands frames to a single Run loop without buffering.
//
// Offer never waits: if the loop is busy with a frame the offered frame is
// dropped. Submit waits for the loop, for sources that must not lose frames.
type Mailbox struct {
	ch        chan images.Frame
	dropped   atomic.Int64
	closeOnce sync.Once
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ch: make(chan images.Frame)}
}

// Frames is the channel to pass to Controller.Run.
func (m *Mailbox) Frames() <-chan images.Frame { return m.ch }

// Offer delivers the frame if the loop is idle and reports whether it did.
func (m *Mailbox) Offer(frame images.Frame) bool {
	select {
	case m.ch <- frame:
		return true
	default:
		m.dropped.Add(1)
		return false
	}
}

// Submit waits until the loop accepts the frame or the context is done.
func (m *Mailbox) Submit(ctx context.Context, frame images.Frame) error {
	select {
	case m.ch <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the Run loop once it is idle. Offer and Submit must not be called afterwards.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() { close(m.ch) })
}

// Dropped returns the number of frames Offer has dropped.
func (m *Mailbox) Dropped() int64 { return m.dropped.Load() }

// CollectMetrics implements profiler.MetricsCollector.
func (m *Mailbox) CollectMetrics() map[string]float64 {
	return map[string]float64{"frames_dropped": float64(m.dropped.Load())}
}
