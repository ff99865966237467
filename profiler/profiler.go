// Package profiler - Per-stage timing and periodic pipeline reports.
package profiler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// StageSummary describes the recent durations of one pipeline stage.
type StageSummary struct {
	Name   string        `json:"name"`
	Count  int64         `json:"count"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"std_dev"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
}

// stageTracker keeps a sliding window of durations in milliseconds.
type stageTracker struct {
	samples []float64
	count   int64
}

// Options configures the profiler.
type Options struct {
	// ReportInterval specifies how often to log a report (default: 10s).
	ReportInterval time.Duration
	// MaxSamples specifies the window size per stage (default: 600).
	MaxSamples int
}

// Profiler records how long each pipeline stage takes and logs periodic
// summaries. It is safe for concurrent use.
type Profiler struct {
	log            logs.Log
	reportInterval time.Duration
	maxSamples     int

	mu         sync.Mutex
	stages     map[string]*stageTracker
	order      []string
	collectors []MetricsCollector

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a profiler.
//
// Arguments:
//   - log: Destination of periodic reports.
//   - opts: Configuration options for the profiler.
//
// Returns:
//   - A configured Profiler. Reports start with Start.
func New(log logs.Log, opts Options) *Profiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	return &Profiler{
		log:            log,
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		stages:         make(map[string]*stageTracker),
	}
}

// Start begins periodic reporting. Calling Start twice has no effect.
func (p *Profiler) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Report()
			}
		}
	}()
}

// Stop ends periodic reporting and waits for the reporter to exit.
func (p *Profiler) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

// AddMetricsCollector registers a collector whose metrics are included in every report.
func (p *Profiler) AddMetricsCollector(collector MetricsCollector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collectors = append(p.collectors, collector)
}

// StartStage begins timing a stage.
//
// Arguments:
//   - name: The stage name.
//
// Returns:
//   - A function to call when the stage completes.
//
// @example
// done := p.StartStage("letterbox")
// t, params, err := images.Letterbox(frame, 416, 416)
// done()
func (p *Profiler) StartStage(name string) func() {
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start))
	}
}

// Record adds one duration sample for a stage.
func (p *Profiler) Record(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.stages[name]
	if !ok {
		t = &stageTracker{samples: make([]float64, 0, p.maxSamples)}
		p.stages[name] = t
		p.order = append(p.order, name)
	}
	t.samples = append(t.samples, float64(d)/float64(time.Millisecond))
	if len(t.samples) > p.maxSamples {
		t.samples = t.samples[1:]
	}
	t.count++
}

// Summary returns the statistics for one stage.
func (p *Profiler) Summary(name string) (StageSummary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.stages[name]
	if !ok || len(t.samples) == 0 {
		return StageSummary{}, false
	}
	return summarize(name, t), true
}

// Summaries returns the statistics of every stage in first-seen order.
func (p *Profiler) Summaries() []StageSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StageSummary, 0, len(p.order))
	for _, name := range p.order {
		if t := p.stages[name]; len(t.samples) > 0 {
			out = append(out, summarize(name, t))
		}
	}
	return out
}

func summarize(name string, t *stageTracker) StageSummary {
	sorted := append([]float64(nil), t.samples...)
	sort.Float64s(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		std = 0
	}
	return StageSummary{
		Name:   name,
		Count:  t.count,
		Mean:   millis(mean),
		StdDev: millis(std),
		Min:    millis(floats.Min(sorted)),
		Max:    millis(floats.Max(sorted)),
		P50:    millis(stat.Quantile(0.5, stat.Empirical, sorted, nil)),
		P95:    millis(stat.Quantile(0.95, stat.Empirical, sorted, nil)),
	}
}

func millis(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}

// Report logs the current stage summaries and collector metrics.
func (p *Profiler) Report() {
	for _, s := range p.Summaries() {
		p.log.Infof("stage %s: mean=%v std=%v p50=%v p95=%v max=%v count=%d",
			s.Name, s.Mean.Truncate(time.Microsecond), s.StdDev.Truncate(time.Microsecond),
			s.P50.Truncate(time.Microsecond), s.P95.Truncate(time.Microsecond),
			s.Max.Truncate(time.Microsecond), s.Count)
	}

	p.mu.Lock()
	collectors := append([]MetricsCollector(nil), p.collectors...)
	p.mu.Unlock()

	for _, c := range collectors {
		metrics := c.CollectMetrics()
		names := make([]string, 0, len(metrics))
		for name := range metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p.log.Infof("metric %s: %v", name, metrics[name])
		}
	}
}
