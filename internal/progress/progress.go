// Package progress renders download progress with mpb bars and keeps the
// run counters. Its hooks feed recent speed readings back into the
// downloader's slow-abort check.
package progress

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Reporter owns the bar container and the run counters.
type Reporter struct {
	p *mpb.Progress

	completed      atomic.Int64
	prevDownloaded atomic.Int64
	skipped        atomic.Int64
	failed         atomic.Int64
	prevHashed     atomic.Int64
	hashed         atomic.Int64
	removed        atomic.Int64
}

// New creates a reporter writing bars to w; a nil writer discards the
// bars but keeps the counters.
func New(w io.Writer) *Reporter {
	var opts []mpb.ContainerOption
	if w == nil {
		opts = append(opts, mpb.WithOutput(io.Discard))
	} else {
		opts = append(opts, mpb.WithOutput(w))
	}
	opts = append(opts, mpb.WithWidth(64), mpb.WithRefreshRate(180*time.Millisecond))
	return &Reporter{p: mpb.New(opts...)}
}

// NewHook creates a per-file progress hook. total is -1 when unknown.
// Creating a hook never blocks; closing one with bytes in flight is a
// no-op beyond abandoning the bar.
func (r *Reporter) NewHook(filename string, total int64) *Hook {
	name := filename
	if len(name) > 28 {
		name = name[:25] + "..."
	}
	bar := r.p.New(total,
		mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟"),
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DidentRight}),
			decor.OnComplete(
				decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WC{W: 6}), "done",
			),
		),
		mpb.AppendDecorators(
			decor.EwmaSpeed(decor.SizeB1024(0), "% .2f", 30),
		),
	)
	return &Hook{bar: bar, lastTick: time.Now()}
}

// Hook tracks one file's byte advances and recent speed.
type Hook struct {
	bar      *mpb.Bar
	mu       sync.Mutex
	lastTick time.Time
	speed    float64 // bytes per second, exponentially smoothed
}

// Advance reports n freshly written bytes.
func (h *Hook) Advance(n int) {
	h.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(h.lastTick)
	h.lastTick = now
	if elapsed > 0 {
		instant := float64(n) / elapsed.Seconds()
		// Same smoothing horizon as the bar decorators.
		const alpha = 2.0 / 31.0
		if h.speed == 0 {
			h.speed = instant
		} else {
			h.speed = alpha*instant + (1-alpha)*h.speed
		}
	}
	h.mu.Unlock()
	if h.bar != nil {
		h.bar.EwmaIncrBy(n, elapsed)
	}
}

// Speed returns the smoothed throughput in bytes per second.
func (h *Hook) Speed() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.speed
}

// Close abandons the bar.
func (h *Hook) Close() {
	if h.bar != nil {
		h.bar.Abort(true)
		h.bar.Wait()
	}
}

// Wait flushes the bar container after the run.
func (r *Reporter) Wait() {
	r.p.Wait()
}

// AddCompleted bumps the completed counter.
func (r *Reporter) AddCompleted() { r.completed.Add(1) }

// AddPreviouslyCompleted bumps the "previously downloaded" counter.
func (r *Reporter) AddPreviouslyCompleted() { r.prevDownloaded.Add(1) }

// AddSkipped bumps the skipped counter.
func (r *Reporter) AddSkipped() { r.skipped.Add(1) }

// AddFailed bumps the failed counter.
func (r *Reporter) AddFailed() { r.failed.Add(1) }

// AddPrevHashed bumps the cached-hash reuse counter.
func (r *Reporter) AddPrevHashed() { r.prevHashed.Add(1) }

// AddHashed bumps the freshly-hashed counter.
func (r *Reporter) AddHashed() { r.hashed.Add(1) }

// AddRemoved bumps the dedupe-removed counter.
func (r *Reporter) AddRemoved() { r.removed.Add(1) }

// Stats is the final tally of a run.
type Stats struct {
	Completed            int64
	PreviouslyDownloaded int64
	Skipped              int64
	Failed               int64
	PrevHashed           int64
	Hashed               int64
	Removed              int64
}

// Stats snapshots the counters.
func (r *Reporter) Stats() Stats {
	return Stats{
		Completed:            r.completed.Load(),
		PreviouslyDownloaded: r.prevDownloaded.Load(),
		Skipped:              r.skipped.Load(),
		Failed:               r.failed.Load(),
		PrevHashed:           r.prevHashed.Load(),
		Hashed:               r.hashed.Load(),
		Removed:              r.removed.Load(),
	}
}
