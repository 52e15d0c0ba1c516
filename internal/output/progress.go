package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/attendance/attendload/internal/metrics"
)

// ProgressReporter rewrites a single status line at a fixed interval.
type ProgressReporter struct {
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	total     time.Duration
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. total is the scheduled run length, shown as a percentage.
func NewProgressReporter(collector *metrics.Collector, interval, total time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		total:     total,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts progress updates and terminates the status line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+progressLine(p.collector.Stats(p.collector.Elapsed()), p.total))
		case <-p.done:
			return
		}
	}
}

func progressLine(stats metrics.Stats, total time.Duration) string {
	line := fmt.Sprintf("running (%s", stats.Duration.Truncate(time.Second))
	if total > 0 {
		pct := float64(stats.Duration) / float64(total) * 100
		if pct > 100 {
			pct = 100
		}
		line += fmt.Sprintf("/%s, %3.0f%%", total, pct)
	}
	line += fmt.Sprintf(") | VUs %d/%d | iterations %d (%.1f/s) | dropped %d | http_req_failed %.2f%% | p(95) %s",
		stats.VUs, stats.VUsMax, stats.Iterations, stats.IterationsPerSec, stats.DroppedIterations,
		stats.FailedRate*100, formatMs(stats.RequestDuration.P95))
	return line
}
