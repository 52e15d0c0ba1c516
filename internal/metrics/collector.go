package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/attendance/attendload/internal/check"
)

// RequestSample describes one completed (or failed) HTTP request.
type RequestSample struct {
	Endpoint      string // logical request name, e.g. "trends"
	Method        string
	Status        int // 0 when no response was received
	Duration      time.Duration
	BytesSent     int64
	BytesReceived int64
	Err           error
}

// Failed reports whether the request counts toward http_req_failed: a transport
// error or a status outside 200..399.
func (s RequestSample) Failed() bool {
	return s.Err != nil || s.Status < 200 || s.Status > 399
}

// Sink mirrors collector events into an external system.
type Sink interface {
	ObserveRequest(s RequestSample)
	ObserveCheck(r check.Result)
	ObserveIteration(d time.Duration, interrupted bool)
	ObserveDropped()
	ObserveVUs(active, allocated int)
}

// Collector records per-request, per-check and per-iteration metrics in a
// thread-safe manner.
type Collector struct {
	mu sync.Mutex

	requests     *trendState
	iterations   *trendState
	failures     int64
	endpoints    map[string]*endpointState
	checks       map[string]*checkState
	checkOrder   []string
	interrupted  int64
	dropped      int64
	vus          int
	vusMax       int
	bytesSent    int64
	bytesRecv    int64
	errorsByType map[string]int64
	sinks        []Sink
	start        time.Time
}

type endpointState struct {
	trend    *trendState
	failures int64
	statuses map[string]int
}

type checkState struct {
	passes int64
	fails  int64
}

// NewCollector creates a collector forwarding events to the given sinks.
func NewCollector(sinks ...Sink) *Collector {
	return &Collector{
		requests:     newTrendState(),
		iterations:   newTrendState(),
		endpoints:    make(map[string]*endpointState),
		checks:       make(map[string]*checkState),
		errorsByType: make(map[string]int64),
		sinks:        sinks,
		start:        time.Now(),
	}
}

// Start marks the beginning of the measured run.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// RecordRequest records a single request's latency, status and error state.
func (c *Collector) RecordRequest(s RequestSample) {
	c.mu.Lock()
	c.requests.record(s.Duration)
	ep := c.endpoints[s.Endpoint]
	if ep == nil {
		ep = &endpointState{trend: newTrendState(), statuses: make(map[string]int)}
		c.endpoints[s.Endpoint] = ep
	}
	ep.trend.record(s.Duration)
	c.bytesSent += s.BytesSent
	c.bytesRecv += s.BytesReceived

	if s.Failed() {
		c.failures++
		ep.failures++
		code := "error"
		if s.Status > 0 {
			code = strconv.Itoa(s.Status)
		}
		ep.statuses[code]++
		if s.Err != nil {
			c.errorsByType[ErrorName(s.Err)]++
		}
	}
	c.mu.Unlock()

	for _, sink := range c.sinks {
		sink.ObserveRequest(s)
	}
}

// RecordCheck implements check.Recorder.
func (c *Collector) RecordCheck(r check.Result) {
	c.mu.Lock()
	st := c.checks[r.Name]
	if st == nil {
		st = &checkState{}
		c.checks[r.Name] = st
		c.checkOrder = append(c.checkOrder, r.Name)
	}
	if r.Passed {
		st.passes++
	} else {
		st.fails++
	}
	c.mu.Unlock()

	for _, sink := range c.sinks {
		sink.ObserveCheck(r)
	}
}

// IterationStarted is called by the runner when an arrival is handed to a VU.
func (c *Collector) IterationStarted() {}

// IterationFinished records the duration of a finished iteration. Interrupted
// iterations are counted separately and do not feed iteration_duration.
func (c *Collector) IterationFinished(d time.Duration, err error, interrupted bool) {
	c.mu.Lock()
	if interrupted {
		c.interrupted++
	} else {
		c.iterations.record(d)
	}
	c.mu.Unlock()

	for _, sink := range c.sinks {
		sink.ObserveIteration(d, interrupted)
	}
}

// IterationDropped records an arrival that found every VU busy.
func (c *Collector) IterationDropped() {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()

	for _, sink := range c.sinks {
		sink.ObserveDropped()
	}
}

// VUs records the current number of busy and allocated virtual users.
func (c *Collector) VUs(active, allocated int) {
	c.mu.Lock()
	c.vus = active
	if allocated > c.vusMax {
		c.vusMax = allocated
	}
	c.mu.Unlock()

	for _, sink := range c.sinks {
		sink.ObserveVUs(active, allocated)
	}
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Duration:              elapsed,
		DurationMs:            durationMs(elapsed),
		Requests:              c.requests.count,
		FailedRequests:        c.failures,
		RequestDuration:       c.requests.trend(),
		Iterations:            c.iterations.count,
		IterationDuration:     c.iterations.trend(),
		InterruptedIterations: c.interrupted,
		DroppedIterations:     c.dropped,
		VUs:                   c.vus,
		VUsMax:                c.vusMax,
		DataSent:              c.bytesSent,
		DataReceived:          c.bytesRecv,
	}
	if stats.Requests > 0 {
		stats.FailedRate = float64(c.failures) / float64(stats.Requests)
	}
	if elapsed > 0 {
		stats.RequestsPerSec = float64(stats.Requests) / elapsed.Seconds()
		stats.IterationsPerSec = float64(stats.Iterations) / elapsed.Seconds()
		stats.DroppedPerSec = float64(stats.DroppedIterations) / elapsed.Seconds()
	}

	for _, name := range c.checkOrder {
		st := c.checks[name]
		cs := CheckStats{Name: name, Passes: st.passes, Fails: st.fails}
		if total := st.passes + st.fails; total > 0 {
			cs.Rate = float64(st.passes) / float64(total)
		}
		stats.Checks = append(stats.Checks, cs)
		stats.ChecksPassed += st.passes
		stats.ChecksFailed += st.fails
	}
	if total := stats.ChecksPassed + stats.ChecksFailed; total > 0 {
		stats.ChecksRate = float64(stats.ChecksPassed) / float64(total)
	}

	if len(c.endpoints) > 0 {
		stats.Endpoints = make(map[string]EndpointStats, len(c.endpoints))
		for name, ep := range c.endpoints {
			es := EndpointStats{
				Requests: ep.trend.count,
				Failures: ep.failures,
				Duration: ep.trend.trend(),
			}
			if es.Requests > 0 {
				es.FailedRate = float64(ep.failures) / float64(es.Requests)
			}
			if len(ep.statuses) > 0 {
				es.Statuses = make(map[string]int, len(ep.statuses))
				for code, n := range ep.statuses {
					es.Statuses[code] = n
				}
				if stats.StatusBuckets == nil {
					stats.StatusBuckets = make(map[string]map[string]int)
				}
				stats.StatusBuckets[name] = es.Statuses
			}
			stats.Endpoints[name] = es
		}
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = int(v)
		}
	}

	return stats
}

// trendState accumulates a latency distribution. Values are tracked from 1µs up
// to 60s with 3 significant figures.
type trendState struct {
	hist  *hdrhistogram.Histogram
	count int64
	sum   time.Duration
	min   time.Duration
	max   time.Duration
}

func newTrendState() *trendState {
	return &trendState{hist: hdrhistogram.New(1, 60_000_000, 3)}
}

func (t *trendState) record(d time.Duration) {
	us := d.Microseconds()
	if us < t.hist.LowestTrackableValue() {
		us = t.hist.LowestTrackableValue()
	}
	if us > t.hist.HighestTrackableValue() {
		us = t.hist.HighestTrackableValue()
	}
	_ = t.hist.RecordValue(us)

	if t.count == 0 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.count++
	t.sum += d
}

func (t *trendState) trend() Trend {
	tr := Trend{Count: t.count}
	if t.count == 0 {
		return tr
	}
	snapshot := hdrhistogram.Import(t.hist.Export())
	tr.hist = snapshot
	tr.Min = durationMs(t.min)
	tr.Max = durationMs(t.max)
	tr.Avg = durationMs(time.Duration(int64(t.sum) / t.count))
	tr.Med = tr.Percentile(50)
	tr.P90 = tr.Percentile(90)
	tr.P95 = tr.Percentile(95)
	tr.P99 = tr.Percentile(99)
	return tr
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
