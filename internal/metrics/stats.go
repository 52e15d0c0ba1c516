package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Stats represents aggregated metrics for a run.
type Stats struct {
	Duration   time.Duration `json:"-" yaml:"-"`
	DurationMs float64       `json:"duration_ms" yaml:"duration_ms"`

	Requests        int64   `json:"http_reqs" yaml:"http_reqs"`
	RequestsPerSec  float64 `json:"http_reqs_per_sec" yaml:"http_reqs_per_sec"`
	FailedRequests  int64   `json:"http_req_failed_count" yaml:"http_req_failed_count"`
	FailedRate      float64 `json:"http_req_failed_rate" yaml:"http_req_failed_rate"`
	RequestDuration Trend   `json:"http_req_duration" yaml:"http_req_duration"`

	Iterations            int64   `json:"iterations" yaml:"iterations"`
	IterationsPerSec      float64 `json:"iterations_per_sec" yaml:"iterations_per_sec"`
	IterationDuration     Trend   `json:"iteration_duration" yaml:"iteration_duration"`
	InterruptedIterations int64   `json:"interrupted_iterations" yaml:"interrupted_iterations"`
	DroppedIterations     int64   `json:"dropped_iterations" yaml:"dropped_iterations"`
	DroppedPerSec         float64 `json:"dropped_iterations_per_sec" yaml:"dropped_iterations_per_sec"`

	VUs    int `json:"vus" yaml:"vus"`
	VUsMax int `json:"vus_max" yaml:"vus_max"`

	DataSent     int64 `json:"data_sent" yaml:"data_sent"`
	DataReceived int64 `json:"data_received" yaml:"data_received"`

	Checks       []CheckStats `json:"checks,omitempty" yaml:"checks,omitempty"`
	ChecksPassed int64        `json:"checks_passed" yaml:"checks_passed"`
	ChecksFailed int64        `json:"checks_failed" yaml:"checks_failed"`
	ChecksRate   float64      `json:"checks_rate" yaml:"checks_rate"`

	Endpoints     map[string]EndpointStats  `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	StatusBuckets map[string]map[string]int `json:"status_buckets,omitempty" yaml:"status_buckets,omitempty"`
	Errors        map[string]int            `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Trend is a latency distribution summary in milliseconds.
type Trend struct {
	Count int64   `json:"count" yaml:"count"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Avg   float64 `json:"avg" yaml:"avg"`
	Med   float64 `json:"med" yaml:"med"`
	P90   float64 `json:"p(90)" yaml:"p(90)"`
	P95   float64 `json:"p(95)" yaml:"p(95)"`
	P99   float64 `json:"p(99)" yaml:"p(99)"`

	hist *hdrhistogram.Histogram
}

// Percentile returns the value at percentile p (0-100) in milliseconds, or 0
// when nothing has been recorded.
func (t Trend) Percentile(p float64) float64 {
	if t.hist == nil || t.hist.TotalCount() == 0 {
		return 0
	}
	us := t.hist.ValueAtQuantile(p)
	return durationMs(time.Duration(us) * time.Microsecond)
}

// CheckStats aggregates the results of one named check.
type CheckStats struct {
	Name   string  `json:"name" yaml:"name"`
	Passes int64   `json:"passes" yaml:"passes"`
	Fails  int64   `json:"fails" yaml:"fails"`
	Rate   float64 `json:"rate" yaml:"rate"`
}

// EndpointStats aggregates requests for one logical endpoint.
type EndpointStats struct {
	Requests   int64          `json:"requests" yaml:"requests"`
	Failures   int64          `json:"failures" yaml:"failures"`
	FailedRate float64        `json:"failed_rate" yaml:"failed_rate"`
	Duration   Trend          `json:"duration" yaml:"duration"`
	Statuses   map[string]int `json:"statuses,omitempty" yaml:"statuses,omitempty"`
}
