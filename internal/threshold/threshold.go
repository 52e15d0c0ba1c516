package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/attendance/attendload/internal/metrics"
)

// Metric names understood by the evaluator.
const (
	MetricHTTPReqDuration   = "http_req_duration"
	MetricHTTPReqFailed     = "http_req_failed"
	MetricHTTPReqs          = "http_reqs"
	MetricIterationDuration = "iteration_duration"
	MetricIterations        = "iterations"
	MetricDroppedIterations = "dropped_iterations"
	MetricChecks            = "checks"
)

// Defaults are the pass/fail conditions applied when none are configured:
// fewer than 1% failed requests and a p95 request duration under 500ms.
var Defaults = []string{
	"http_req_failed:rate < 0.01",
	"http_req_duration:p(95) < 500",
}

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric     string  // e.g. "http_req_duration", "http_req_failed"
	Endpoint   string  // optional endpoint tag filter, e.g. "trends"
	Aggregate  string  // normalized aggregate, e.g. "p(95)", "avg", "rate"
	Percentile float64 // set when Aggregate is a percentile
	Operator   string  // "<", "<=", ">", ">=", "==", "!="
	Value      float64 // bound compared against
	Raw        string  // original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided stats.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, stats))
	}
	return results
}

// AllPassed reports whether every result passed. An empty slice passes.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: error: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %s %s %s", status, t.Raw, formatValue(actual), t.Operator, formatValue(t.Value)),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+)(?:\{endpoint:([A-Za-z0-9_-]+)\})?\s*:\s*(p\(\d+(?:\.\d+)?\)|p\d+(?:\.\d+)?|[a-z]+)\s*(<=|>=|===|==|!=|<|>)\s*(-?[0-9]+(?:\.[0-9]+)?)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported forms:
//   - "http_req_duration:p(95) < 500"           (latency percentile in ms)
//   - "http_req_duration{endpoint:trends}:p95 < 300"
//   - "http_req_failed:rate < 0.01"             (failure rate as decimal)
//   - "checks:rate > 0.99"
//   - "dropped_iterations:count < 10"
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'http_req_duration:p(95) < 500')", s)
	}

	t := Threshold{
		Metric:   matches[1],
		Endpoint: matches[2],
		Operator: matches[4],
		Raw:      s,
	}
	if t.Operator == "===" {
		t.Operator = "=="
	}

	value, err := strconv.ParseFloat(matches[5], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", matches[5], err)
	}
	t.Value = value

	kind, ok := metricKinds[t.Metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", t.Metric, strings.Join(supportedMetrics(), ", "))
	}
	if t.Endpoint != "" && !kind.taggable {
		return Threshold{}, fmt.Errorf("metric %q does not support an endpoint filter", t.Metric)
	}

	aggregate := matches[3]
	if p, ok := parsePercentile(aggregate); ok {
		if !kind.trend {
			return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s", aggregate, t.Metric)
		}
		if p <= 0 || p > 100 {
			return Threshold{}, fmt.Errorf("percentile out of range in %q", aggregate)
		}
		t.Percentile = p
		t.Aggregate = fmt.Sprintf("p(%s)", strconv.FormatFloat(p, 'f', -1, 64))
	} else {
		if !kind.allows(aggregate) {
			return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, t.Metric, strings.Join(kind.aggregates, ", "))
		}
		t.Aggregate = aggregate
	}

	return t, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

type metricKind struct {
	trend      bool
	taggable   bool
	aggregates []string
}

func (k metricKind) allows(aggregate string) bool {
	for _, a := range k.aggregates {
		if a == aggregate {
			return true
		}
	}
	return false
}

var trendAggregates = []string{"p(N)", "avg", "med", "min", "max"}

var metricKinds = map[string]metricKind{
	MetricHTTPReqDuration:   {trend: true, taggable: true, aggregates: trendAggregates},
	MetricIterationDuration: {trend: true, aggregates: trendAggregates},
	MetricHTTPReqFailed:     {taggable: true, aggregates: []string{"rate", "count"}},
	MetricHTTPReqs:          {taggable: true, aggregates: []string{"count", "rate"}},
	MetricIterations:        {aggregates: []string{"count", "rate"}},
	MetricDroppedIterations: {aggregates: []string{"count", "rate"}},
	MetricChecks:            {aggregates: []string{"rate"}},
}

func supportedMetrics() []string {
	return []string{
		MetricHTTPReqDuration, MetricHTTPReqFailed, MetricHTTPReqs,
		MetricIterationDuration, MetricIterations, MetricDroppedIterations, MetricChecks,
	}
}

func parsePercentile(aggregate string) (float64, bool) {
	if !strings.HasPrefix(aggregate, "p") {
		return 0, false
	}
	raw := strings.TrimPrefix(aggregate, "p")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "("), ")")
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return p, true
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	switch t.Metric {
	case MetricHTTPReqDuration:
		trend := stats.RequestDuration
		if t.Endpoint != "" {
			ep, ok := stats.Endpoints[t.Endpoint]
			if !ok {
				return 0, fmt.Errorf("no requests recorded for endpoint %q", t.Endpoint)
			}
			trend = ep.Duration
		}
		return extractTrend(t, trend)
	case MetricIterationDuration:
		return extractTrend(t, stats.IterationDuration)
	case MetricHTTPReqFailed:
		failures, total, rate := stats.FailedRequests, stats.Requests, stats.FailedRate
		if t.Endpoint != "" {
			ep := stats.Endpoints[t.Endpoint]
			failures, total, rate = ep.Failures, ep.Requests, ep.FailedRate
		}
		if t.Aggregate == "count" {
			return float64(failures), nil
		}
		if total == 0 {
			return 0, nil
		}
		return rate, nil
	case MetricHTTPReqs:
		if t.Endpoint != "" {
			ep := stats.Endpoints[t.Endpoint]
			if t.Aggregate == "count" {
				return float64(ep.Requests), nil
			}
			if stats.Duration <= 0 {
				return 0, nil
			}
			return float64(ep.Requests) / stats.Duration.Seconds(), nil
		}
		return countOrRate(t.Aggregate, stats.Requests, stats.RequestsPerSec), nil
	case MetricIterations:
		return countOrRate(t.Aggregate, stats.Iterations, stats.IterationsPerSec), nil
	case MetricDroppedIterations:
		return countOrRate(t.Aggregate, stats.DroppedIterations, stats.DroppedPerSec), nil
	case MetricChecks:
		return stats.ChecksRate, nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractTrend(t Threshold, trend metrics.Trend) (float64, error) {
	if t.Percentile > 0 {
		return trend.Percentile(t.Percentile), nil
	}
	switch t.Aggregate {
	case "avg":
		return trend.Avg, nil
	case "med":
		return trend.Med, nil
	case "min":
		return trend.Min, nil
	case "max":
		return trend.Max, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s", t.Aggregate, t.Metric)
	}
}

func countOrRate(aggregate string, count int64, rate float64) float64 {
	if aggregate == "count" {
		return float64(count)
	}
	return rate
}

func compareValues(actual float64, operator string, expected float64) bool {
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	case "!=":
		return math.Abs(actual-expected) >= epsilon
	default:
		return false
	}
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
