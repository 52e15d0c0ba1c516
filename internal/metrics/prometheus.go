package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attendance/attendload/internal/check"
)

const namespace = "attendload"

// PrometheusSink exposes live run metrics as Prometheus collectors.
type PrometheusSink struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	checks          *prometheus.CounterVec
	iterations      *prometheus.CounterVec
	iterationTime   prometheus.Histogram
	dropped         prometheus.Counter
	vus             prometheus.Gauge
	vusAllocated    prometheus.Gauge
}

// NewPrometheusSink creates the run collectors and registers them with reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_reqs_total",
				Help:      "Total number of HTTP requests issued against the target",
			},
			[]string{"endpoint", "method", "status", "failed"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_req_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Check evaluations by name and outcome",
			},
			[]string{"check", "result"},
		),
		iterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "iterations_total",
				Help:      "Finished iterations by outcome",
			},
			[]string{"outcome"},
		),
		iterationTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "iteration_duration_seconds",
				Help:      "Duration of complete iterations in seconds",
				Buckets:   []float64{.1, .25, .5, .75, 1, 1.5, 2, 5, 10},
			},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_iterations_total",
				Help:      "Arrivals dropped because every VU was busy",
			},
		),
		vus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "vus",
				Help:      "Virtual users currently running an iteration",
			},
		),
		vusAllocated: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "vus_allocated",
				Help:      "Virtual users allocated in the pool",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		s.requests, s.requestDuration, s.checks, s.iterations,
		s.iterationTime, s.dropped, s.vus, s.vusAllocated,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusSink) ObserveRequest(r RequestSample) {
	status := "error"
	if r.Status > 0 {
		status = strconv.Itoa(r.Status)
	}
	s.requests.WithLabelValues(r.Endpoint, r.Method, status, strconv.FormatBool(r.Failed())).Inc()
	s.requestDuration.WithLabelValues(r.Endpoint, r.Method).Observe(r.Duration.Seconds())
}

func (s *PrometheusSink) ObserveCheck(r check.Result) {
	result := "pass"
	if !r.Passed {
		result = "fail"
	}
	s.checks.WithLabelValues(r.Name, result).Inc()
}

func (s *PrometheusSink) ObserveIteration(d time.Duration, interrupted bool) {
	if interrupted {
		s.iterations.WithLabelValues("interrupted").Inc()
		return
	}
	s.iterations.WithLabelValues("complete").Inc()
	s.iterationTime.Observe(d.Seconds())
}

func (s *PrometheusSink) ObserveDropped() {
	s.dropped.Inc()
}

func (s *PrometheusSink) ObserveVUs(active, allocated int) {
	s.vus.Set(float64(active))
	s.vusAllocated.Set(float64(allocated))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
