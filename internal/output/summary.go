// Package output renders and exports the end-of-run summary and prints live
// progress while the run is in flight.
package output

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/attendance/attendload/internal/config"
	"github.com/attendance/attendload/internal/metrics"
	"github.com/attendance/attendload/internal/runner"
	"github.com/attendance/attendload/internal/threshold"
)

// Summary is everything reported about one run.
type Summary struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	EndedAt    time.Time         `json:"ended_at" yaml:"ended_at"`
	Scenario   ScenarioEcho      `json:"scenario" yaml:"scenario"`
	Iterations IterationCounts   `json:"iterations" yaml:"iterations"`
	Metrics    metrics.Stats     `json:"metrics" yaml:"metrics"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Passed     bool              `json:"passed" yaml:"passed"`
}

// ScenarioEcho records the load profile the run was configured with.
type ScenarioEcho struct {
	BaseURL         string  `json:"base_url" yaml:"base_url"`
	Executor        string  `json:"executor" yaml:"executor"`
	Rate            float64 `json:"rate" yaml:"rate"`
	TimeUnit        string  `json:"time_unit" yaml:"time_unit"`
	Duration        string  `json:"duration" yaml:"duration"`
	Stages          int     `json:"stages,omitempty" yaml:"stages,omitempty"`
	PreAllocatedVUs int     `json:"pre_allocated_vus" yaml:"pre_allocated_vus"`
	MaxVUs          int     `json:"max_vus" yaml:"max_vus"`
	Pause           string  `json:"pause" yaml:"pause"`
	ArrivalModel    string  `json:"arrival_model" yaml:"arrival_model"`
	GracefulStop    string  `json:"graceful_stop" yaml:"graceful_stop"`
}

// IterationCounts mirrors runner.Result.
type IterationCounts struct {
	Started      int64 `json:"started" yaml:"started"`
	Completed    int64 `json:"completed" yaml:"completed"`
	Interrupted  int64 `json:"interrupted" yaml:"interrupted"`
	Failed       int64 `json:"failed" yaml:"failed"`
	Dropped      int64 `json:"dropped" yaml:"dropped"`
	PeakVUs      int   `json:"peak_vus" yaml:"peak_vus"`
	AllocatedVUs int   `json:"allocated_vus" yaml:"allocated_vus"`
}

// ThresholdResult is one evaluated threshold, keyed by its raw expression.
type ThresholdResult struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Pass      bool    `json:"pass" yaml:"pass"`
	Message   string  `json:"message" yaml:"message"`
}

// NewSummary assembles the summary of a run that ended at end. Passed is
// false when any threshold failed.
func NewSummary(cfg *config.Config, start, end time.Time, res runner.Result, stats metrics.Stats, results []threshold.Result) Summary {
	s := Summary{
		RunID:     ulid.MustNew(ulid.Timestamp(start), ulid.DefaultEntropy()).String(),
		StartedAt: start.UTC(),
		EndedAt:   end.UTC(),
		Scenario:  echoScenario(cfg),
		Iterations: IterationCounts{
			Started:      res.Started,
			Completed:    res.Completed,
			Interrupted:  res.Interrupted,
			Failed:       res.Failed,
			Dropped:      res.Dropped,
			PeakVUs:      res.PeakVUs,
			AllocatedVUs: res.AllocatedVUs,
		},
		Metrics: stats,
		Passed:  threshold.AllPassed(results),
	}
	for _, r := range results {
		s.Thresholds = append(s.Thresholds, ThresholdResult{
			Threshold: r.Threshold.Raw,
			Actual:    r.Actual,
			Pass:      r.Pass,
			Message:   r.Message,
		})
	}
	return s
}

func echoScenario(cfg *config.Config) ScenarioEcho {
	if cfg == nil {
		return ScenarioEcho{}
	}
	echo := ScenarioEcho{
		BaseURL:         cfg.BaseURL,
		Executor:        "constant-arrival-rate",
		Rate:            cfg.Rate,
		TimeUnit:        cfg.TimeUnit.String(),
		Duration:        cfg.TotalDuration().String(),
		Stages:          len(cfg.Stages),
		PreAllocatedVUs: cfg.PreAllocatedVUs,
		MaxVUs:          cfg.MaxVUs,
		Pause:           cfg.Pause.String(),
		ArrivalModel:    string(cfg.Arrival.Model),
		GracefulStop:    cfg.GracefulStop.String(),
	}
	if len(cfg.Stages) > 0 {
		echo.Executor = "ramping-arrival-rate"
	}
	if echo.ArrivalModel == "" {
		echo.ArrivalModel = string(config.ArrivalModelUniform)
	}
	return echo
}
