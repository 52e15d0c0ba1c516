package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/attendance/attendload/internal/auth"
	"github.com/attendance/attendload/internal/config"
	feederpkg "github.com/attendance/attendload/internal/feeder"
	"github.com/attendance/attendload/internal/runner"
	"github.com/attendance/attendload/internal/scenario"
)

type stderrFailureLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *stderrFailureLogger) LogFailure(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[attendload] request failed: %v\n", err)
}

func buildAuthProvider(cfg *config.Config) (auth.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	token := strings.TrimSpace(cfg.Auth.Token)
	if token == "" {
		return nil, nil
	}
	if header := strings.TrimSpace(cfg.Auth.Header); header != "" {
		return auth.NewHeaderTokenProvider(header, token), nil
	}
	return auth.NewStaticTokenProvider(token), nil
}

// buildRecordSource returns nil when no feeder is configured, leaving the
// scenario on its fixed payload.
func buildRecordSource(ctx context.Context, cfg *config.Config) (scenario.RecordSource, func() error, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config cannot be nil")
	}
	path := strings.TrimSpace(cfg.Feeder.Path)
	if path == "" {
		return nil, nil, nil
	}

	var (
		f   feederpkg.Feeder
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Feeder.Type)) {
	case "csv":
		f, err = feederpkg.NewCSVFeeder(path, true)
	case "json":
		f, err = feederpkg.NewJSONFeeder(path, true)
	default:
		f, err = feederpkg.Open(path, true)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("feeder: %w", err)
	}
	if f.Len() == 0 {
		f.Close()
		return nil, nil, fmt.Errorf("feeder: %s has no records", path)
	}

	src, err := scenario.FromFeeder(ctx, f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return src, f.Close, nil
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}

func toRunnerStages(stages []config.Stage) []runner.Stage {
	if len(stages) == 0 {
		return nil
	}
	out := make([]runner.Stage, len(stages))
	for i, s := range stages {
		out[i] = runner.Stage{Duration: s.Duration, Target: s.Target}
	}
	return out
}

func runnerOptions(cfg *config.Config, it runner.Iteration, obs runner.Observer) runner.Options {
	return runner.Options{
		RatePerSecond:   cfg.RatePerSecond(),
		Duration:        cfg.Duration,
		PreAllocatedVUs: cfg.PreAllocatedVUs,
		MaxVUs:          cfg.MaxVUs,
		GracefulStop:    cfg.GracefulStop,
		ArrivalModel:    toRunnerArrivalModel(cfg.Arrival.Model),
		Stages:          toRunnerStages(cfg.StageTargetsPerSecond()),
		Iteration:       it,
		Observer:        obs,
	}
}
