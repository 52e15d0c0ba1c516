package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/attendance/attendload/internal/config"
	"github.com/attendance/attendload/internal/httpclient"
	"github.com/attendance/attendload/internal/metrics"
	"github.com/attendance/attendload/internal/output"
	"github.com/attendance/attendload/internal/runner"
	"github.com/attendance/attendload/internal/scenario"
	"github.com/attendance/attendload/internal/threshold"
	"github.com/attendance/attendload/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second

	exitOK                = 0
	exitError             = 1
	exitThresholdsCrossed = 99
)

// ThresholdError reports a completed run whose thresholds were crossed.
type ThresholdError struct {
	Failed []threshold.Result
}

func (e *ThresholdError) Error() string {
	names := make([]string, len(e.Failed))
	for i, r := range e.Failed {
		names[i] = r.Threshold.Raw
	}
	return fmt.Sprintf("thresholds crossed: %s", strings.Join(names, ", "))
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = execute(ctx, cfg, stdout, stderr)
	var thErr *ThresholdError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &thErr):
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitThresholdsCrossed
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
}

func execute(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	var sinks []metrics.Sink
	var stopMetrics func()
	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		reg := prometheus.NewRegistry()
		sink, err := metrics.NewPrometheusSink(reg)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		sinks = append(sinks, sink)
		stopMetrics, err = serveMetrics(addr, reg)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}
	collector := metrics.NewCollector(sinks...)

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "[attendload] tracing shutdown: %v\n", err)
		}
	}()

	records, closeFeeder, err := buildRecordSource(ctx, cfg)
	if err != nil {
		return err
	}
	if closeFeeder != nil {
		defer closeFeeder()
	}

	authProvider, err := buildAuthProvider(cfg)
	if err != nil {
		return err
	}
	if authProvider != nil {
		defer authProvider.Close()
	}

	var logger runner.FailureLogger
	if cfg.LogErrors {
		logger = &stderrFailureLogger{w: stderr}
	}

	opt := scenario.Options{
		BaseURL:   cfg.BaseURL,
		Client:    httpclient.NewClient(cfg.Timeout, cfg.MaxVUs),
		Headers:   cfg.Headers,
		Records:   records,
		Pause:     cfg.Pause,
		Recorder:  collector,
		Logger:    logger,
		Tracer:    provider.Tracer(),
		Propagate: provider.ShouldPropagate(),
	}
	if authProvider != nil {
		opt.Auth = authProvider
	}
	attendance, err := scenario.New(opt)
	if err != nil {
		return err
	}

	var it runner.Iteration = attendance
	if logger != nil {
		it = runner.WithLogging(it, logger)
	}
	r := runner.New(runnerOptions(cfg, it, collector))

	format := cfg.Format()
	var progress *output.ProgressReporter
	if !cfg.Quiet && format == config.SummaryText {
		progress = output.NewProgressReporter(collector, progressInterval, cfg.TotalDuration(), stdout)
		progress.Start()
	}

	start := time.Now()
	collector.Start()
	result := r.Run(ctx)
	end := time.Now()
	if progress != nil {
		progress.Stop()
	}

	stats := collector.Stats(result.Duration)
	results := threshold.NewEvaluator(thresholds).Evaluate(stats)
	summary := output.NewSummary(cfg, start, end, result, stats, results)

	switch format {
	case config.SummaryJSON:
		err = output.PrintJSONReport(stdout, summary)
	case config.SummaryYAML:
		err = output.PrintYAMLReport(stdout, summary)
	default:
		output.PrintReport(stdout, summary)
	}
	if err != nil {
		return err
	}

	// Interrupted runs are exported too.
	if err := output.ExportSummary(context.Background(), cfg.SummaryExport, summary); err != nil {
		return err
	}

	if !threshold.AllPassed(results) {
		var failed []threshold.Result
		for _, res := range results {
			if !res.Pass {
				failed = append(failed, res)
			}
		}
		return &ThresholdError{Failed: failed}
	}
	return nil
}

func serveMetrics(addr string, g prometheus.Gatherer) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler(g)).Methods(http.MethodGet)
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go srv.Serve(ln)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
