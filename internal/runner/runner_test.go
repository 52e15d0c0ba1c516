package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attendance/attendload/internal/runner"
)

// fakeIteration simulates an iteration with fixed latency.
type fakeIteration struct {
	latency time.Duration
	calls   atomic.Int64
}

func (f *fakeIteration) Do(ctx context.Context) error {
	f.calls.Add(1)
	select {
	case <-time.After(f.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type recordingObserver struct {
	started, finished, interrupted, dropped atomic.Int64
	maxAllocated                            atomic.Int64
}

func (o *recordingObserver) IterationStarted() { o.started.Add(1) }
func (o *recordingObserver) IterationDropped() { o.dropped.Add(1) }

func (o *recordingObserver) IterationFinished(_ time.Duration, _ error, interrupted bool) {
	o.finished.Add(1)
	if interrupted {
		o.interrupted.Add(1)
	}
}

func (o *recordingObserver) VUs(_, allocated int) {
	for {
		cur := o.maxAllocated.Load()
		if int64(allocated) <= cur || o.maxAllocated.CompareAndSwap(cur, int64(allocated)) {
			return
		}
	}
}

func within(t *testing.T, name string, got, want int64, tolerance float64) {
	t.Helper()
	lo := int64(float64(want) * (1 - tolerance))
	hi := int64(float64(want)*(1+tolerance)) + 1
	if got < lo || got > hi {
		t.Fatalf("%s = %d, want %d ±%.0f%%", name, got, want, tolerance*100)
	}
}

func TestRunnerStartsRateTimesDurationIterations(t *testing.T) {
	it := &fakeIteration{latency: time.Millisecond}
	r := runner.New(runner.Options{
		RatePerSecond:   200,
		Duration:        500 * time.Millisecond,
		PreAllocatedVUs: 5,
		MaxVUs:          10,
		GracefulStop:    time.Second,
		Iteration:       it,
	})
	res := r.Run(context.Background())

	within(t, "started", res.Started, 100, 0.2)
	if res.Completed != res.Started {
		t.Fatalf("completed %d of %d started", res.Completed, res.Started)
	}
	if res.Dropped != 0 || res.Interrupted != 0 {
		t.Fatalf("unexpected drops/interrupts: %+v", res)
	}
	if it.calls.Load() != res.Started {
		t.Fatalf("iteration called %d times, started %d", it.calls.Load(), res.Started)
	}
}

func TestArrivalRateIndependentOfLatency(t *testing.T) {
	it := &fakeIteration{latency: 50 * time.Millisecond}
	r := runner.New(runner.Options{
		RatePerSecond:   100,
		Duration:        300 * time.Millisecond,
		PreAllocatedVUs: 1,
		MaxVUs:          20,
		GracefulStop:    time.Second,
		Iteration:       it,
	})
	res := r.Run(context.Background())

	within(t, "started", res.Started, 30, 0.25)
	if res.Dropped != 0 {
		t.Fatalf("dropped %d arrivals with spare VUs", res.Dropped)
	}
	if res.AllocatedVUs <= 1 {
		t.Fatalf("pool should grow beyond one VU, allocated %d", res.AllocatedVUs)
	}
	if res.AllocatedVUs > 20 {
		t.Fatalf("allocated %d VUs beyond max", res.AllocatedVUs)
	}
}

func TestArrivalsDroppedWhenMaxVUsBusy(t *testing.T) {
	obs := &recordingObserver{}
	it := &fakeIteration{latency: time.Hour}
	r := runner.New(runner.Options{
		RatePerSecond:   100,
		Duration:        200 * time.Millisecond,
		PreAllocatedVUs: 2,
		MaxVUs:          3,
		GracefulStop:    0,
		Iteration:       it,
		Observer:        obs,
	})
	res := r.Run(context.Background())

	if res.Started != 3 {
		t.Fatalf("started = %d, want 3", res.Started)
	}
	if res.Dropped < 10 {
		t.Fatalf("dropped = %d, want most arrivals dropped", res.Dropped)
	}
	if res.Interrupted != 3 || res.Completed != 0 {
		t.Fatalf("expected all in-flight iterations interrupted: %+v", res)
	}
	if res.AllocatedVUs != 3 || res.PeakVUs != 3 {
		t.Fatalf("allocated=%d peak=%d, want 3", res.AllocatedVUs, res.PeakVUs)
	}
	if obs.dropped.Load() != res.Dropped {
		t.Fatalf("observer dropped %d, result %d", obs.dropped.Load(), res.Dropped)
	}
	if obs.interrupted.Load() != 3 {
		t.Fatalf("observer interrupted %d", obs.interrupted.Load())
	}
	if obs.maxAllocated.Load() != 3 {
		t.Fatalf("observer max allocated %d", obs.maxAllocated.Load())
	}
}

func TestGracefulStopLetsInFlightIterationsFinish(t *testing.T) {
	it := &fakeIteration{latency: 150 * time.Millisecond}
	r := runner.New(runner.Options{
		RatePerSecond:   20,
		Duration:        100 * time.Millisecond,
		PreAllocatedVUs: 5,
		MaxVUs:          5,
		GracefulStop:    time.Second,
		Iteration:       it,
	})
	res := r.Run(context.Background())

	if res.Started == 0 {
		t.Fatal("expected iterations to start")
	}
	if res.Interrupted != 0 || res.Completed != res.Started {
		t.Fatalf("in-flight iterations should finish: %+v", res)
	}
	if res.Duration < 150*time.Millisecond {
		t.Fatalf("run returned before in-flight iterations finished: %s", res.Duration)
	}
}

func TestGracefulStopExpiryInterrupts(t *testing.T) {
	it := &fakeIteration{latency: 5 * time.Second}
	r := runner.New(runner.Options{
		RatePerSecond:   20,
		Duration:        50 * time.Millisecond,
		PreAllocatedVUs: 2,
		MaxVUs:          2,
		GracefulStop:    50 * time.Millisecond,
		Iteration:       it,
	})
	start := time.Now()
	res := r.Run(context.Background())

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("graceful stop not enforced, run took %s", elapsed)
	}
	if res.Started == 0 || res.Interrupted != res.Started {
		t.Fatalf("expected every started iteration interrupted: %+v", res)
	}
}

func TestCancelInterruptsImmediately(t *testing.T) {
	it := &fakeIteration{latency: 10 * time.Second}
	r := runner.New(runner.Options{
		RatePerSecond:   50,
		Duration:        time.Minute,
		PreAllocatedVUs: 2,
		MaxVUs:          4,
		GracefulStop:    30 * time.Second,
		Iteration:       it,
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	res := r.Run(ctx)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cancel did not stop the run promptly: %s", elapsed)
	}
	if res.Interrupted == 0 {
		t.Fatalf("expected interrupted iterations: %+v", res)
	}
}

func TestIterationsReportFailures(t *testing.T) {
	var n atomic.Int64
	it := runner.IterationFunc(func(ctx context.Context) error {
		if n.Add(1)%2 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	r := runner.New(runner.Options{
		RatePerSecond:   200,
		Duration:        100 * time.Millisecond,
		PreAllocatedVUs: 2,
		MaxVUs:          2,
		GracefulStop:    time.Second,
		Iteration:       it,
	})
	res := r.Run(context.Background())

	if res.Failed == 0 || res.Failed >= res.Started {
		t.Fatalf("failed = %d of %d", res.Failed, res.Started)
	}
	if res.Completed != res.Started || res.Interrupted != 0 {
		t.Fatalf("failed iterations still complete: %+v", res)
	}
}

func TestIterationInfoInContext(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}
	var lastIter int64
	it := runner.IterationFunc(func(ctx context.Context) error {
		info, ok := runner.IterationFromContext(ctx)
		if !ok {
			return errors.New("missing iteration info")
		}
		mu.Lock()
		seen[info.VU] = true
		if info.Iteration > lastIter {
			lastIter = info.Iteration
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	r := runner.New(runner.Options{
		RatePerSecond:   100,
		Duration:        200 * time.Millisecond,
		PreAllocatedVUs: 1,
		MaxVUs:          4,
		GracefulStop:    time.Second,
		Iteration:       it,
	})
	res := r.Run(context.Background())

	if res.Failed != 0 {
		t.Fatalf("iterations without info: %d", res.Failed)
	}
	mu.Lock()
	defer mu.Unlock()
	for id := range seen {
		if id < 1 || id > 4 {
			t.Fatalf("VU id %d out of range", id)
		}
	}
	if lastIter != res.Started {
		t.Fatalf("last iteration number %d, started %d", lastIter, res.Started)
	}
}

func TestStagesDriveRateAndLength(t *testing.T) {
	it := &fakeIteration{latency: time.Millisecond}
	r := runner.New(runner.Options{
		RatePerSecond:   0,
		Duration:        time.Hour,
		PreAllocatedVUs: 2,
		MaxVUs:          4,
		GracefulStop:    time.Second,
		Stages: []runner.Stage{
			{Duration: 300 * time.Millisecond, Target: 100},
		},
		Iteration: it,
	})
	start := time.Now()
	res := r.Run(context.Background())

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stages should bound the run, took %s", elapsed)
	}
	if res.Started < 1 || res.Started > 30 {
		t.Fatalf("started = %d, want a ramp-shaped count", res.Started)
	}
}

func TestPoissonArrivalsWithFixedSampler(t *testing.T) {
	it := &fakeIteration{latency: time.Millisecond}
	r := runner.New(runner.Options{
		RatePerSecond:   100,
		Duration:        300 * time.Millisecond,
		PreAllocatedVUs: 2,
		MaxVUs:          4,
		ArrivalModel:    runner.ArrivalModelPoisson,
		PoissonSampler:  func() float64 { return 1 },
		GracefulStop:    time.Second,
		Iteration:       it,
	})
	res := r.Run(context.Background())
	within(t, "started", res.Started, 30, 0.3)
}

type countingLogger struct {
	mu   sync.Mutex
	errs []error
}

func (l *countingLogger) LogFailure(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func TestWithLoggingSkipsCancellation(t *testing.T) {
	logger := &countingLogger{}
	failing := runner.WithLogging(runner.IterationFunc(func(ctx context.Context) error {
		return &runner.HTTPError{Endpoint: "create", StatusCode: 500, Body: "boom"}
	}), logger)
	cancelled := runner.WithLogging(runner.IterationFunc(func(ctx context.Context) error {
		return context.Canceled
	}), logger)

	if err := failing.Do(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
	if err := cancelled.Do(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}

	if len(logger.errs) != 1 {
		t.Fatalf("logged %d errors, want 1", len(logger.errs))
	}
	if got := logger.errs[0].Error(); got != "create: HTTP 500: boom" {
		t.Fatalf("logged %q", got)
	}
	if runner.WithLogging(failing, nil) != failing {
		t.Fatal("nil logger should return the iteration unchanged")
	}
}
