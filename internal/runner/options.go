package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Iteration is one unit of scripted work executed by a VU.
// Do should return an error only when the iteration could not run to its
// end, e.g. because ctx was cancelled.
type Iteration interface {
	Do(ctx context.Context) error
}

// IterationFunc adapts a plain function to Iteration.
type IterationFunc func(ctx context.Context) error

func (f IterationFunc) Do(ctx context.Context) error { return f(ctx) }

// Observer receives executor lifecycle events. Implementations must be safe
// for concurrent use; metrics.Collector satisfies it.
type Observer interface {
	IterationStarted()
	IterationFinished(d time.Duration, err error, interrupted bool)
	IterationDropped()
	VUs(active, allocated int)
}

// DefaultGracefulStop is how long in-flight iterations may run past the end
// of the schedule before they are interrupted.
const DefaultGracefulStop = 30 * time.Second

// Options configure the constant-arrival-rate executor.
type Options struct {
	RatePerSecond   float64       // iterations started per second
	Duration        time.Duration // how long new iterations are started; ignored when Stages is set
	PreAllocatedVUs int           // VUs started before the first arrival
	MaxVUs          int           // upper bound on VUs; arrivals beyond it are dropped
	GracefulStop    time.Duration // grace period for in-flight iterations after Duration
	ArrivalModel    ArrivalModel
	RandomSeed      int64
	PoissonSampler  func() float64 // optional override for the exponential sampler
	Stages          []Stage
	Iteration       Iteration // iteration executor (required)
	Observer        Observer  // optional

	// LimiterFactory replaces the uniform limiter, mainly in tests.
	LimiterFactory func(rps float64) *rate.Limiter
}

func (o *Options) normalize() {
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.Duration < 0 {
		o.Duration = 0
	}
	if o.PreAllocatedVUs < 1 {
		o.PreAllocatedVUs = 1
	}
	if o.MaxVUs < o.PreAllocatedVUs {
		o.MaxVUs = o.PreAllocatedVUs
	}
	if o.GracefulStop < 0 {
		o.GracefulStop = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps float64) *rate.Limiter {
			if rps <= 0 {
				rps = 1
			}
			// Burst of one spaces arrivals evenly from the first tick.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type nopObserver struct{}

func (nopObserver) IterationStarted()                            {}
func (nopObserver) IterationFinished(time.Duration, error, bool) {}
func (nopObserver) IterationDropped()                            {}
func (nopObserver) VUs(int, int)                                 {}
