package runner

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ArrivalModel selects how arrivals are spaced at a given rate.
type ArrivalModel string

const (
	// ArrivalModelUniform spaces arrivals evenly (constant arrival rate).
	ArrivalModelUniform ArrivalModel = "uniform"
	// ArrivalModelPoisson samples exponential inter-arrival gaps with the same mean rate.
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type arrivalController interface {
	Wait(ctx context.Context) error
	SetRate(rps float64)
}

func newArrivalController(opt Options, plan *stagePlan) arrivalController {
	baseRate := opt.RatePerSecond
	if plan != nil {
		if r, ok := plan.rateAt(0); ok {
			baseRate = r
		} else {
			baseRate = 0
		}
	}

	switch opt.ArrivalModel {
	case ArrivalModelPoisson:
		sampler := opt.PoissonSampler
		if sampler == nil {
			seeded := rand.New(rand.NewSource(opt.RandomSeed))
			sampler = seeded.ExpFloat64
		}
		ctrl := &poissonArrival{sample: sampler, gate: newRateGate()}
		ctrl.SetRate(baseRate)
		return ctrl
	default:
		ctrl := &uniformArrival{limiter: opt.LimiterFactory(baseRate), gate: newRateGate()}
		ctrl.SetRate(baseRate)
		return ctrl
	}
}

// rateGate parks callers while the configured rate is zero, e.g. during a
// stage that ramps down to nothing.
type rateGate struct {
	mu      sync.Mutex
	rps     float64
	changed chan struct{}
}

func newRateGate() *rateGate {
	return &rateGate{changed: make(chan struct{})}
}

func (g *rateGate) set(rps float64) {
	if rps < 0 {
		rps = 0
	}
	g.mu.Lock()
	g.rps = rps
	close(g.changed)
	g.changed = make(chan struct{})
	g.mu.Unlock()
}

// await blocks until the rate is positive and returns it.
func (g *rateGate) await(ctx context.Context) (float64, error) {
	for {
		g.mu.Lock()
		rps, changed := g.rps, g.changed
		g.mu.Unlock()
		if rps > 0 {
			return rps, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-changed:
		}
	}
}

// uniformArrival delegates pacing to a rate.Limiter (uniform spacing).
type uniformArrival struct {
	limiter *rate.Limiter
	gate    *rateGate
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	if u == nil || u.limiter == nil {
		return nil
	}
	if _, err := u.gate.await(ctx); err != nil {
		return err
	}
	return u.limiter.Wait(ctx)
}

func (u *uniformArrival) SetRate(rps float64) {
	if u == nil || u.limiter == nil {
		return
	}
	u.gate.set(rps)
	if rps <= 0 {
		return
	}
	u.limiter.SetLimit(rate.Limit(rps))
}

// poissonArrival samples exponential inter-arrival times to approximate a Poisson process.
type poissonArrival struct {
	mu     sync.Mutex
	sample func() float64
	gate   *rateGate
}

func (p *poissonArrival) Wait(ctx context.Context) error {
	rps, err := p.gate.await(ctx)
	if err != nil {
		return err
	}
	delay := p.nextDelay(rps)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *poissonArrival) SetRate(rps float64) {
	if p == nil {
		return
	}
	p.gate.set(rps)
}

func (p *poissonArrival) nextDelay(rps float64) time.Duration {
	if p == nil || rps <= 0 || p.sample == nil {
		return 0
	}
	p.mu.Lock()
	value := p.sample()
	p.mu.Unlock()

	delay := float64(time.Second) * value / rps
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay)
}
