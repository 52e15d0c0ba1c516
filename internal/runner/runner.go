package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Result captures execution summary.
type Result struct {
	Started      int64 // iterations handed to a VU
	Completed    int64 // iterations that ran to the end
	Interrupted  int64 // iterations cut short by graceful-stop expiry or cancellation
	Failed       int64 // completed iterations that returned an error
	Dropped      int64 // arrivals skipped because MaxVUs were busy
	PeakVUs      int   // highest number of concurrently busy VUs
	AllocatedVUs int   // VUs allocated by the end of the run
	Duration     time.Duration
}

// Runner starts iterations at a fixed arrival rate, independent of how long
// each iteration takes, using a pool of VUs that grows up to MaxVUs.
type Runner struct {
	opt     Options
	plan    *stagePlan
	arrival arrivalController
}

func New(opt Options) *Runner {
	opt.normalize()
	plan := compileStagePlan(opt.RatePerSecond, opt.Stages)
	arrival := newArrivalController(opt, plan)
	return &Runner{opt: opt, plan: plan, arrival: arrival}
}

// Run blocks until the schedule is over and every in-flight iteration has
// finished or been interrupted. Cancelling ctx interrupts the run immediately.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()

	// iterCtx bounds running iterations; schedCtx bounds admission of new ones.
	iterCtx, interrupt := context.WithCancel(ctx)
	defer interrupt()

	schedule := r.opt.Duration
	if r.plan != nil {
		schedule = r.plan.totalDuration()
	}
	schedCtx, stopSchedule := context.WithTimeout(iterCtx, schedule)
	defer stopSchedule()

	if r.plan != nil {
		go r.runStageController(schedCtx)
	}

	pool := newVUPool(iterCtx, r.opt)
	for i := 0; i < r.opt.PreAllocatedVUs; i++ {
		pool.markIdle(pool.spawn())
	}
	pool.reportVUs()

	for {
		if err := r.arrival.Wait(schedCtx); err != nil {
			break
		}
		if schedCtx.Err() != nil {
			break
		}
		pool.dispatch()
	}

	pool.close()
	done := make(chan struct{})
	go func() {
		pool.wait()
		close(done)
	}()

	switch {
	case ctx.Err() != nil:
		interrupt()
		<-done
	case r.opt.GracefulStop <= 0:
		interrupt()
		<-done
	default:
		timer := time.NewTimer(r.opt.GracefulStop)
		select {
		case <-done:
		case <-ctx.Done():
			<-done
		case <-timer.C:
			interrupt()
			<-done
		}
		timer.Stop()
	}

	return pool.result(time.Since(start))
}

func (r *Runner) runStageController(ctx context.Context) {
	if r.plan == nil || r.arrival == nil {
		return
	}

	start := time.Now()
	if initial, ok := r.plan.rateAt(0); ok {
		r.arrival.SetRate(initial)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rps, ok := r.plan.rateAt(time.Since(start))
			if !ok {
				return
			}
			r.arrival.SetRate(rps)
		}
	}
}

type vu struct {
	id    int
	tasks chan struct{}
}

// vuPool is driven by the single scheduler goroutine: spawn, dispatch and
// close are only called from Run.
type vuPool struct {
	ctx       context.Context
	iteration Iteration
	observer  Observer
	maxVUs    int

	vus  []*vu
	idle chan *vu
	wg   sync.WaitGroup

	allocated   atomic.Int32
	active      atomic.Int32
	peak        atomic.Int32
	iterations  atomic.Int64
	started     atomic.Int64
	completed   atomic.Int64
	interrupted atomic.Int64
	failed      atomic.Int64
	dropped     atomic.Int64
}

func newVUPool(ctx context.Context, opt Options) *vuPool {
	return &vuPool{
		ctx:       ctx,
		iteration: opt.Iteration,
		observer:  opt.Observer,
		maxVUs:    opt.MaxVUs,
		idle:      make(chan *vu, opt.MaxVUs),
	}
}

func (p *vuPool) spawn() *vu {
	v := &vu{id: len(p.vus) + 1, tasks: make(chan struct{}, 1)}
	p.vus = append(p.vus, v)
	p.allocated.Add(1)
	p.wg.Add(1)
	go p.loop(v)
	return v
}

func (p *vuPool) markIdle(v *vu) {
	p.idle <- v
}

// dispatch hands one arrival to an idle VU, grows the pool when none is
// idle, or drops the arrival once MaxVUs are busy.
func (p *vuPool) dispatch() {
	var target *vu
	select {
	case target = <-p.idle:
	default:
		if len(p.vus) >= p.maxVUs {
			p.dropped.Add(1)
			p.observer.IterationDropped()
			return
		}
		target = p.spawn()
		p.reportVUs()
	}
	p.started.Add(1)
	target.tasks <- struct{}{}
}

func (p *vuPool) loop(v *vu) {
	defer p.wg.Done()
	for range v.tasks {
		p.execute(v)
		p.idle <- v
	}
}

func (p *vuPool) execute(v *vu) {
	active := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if active <= peak || p.peak.CompareAndSwap(peak, active) {
			break
		}
	}
	p.reportVUs()
	p.observer.IterationStarted()

	info := IterationInfo{VU: v.id, Iteration: p.iterations.Add(1)}
	ctx := withIterationInfo(p.ctx, info)

	begin := time.Now()
	var err error
	if p.iteration != nil {
		err = p.iteration.Do(ctx)
	}
	elapsed := time.Since(begin)

	interrupted := err != nil && p.ctx.Err() != nil
	switch {
	case interrupted:
		p.interrupted.Add(1)
	case err != nil:
		p.failed.Add(1)
		p.completed.Add(1)
	default:
		p.completed.Add(1)
	}
	p.observer.IterationFinished(elapsed, err, interrupted)

	p.active.Add(-1)
	p.reportVUs()
}

func (p *vuPool) reportVUs() {
	p.observer.VUs(int(p.active.Load()), int(p.allocated.Load()))
}

// close stops every VU once its current iteration, if any, returns.
func (p *vuPool) close() {
	for _, v := range p.vus {
		close(v.tasks)
	}
}

func (p *vuPool) wait() {
	p.wg.Wait()
}

func (p *vuPool) result(d time.Duration) Result {
	return Result{
		Started:      p.started.Load(),
		Completed:    p.completed.Load(),
		Interrupted:  p.interrupted.Load(),
		Failed:       p.failed.Load(),
		Dropped:      p.dropped.Load(),
		PeakVUs:      int(p.peak.Load()),
		AllocatedVUs: int(p.allocated.Load()),
		Duration:     d,
	}
}

// IterationInfo identifies the VU and global iteration number of a running iteration.
type IterationInfo struct {
	VU        int
	Iteration int64
}

type iterationInfoKey struct{}

func withIterationInfo(ctx context.Context, info IterationInfo) context.Context {
	return context.WithValue(ctx, iterationInfoKey{}, info)
}

// IterationFromContext returns the IterationInfo attached by the runner.
func IterationFromContext(ctx context.Context) (IterationInfo, bool) {
	info, ok := ctx.Value(iterationInfoKey{}).(IterationInfo)
	return info, ok
}
