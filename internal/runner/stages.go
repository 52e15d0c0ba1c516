package runner

import (
	"time"
)

// Stage ramps the arrival rate linearly from the previous target to Target
// over Duration. The first stage ramps from Options.RatePerSecond.
type Stage struct {
	Duration time.Duration
	Target   float64
}

type stagePlan struct {
	segments []stageSegment
	duration time.Duration
}

type stageSegment struct {
	start    time.Duration
	duration time.Duration
	fromRate float64
	toRate   float64
}

func compileStagePlan(startRate float64, stages []Stage) *stagePlan {
	if len(stages) == 0 {
		return nil
	}

	plan := &stagePlan{}
	var offset time.Duration
	from := startRate
	for _, stage := range stages {
		if stage.Duration <= 0 {
			from = stage.Target
			continue
		}
		plan.segments = append(plan.segments, stageSegment{
			start:    offset,
			duration: stage.Duration,
			fromRate: from,
			toRate:   stage.Target,
		})
		offset += stage.Duration
		from = stage.Target
	}

	if len(plan.segments) == 0 {
		return nil
	}
	plan.duration = offset
	return plan
}

// rateAt returns the interpolated rate at elapsed, or false once the plan is over.
func (p *stagePlan) rateAt(elapsed time.Duration) (float64, bool) {
	if p == nil || len(p.segments) == 0 {
		return 0, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	for _, seg := range p.segments {
		if elapsed < seg.start || elapsed >= seg.start+seg.duration {
			continue
		}
		if seg.fromRate == seg.toRate {
			return seg.fromRate, true
		}
		progress := float64(elapsed-seg.start) / float64(seg.duration)
		if progress > 1 {
			progress = 1
		}
		return seg.fromRate + (seg.toRate-seg.fromRate)*progress, true
	}
	return 0, false
}

func (p *stagePlan) totalDuration() time.Duration {
	if p == nil {
		return 0
	}
	return p.duration
}
