// Package stats collects run metadata for the supervisor: quantities
// tracked as functions of time, independent measurements, and occupation
// fractions. Nothing here affects scheduling decisions.
package stats

import (
	"math"
	"time"
)

// StepFunction tracks a piecewise-constant quantity and its time-weighted
// average: the value holds from one update to the next.
type StepFunction struct {
	start    time.Time
	last     time.Time
	value    float64
	weighted float64
	started  bool
}

// Update records that the quantity took value v at time now.
func (f *StepFunction) Update(now time.Time, v float64) {
	if !f.started {
		f.start, f.last, f.value, f.started = now, now, v, true
		return
	}
	f.weighted += f.value * now.Sub(f.last).Seconds()
	f.last = now
	f.value = v
}

// Average is the time-weighted mean over [start, now].
func (f *StepFunction) Average(now time.Time) float64 {
	if !f.started {
		return 0
	}
	total := now.Sub(f.start).Seconds()
	if total <= 0 {
		return f.value
	}
	return (f.weighted + f.value*now.Sub(f.last).Seconds()) / total
}

// Current is the last recorded value.
func (f *StepFunction) Current() float64 {
	return f.value
}

// InterpolatedFunction tracks a sampled quantity whose value between
// samples is taken to vary linearly, and its time-weighted average.
type InterpolatedFunction struct {
	start    time.Time
	last     time.Time
	value    float64
	weighted float64
	started  bool
}

// Sample records value v at time now.
func (f *InterpolatedFunction) Sample(now time.Time, v float64) {
	if !f.started {
		f.start, f.last, f.value, f.started = now, now, v, true
		return
	}
	// Trapezoid between the previous sample and this one.
	f.weighted += (f.value + v) / 2 * now.Sub(f.last).Seconds()
	f.last = now
	f.value = v
}

// Average is the time-weighted mean over the sampled interval.
func (f *InterpolatedFunction) Average(now time.Time) float64 {
	if !f.started {
		return 0
	}
	total := now.Sub(f.start).Seconds()
	if total <= 0 {
		return f.value
	}
	w := f.weighted + f.value*now.Sub(f.last).Seconds()
	return w / total
}

// DecayingSum is an exponentially-decaying event counter: each Add
// contributes 1, and contributions decay with the given time constant.
// Its value approximates the recent event rate times the time constant.
type DecayingSum struct {
	timeConstant time.Duration
	last         time.Time
	sum          float64
	started      bool
}

// NewDecayingSum returns a decaying sum with the given time constant.
func NewDecayingSum(timeConstant time.Duration) *DecayingSum {
	return &DecayingSum{timeConstant: timeConstant}
}

func (d *DecayingSum) decayTo(now time.Time) {
	if d.started {
		dt := now.Sub(d.last).Seconds()
		if dt > 0 {
			d.sum *= math.Exp(-dt / d.timeConstant.Seconds())
		}
	}
	d.last = now
	d.started = true
}

// Add records one event at time now.
func (d *DecayingSum) Add(now time.Time) {
	d.decayTo(now)
	d.sum++
}

// Rate is the smoothed events-per-second estimate at time now.
func (d *DecayingSum) Rate(now time.Time) float64 {
	d.decayTo(now)
	return d.sum / d.timeConstant.Seconds()
}

// ExponentialAverage is an exponentially-weighted moving average of a
// sampled quantity, with weights decaying over the given time constant.
type ExponentialAverage struct {
	timeConstant time.Duration
	last         time.Time
	value        float64
	started      bool
}

// NewExponentialAverage returns an EWMA with the given time constant.
func NewExponentialAverage(timeConstant time.Duration) *ExponentialAverage {
	return &ExponentialAverage{timeConstant: timeConstant}
}

// Sample records value v at time now.
func (e *ExponentialAverage) Sample(now time.Time, v float64) {
	if !e.started {
		e.last, e.value, e.started = now, v, true
		return
	}
	dt := now.Sub(e.last).Seconds()
	alpha := 1 - math.Exp(-dt/e.timeConstant.Seconds())
	e.value += alpha * (v - e.value)
	e.last = now
}

// Value is the current average.
func (e *ExponentialAverage) Value() float64 {
	return e.value
}
