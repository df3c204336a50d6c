// Package clock implements the fixed-cadence tick driver from spec.md
// §4.3: wall-clock delta measured each iteration, clamped to
// [1/60s, 1/20s], with total elapsed time accumulated across ticks.
package clock

import "time"

// Driver measures and clamps the delta-time fed to each simulation
// tick.
type Driver struct {
	Min, Max  time.Duration
	last      time.Time
	totalTime time.Duration
	nowFn     func() time.Time
}

// NewDriver returns a Driver clamping delta-time to [min, max].
func NewDriver(min, max time.Duration) *Driver {
	return &Driver{Min: min, Max: max, nowFn: time.Now}
}

// Start resets the driver's internal clock; call once before the first
// tick.
func (d *Driver) Start() {
	d.last = d.nowFn()
}

// TotalTime returns the accumulated simulated time across every tick
// advanced so far.
func (d *Driver) TotalTime() time.Duration {
	return d.totalTime
}

// Advance measures the elapsed wall-clock time since the previous call
// (or Start), clamps it to [Min, Max], accumulates it into TotalTime,
// and returns the clamped delta in seconds as a float64, ready for the
// simulation's per-phase integrators.
func (d *Driver) Advance() float64 {
	now := d.nowFn()
	elapsed := now.Sub(d.last)
	d.last = now

	if elapsed < d.Min {
		elapsed = d.Min
	} else if elapsed > d.Max {
		elapsed = d.Max
	}
	d.totalTime += elapsed
	return elapsed.Seconds()
}

// Run invokes tick(deltaSeconds) in a loop until stop is closed, pacing
// iterations so each one sleeps for whatever remains of Min after the
// previous tick's work, to avoid busy-looping faster than the floor
// allows.
func (d *Driver) Run(stop <-chan struct{}, tick func(deltaSeconds float64)) {
	d.Start()
	for {
		select {
		case <-stop:
			return
		default:
		}
		tickStart := d.nowFn()
		dt := d.Advance()
		tick(dt)
		elapsed := d.nowFn().Sub(tickStart)
		if sleep := d.Min - elapsed; sleep > 0 {
			select {
			case <-stop:
				return
			case <-time.After(sleep):
			}
		}
	}
}
