// Package metrics periodically logs simulation throughput: tick
// duration, entity counts, and byte in/out counters. The byte counters
// move only through AddBytesIn/AddBytesOut; the gateway does not call
// them.
// Grounded on the teacher's BandwidthMeter.StartSync ticker-plus-sync
// pattern, swapping the per-user DB sync for a structured log line.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/starhold/server/internal/logger"
)

// Counters accumulates the numbers a Reporter logs. All fields are
// updatable from arbitrary goroutines so they're atomics rather than mutex-guarded fields.
type Counters struct {
	bytesIn     atomic.Int64
	bytesOut    atomic.Int64
	ticks       atomic.Int64
	tickNanos   atomic.Int64
	entityCount atomic.Int64
}

func (c *Counters) AddBytesIn(n int)  { c.bytesIn.Add(int64(n)) }
func (c *Counters) AddBytesOut(n int) { c.bytesOut.Add(int64(n)) }

// RecordTick accumulates a tick's wall-clock duration, for averaging
// between reports.
func (c *Counters) RecordTick(d time.Duration) {
	c.ticks.Add(1)
	c.tickNanos.Add(int64(d))
}

// SetEntityCount reports the current live entity count.
func (c *Counters) SetEntityCount(n int) {
	c.entityCount.Store(int64(n))
}

// Reporter logs a Counters snapshot at a fixed interval, only emitting
// a line when something changed since the last report (as the teacher's
// bandwidth sync only writes users whose total moved).
type Reporter struct {
	counters *Counters
	interval time.Duration

	lastBytesIn  int64
	lastBytesOut int64
	lastTicks    int64
}

func NewReporter(counters *Counters, interval time.Duration) *Reporter {
	return &Reporter{counters: counters, interval: interval}
}

// Run logs a snapshot every interval until stop is closed.
func (r *Reporter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	bytesIn := r.counters.bytesIn.Load()
	bytesOut := r.counters.bytesOut.Load()
	ticks := r.counters.ticks.Load()
	if bytesIn == r.lastBytesIn && bytesOut == r.lastBytesOut && ticks == r.lastTicks {
		return
	}

	avg := time.Duration(0)
	if ticks > 0 {
		avg = time.Duration(r.counters.tickNanos.Load() / ticks)
	}

	logger.Info("metrics",
		"entities", r.counters.entityCount.Load(),
		"ticks", ticks,
		"avg_tick", avg,
		"bytes_in", humanize.Bytes(uint64(bytesIn)),
		"bytes_out", humanize.Bytes(uint64(bytesOut)),
	)

	r.lastBytesIn = bytesIn
	r.lastBytesOut = bytesOut
	r.lastTicks = ticks
}
