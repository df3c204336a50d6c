package metrics

import (
	"testing"
	"time"
)

func TestReportOnlyLogsOnChange(t *testing.T) {
	c := &Counters{}
	r := NewReporter(c, time.Second)

	// First report with zero counters: nothing has changed from the
	// zero-value lastX fields, so no log line (and no panic on an
	// empty average).
	r.report()

	c.AddBytesIn(1024)
	c.RecordTick(5 * time.Millisecond)
	c.SetEntityCount(3)
	r.report()

	if r.lastBytesIn != 1024 {
		t.Fatalf("expected lastBytesIn to update to 1024, got %d", r.lastBytesIn)
	}
	if r.lastTicks != 1 {
		t.Fatalf("expected lastTicks to update to 1, got %d", r.lastTicks)
	}
}

func TestCountersAccumulate(t *testing.T) {
	c := &Counters{}
	c.AddBytesIn(100)
	c.AddBytesIn(50)
	c.AddBytesOut(200)
	c.RecordTick(10 * time.Millisecond)
	c.RecordTick(20 * time.Millisecond)

	if got := c.bytesIn.Load(); got != 150 {
		t.Fatalf("expected bytesIn 150, got %d", got)
	}
	if got := c.bytesOut.Load(); got != 200 {
		t.Fatalf("expected bytesOut 200, got %d", got)
	}
	if got := c.ticks.Load(); got != 2 {
		t.Fatalf("expected 2 ticks recorded, got %d", got)
	}
}

func TestRunStopsOnClose(t *testing.T) {
	c := &Counters{}
	r := NewReporter(c, time.Millisecond)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		r.Run(stop)
		close(done)
	}()
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after stop is closed")
	}
}
