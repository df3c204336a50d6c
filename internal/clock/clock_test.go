package clock

import (
	"testing"
	"time"
)

func TestAdvanceClampsToMin(t *testing.T) {
	d := NewDriver(time.Second/60, time.Second/20)
	now := time.Now()
	d.nowFn = func() time.Time { return now }
	d.Start()

	now = now.Add(time.Millisecond) // far below the 1/60s floor
	dt := d.Advance()
	if dt != (time.Second / 60).Seconds() {
		t.Fatalf("expected delta clamped to min, got %f", dt)
	}
}

func TestAdvanceClampsToMax(t *testing.T) {
	d := NewDriver(time.Second/60, time.Second/20)
	now := time.Now()
	d.nowFn = func() time.Time { return now }
	d.Start()

	now = now.Add(time.Second) // far above the 1/20s ceiling
	dt := d.Advance()
	if dt != (time.Second / 20).Seconds() {
		t.Fatalf("expected delta clamped to max, got %f", dt)
	}
}

func TestTotalTimeAccumulates(t *testing.T) {
	d := NewDriver(time.Second/60, time.Second/20)
	now := time.Now()
	d.nowFn = func() time.Time { return now }
	d.Start()

	now = now.Add(30 * time.Millisecond)
	d.Advance()
	now = now.Add(30 * time.Millisecond)
	d.Advance()

	if d.TotalTime() != 60*time.Millisecond {
		t.Fatalf("expected total time 60ms, got %v", d.TotalTime())
	}
}
