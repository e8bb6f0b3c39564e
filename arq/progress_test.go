package arq

import (
	"testing"
	"time"
)

func TestProgressTracker(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var calls []int64
	var rates []float64
	pt := NewProgressTracker(func(name string, done, total int64, rate float64) {
		if name != "a.txt" || total != 1000 {
			t.Errorf("report(%q, total %d)", name, total)
		}
		calls = append(calls, done)
		rates = append(rates, rate)
	}, time.Second, clock.Now)

	pt.Start("a.txt", 1000)
	pt.Update(100)
	if len(calls) != 0 {
		t.Fatalf("reported before the interval: %v", calls)
	}
	clock.Advance(2 * time.Second)
	pt.Update(500)
	if len(calls) != 1 || calls[0] != 500 || rates[0] != 250 {
		t.Fatalf("calls = %v rates = %v, want [500] [250]", calls, rates)
	}
	pt.Update(600)
	if len(calls) != 1 {
		t.Fatalf("reported twice within the interval: %v", calls)
	}
	clock.Advance(2 * time.Second)
	pt.Update(1000)
	if d := pt.Complete(); d != 4*time.Second {
		t.Errorf("Complete() = %v, want 4s", d)
	}
	if got := calls[len(calls)-1]; got != 1000 {
		t.Errorf("final report = %d, want 1000", got)
	}
	if got := rates[len(rates)-1]; got != 250 {
		t.Errorf("average rate = %v, want 250", got)
	}
}
