package arq

import (
	"sync"
	"time"
)

// ProgressTracker reports the progress of the active transfer at most once
// per interval, measured on the session clock.
type ProgressTracker struct {
	mu sync.Mutex

	clock    Clock
	report   func(name string, done, total int64, rate float64)
	interval time.Duration

	name     string
	total    int64
	done     int64
	begun    time.Time
	reported time.Time
	lastDone int64
}

// NewProgressTracker creates a tracker that calls report.
func NewProgressTracker(report func(string, int64, int64, float64), interval time.Duration, clock Clock) *ProgressTracker {
	if interval <= 0 {
		interval = time.Second
	}
	if clock == nil {
		clock = time.Now
	}
	return &ProgressTracker{clock: clock, report: report, interval: interval}
}

// Start resets the tracker for a transfer of total payload bytes.
func (pt *ProgressTracker) Start(name string, total int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	now := pt.clock()
	pt.name, pt.total, pt.done, pt.lastDone = name, total, 0, 0
	pt.begun, pt.reported = now, now
}

// Update records done bytes. The rate passed to report covers the bytes
// moved since the previous report.
func (pt *ProgressTracker) Update(done int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.done = done
	now := pt.clock()
	since := now.Sub(pt.reported)
	if since < pt.interval {
		return
	}
	rate := float64(done-pt.lastDone) / since.Seconds()
	pt.reported, pt.lastDone = now, done
	if pt.report != nil {
		pt.report(pt.name, done, pt.total, rate)
	}
}

// Complete sends a final report with the average rate and returns the
// elapsed time of the transfer.
func (pt *ProgressTracker) Complete() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	elapsed := pt.clock().Sub(pt.begun)
	var rate float64
	if elapsed > 0 {
		rate = float64(pt.done) / elapsed.Seconds()
	}
	if pt.report != nil {
		pt.report(pt.name, pt.done, pt.total, rate)
	}
	return elapsed
}
