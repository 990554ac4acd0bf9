package proctor

import (
	"sync"
	"time"
)

// FaceDetector yields the most recent face count at a sampling instant.
// ok is false when no usable reading exists.
type FaceDetector interface {
	Sample(at time.Time) (faces int, ok bool)
}

// LatestFaceCount holds the last count reported by the platform's detector.
// Readings older than the staleness window are not sampled.
type LatestFaceCount struct {
	mu         sync.Mutex
	count      int
	reportedAt time.Time
	staleAfter time.Duration
}

func NewLatestFaceCount(staleAfter time.Duration) *LatestFaceCount {
	return &LatestFaceCount{staleAfter: staleAfter}
}

// Report stores a reading taken at the given time.
func (d *LatestFaceCount) Report(count int, at time.Time) {
	if count < 0 {
		count = 0
	}
	d.mu.Lock()
	d.count = count
	d.reportedAt = at
	d.mu.Unlock()
}

func (d *LatestFaceCount) Sample(at time.Time) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reportedAt.IsZero() {
		return 0, false
	}
	if d.staleAfter > 0 && at.Sub(d.reportedAt) > d.staleAfter {
		return 0, false
	}
	return d.count, true
}
