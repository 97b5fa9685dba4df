package exchange

import (
	"sync"
	"time"
)

// saturationFactor: a venue is considered saturated once its rolling count
// reaches 90% of the configured limit, leaving headroom for retries.
const saturationFactor = 0.9

// RateWindow is a sliding 60-second request counter for one venue. The
// aggregator records every outbound request (including failures) and skips
// venues whose window is saturated.
type RateWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

// NewRateWindow creates a window with the given per-minute limit.
func NewRateWindow(limit int) *RateWindow {
	if limit <= 0 {
		limit = 60
	}
	return &RateWindow{
		limit:  limit,
		window: time.Minute,
		now:    time.Now,
	}
}

// Record notes one outbound request at the current instant.
func (w *RateWindow) Record() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.now())
	w.stamps = append(w.stamps, w.now())
}

// Count returns the number of requests within the rolling window.
func (w *RateWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.now())
	return len(w.stamps)
}

// Saturated reports whether the venue should be skipped.
func (w *RateWindow) Saturated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.now())
	return float64(len(w.stamps)) >= saturationFactor*float64(w.limit)
}

// Limit returns the configured per-minute limit.
func (w *RateWindow) Limit() int { return w.limit }

// Prune drops stamps older than the window. Called periodically so idle
// venues do not hold stale slices.
func (w *RateWindow) Prune() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.now())
}

func (w *RateWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
