package telemetry

import "time"

// RateLimiter decimates sample emission to a fixed target period regardless
// of the acquisition rate. Samples arriving inside the period are dropped,
// newest wins; there is no buffering, which is acceptable loss for a
// visualization stream.
type RateLimiter struct {
	period   time.Duration
	last     time.Time
	now      func() time.Time
	haveLast bool
}

// NewRateLimiter returns a limiter with the given target period.
func NewRateLimiter(period time.Duration) *RateLimiter {
	return &RateLimiter{period: period, now: time.Now}
}

// NewRateLimiterAt is NewRateLimiter with an injected time source for tests.
func NewRateLimiterAt(period time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{period: period, now: now}
}

// Allow reports whether a sample arriving now should be emitted, and records
// the emission time when it is. time.Time comparison uses the monotonic
// reading, so wall-clock adjustments cannot cause double-emission or stalls.
func (r *RateLimiter) Allow() bool {
	t := r.now()
	if r.haveLast && t.Sub(r.last) < r.period {
		return false
	}
	r.last = t
	r.haveLast = true
	return true
}
