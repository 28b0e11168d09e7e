package telemetry

import "time"

// Clock provides device-local monotonic time as 32-bit microsecond and
// millisecond counters, counted from process start. Wall-clock adjustments
// never move it because time.Since uses the monotonic reading.
type Clock struct {
	start time.Time
	now   func() time.Time
}

// NewClock returns a clock anchored at the current instant.
func NewClock() *Clock {
	return &Clock{start: time.Now(), now: time.Now}
}

// NewClockAt returns a clock driven by the given now function. Used in tests.
func NewClockAt(start time.Time, now func() time.Time) *Clock {
	return &Clock{start: start, now: now}
}

// NowMicros returns microseconds since the clock's start, truncated to 32
// bits. Wraps after about 71 minutes; receivers treat it as a free-running
// counter.
func (c *Clock) NowMicros() uint32 {
	return uint32(c.now().Sub(c.start).Microseconds())
}

// NowMillis returns milliseconds since the clock's start, truncated to 32 bits.
func (c *Clock) NowMillis() uint32 {
	return uint32(c.now().Sub(c.start).Milliseconds())
}
