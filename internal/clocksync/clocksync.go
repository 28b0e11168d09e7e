// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package clocksync estimates the offset between the viewer's clock and the
// device clock from batches of request/reply rounds, a Cristian's-algorithm
// variant. The offset computation assumes symmetric one-way delay; under
// asymmetric paths this introduces a systematic bias. That is a known,
// inherited limitation of the algorithm and is deliberately not corrected
// here.
package clocksync

import (
	"context"
	"log"
	"math"
	"sort"
	"sync"
	"time"
)

// Defaults, overridable via Config.
const (
	DefaultRounds       = 8
	DefaultResyncRounds = 3
	DefaultTimeout      = 500 * time.Millisecond
	DefaultDriftMs      = 80.0

	// Offset is smoothed more conservatively than RTT: a wrong offset
	// misplaces every frame timestamp, a wrong RTT only delays resync.
	DefaultOffsetAlpha = 0.2
	DefaultRTTAlpha    = 0.4
)

// Estimate is the smoothed synchronization state for one connection session.
// Reset only on reconnect, never by a failed batch.
type Estimate struct {
	RTT     float64 // ms, EWMA-smoothed
	Offset  float64 // ms, EWMA-smoothed; clientTime ≈ deviceTime + Offset
	Samples uint32  // batches folded in
}

// Round is one completed request/reply measurement.
type Round struct {
	RTT    float64
	Offset float64
}

// ComputeRound derives RTT and offset from one exchange: t0 is the client
// clock at send, tA the client clock at receipt, t1 the device clock embedded
// in the reply. All in milliseconds.
//
//	rtt    = tA - t0
//	offset = (t0+tA)/2 - t1
func ComputeRound(t0, tA float64, t1 uint32) Round {
	return Round{
		RTT:    tA - t0,
		Offset: (t0+tA)/2 - float64(t1),
	}
}

// Reduce collapses a batch of completed rounds into one measurement: keep the
// half with the lowest RTT (queuing delay inflates RTT asymmetrically, so low
// RTT means the symmetry assumption holds best), then take the median RTT and
// median offset within that subset. Returns false for an empty batch.
func Reduce(rounds []Round) (Round, bool) {
	if len(rounds) == 0 {
		return Round{}, false
	}
	sorted := make([]Round, len(rounds))
	copy(sorted, rounds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RTT < sorted[j].RTT })

	best := sorted[:(len(sorted)+1)/2]

	offsets := make([]float64, len(best))
	rtts := make([]float64, len(best))
	for i, r := range best {
		offsets[i] = r.Offset
		rtts[i] = r.RTT
	}
	return Round{RTT: median(rtts), Offset: median(offsets)}, true
}

func median(vals []float64) float64 {
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// Config tunes the engine. Zero values fall back to the defaults above.
type Config struct {
	Rounds       int
	ResyncRounds int
	Timeout      time.Duration
	DriftMs      float64
	OffsetAlpha  float64
	RTTAlpha     float64
}

func (c Config) withDefaults() Config {
	if c.Rounds == 0 {
		c.Rounds = DefaultRounds
	}
	if c.ResyncRounds == 0 {
		c.ResyncRounds = DefaultResyncRounds
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.DriftMs == 0 {
		c.DriftMs = DefaultDriftMs
	}
	if c.OffsetAlpha == 0 {
		c.OffsetAlpha = DefaultOffsetAlpha
	}
	if c.RTTAlpha == 0 {
		c.RTTAlpha = DefaultRTTAlpha
	}
	return c
}

// Exchanger performs one sync round: send a request carrying t0, wait for
// the matching reply or the timeout. Implementations must keep at most one
// round outstanding per connection so replies match unambiguously; the
// engine guarantees it never calls Exchange concurrently.
type Exchanger interface {
	Exchange(t0 float64, timeout time.Duration) (t1 uint32, tA float64, err error)
}

// Engine runs sync batches against one connection and maintains the smoothed
// estimate. Batches are serialized: the initial full batch on Run, then one
// abbreviated batch per drift trigger, never overlapping.
type Engine struct {
	cfg Config
	ex  Exchanger
	now func() float64 // client clock, ms

	mu  sync.Mutex
	est Estimate

	resync chan struct{}
}

// New returns an engine using the given exchanger and client clock.
func New(cfg Config, ex Exchanger, now func() float64) *Engine {
	return &Engine{
		cfg:    cfg.withDefaults(),
		ex:     ex,
		now:    now,
		resync: make(chan struct{}, 1),
	}
}

// Estimate returns the current smoothed estimate.
func (e *Engine) Estimate() Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.est
}

// Run performs the full batch once, then services drift-triggered resyncs
// until the context is canceled. It is the only goroutine that runs batches,
// which is what serializes them.
func (e *Engine) Run(ctx context.Context) {
	e.RunBatch(ctx, e.cfg.Rounds)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.resync:
			e.RunBatch(ctx, e.cfg.ResyncRounds)
		}
	}
}

// RunBatch runs n sequential rounds and folds the reduced result into the
// running estimate. Timed-out rounds are dropped, not retried; a batch with
// zero completed rounds leaves the estimate untouched.
func (e *Engine) RunBatch(ctx context.Context, n int) {
	rounds := make([]Round, 0, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		t0 := e.now()
		t1, tA, err := e.ex.Exchange(t0, e.cfg.Timeout)
		if err != nil {
			continue
		}
		rounds = append(rounds, ComputeRound(t0, tA, t1))
	}

	batch, ok := Reduce(rounds)
	if !ok {
		log.Printf("sync: batch of %d rounds yielded no samples, keeping previous estimate", n)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.est.Samples == 0 {
		e.est.RTT = batch.RTT
		e.est.Offset = batch.Offset
	} else {
		e.est.RTT = e.cfg.RTTAlpha*batch.RTT + (1-e.cfg.RTTAlpha)*e.est.RTT
		e.est.Offset = e.cfg.OffsetAlpha*batch.Offset + (1-e.cfg.OffsetAlpha)*e.est.Offset
	}
	e.est.Samples++
	log.Printf("sync: batch done (%d/%d rounds): offset=%.2fms rtt=%.2fms",
		len(rounds), n, e.est.Offset, e.est.RTT)
}

// ObserveFrame checks a live data frame against the current estimate: tMs is
// the device clock in the frame, tA the client clock at receipt. When the
// apparent one-way transit exceeds the drift threshold, an abbreviated
// resync batch is requested. Returns whether a resync was triggered.
func (e *Engine) ObserveFrame(tMs uint32, tA float64) bool {
	e.mu.Lock()
	est := e.est
	e.mu.Unlock()
	if est.Samples == 0 {
		return false
	}

	transit := tA - (float64(tMs) + est.Offset)
	if math.Abs(transit) <= e.cfg.DriftMs {
		return false
	}

	select {
	case e.resync <- struct{}{}:
		log.Printf("sync: frame transit %.1fms exceeds %.0fms, scheduling resync", transit, e.cfg.DriftMs)
		return true
	default:
		// A resync is already pending; drift will be re-evaluated after it.
		return false
	}
}

// DeviceToClient maps a device-clock millisecond value into the client's
// clock frame using the current offset estimate.
func (e *Engine) DeviceToClient(tMs uint32) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return float64(tMs) + e.est.Offset
}
