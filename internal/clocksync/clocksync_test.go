package clocksync

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestComputeRoundArithmetic(t *testing.T) {
	// Exact arithmetic contract: t0=1000.0, tA=1050.0, t1=1020.
	r := ComputeRound(1000.0, 1050.0, 1020)
	if r.Offset != 5.0 {
		t.Errorf("offset = %v, want 5.0", r.Offset)
	}
	if r.RTT != 50.0 {
		t.Errorf("rtt = %v, want 50.0", r.RTT)
	}
}

func TestReduceBestHalfMedian(t *testing.T) {
	// Eight rounds; only the four with lowest RTT may contribute, and the
	// result is their median offset, not a mean over all eight.
	rtts := []float64{40, 42, 45, 48, 50, 60, 70, 200}
	offsets := []float64{3, 5, 4, 10, 100, 100, 100, 100}
	rounds := make([]Round, len(rtts))
	for i := range rtts {
		rounds[i] = Round{RTT: rtts[i], Offset: offsets[i]}
	}

	got, ok := Reduce(rounds)
	if !ok {
		t.Fatal("non-empty batch rejected")
	}
	// Best half offsets: [3,5,4,10] → sorted [3,4,5,10] → median 4.5.
	if got.Offset != 4.5 {
		t.Errorf("offset = %v, want 4.5 (median of best half)", got.Offset)
	}
	// Best half RTTs: [40,42,45,48] → median 43.5. The 200ms outlier must
	// never leak in.
	if got.RTT != 43.5 {
		t.Errorf("rtt = %v, want 43.5", got.RTT)
	}
}

func TestReduceSingleRound(t *testing.T) {
	got, ok := Reduce([]Round{{RTT: 30, Offset: -7}})
	if !ok || got.Offset != -7 || got.RTT != 30 {
		t.Errorf("single-round batch: got %+v ok=%v", got, ok)
	}
}

func TestReduceEmpty(t *testing.T) {
	if _, ok := Reduce(nil); ok {
		t.Error("empty batch produced a result")
	}
}

// scriptedExchanger replays a fixed list of rounds; entries with err time out.
type scriptedExchanger struct {
	t1s  []uint32
	rtts []float64
	errs []error
	i    int
	// clock is advanced by the exchanger so the engine observes the
	// scripted RTT.
	clock float64
}

func (s *scriptedExchanger) now() float64 { return s.clock }

func (s *scriptedExchanger) Exchange(t0 float64, timeout time.Duration) (uint32, float64, error) {
	i := s.i
	s.i++
	if i >= len(s.t1s) {
		return 0, 0, errors.New("script exhausted")
	}
	if s.errs != nil && s.errs[i] != nil {
		return 0, 0, s.errs[i]
	}
	s.clock = t0 + s.rtts[i]
	return s.t1s[i], s.clock, nil
}

func TestBatchFoldsIntoEstimate(t *testing.T) {
	// Two rounds, both RTT 50 with the device clock 5ms behind the client
	// midpoint:
	//   round 1: t0=1000, tA=1050, mid 1025, t1=1020 → offset 5
	//   round 2: t0=1050, tA=1100, mid 1075, t1=1070 → offset 5
	ex := &scriptedExchanger{
		t1s:   []uint32{1020, 1070},
		rtts:  []float64{50, 50},
		clock: 1000,
	}

	e := New(Config{}, ex, ex.now)
	e.RunBatch(context.Background(), 2)

	est := e.Estimate()
	if est.Samples != 1 {
		t.Fatalf("samples = %d, want 1", est.Samples)
	}
	if est.Offset != 5 {
		t.Errorf("offset = %v, want 5", est.Offset)
	}
	if est.RTT != 50 {
		t.Errorf("rtt = %v, want 50", est.RTT)
	}
}

func TestTimedOutRoundsDropped(t *testing.T) {
	timeout := errors.New("timeout")
	ex := &scriptedExchanger{
		t1s:   []uint32{0, 1020, 0},
		rtts:  []float64{0, 50, 0},
		errs:  []error{timeout, nil, timeout},
		clock: 1000,
	}
	e := New(Config{}, ex, ex.now)
	e.RunBatch(context.Background(), 3)

	est := e.Estimate()
	if est.Samples != 1 {
		t.Fatalf("batch with one good round not folded: %+v", est)
	}
	// The single surviving round: t0=1000, tA=1050, t1=1020.
	if est.Offset != 5 || est.RTT != 50 {
		t.Errorf("estimate %+v, want offset 5 rtt 50", est)
	}
}

func TestAllRoundsFailedKeepsEstimate(t *testing.T) {
	good := &scriptedExchanger{t1s: []uint32{1020}, rtts: []float64{50}, clock: 1000}
	e := New(Config{}, good, good.now)
	e.RunBatch(context.Background(), 1)
	before := e.Estimate()
	if before.Samples != 1 {
		t.Fatal("setup batch failed")
	}

	// Every round of the next batch times out.
	fail := errors.New("timeout")
	bad := &scriptedExchanger{
		t1s:  make([]uint32, 8),
		rtts: make([]float64, 8),
		errs: []error{fail, fail, fail, fail, fail, fail, fail, fail},
	}
	e.ex = bad
	e.RunBatch(context.Background(), 8)

	if got := e.Estimate(); got != before {
		t.Errorf("failed batch changed estimate: %+v → %+v", before, got)
	}
}

func TestEWMAUsesDistinctAlphas(t *testing.T) {
	ex := &scriptedExchanger{t1s: []uint32{1020}, rtts: []float64{50}, clock: 1000}
	e := New(Config{OffsetAlpha: 0.2, RTTAlpha: 0.4}, ex, ex.now)
	e.RunBatch(context.Background(), 1) // seeds offset=5, rtt=50

	// Second batch: t0=1050, tA=1150 (rtt 100), mid 1100, t1=1085 → offset 15.
	ex.i = 0
	ex.t1s = []uint32{1085}
	ex.rtts = []float64{100}
	e.RunBatch(context.Background(), 1)

	est := e.Estimate()
	wantOffset := 0.2*15 + 0.8*5.0 // 7
	wantRTT := 0.4*100 + 0.6*50.0  // 70
	if est.Offset != wantOffset {
		t.Errorf("offset = %v, want %v", est.Offset, wantOffset)
	}
	if est.RTT != wantRTT {
		t.Errorf("rtt = %v, want %v", est.RTT, wantRTT)
	}
}

func TestObserveFrameTriggersResync(t *testing.T) {
	ex := &scriptedExchanger{t1s: []uint32{1020}, rtts: []float64{50}, clock: 1000}
	e := New(Config{DriftMs: 80}, ex, ex.now)
	e.RunBatch(context.Background(), 1) // offset = 5

	// Frame at device 2000ms arriving at client 2010ms: transit 5ms, fine.
	if e.ObserveFrame(2000, 2010) {
		t.Error("frame within threshold triggered resync")
	}
	// Arriving 200ms after the mapped device time: drifted.
	if !e.ObserveFrame(2000, 2205) {
		t.Error("drifted frame did not trigger resync")
	}
	// A second trigger while one is pending is coalesced.
	if e.ObserveFrame(2000, 2405) {
		t.Error("pending resync not coalesced")
	}
}

func TestObserveFrameWithoutEstimate(t *testing.T) {
	ex := &scriptedExchanger{}
	e := New(Config{}, ex, ex.now)
	if e.ObserveFrame(1000, 99999) {
		t.Error("resync triggered before any estimate exists")
	}
}

func TestDeviceToClient(t *testing.T) {
	ex := &scriptedExchanger{t1s: []uint32{1020}, rtts: []float64{50}, clock: 1000}
	e := New(Config{}, ex, ex.now)
	e.RunBatch(context.Background(), 1) // offset = 5
	if got := e.DeviceToClient(3000); got != 3005 {
		t.Errorf("DeviceToClient(3000) = %v, want 3005", got)
	}
}
