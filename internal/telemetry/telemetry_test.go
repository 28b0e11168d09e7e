package telemetry

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestSequencerStrictlyIncreasing(t *testing.T) {
	var seq Sequencer
	var prev uint32
	for i := 0; i < 1000; i++ {
		ss := seq.Next(Sample{}, uint32(i))
		if ss.Seq != prev+1 {
			t.Fatalf("seq jumped from %d to %d", prev, ss.Seq)
		}
		prev = ss.Seq
	}
}

func TestSequencerKeepsReadTs(t *testing.T) {
	var seq Sequencer
	ss := seq.Next(Sample{Yaw: 1.5}, 4242)
	if ss.ReadTs != 4242 {
		t.Errorf("ReadTs = %d, want 4242", ss.ReadTs)
	}
	if ss.SendTs != 0 {
		t.Errorf("SendTs stamped too early: %d", ss.SendTs)
	}
	if ss.Yaw != 1.5 {
		t.Errorf("sample fields not carried: yaw = %v", ss.Yaw)
	}
}

func TestRateLimiterConvergesToTargetPeriod(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiterAt(16*time.Millisecond, func() time.Time { return now })

	// Offer samples every 2 ms for one simulated second.
	emitted := 0
	for i := 0; i < 500; i++ {
		if rl.Allow() {
			emitted++
		}
		now = now.Add(2 * time.Millisecond)
	}

	// 1 s / 16 ms ≈ 62 emissions, ±1 tick.
	if emitted < 62 || emitted > 64 {
		t.Errorf("emitted %d samples in 1s, want ~63", emitted)
	}
}

func TestRateLimiterPassesSlowInput(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiterAt(16*time.Millisecond, func() time.Time { return now })

	// Input slower than the target period is never throttled.
	for i := 0; i < 10; i++ {
		if !rl.Allow() {
			t.Fatalf("sample %d dropped despite 50ms spacing", i)
		}
		now = now.Add(50 * time.Millisecond)
	}
}

func TestRateLimiterFirstSampleEmits(t *testing.T) {
	rl := NewRateLimiterAt(16*time.Millisecond, func() time.Time { return time.Unix(0, 0) })
	if !rl.Allow() {
		t.Error("first sample must always emit")
	}
}

func TestPacketRoundTrip(t *testing.T) {
	p := Packet{
		Seq: 7, TMs: 1234, TrUs: 5678, TsUs: 5690,
		Yaw: 12.5, Pitch: -3.25, Roll: 179.0,
		Ax: 0.5, Ay: -0.25, Az: 9.81,
	}
	buf := p.Encode()
	if len(buf) != PacketSize {
		t.Fatalf("encoded size %d, want %d", len(buf), PacketSize)
	}
	got, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != p {
		t.Errorf("round trip mismatch: got %+v want %+v", got, p)
	}
}

func TestPacketWireLayout(t *testing.T) {
	p := Packet{Seq: 0x01020304, TMs: 0x0A0B0C0D, Yaw: 1.0}
	buf := p.Encode()

	// Little-endian: least significant byte first.
	if buf[0] != 0x04 || buf[3] != 0x01 {
		t.Errorf("seq not little-endian: % x", buf[0:4])
	}
	if buf[4] != 0x0D || buf[7] != 0x0A {
		t.Errorf("t_ms not little-endian: % x", buf[4:8])
	}
	// yaw:f32 starts at offset 16.
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[16:])); got != 1.0 {
		t.Errorf("yaw at offset 16 = %v, want 1.0", got)
	}
}

func TestDecodePacketRejectsWrongSize(t *testing.T) {
	if _, err := DecodePacket(make([]byte, 39)); err == nil {
		t.Error("short buffer accepted")
	}
	if _, err := DecodePacket(make([]byte, 41)); err == nil {
		t.Error("long buffer accepted")
	}
}

func TestClockMonotonicMicros(t *testing.T) {
	start := time.Unix(100, 0)
	now := start
	c := NewClockAt(start, func() time.Time { return now })

	if got := c.NowMicros(); got != 0 {
		t.Fatalf("clock at start = %d, want 0", got)
	}
	now = start.Add(1500 * time.Microsecond)
	if got := c.NowMicros(); got != 1500 {
		t.Errorf("NowMicros = %d, want 1500", got)
	}
	now = start.Add(2 * time.Second)
	if got := c.NowMillis(); got != 2000 {
		t.Errorf("NowMillis = %d, want 2000", got)
	}
}
