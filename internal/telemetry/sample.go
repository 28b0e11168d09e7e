package telemetry

// Sample is one orientation/acceleration reading as delivered by a sample
// source. It is transient: it lives only until the tick that produced it has
// been encoded (or dropped by the rate limiter).
type Sample struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Ax    float64 `json:"ax"`
	Ay    float64 `json:"ay"`
	Az    float64 `json:"az"`
}

// SequencedSample is a Sample stamped with a per-session sequence number and
// dual monotonic timestamps: ReadTs at acquisition, SendTs immediately before
// encoding. The gap between the two measures internal processing latency.
type SequencedSample struct {
	Sample
	Seq    uint32
	ReadTs uint32 // µs, monotonic
	SendTs uint32 // µs, monotonic
}

// Sequencer assigns strictly increasing sequence numbers. Seq wraps at 2^32;
// receivers that care see one spurious gap every ~4 billion samples, which is
// accepted.
type Sequencer struct {
	seq uint32
}

// Next stamps the sample with the next sequence number and its acquisition
// timestamp. SendTs is left zero; the caller stamps it right before encoding.
func (s *Sequencer) Next(sample Sample, readTs uint32) SequencedSample {
	s.seq++
	return SequencedSample{
		Sample: sample,
		Seq:    s.seq,
		ReadTs: readTs,
	}
}
