// Package sources provides orientation/acceleration sample sources for the
// streamer loop.
package sources

import "github.com/relabs-tech/attitude_streamer/internal/telemetry"

// Source is anything the streamer can poll for samples. TryRead must not
// block: when no new sample is available it returns false and the loop
// skips the tick.
type Source interface {
	TryRead() (telemetry.Sample, bool)
}
