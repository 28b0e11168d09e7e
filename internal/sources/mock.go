// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sources

import (
	"math"
	"time"

	"github.com/relabs-tech/attitude_streamer/internal/telemetry"
)

type mockSource struct {
	start time.Time
}

// NewMock creates a mock source that generates smooth changing values,
// useful for exercising the pipeline without hardware.
func NewMock() Source {
	return &mockSource{start: time.Now()}
}

func (m *mockSource) TryRead() (telemetry.Sample, bool) {
	elapsed := time.Since(m.start).Seconds()

	return telemetry.Sample{
		Yaw:   math.Mod(elapsed*30, 360),
		Pitch: 15 * math.Cos(elapsed*0.7),
		Roll:  20 * math.Sin(elapsed),
		Ax:    0.1 * math.Sin(elapsed*2),
		Ay:    0.1 * math.Cos(elapsed*2),
		Az:    1.0,
	}, true
}
