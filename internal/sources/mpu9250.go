// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sources

import (
	"fmt"
	"log"
	"math"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/attitude_streamer/internal/telemetry"
)

type imuSource struct {
	imu *mpu9250.MPU9250
	// LSB per g for the configured accelerometer range.
	accelScale float64
}

// NewMPU9250 initializes an MPU9250 over SPI and returns a source that
// derives yaw/pitch/roll from the accelerometer. Yaw stays 0 until proper
// magnetometer fusion lands.
func NewMPU9250(spiDev, csPin string, accelRange byte) (Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", spiDev, err)
	}

	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}

	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if err := imu.SetAccelRange(accelRange); err != nil {
		return nil, fmt.Errorf("IMU: set accel range: %w", err)
	}
	log.Printf("IMU: accelerometer range set to %d (±%dg)", accelRange, []int{2, 4, 8, 16}[accelRange])

	if err := imu.Calibrate(); err != nil {
		log.Printf("IMU: WARNING: calibration failed: %v", err)
	}

	return &imuSource{
		imu:        imu,
		accelScale: float64(int(16384) >> accelRange),
	}, nil
}

// TryRead reads one accelerometer sample. Read errors are absorbed: the tick
// is skipped and the loop carries on, matching the no-sample-yet contract.
func (s *imuSource) TryRead() (telemetry.Sample, bool) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		log.Printf("IMU: accel X read error: %v", err)
		return telemetry.Sample{}, false
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		log.Printf("IMU: accel Y read error: %v", err)
		return telemetry.Sample{}, false
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		log.Printf("IMU: accel Z read error: %v", err)
		return telemetry.Sample{}, false
	}

	fx := float64(ax)
	fy := float64(ay)
	fz := float64(az)

	// Tilt estimation from the accelerometer:
	//   roll  = atan2(ay, az)
	//   pitch = atan2(-ax, sqrt(ay² + az²))
	rollRad := math.Atan2(fy, fz)
	pitchRad := math.Atan2(-fx, math.Sqrt(fy*fy+fz*fz))

	return telemetry.Sample{
		Yaw:   0, // placeholder; to be replaced with fused yaw later
		Pitch: pitchRad * 180.0 / math.Pi,
		Roll:  rollRad * 180.0 / math.Pi,
		Ax:    fx / s.accelScale,
		Ay:    fy / s.accelScale,
		Az:    fz / s.accelScale,
	}, true
}
