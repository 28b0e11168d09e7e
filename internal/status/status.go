// Package status drives the device's activity indicators. The streamer loop
// toggles them from a fixed-period heartbeat timer, independent of the
// telemetry cadence.
package status

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Indicator is anything that can show whether the streamer is alive.
type Indicator interface {
	SetActive(on bool)
}

// Noop is the indicator used when no hardware is configured.
type Noop struct{}

func (Noop) SetActive(bool) {}

type ledIndicator struct {
	pin gpio.PinOut
}

// NewLED returns an indicator backed by a GPIO pin.
func NewLED(pinName string) (Indicator, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("status LED: periph host init: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("status LED: pin %q not found", pinName)
	}
	return &ledIndicator{pin: pin}, nil
}

func (l *ledIndicator) SetActive(on bool) {
	lvl := gpio.Low
	if on {
		lvl = gpio.High
	}
	if err := l.pin.Out(lvl); err != nil {
		log.Printf("status LED: write error: %v", err)
	}
}
