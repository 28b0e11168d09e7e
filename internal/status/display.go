// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package status

import (
	"fmt"
	"image"
	"log"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

// LinkDisplay renders the streamer's link state on an SSD1306 OLED: the
// heartbeat marker, connected client count and the latest sequence number.
type LinkDisplay struct {
	dev    *ssd1306.Dev
	active bool
}

// NewLinkDisplay opens the display on the default I2C bus. The ssd1306
// driver only speaks to the fixed address 0x3C.
func NewLinkDisplay() (*LinkDisplay, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("link display: periph host init: %w", err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("link display: open I2C bus: %w", err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("link display: init: %w", err)
	}
	log.Println("link display: initialized")

	d := &LinkDisplay{dev: dev}
	if err := d.splash(); err != nil {
		log.Printf("link display: splash error: %v", err)
	}
	return d, nil
}

// SetActive records the heartbeat phase shown on the next Update.
func (d *LinkDisplay) SetActive(on bool) {
	d.active = on
}

// Update redraws the display with the current link state.
func (d *LinkDisplay) Update(clients int, seq uint32) error {
	img := blankImage()
	drawer := textDrawer(img)

	beat := " "
	if d.active {
		beat = "*"
	}
	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("ATT STREAM %s", beat)))

	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(fmt.Sprintf("clients: %d", clients)))

	drawer.Dot = fixed.P(0, 39)
	drawer.DrawBytes([]byte(fmt.Sprintf("seq: %d", seq)))

	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

func (d *LinkDisplay) splash() error {
	img := blankImage()
	drawer := textDrawer(img)

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Attitude"))
	drawer.Dot = fixed.P(10, 43)
	drawer.DrawBytes([]byte("Streamer"))

	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

func blankImage() *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}
	return img
}

func textDrawer(img *image1bit.VerticalLSB) *font.Drawer {
	return &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
}
