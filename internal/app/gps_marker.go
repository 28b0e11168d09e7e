package app

import (
	"bufio"
	"fmt"
	"log"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/gorilla/websocket"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/attitude_streamer/internal/config"
	"github.com/relabs-tech/attitude_streamer/internal/protocol"
)

// RunGPSMarker reads NMEA RMC sentences from a serial GPS and forwards each
// valid fix to the streamer as an annotated event, so position markers land
// in the same rotating log as the viewer's own annotations.
func RunGPSMarker() error {
	cfg := config.Get()
	if cfg.ServerURL == "" {
		return fmt.Errorf("gps marker: SERVER_URL is required")
	}
	if cfg.GPSSerialPort == "" {
		return fmt.Errorf("gps marker: GPS_SERIAL_PORT is required")
	}

	conn, _, err := websocket.DefaultDialer.Dial(cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("gps marker: dial %s: %w", cfg.ServerURL, err)
	}
	defer conn.Close()
	log.Printf("gps marker: connected to %s", cfg.ServerURL)

	// The streamer pushes data frames at full cadence to every client;
	// drain them so the connection does not stall.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	serialOpts := serial.OpenOptions{
		PortName:        cfg.GPSSerialPort,
		BaudRate:        uint(cfg.GPSBaudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return fmt.Errorf("gps marker: open %s: %w", cfg.GPSSerialPort, err)
	}
	defer port.Close()
	log.Printf("gps marker: serial port opened on %s at %d baud", cfg.GPSSerialPort, cfg.GPSBaudRate)

	start := time.Now()
	reader := bufio.NewReader(port)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("gps marker: read error: %v", err)
			return err
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			// noisy GPS or partial sentences; skip
			continue
		}

		if sentence.DataType() != nmea.TypeRMC {
			continue
		}
		m := sentence.(nmea.RMC)
		if string(m.Validity) != "A" {
			continue // no fix yet
		}

		ev := protocol.Event{
			Kind: "gps",
			Note: fmt.Sprintf("%.6f,%.6f,%.1fkn,%.1fdeg", m.Latitude, m.Longitude, m.Speed, m.Course),
			T:    uint64(time.Since(start).Milliseconds()),
		}
		data, err := protocol.Marshal(ev)
		if err != nil {
			log.Printf("gps marker: marshal error: %v", err)
			continue
		}

		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return fmt.Errorf("gps marker: connection lost: %w", err)
		}
		log.Printf("gps marker: sent fix %s", ev.Note)
	}
}
