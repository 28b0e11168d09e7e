package sources

import (
	"bufio"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/attitude_streamer/internal/telemetry"
)

// serialSource reads a stream of "yaw,pitch,roll,ax,ay,az" lines from a
// serial-attached sensor board. A background goroutine keeps only the newest
// sample; TryRead hands each sample out at most once.
type serialSource struct {
	mu     sync.Mutex
	latest telemetry.Sample
	fresh  bool
}

// NewSerial opens the serial port and starts the reader goroutine. The
// reader runs until the port errors out; read and parse errors are absorbed
// per line.
func NewSerial(port string, baud uint) (Source, error) {
	opts := serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	p, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial source: open %s: %w", port, err)
	}
	log.Printf("serial source: port opened on %s at %d baud", port, baud)

	s := &serialSource{}
	go func() {
		defer p.Close()
		reader := bufio.NewReader(p)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				log.Printf("serial source: read error, stopping: %v", err)
				return
			}
			sample, err := parseSampleLine(line)
			if err != nil {
				// Noisy boards emit partial lines at startup; skip them.
				continue
			}
			s.mu.Lock()
			s.latest = sample
			s.fresh = true
			s.mu.Unlock()
		}
	}()
	return s, nil
}

func (s *serialSource) TryRead() (telemetry.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return telemetry.Sample{}, false
	}
	s.fresh = false
	return s.latest, true
}

// parseSampleLine parses one "yaw,pitch,roll,ax,ay,az" line.
func parseSampleLine(line string) (telemetry.Sample, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 6 {
		return telemetry.Sample{}, fmt.Errorf("serial source: want 6 fields, got %d", len(fields))
	}
	vals := make([]float64, 6)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return telemetry.Sample{}, fmt.Errorf("serial source: field %d: %w", i, err)
		}
		vals[i] = v
	}
	return telemetry.Sample{
		Yaw: vals[0], Pitch: vals[1], Roll: vals[2],
		Ax: vals[3], Ay: vals[4], Az: vals[5],
	}, nil
}
