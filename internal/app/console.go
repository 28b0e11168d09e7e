// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/attitude_streamer/internal/clocksync"
	"github.com/relabs-tech/attitude_streamer/internal/config"
	"github.com/relabs-tech/attitude_streamer/internal/protocol"
	"github.com/relabs-tech/attitude_streamer/internal/telemetry"
)

// console is the viewer: one control connection, the clock-sync engine and
// an optional datagram listener. The read pump is the only reader; writes
// are serialized by writeMu because the engine goroutine and the command
// loop both send.
type console struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	start   time.Time
	replies chan protocol.SyncReply
	engine  *clocksync.Engine
}

// nowMs is the client clock: milliseconds since console start.
func (c *console) nowMs() float64 {
	return float64(time.Since(c.start).Nanoseconds()) / 1e6
}

func (c *console) write(msg any) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Exchange implements clocksync.Exchanger: one outstanding request, the
// reply matched by its echoed t0. Stale replies from a previously timed-out
// round are skipped.
func (c *console) Exchange(t0 float64, timeout time.Duration) (uint32, float64, error) {
	if err := c.write(protocol.SyncRequest{T0: t0}); err != nil {
		return 0, 0, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case reply := <-c.replies:
			if reply.T0 != t0 {
				continue // leftover from a timed-out round
			}
			return reply.T1, c.nowMs(), nil
		case <-timer.C:
			return 0, 0, fmt.Errorf("sync round timed out after %s", timeout)
		}
	}
}

// RunConsole connects to the streamer, registers for datagram telemetry,
// runs the clock-sync engine and prints frames with viewer-clock timestamps.
func RunConsole() error {
	cfg := config.Get()
	if cfg.ServerURL == "" {
		return fmt.Errorf("console: SERVER_URL is required")
	}

	conn, _, err := websocket.DefaultDialer.Dial(cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("console: dial %s: %w", cfg.ServerURL, err)
	}
	defer conn.Close()
	log.Printf("console: connected to %s", cfg.ServerURL)

	c := &console{
		conn:    conn,
		start:   time.Now(),
		replies: make(chan protocol.SyncReply, 4),
	}
	c.engine = clocksync.New(clocksync.Config{
		Rounds:       cfg.SyncRounds,
		ResyncRounds: cfg.SyncResyncRounds,
		Timeout:      time.Duration(cfg.SyncTimeoutMs) * time.Millisecond,
		DriftMs:      cfg.DriftThresholdMs,
		OffsetAlpha:  cfg.OffsetAlpha,
		RTTAlpha:     cfg.RTTAlpha,
	}, c, c.nowMs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Datagram listener: best-effort, gaps and reordering are expected and
	// only reported.
	if cfg.UDPListenAddr != "" {
		go runDatagramListener(ctx, cfg.UDPListenAddr)
		if err := c.write(protocol.Hello{Addr: cfg.UDPListenAddr}); err != nil {
			return fmt.Errorf("console: hello: %w", err)
		}
	}

	go c.engine.Run(ctx)
	go c.commandLoop()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	// Read pump: the sole reader of the control connection.
	frames := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("console: connection lost: %w", err)
		}
		msg, ok := protocol.Decode(data)
		if !ok {
			continue
		}

		switch m := msg.(type) {
		case protocol.SyncReply:
			select {
			case c.replies <- m:
			default:
			}

		case protocol.DataFrame:
			c.engine.ObserveFrame(m.TMs, c.nowMs())
			frames++
			if frames%60 == 0 {
				est := c.engine.Estimate()
				fmt.Printf(
					"[FRAME] seq=%-8d t=%9.1fms  YAW=%7.2f PITCH=%7.2f ROLL=%7.2f | offset=%.2fms rtt=%.2fms\n",
					m.Seq, c.engine.DeviceToClient(m.TMs),
					m.Yaw, m.Pitch, m.Roll,
					est.Offset, est.RTT,
				)
			}

		case protocol.Ack:
			log.Printf("console: ack %q", m.Cmd)
		}
	}
}

// commandLoop turns stdin lines into control messages:
//
//	rotate        → Rotate
//	mark <note>   → Event{kind: "mark"}
func (c *console) commandLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "rotate":
			if err := c.write(protocol.Rotate{}); err != nil {
				log.Printf("console: rotate: %v", err)
			}
		case strings.HasPrefix(line, "mark "):
			ev := protocol.Event{
				Kind: "mark",
				Note: strings.TrimPrefix(line, "mark "),
				T:    uint64(c.nowMs()),
			}
			if err := c.write(ev); err != nil {
				log.Printf("console: mark: %v", err)
			}
		case line == "":
		default:
			log.Printf("console: unknown command %q (try: rotate, mark <note>)", line)
		}
	}
}

// runDatagramListener receives telemetry packets and reports sequence gaps.
func runDatagramListener(ctx context.Context, addr string) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		log.Printf("console: datagram listen addr %q: %v", addr, err)
		return
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		log.Printf("console: datagram listen: %v", err)
		return
	}
	defer conn.Close()
	log.Printf("console: datagram listener on %s", addr)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var tracker seqTracker
	buf := make([]byte, 64)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		pkt, err := telemetry.DecodePacket(buf[:n])
		if err != nil {
			continue // not ours, drop
		}
		if gap, prev := tracker.observe(pkt.Seq); gap {
			log.Printf("console: datagram gap: %d → %d", prev, pkt.Seq)
		}
	}
}

// seqTracker detects discontinuities in the datagram sequence. The have flag
// distinguishes "no packet seen yet" from a stream that happens to pass
// through seq 0 on wrap.
type seqTracker struct {
	last uint32
	have bool
}

// observe records seq and reports whether it broke the +1 progression,
// along with the previous value for logging.
func (s *seqTracker) observe(seq uint32) (gap bool, prev uint32) {
	prev = s.last
	gap = s.have && seq != s.last+1
	s.last = seq
	s.have = true
	return gap, prev
}
