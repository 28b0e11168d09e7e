// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/attitude_streamer/internal/config"
	"github.com/relabs-tech/attitude_streamer/internal/logrouter"
	"github.com/relabs-tech/attitude_streamer/internal/protocol"
	"github.com/relabs-tech/attitude_streamer/internal/sources"
	"github.com/relabs-tech/attitude_streamer/internal/status"
	"github.com/relabs-tech/attitude_streamer/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// frameWriter is the slice of *websocket.Conn the hub needs. Tests substitute
// a fake.
type frameWriter interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// datagramWriter is the slice of *net.UDPConn the hub needs.
type datagramWriter interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// session is the per-connection state owned by the hub: the control
// connection itself plus that client's single registered datagram endpoint.
// A repeated hello overwrites the endpoint, it never accumulates.
type session struct {
	conn     frameWriter
	remote   string
	endpoint *net.UDPAddr
}

// inbound carries one decoded client message, or a connection closure, from
// a reader goroutine into the hub loop.
type inbound struct {
	sess   *session
	msg    any
	closed bool
}

// hub owns every piece of mutable streamer state. All of it is touched only
// from the run loop, which is also the sole writer to every connection and
// the UDP socket; that single-writer discipline is what keeps data frames
// and sync replies ordered on the control channel.
type hub struct {
	clock    *telemetry.Clock
	seqr     telemetry.Sequencer
	limiter  *telemetry.RateLimiter
	router   *logrouter.Router
	udp      datagramWriter
	sessions map[*session]bool
	lastSeq  uint32

	// optional MQTT mirror; nil when no broker is configured
	mirror      mqtt.Client
	mirrorTopic string
}

func newHub(clock *telemetry.Clock, limiter *telemetry.RateLimiter, router *logrouter.Router, udp datagramWriter) *hub {
	return &hub{
		clock:    clock,
		limiter:  limiter,
		router:   router,
		udp:      udp,
		sessions: make(map[*session]bool),
	}
}

// publishSample applies the rate limiter and, when the sample passes,
// sequences it and pushes the data frame to every control connection and a
// telemetry packet to every registered datagram endpoint. Decimated samples
// never consume a sequence number, so a lossless receiver observes seq
// advancing by exactly one.
func (h *hub) publishSample(sample telemetry.Sample) {
	readTs := h.clock.NowMicros()
	if !h.limiter.Allow() {
		return // decimated, newest-wins
	}
	ss := h.seqr.Next(sample, readTs)
	h.lastSeq = ss.Seq
	ss.SendTs = h.clock.NowMicros()
	tMs := h.clock.NowMillis()

	frame := protocol.DataFrame{
		Seq: ss.Seq, TMs: tMs, TrUs: ss.ReadTs, TsUs: ss.SendTs,
		Yaw: ss.Yaw, Pitch: ss.Pitch, Roll: ss.Roll,
		Ax: ss.Ax, Ay: ss.Ay, Az: ss.Az,
	}
	data, err := protocol.Marshal(frame)
	if err != nil {
		log.Printf("streamer: frame marshal error: %v", err)
		return
	}

	packet := telemetry.PacketFrom(ss, tMs).Encode()
	for sess := range h.sessions {
		if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("streamer: write to %s failed, dropping session: %v", sess.remote, err)
			h.drop(sess)
			continue
		}
		if sess.endpoint != nil {
			// Fire-and-forget; a failed datagram is the channel working
			// as specified.
			if _, err := h.udp.WriteToUDP(packet, sess.endpoint); err != nil {
				log.Printf("streamer: datagram to %s: %v", sess.endpoint, err)
			}
		}
	}

	if h.mirror != nil {
		if payload, err := json.Marshal(frame); err == nil {
			h.mirror.Publish(h.mirrorTopic, 0, true, payload)
		}
	}
}

// handle processes one decoded control message for a session. Unknown or
// client-inappropriate messages fall through silently: no error reply, the
// connection stays open. That permissiveness is policy.
func (h *hub) handle(sess *session, msg any) {
	switch m := msg.(type) {
	case protocol.SyncRequest:
		// Replied to synchronously, before any other queued message for
		// this connection; reordering here would corrupt the client's
		// round-trip measurement.
		h.reply(sess, protocol.SyncReply{T0: m.T0, T1: h.clock.NowMillis()})

	case protocol.Hello:
		addr, err := net.ResolveUDPAddr("udp", m.Addr)
		if err != nil {
			log.Printf("streamer: hello from %s with bad endpoint %q: %v", sess.remote, m.Addr, err)
			return
		}
		sess.endpoint = addr
		log.Printf("streamer: %s registered datagram endpoint %s", sess.remote, addr)
		h.reply(sess, protocol.Ack{Cmd: "hello"})

	case protocol.Rotate:
		name, err := h.router.Rotate()
		if err != nil {
			log.Printf("streamer: log rotate failed: %v", err)
		} else {
			log.Printf("streamer: log rotated to %s", name)
		}
		h.reply(sess, protocol.Ack{Cmd: "rotate"})

	case protocol.Event:
		// Server-assigned ingestion timestamp; the router is best-effort.
		if err := h.router.AppendEvent(h.clock.NowMillis(), m.Kind, m.Note, m.T); err != nil {
			log.Printf("streamer: event append failed: %v", err)
		}
		h.reply(sess, protocol.Ack{Cmd: "event"})
	}
}

func (h *hub) reply(sess *session, msg any) {
	data, err := protocol.Marshal(msg)
	if err != nil {
		log.Printf("streamer: reply marshal error: %v", err)
		return
	}
	if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("streamer: reply to %s failed, dropping session: %v", sess.remote, err)
		h.drop(sess)
	}
}

func (h *hub) add(sess *session) {
	h.sessions[sess] = true
	log.Printf("streamer: client %s connected (%d active)", sess.remote, len(h.sessions))
}

func (h *hub) drop(sess *session) {
	if !h.sessions[sess] {
		return
	}
	delete(h.sessions, sess)
	sess.conn.Close()
	log.Printf("streamer: client %s gone (%d active)", sess.remote, len(h.sessions))
}

// RunStreamer runs the device side: sample acquisition, rate-limited frame
// fan-out, the control channel server and housekeeping, all serviced by one
// loop.
func RunStreamer() error {
	cfg := config.Get()

	src, err := buildSource(cfg)
	if err != nil {
		return err
	}

	udp, err := net.ListenUDP("udp", nil)
	if err != nil {
		return fmt.Errorf("streamer: open datagram socket: %w", err)
	}
	defer udp.Close()

	router := logrouter.New(cfg.LogDir, cfg.LogName)
	defer router.Close()

	indicator := buildIndicator(cfg)

	var display *status.LinkDisplay
	if cfg.DisplayI2CAddr != 0 {
		display, err = status.NewLinkDisplay()
		if err != nil {
			log.Printf("streamer: link display unavailable: %v", err)
			display = nil
		}
	}

	h := newHub(
		telemetry.NewClock(),
		telemetry.NewRateLimiter(time.Duration(cfg.TargetPeriodMs)*time.Millisecond),
		router,
		udp,
	)

	if cfg.MQTTBroker != "" {
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.MQTTBroker).
			SetClientID(cfg.MQTTClientID)
		client := mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("streamer: MQTT mirror disabled, connect error: %v", token.Error())
		} else {
			log.Printf("streamer: mirroring frames to MQTT topic %s at %s", cfg.TopicFrame, cfg.MQTTBroker)
			h.mirror = client
			h.mirrorTopic = cfg.TopicFrame
			defer client.Disconnect(250)
		}
	}

	inbox := make(chan inbound, 64)
	join := make(chan *session)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("streamer: upgrade error: %v", err)
			return
		}
		sess := &session{conn: conn, remote: r.RemoteAddr}
		join <- sess

		// Reader goroutine: decode and forward in connection order. The
		// hub loop does all the writing.
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					inbox <- inbound{sess: sess, closed: true}
					return
				}
				msg, ok := protocol.Decode(data)
				if !ok {
					continue // malformed input is dropped silently
				}
				inbox <- inbound{sess: sess, msg: msg}
			}
		}()
	})

	go func() {
		log.Printf("streamer: control channel listening on %s", cfg.WSListenAddr)
		if err := http.ListenAndServe(cfg.WSListenAddr, mux); err != nil {
			log.Fatalf("streamer: control server: %v", err)
		}
	}()

	// Named timers of the device loop.
	sampleTick := time.NewTicker(time.Duration(cfg.SamplePollMs) * time.Millisecond)
	defer sampleTick.Stop()
	heartbeat := time.NewTicker(time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond)
	defer heartbeat.Stop()
	displayTick := time.NewTicker(time.Duration(cfg.DisplayIntervalMs) * time.Millisecond)
	defer displayTick.Stop()

	log.Printf("streamer: loop running, source=%s period=%dms", cfg.Source, cfg.TargetPeriodMs)

	beat := false
	for {
		select {
		case sess := <-join:
			h.add(sess)

		case in := <-inbox:
			if in.closed {
				h.drop(in.sess)
				continue
			}
			h.handle(in.sess, in.msg)

		case <-sampleTick.C:
			sample, ok := src.TryRead()
			if !ok {
				continue // no sample yet, nothing emitted
			}
			h.publishSample(sample)

		case <-heartbeat.C:
			beat = !beat
			indicator.SetActive(beat)
			if display != nil {
				display.SetActive(beat)
			}

		case <-displayTick.C:
			if display != nil {
				if err := display.Update(len(h.sessions), h.lastSeq); err != nil {
					log.Printf("streamer: display update error: %v", err)
				}
			}
		}
	}
}

func buildSource(cfg *config.Config) (sources.Source, error) {
	switch cfg.Source {
	case "imu":
		return sources.NewMPU9250(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange)
	case "serial":
		return sources.NewSerial(cfg.SerialPort, uint(cfg.SerialBaud))
	default:
		log.Println("streamer: using mock sample source")
		return sources.NewMock(), nil
	}
}

func buildIndicator(cfg *config.Config) status.Indicator {
	if cfg.StatusLEDPin == "" {
		return status.Noop{}
	}
	led, err := status.NewLED(cfg.StatusLEDPin)
	if err != nil {
		log.Printf("streamer: status LED unavailable: %v", err)
		return status.Noop{}
	}
	return led
}
