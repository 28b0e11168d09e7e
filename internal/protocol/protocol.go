// Package protocol defines the tagged control-channel messages exchanged
// between the streamer and its clients. Messages travel as JSON envelopes
// {"t": tag, "p": payload}; unknown tags and unparseable payloads are
// ignored by policy, never answered with an error.
package protocol

import (
	"encoding/json"
	"errors"
)

// Message tags.
const (
	TagHello     = "hello"
	TagSync      = "sync"
	TagSyncReply = "syncr"
	TagRotate    = "rotate"
	TagEvent     = "event"
	TagAck       = "ack"
	TagFrame     = "frame"
)

// Envelope is the outer wire form of every control message.
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p,omitempty"`
}

// Hello registers the sender's datagram endpoint. A repeated Hello
// overwrites the previous registration; it is not additive.
type Hello struct {
	Addr string `json:"addr"`
}

// SyncRequest carries the client's local send time in milliseconds.
type SyncRequest struct {
	T0 float64 `json:"t0"`
}

// SyncReply echoes the request's t0 and adds the device clock at receipt.
type SyncReply struct {
	T0 float64 `json:"t0"`
	T1 uint32  `json:"t1"`
}

// Rotate asks the device to rotate its log session.
type Rotate struct{}

// Event is a client-annotated marker forwarded to the log router.
type Event struct {
	Kind string `json:"kind"`
	Note string `json:"note"`
	T    uint64 `json:"t"`
}

// Ack confirms a processed command by name.
type Ack struct {
	Cmd string `json:"cmd"`
}

// DataFrame is one telemetry sample pushed device→client over the control
// channel at the rate limiter's cadence.
type DataFrame struct {
	Seq   uint32  `json:"seq"`
	TMs   uint32  `json:"t_ms"`
	TrUs  uint32  `json:"tr_us"`
	TsUs  uint32  `json:"ts_us"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Ax    float64 `json:"ax"`
	Ay    float64 `json:"ay"`
	Az    float64 `json:"az"`
}

// Marshal wraps a message value in its envelope. Passing a type that is not
// a protocol message is a programming error and yields an error.
func Marshal(msg any) ([]byte, error) {
	var tag string
	switch msg.(type) {
	case Hello:
		tag = TagHello
	case SyncRequest:
		tag = TagSync
	case SyncReply:
		tag = TagSyncReply
	case Rotate:
		tag = TagRotate
	case Event:
		tag = TagEvent
	case Ack:
		tag = TagAck
	case DataFrame:
		tag = TagFrame
	default:
		return nil, errUnknownMessage
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{T: tag, P: payload})
}

// Decode parses an envelope and returns the typed message. The second
// return is false for anything malformed or unrecognized; callers drop
// such input silently per the channel's permissiveness policy.
func Decode(data []byte) (any, bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}

	unmarshal := func(v any) (any, bool) {
		if len(env.P) == 0 {
			return nil, false
		}
		if err := json.Unmarshal(env.P, v); err != nil {
			return nil, false
		}
		return v, true
	}

	switch env.T {
	case TagHello:
		if v, ok := unmarshal(&Hello{}); ok {
			return *v.(*Hello), true
		}
	case TagSync:
		if v, ok := unmarshal(&SyncRequest{}); ok {
			return *v.(*SyncRequest), true
		}
	case TagSyncReply:
		if v, ok := unmarshal(&SyncReply{}); ok {
			return *v.(*SyncReply), true
		}
	case TagRotate:
		// Rotate carries no payload.
		return Rotate{}, true
	case TagEvent:
		if v, ok := unmarshal(&Event{}); ok {
			return *v.(*Event), true
		}
	case TagAck:
		if v, ok := unmarshal(&Ack{}); ok {
			return *v.(*Ack), true
		}
	case TagFrame:
		if v, ok := unmarshal(&DataFrame{}); ok {
			return *v.(*DataFrame), true
		}
	}
	return nil, false
}

var errUnknownMessage = errors.New("protocol: not a control message")
