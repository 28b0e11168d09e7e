package telemetry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PacketSize is the fixed wire size of a telemetry datagram in bytes.
const PacketSize = 40

// Packet is the fixed-layout binary telemetry record sent over the datagram
// channel. All fields little-endian, no padding:
//
//	seq:u32 t_ms:u32 tr_us:u32 ts_us:u32
//	yaw:f32 pitch:f32 roll:f32 ax:f32 ay:f32 az:f32
type Packet struct {
	Seq   uint32
	TMs   uint32
	TrUs  uint32
	TsUs  uint32
	Yaw   float32
	Pitch float32
	Roll  float32
	Ax    float32
	Ay    float32
	Az    float32
}

// PacketFrom builds a wire packet from a sequenced sample and the device
// millisecond clock at encode time.
func PacketFrom(ss SequencedSample, tMs uint32) Packet {
	return Packet{
		Seq:   ss.Seq,
		TMs:   tMs,
		TrUs:  ss.ReadTs,
		TsUs:  ss.SendTs,
		Yaw:   float32(ss.Yaw),
		Pitch: float32(ss.Pitch),
		Roll:  float32(ss.Roll),
		Ax:    float32(ss.Ax),
		Ay:    float32(ss.Ay),
		Az:    float32(ss.Az),
	}
}

// Encode serializes the packet into its 40-byte wire form.
func (p Packet) Encode() []byte {
	buf := make([]byte, PacketSize)
	binary.LittleEndian.PutUint32(buf[0:], p.Seq)
	binary.LittleEndian.PutUint32(buf[4:], p.TMs)
	binary.LittleEndian.PutUint32(buf[8:], p.TrUs)
	binary.LittleEndian.PutUint32(buf[12:], p.TsUs)
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(p.Yaw))
	binary.LittleEndian.PutUint32(buf[20:], math.Float32bits(p.Pitch))
	binary.LittleEndian.PutUint32(buf[24:], math.Float32bits(p.Roll))
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(p.Ax))
	binary.LittleEndian.PutUint32(buf[32:], math.Float32bits(p.Ay))
	binary.LittleEndian.PutUint32(buf[36:], math.Float32bits(p.Az))
	return buf
}

// DecodePacket parses a 40-byte wire record. Short or long buffers are
// rejected; there is no partial decode.
func DecodePacket(buf []byte) (Packet, error) {
	if len(buf) != PacketSize {
		return Packet{}, fmt.Errorf("telemetry packet: want %d bytes, got %d", PacketSize, len(buf))
	}
	return Packet{
		Seq:   binary.LittleEndian.Uint32(buf[0:]),
		TMs:   binary.LittleEndian.Uint32(buf[4:]),
		TrUs:  binary.LittleEndian.Uint32(buf[8:]),
		TsUs:  binary.LittleEndian.Uint32(buf[12:]),
		Yaw:   math.Float32frombits(binary.LittleEndian.Uint32(buf[16:])),
		Pitch: math.Float32frombits(binary.LittleEndian.Uint32(buf[20:])),
		Roll:  math.Float32frombits(binary.LittleEndian.Uint32(buf[24:])),
		Ax:    math.Float32frombits(binary.LittleEndian.Uint32(buf[28:])),
		Ay:    math.Float32frombits(binary.LittleEndian.Uint32(buf[32:])),
		Az:    math.Float32frombits(binary.LittleEndian.Uint32(buf[36:])),
	}, nil
}
