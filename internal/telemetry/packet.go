// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry encodes and decodes the binary response frames exchanged
// with the host, and parses the host's text commands.
//
// Frame layout (little-endian):
//
//	total_length   u16  bytes following this field (2 + 2 + n + 1)
//	packet_type    u16
//	payload_length u16  n, at most MaxPayload
//	payload        [n]byte
//	checksum       u8   sum of payload bytes mod 256
package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	MaxPayload = 50

	lengthField = 2
	overhead    = 2 + 2 + 1 // type, payload length, checksum
	minFrame    = lengthField + overhead
	MaxFrame    = minFrame + MaxPayload
)

var (
	ErrPayloadTooLarge = errors.New("telemetry: payload exceeds 50 bytes")
	ErrChecksum        = errors.New("telemetry: checksum mismatch")
)

// FrameError reports bytes that do not form a valid frame. Readers use it to
// decide to resync.
type FrameError struct {
	Reason string
	Bytes  []byte
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("[telemetry] bad frame: %s: % x", e.Reason, e.Bytes)
}

// PacketType identifies the payload layout.
type PacketType uint16

const (
	TypeAngles      PacketType = 0x01
	TypeSensors     PacketType = 0x02
	TypeGait        PacketType = 0x03
	TypeStride      PacketType = 0x04
	TypeCalibration PacketType = 0x05
	TypeStatus      PacketType = 0x06
	TypeFault       PacketType = 0x0E
)

func (t PacketType) String() string {
	switch t {
	case TypeAngles:
		return "angles"
	case TypeSensors:
		return "sensors"
	case TypeGait:
		return "gait"
	case TypeStride:
		return "stride"
	case TypeCalibration:
		return "calibration"
	case TypeStatus:
		return "status"
	case TypeFault:
		return "fault"
	}
	return fmt.Sprintf("type(0x%02x)", uint16(t))
}

// Packet is one ResponsePacket. Sum is the checksum carried on the wire.
type Packet struct {
	Type    PacketType
	Payload []byte
	Sum     byte
}

// Checksum is the additive sum of the payload bytes, mod 256.
func Checksum(payload []byte) byte {
	var s byte
	for _, b := range payload {
		s += b
	}
	return s
}

// NewPacket copies payload and stamps its checksum.
func NewPacket(t PacketType, payload []byte) (Packet, error) {
	if len(payload) > MaxPayload {
		return Packet{}, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(payload))
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	return Packet{Type: t, Payload: p, Sum: Checksum(p)}, nil
}

// Valid recomputes the checksum over the payload.
func (p Packet) Valid() bool {
	return len(p.Payload) <= MaxPayload && Checksum(p.Payload) == p.Sum
}

// TotalLength is the value of the leading length field.
func (p Packet) TotalLength() int {
	return overhead + len(p.Payload)
}

// MarshalBinary encodes the frame.
func (p Packet) MarshalBinary() ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(p.Payload))
	}
	buf := make([]byte, lengthField+p.TotalLength())
	binary.LittleEndian.PutUint16(buf[0:], uint16(p.TotalLength()))
	binary.LittleEndian.PutUint16(buf[2:], uint16(p.Type))
	binary.LittleEndian.PutUint16(buf[4:], uint16(len(p.Payload)))
	copy(buf[6:], p.Payload)
	buf[len(buf)-1] = p.Sum
	return buf, nil
}

// FrameLength validates a total_length field and returns the size of the
// whole frame including the field itself.
func FrameLength(header []byte) (int, error) {
	if len(header) < lengthField {
		return 0, &FrameError{Reason: "short header", Bytes: clone(header)}
	}
	total := int(binary.LittleEndian.Uint16(header))
	if total < overhead || total > overhead+MaxPayload {
		return 0, &FrameError{Reason: fmt.Sprintf("total length %d out of range", total), Bytes: clone(header[:lengthField])}
	}
	return lengthField + total, nil
}

// Unmarshal decodes exactly one frame. Structural problems are FrameErrors; a
// well formed frame with a bad checksum wraps ErrChecksum.
func Unmarshal(data []byte) (Packet, error) {
	n, err := FrameLength(data)
	if err != nil {
		return Packet{}, err
	}
	if len(data) != n {
		return Packet{}, &FrameError{Reason: fmt.Sprintf("frame is %d bytes, header says %d", len(data), n), Bytes: clone(data)}
	}
	plen := int(binary.LittleEndian.Uint16(data[4:]))
	if plen != n-minFrame {
		return Packet{}, &FrameError{Reason: fmt.Sprintf("payload length %d disagrees with total length", plen), Bytes: clone(data)}
	}

	p := Packet{
		Type:    PacketType(binary.LittleEndian.Uint16(data[2:])),
		Payload: clone(data[6 : 6+plen]),
		Sum:     data[n-1],
	}
	if !p.Valid() {
		return p, fmt.Errorf("%w: %v frame carries 0x%02x, payload sums to 0x%02x", ErrChecksum, p.Type, p.Sum, Checksum(p.Payload))
	}
	return p, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
