// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/relabs-tech/gait_computer/internal/calibration"
	"github.com/relabs-tech/gait_computer/internal/control"
	"github.com/relabs-tech/gait_computer/internal/gait"
)

// AnglesFrame carries yaw, pitch and roll in degrees.
type AnglesFrame struct {
	Yaw, Pitch, Roll float32
}

// SensorsFrame carries the conditioned accel (1 g reads GRAVITY) and gyro (rad/s).
type SensorsFrame struct {
	Accel [3]float32
	Gyro  [3]float32
}

// Gait flag bits.
const (
	FlagHeelStrike = 1 << iota
	FlagToeOff
	FlagMissedStride
)

type GaitFrame struct {
	Phase    uint8
	Flags    uint8
	Strides  uint16
	Velocity [3]float32 // m/s
}

type StrideFrame struct {
	Index        uint16
	Ticks        uint16
	StanceTicks  uint16
	SwingTicks   uint16
	Duration     float32 // s
	Speed        float32 // m/s
	Cadence      float32 // strides/min
	PeakSpeed    float32
	Displacement [3]float32
}

// Calibration frame states.
const (
	CalCollecting uint8 = 1
	CalFinished   uint8 = 2
	CalAborted    uint8 = 3
)

type CalibrationFrame struct {
	State       uint8
	Samples     uint32
	AccelOffset [3]float32
	AccelGain   [3]float32
	GyroOffset  [3]float32
}

// Status flag bits.
const (
	StatusCalibrating = 1 << iota
	StatusLed
)

type StatusFrame struct {
	Timestamp  int64
	GDt        float32
	Mode       uint8
	Flags      uint8
	CalSamples uint16
}

// Fault flag bits.
const (
	FaultAttitude = 1 << iota
	FaultMissedStride
	FaultDtClamped
	FaultSkipped
)

// FaultFrame is followed on the wire by a truncated message.
type FaultFrame struct {
	Flags   uint8
	Skipped uint16
	Message string
}

const faultHeader = 3

// BuildFrames selects the frames one tick emits. Stride, fault, status and
// calibration progress frames go out in every mode.
func BuildFrames(mode control.OutputMode, r control.TickResult) ([]Packet, error) {
	var out []Packet
	add := func(t PacketType, v any) error {
		p, err := EncodeFrame(t, v)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	}

	if mode == control.OutputAngles || mode == control.OutputAll {
		if err := add(TypeAngles, anglesFrame(r)); err != nil {
			return nil, err
		}
	}
	if mode == control.OutputSensors {
		if err := add(TypeSensors, sensorsFrame(r)); err != nil {
			return nil, err
		}
	}
	if mode == control.OutputGait || mode == control.OutputAll {
		if err := add(TypeGait, gaitFrame(r.Gait)); err != nil {
			return nil, err
		}
	}
	if r.Gait.Stride != nil {
		if err := add(TypeStride, strideFrame(r.Gait.Stride)); err != nil {
			return nil, err
		}
	}
	if r.Calibrating {
		if err := add(TypeCalibration, CalibrationFrame{State: CalCollecting, Samples: uint32(r.CalSamples)}); err != nil {
			return nil, err
		}
	}
	if r.Status {
		if err := add(TypeStatus, statusFrame(r)); err != nil {
			return nil, err
		}
	}
	if r.Faults.Any() {
		p, err := faultPacket(r.Faults)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// CalibrationResult reports the outcome of leaving calibration mode.
func CalibrationResult(c *calibration.Constants, calErr error) (Packet, error) {
	if calErr != nil || c == nil {
		return EncodeFrame(TypeCalibration, CalibrationFrame{State: CalAborted})
	}
	return EncodeFrame(TypeCalibration, CalibrationFrame{
		State:       CalFinished,
		Samples:     uint32(c.Samples),
		AccelOffset: f32x3(c.AccelOffset),
		AccelGain:   f32x3(c.AccelGain),
		GyroOffset:  f32x3(c.GyroOffset),
	})
}

// EncodeFrame packs a fixed-size frame struct into a packet.
func EncodeFrame(t PacketType, v any) (Packet, error) {
	if f, ok := v.(FaultFrame); ok {
		return encodeFault(f)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return Packet{}, fmt.Errorf("encode %v: %w", t, err)
	}
	return NewPacket(t, buf.Bytes())
}

// Decode unpacks the payload into the frame struct for its type.
func (p Packet) Decode() (any, error) {
	var v any
	switch p.Type {
	case TypeAngles:
		v = &AnglesFrame{}
	case TypeSensors:
		v = &SensorsFrame{}
	case TypeGait:
		v = &GaitFrame{}
	case TypeStride:
		v = &StrideFrame{}
	case TypeCalibration:
		v = &CalibrationFrame{}
	case TypeStatus:
		v = &StatusFrame{}
	case TypeFault:
		return decodeFault(p.Payload)
	default:
		return nil, fmt.Errorf("unknown packet type %v", p.Type)
	}
	if size := binary.Size(v); size != len(p.Payload) {
		return nil, fmt.Errorf("%v payload is %d bytes, want %d", p.Type, len(p.Payload), size)
	}
	if err := binary.Read(bytes.NewReader(p.Payload), binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return v, nil
}

func anglesFrame(r control.TickResult) AnglesFrame {
	return AnglesFrame{
		Yaw:   float32(r.Pose.Yaw),
		Pitch: float32(r.Pose.Pitch),
		Roll:  float32(r.Pose.Roll),
	}
}

func sensorsFrame(r control.TickResult) SensorsFrame {
	return SensorsFrame{Accel: f32x3(r.Sample.Accel), Gyro: f32x3(r.Sample.Gyro)}
}

func gaitFrame(g gait.Result) GaitFrame {
	var flags uint8
	if g.HeelStrike {
		flags |= FlagHeelStrike
	}
	if g.ToeOff {
		flags |= FlagToeOff
	}
	if g.MissedStride {
		flags |= FlagMissedStride
	}
	return GaitFrame{
		Phase:    uint8(g.Phase),
		Flags:    flags,
		Strides:  sat16(g.Strides),
		Velocity: f32x3(g.Velocity.Array()),
	}
}

func strideFrame(s *gait.StrideSummary) StrideFrame {
	return StrideFrame{
		Index:        sat16(s.Index),
		Ticks:        sat16(s.Ticks),
		StanceTicks:  sat16(s.StanceTicks),
		SwingTicks:   sat16(s.SwingTicks),
		Duration:     float32(s.Duration),
		Speed:        float32(s.Speed),
		Cadence:      float32(s.Cadence),
		PeakSpeed:    float32(s.PeakSpeed),
		Displacement: f32x3(s.Displacement.Array()),
	}
}

func statusFrame(r control.TickResult) StatusFrame {
	var flags uint8
	if r.Calibrating {
		flags |= StatusCalibrating
	}
	if r.Led {
		flags |= StatusLed
	}
	return StatusFrame{
		Timestamp:  r.Timestamp,
		GDt:        float32(r.GDt),
		Mode:       uint8(r.Mode),
		Flags:      flags,
		CalSamples: sat16(r.CalSamples),
	}
}

func faultPacket(f control.Faults) (Packet, error) {
	var flags uint8
	if f.Attitude != "" {
		flags |= FaultAttitude
	}
	if f.MissedStride {
		flags |= FaultMissedStride
	}
	if f.DtClamped {
		flags |= FaultDtClamped
	}
	if f.SkippedBefore > 0 {
		flags |= FaultSkipped
	}
	return encodeFault(FaultFrame{Flags: flags, Skipped: sat16(f.SkippedBefore), Message: f.Attitude})
}

func encodeFault(f FaultFrame) (Packet, error) {
	msg := f.Message
	if len(msg) > MaxPayload-faultHeader {
		msg = msg[:MaxPayload-faultHeader]
	}
	buf := make([]byte, faultHeader, faultHeader+len(msg))
	buf[0] = f.Flags
	binary.LittleEndian.PutUint16(buf[1:], f.Skipped)
	buf = append(buf, msg...)
	return NewPacket(TypeFault, buf)
}

func decodeFault(b []byte) (*FaultFrame, error) {
	if len(b) < faultHeader {
		return nil, fmt.Errorf("fault payload is %d bytes", len(b))
	}
	return &FaultFrame{
		Flags:   b[0],
		Skipped: binary.LittleEndian.Uint16(b[1:]),
		Message: string(b[faultHeader:]),
	}, nil
}

func f32x3(v [3]float64) [3]float32 {
	return [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
}

func sat16(n int) uint16 {
	if n < 0 {
		return 0
	}
	if n > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(n)
}
