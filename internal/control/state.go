// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

import (
	"fmt"

	"github.com/relabs-tech/gait_computer/internal/attitude"
	"github.com/relabs-tech/gait_computer/internal/gait"
	"github.com/relabs-tech/gait_computer/internal/imu"
	"github.com/relabs-tech/gait_computer/internal/orientation"
)

// OutputMode selects which derived quantities go out on the telemetry channel.
type OutputMode int

const (
	OutputAngles OutputMode = iota
	OutputSensors
	OutputGait
	OutputAll
)

// ParseOutputMode maps the config spelling.
func ParseOutputMode(s string) (OutputMode, error) {
	switch s {
	case "angles":
		return OutputAngles, nil
	case "sensors":
		return OutputSensors, nil
	case "gait":
		return OutputGait, nil
	case "all":
		return OutputAll, nil
	}
	return OutputAngles, fmt.Errorf("unknown output mode %q", s)
}

func (m OutputMode) String() string {
	switch m {
	case OutputAngles:
		return "angles"
	case OutputSensors:
		return "sensors"
	case OutputGait:
		return "gait"
	case OutputAll:
		return "all"
	}
	return fmt.Sprintf("output(%d)", int(m))
}

// MarshalText encodes the mode by name.
func (m OutputMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *OutputMode) UnmarshalText(b []byte) error {
	v, err := ParseOutputMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// CommandKind enumerates host commands.
type CommandKind int

const (
	CmdOutputMode CommandKind = iota
	CmdCalibrate
	CmdRealign
	CmdStatus
	CmdBaudLock
)

func (k CommandKind) String() string {
	switch k {
	case CmdOutputMode:
		return "output_mode"
	case CmdCalibrate:
		return "calibrate"
	case CmdRealign:
		return "realign"
	case CmdStatus:
		return "status"
	case CmdBaudLock:
		return "baud_lock"
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is a host request applied between ticks.
type Command struct {
	Kind CommandKind
	Mode OutputMode // CmdOutputMode
	On   bool       // CmdCalibrate
}

// ControlState is the scheduler bookkeeping. Timestamps are in
// TIME_RESOLUTION units.
type ControlState struct {
	Timestamp    int64      `json:"timestamp"`
	TimestampOld int64      `json:"timestamp_old"`
	GDt          float64    `json:"g_dt"`
	Calibrate    bool       `json:"calibrate"`
	OutputMode   OutputMode `json:"output_mode"`
	BaudLock     bool       `json:"baud_lock"`
	LedState     bool       `json:"led_state"`
	LastBlink    int64      `json:"last_blink"`
	Ticks        uint64     `json:"ticks"`
	Skipped      uint64     `json:"skipped"`
}

// Faults collects what went wrong during a tick. None of them stop the loop.
type Faults struct {
	Attitude      string `json:"attitude,omitempty"` // DCM reset to identity
	MissedStride  bool   `json:"missed_stride,omitempty"`
	SkippedBefore int    `json:"skipped_before,omitempty"` // ticks skipped since the previous one
	DtClamped     bool   `json:"dt_clamped,omitempty"`
}

// Any reports whether a fault was raised.
func (f Faults) Any() bool {
	return f.Attitude != "" || f.MissedStride || f.SkippedBefore > 0 || f.DtClamped
}

// TickResult is everything one tick produced.
type TickResult struct {
	Timestamp   int64            `json:"timestamp"`
	GDt         float64          `json:"g_dt"`
	Raw         imu.IMURaw       `json:"raw"`
	Sample      imu.Sample       `json:"sample"` // scaled and filtered
	Angles      attitude.Angles  `json:"angles"` // radians
	Pose        orientation.Pose `json:"pose"`   // degrees
	LegAccel    attitude.Vec3    `json:"leg_accel"`
	Gait        gait.Result      `json:"gait"`
	Faults      Faults           `json:"faults"`
	Mode        OutputMode       `json:"mode"`
	Calibrating bool             `json:"calibrating"`
	CalSamples  int              `json:"cal_samples,omitempty"`
	Status      bool             `json:"status,omitempty"` // host asked for a status frame
	Led         bool             `json:"led"`
}
