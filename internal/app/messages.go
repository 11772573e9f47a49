// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"github.com/relabs-tech/gait_computer/internal/attitude"
	"github.com/relabs-tech/gait_computer/internal/calibration"
	"github.com/relabs-tech/gait_computer/internal/control"
	"github.com/relabs-tech/gait_computer/internal/gait"
	"github.com/relabs-tech/gait_computer/internal/imu"
)

// MQTT payloads. Poses go out as orientation.Pose and GPS fixes as gps.Fix.

type SampleMessage struct {
	Timestamp int64         `json:"timestamp"`
	Raw       imu.IMURaw    `json:"raw"`
	Sample    imu.Sample    `json:"sample"`
	LegAccel  attitude.Vec3 `json:"leg_accel"`
}

type GaitMessage struct {
	Timestamp int64 `json:"timestamp"`
	gait.Result
}

type StrideMessage struct {
	Timestamp int64 `json:"timestamp"`
	gait.StrideSummary
}

type StatusMessage struct {
	Time          string               `json:"time"`
	State         control.ControlState `json:"state"`
	Aligned       bool                 `json:"aligned"`
	Faults        control.Faults       `json:"faults"`
	TelemetrySent uint64               `json:"telemetry_sent"`
}

// Calibration states on the calibration topic.
const (
	CalStateCollecting = "collecting"
	CalStateFinished   = "finished"
	CalStateAborted    = "aborted"
)

type CalibrationMessage struct {
	State     string                 `json:"state"`
	Samples   int                    `json:"samples"`
	Constants *calibration.Constants `json:"constants,omitempty"`
	Error     string                 `json:"error,omitempty"`
}
