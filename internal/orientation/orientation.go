// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
)

// Pose is the published representation of orientation, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// PoseFromRadians converts estimator angles to a Pose.
func PoseFromRadians(roll, pitch, yaw float64) Pose {
	return Pose{
		Roll:  roll * 180.0 / math.Pi,
		Pitch: pitch * 180.0 / math.Pi,
		Yaw:   yaw * 180.0 / math.Pi,
	}
}

// Radians returns roll, pitch and yaw in radians.
func (p Pose) Radians() (roll, pitch, yaw float64) {
	return p.Roll * math.Pi / 180.0, p.Pitch * math.Pi / 180.0, p.Yaw * math.Pi / 180.0
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is 0: there is no heading reference without the magnetometer.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return PoseFromRadians(rollRad, pitchRad, 0)
}
