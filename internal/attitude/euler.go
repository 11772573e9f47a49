// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package attitude

import (
	"math"

	"github.com/relabs-tech/gait_computer/internal/config"
)

// Angles are the extracted Euler angles in radians.
// Pitch is in [-pi/2, pi/2]; roll and yaw are in [-pi, pi).
type Angles struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Convention maps the sensor mounting onto the reported pitch and roll.
// Row 2 of the DCM is gravity expressed in the body frame.
//
//	pitch = PitchSign * -asin(row2[PitchAxis])
//	roll  = RollSign * atan2(ZeroRef*row2[u], ZeroRef*row2[v])
//
// where u, v are the two axes following RollAxis cyclically (x -> y,z).
type Convention struct {
	PitchAxis config.Axis
	PitchSign float64
	RollAxis  config.Axis
	RollSign  float64
	ZeroRef   float64
}

// DefaultConvention is the Razor board mounting: pitch about y read off x,
// roll about x.
var DefaultConvention = Convention{
	PitchAxis: config.AxisX,
	PitchSign: 1,
	RollAxis:  config.AxisX,
	RollSign:  1,
	ZeroRef:   1,
}

// ConventionFromConfig reads the orientation keys.
func ConventionFromConfig(cfg *config.Config) Convention {
	return Convention{
		PitchAxis: cfg.PitchAxis,
		PitchSign: cfg.PitchSign,
		RollAxis:  cfg.RollAxis,
		RollSign:  cfg.RollSign,
		ZeroRef:   cfg.RollZeroRef,
	}
}

// Euler extracts angles from a renormalized DCM.
func (c Convention) Euler(dcm Mat3) Angles {
	g := dcm.Row(2)

	pitch := c.PitchSign * -math.Asin(clamp(g.At(int(c.PitchAxis)), -1, 1))

	u := (int(c.RollAxis) + 1) % 3
	v := (int(c.RollAxis) + 2) % 3
	roll := wrapPi(c.RollSign * math.Atan2(c.ZeroRef*g.At(u), c.ZeroRef*g.At(v)))

	yaw := wrapPi(math.Atan2(dcm[1][0], dcm[0][0]))

	return Angles{Roll: roll, Pitch: pitch, Yaw: yaw}
}

// rotation builds the body-to-earth DCM for roll, pitch, yaw in radians.
func rotation(roll, pitch, yaw float64) Mat3 {
	c1, s1 := math.Cos(roll), math.Sin(roll)
	c2, s2 := math.Cos(pitch), math.Sin(pitch)
	c3, s3 := math.Cos(yaw), math.Sin(yaw)

	return Mat3{
		{c2 * c3, c3*s1*s2 - c1*s3, s1*s3 + c1*c3*s2},
		{c2 * s3, c1*c3 + s1*s2*s3, c1*s2*s3 - c3*s1},
		{-s2, c2 * s1, c1 * c2},
	}
}
