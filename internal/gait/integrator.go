// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gait

import (
	"github.com/relabs-tech/gait_computer/internal/attitude"
)

// StandardGravity converts accelerations in G to m/s².
const StandardGravity = 9.80665

// Gains are the drift-correction gains of the integrator.
//
//	AP: subtracts the running mean of the acceleration (bias)
//	AD: damps sample-to-sample acceleration jumps
//	VP: pulls velocity back towards the value at phase start
//	VD: damps the velocity increment of each step
type Gains struct {
	AD float64
	AP float64
	VD float64
	VP float64
}

// Integrator integrates leg acceleration into velocity and position with
// complementary drift correction. Call ZeroVelocity at heel strike and
// MarkPhaseStart at toe-off.
type Integrator struct {
	g Gains

	accelTotal attitude.Vec3
	n          int
	accelPrev  attitude.Vec3

	vel     attitude.Vec3
	velPrev attitude.Vec3
	velInit attitude.Vec3

	pos    attitude.Vec3
	posSum attitude.Vec3
	posN   int
}

// NewIntegrator returns a zeroed integrator.
func NewIntegrator(g Gains) *Integrator {
	return &Integrator{g: g}
}

// Step integrates one acceleration sample (m/s²) over dt seconds and returns
// the corrected velocity.
func (in *Integrator) Step(a attitude.Vec3, dt float64) attitude.Vec3 {
	in.accelTotal = in.accelTotal.Add(a)
	in.n++
	mean := in.accelTotal.Scale(1 / float64(in.n))

	omegaAP := mean.Scale(in.g.AP)
	omegaAD := a.Sub(in.accelPrev).Scale(in.g.AD)
	in.accelPrev = a

	corrected := a.Sub(omegaAP).Sub(omegaAD)
	in.vel = in.vel.Add(corrected.Scale(dt))

	omegaVP := in.vel.Sub(in.velInit).Scale(in.g.VP)
	omegaVD := in.vel.Sub(in.velPrev).Scale(in.g.VD / dt)
	in.vel = in.vel.Sub(omegaVP.Add(omegaVD).Scale(dt))
	in.velPrev = in.vel

	in.pos = in.pos.Add(in.vel.Scale(dt))
	in.posSum = in.posSum.Add(in.pos)
	in.posN++

	return in.vel
}

// Velocity is the current corrected velocity.
func (in *Integrator) Velocity() attitude.Vec3 {
	return in.vel
}

// Position is the displacement since the last ZeroVelocity.
func (in *Integrator) Position() attitude.Vec3 {
	return in.pos
}

// AveragePosition is the mean position since the last ZeroVelocity.
func (in *Integrator) AveragePosition() attitude.Vec3 {
	if in.posN == 0 {
		return attitude.Vec3{}
	}
	return in.posSum.Scale(1 / float64(in.posN))
}

// ZeroVelocity is the stance update: velocity, bias estimate and position
// restart from zero.
func (in *Integrator) ZeroVelocity() {
	in.accelTotal = attitude.Vec3{}
	in.n = 0
	in.vel = attitude.Vec3{}
	in.velPrev = attitude.Vec3{}
	in.velInit = attitude.Vec3{}
	in.pos = attitude.Vec3{}
	in.posSum = attitude.Vec3{}
	in.posN = 0
}

// MarkPhaseStart re-biases the velocity reference at a phase change.
func (in *Integrator) MarkPhaseStart() {
	in.velInit = in.vel
}

// Reset clears everything including the acceleration history.
func (in *Integrator) Reset() {
	in.ZeroVelocity()
	in.accelPrev = attitude.Vec3{}
}

// LegAcceleration removes gravity from a filtered accelerometer sample.
// accel is in raw scaled units where gravity has magnitude 1G; dcm row 2 is
// gravity in the body frame. The result is in m/s², body frame.
func LegAcceleration(accel attitude.Vec3, dcm attitude.Mat3, gravity float64) attitude.Vec3 {
	return accel.Scale(1 / gravity).Sub(dcm.Row(2)).Scale(StandardGravity)
}
