// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package attitude estimates orientation with a direction cosine matrix
// driven by the gyroscope and corrected towards the accelerometer's gravity
// vector with a PI complementary filter.
//
// The DCM maps body to earth frame. Row 2 is the earth z axis seen from the
// body, so at rest it is parallel to the accelerometer reading.
//
// Without a magnetometer there is no heading reference. In YawFree mode the
// yaw integrates the gyro open loop and drifts with the residual z bias.
package attitude

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/orientation"
)

var (
	// ErrDegenerateMatrix is returned when the DCM could not be renormalized.
	// The estimator has been reset to identity when this is returned.
	ErrDegenerateMatrix = errors.New("attitude: degenerate rotation matrix")
	// ErrNoGravity is returned by Align for a zero or non-finite accel reading.
	ErrNoGravity = errors.New("attitude: accelerometer reading has no gravity direction")
	// ErrInvalidStep is returned for a non-positive or non-finite dt.
	ErrInvalidStep = errors.New("attitude: invalid time step")
)

const (
	renormTolerance = 1e-9
	acceptTolerance = 1e-6
	maxRenormPasses = 4
	minRowNorm      = 1e-3
)

// YawMode selects what happens to yaw without a heading sensor.
type YawMode int

const (
	YawFree YawMode = iota // integrate, uncorrected
	YawHold                // hold the heading captured at alignment
	YawZero                // report 0
)

// ParseYawMode maps the config spelling.
func ParseYawMode(s string) (YawMode, error) {
	switch s {
	case "", "free":
		return YawFree, nil
	case "hold":
		return YawHold, nil
	case "zero":
		return YawZero, nil
	}
	return YawFree, fmt.Errorf("unknown yaw mode %q", s)
}

func (m YawMode) String() string {
	switch m {
	case YawFree:
		return "free"
	case YawHold:
		return "hold"
	case YawZero:
		return "zero"
	}
	return fmt.Sprintf("yaw(%d)", int(m))
}

// Params are the filter constants.
type Params struct {
	KpRollPitch float64
	KiRollPitch float64
	KpYaw       float64
	KiYaw       float64

	OmegaILimit      float64 // rad/s, per component; 0 keeps Omega_I at zero
	Gravity          float64 // accel magnitude of 1G
	AccelWeightSlope float64 // weight = 1 - slope*|1 - |a|/G|

	YawMode    YawMode
	Convention Convention
}

// ParamsFromConfig reads the DCM keys.
func ParamsFromConfig(cfg *config.Config) (Params, error) {
	mode, err := ParseYawMode(cfg.YawMode)
	if err != nil {
		return Params{}, err
	}
	if !(cfg.OmegaILimit > 0) {
		return Params{}, fmt.Errorf("OMEGA_I_LIMIT must be positive, got %v", cfg.OmegaILimit)
	}
	return Params{
		KpRollPitch:      cfg.KpRollPitch,
		KiRollPitch:      cfg.KiRollPitch,
		KpYaw:            cfg.KpYaw,
		KiYaw:            cfg.KiYaw,
		OmegaILimit:      cfg.OmegaILimit,
		Gravity:          cfg.Gravity,
		AccelWeightSlope: cfg.AccelWeightSlope,
		YawMode:          mode,
		Convention:       ConventionFromConfig(cfg),
	}, nil
}

// State is a snapshot of the estimator internals.
type State struct {
	DCM         Mat3    `json:"dcm"`
	OmegaP      Vec3    `json:"omega_p"`
	OmegaI      Vec3    `json:"omega_i"`
	AccelWeight float64 `json:"accel_weight"`
	Aligned     bool    `json:"aligned"`
}

// Estimator is the DCM filter. It is not safe for concurrent use.
type Estimator struct {
	p Params

	dcm         Mat3
	omegaP      Vec3
	omegaI      Vec3
	accelWeight float64
	aligned     bool
	yawRef      float64
}

// NewEstimator starts at identity, unaligned.
func NewEstimator(p Params) *Estimator {
	e := &Estimator{p: p}
	e.Reset()
	return e
}

// Reset returns to identity and clears the correction terms. The next
// Update with a usable accel reading re-aligns.
func (e *Estimator) Reset() {
	e.dcm = Identity()
	e.omegaP = Vec3{}
	e.omegaI = Vec3{}
	e.accelWeight = 0
	e.aligned = false
	e.yawRef = 0
}

// Aligned reports whether the DCM has been seeded from gravity.
func (e *Estimator) Aligned() bool {
	return e.aligned
}

// DCM returns the current matrix.
func (e *Estimator) DCM() Mat3 {
	return e.dcm
}

// State returns a snapshot for diagnostics.
func (e *Estimator) State() State {
	return State{
		DCM:         e.dcm,
		OmegaP:      e.omegaP,
		OmegaI:      e.omegaI,
		AccelWeight: e.accelWeight,
		Aligned:     e.aligned,
	}
}

// Align seeds roll and pitch from the gravity direction with yaw 0 and
// clears the correction terms.
func (e *Estimator) Align(accel Vec3) error {
	if !accel.Finite() || accel.Norm() == 0 {
		return ErrNoGravity
	}
	roll, pitch, _ := orientation.ComputePoseFromAccel(accel.X, accel.Y, accel.Z).Radians()

	e.dcm = rotation(roll, pitch, 0)
	e.omegaP = Vec3{}
	e.omegaI = Vec3{}
	e.yawRef = 0
	e.aligned = true
	return nil
}

// Update runs one tick: integrate the corrected rate, renormalize, compute
// the next correction from gravity, extract angles.
//
// The first call with a usable accel reading only aligns.
// On ErrDegenerateMatrix the estimator is back at identity and the returned
// angles are those of the identity matrix.
func (e *Estimator) Update(gyro, accel Vec3, dt float64) (Angles, error) {
	if !e.aligned {
		if err := e.Align(accel); err == nil {
			return e.angles(), nil
		}
	}
	if dt <= 0 || !isFinite(dt) {
		return e.angles(), ErrInvalidStep
	}

	omega := gyro.Add(e.omegaI).Add(e.omegaP)
	e.dcm = e.dcm.Add(e.dcm.Mul(skew(omega.Scale(dt))))

	m, err := Renormalize(e.dcm)
	if err != nil {
		e.Reset()
		return e.angles(), err
	}
	e.dcm = m

	e.correct(accel, dt)
	return e.angles(), nil
}

func (e *Estimator) correct(accel Vec3, dt float64) {
	e.omegaP = Vec3{}
	e.accelWeight = 0

	n := accel.Norm()
	if n > 0 && isFinite(n) {
		e.accelWeight = clamp(1-e.p.AccelWeightSlope*math.Abs(1-n/e.p.Gravity), 0, 1)
	}

	if e.accelWeight > 0 {
		errRP := accel.Scale(1 / n).Cross(e.dcm.Row(2))
		e.omegaP = errRP.Scale(e.p.KpRollPitch * e.accelWeight)
		e.omegaI = e.omegaI.Add(errRP.Scale(e.p.KiRollPitch * e.accelWeight * dt))
	}

	if e.p.YawMode == YawHold {
		// heading error projected on the earth z axis
		course := e.dcm[0][0]*math.Sin(e.yawRef) - e.dcm[1][0]*math.Cos(e.yawRef)
		errYaw := e.dcm.Row(2).Scale(course)
		e.omegaP = e.omegaP.Add(errYaw.Scale(e.p.KpYaw))
		e.omegaI = e.omegaI.Add(errYaw.Scale(e.p.KiYaw * dt))
	}

	lim := e.p.OmegaILimit
	e.omegaI = Vec3{
		clamp(e.omegaI.X, -lim, lim),
		clamp(e.omegaI.Y, -lim, lim),
		clamp(e.omegaI.Z, -lim, lim),
	}
}

func (e *Estimator) angles() Angles {
	a := e.p.Convention.Euler(e.dcm)
	if e.p.YawMode == YawZero {
		a.Yaw = 0
	}
	return a
}

// Renormalize restores orthonormal rows. The orthogonality error of rows 0
// and 1 is split between them, row 2 is rebuilt as their cross product and
// all rows are scaled to unit length. This repeats until the error is below
// tolerance. A non-finite or collapsed matrix yields identity and
// ErrDegenerateMatrix.
func Renormalize(m Mat3) (Mat3, error) {
	if !m.Finite() {
		return Identity(), ErrDegenerateMatrix
	}

	for pass := 0; pass < maxRenormPasses; pass++ {
		r0, r1 := m.Row(0), m.Row(1)
		e := r0.Dot(r1)

		x := r0.Sub(r1.Scale(e / 2))
		y := r1.Sub(r0.Scale(e / 2))
		rows := [3]Vec3{x, y, x.Cross(y)}

		for i, r := range rows {
			n := r.Norm()
			if !isFinite(n) || n < minRowNorm {
				return Identity(), ErrDegenerateMatrix
			}
			m.SetRow(i, r.Scale(1/n))
		}

		if math.Abs(m.Row(0).Dot(m.Row(1))) < renormTolerance {
			break
		}
	}

	if !orthonormal(m, acceptTolerance) {
		return Identity(), ErrDegenerateMatrix
	}
	return m, nil
}

func orthonormal(m Mat3, tol float64) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(m.Row(i).Norm()-1) > tol {
			return false
		}
		for j := i + 1; j < 3; j++ {
			if math.Abs(m.Row(i).Dot(m.Row(j))) > tol {
				return false
			}
		}
	}
	return true
}
